package llm

import (
	"context"
	"net/url"
	"time"

	"taskforge/internal/events"
)

// QuotaSnapshot holds a best-effort view of provider usage and limits.
// Either side may be empty when the endpoint rejected the probe.
type QuotaSnapshot struct {
	Usage  map[string]any `json:"usage,omitempty"`
	Limits map[string]any `json:"limits,omitempty"`
}

// IsEmpty reports whether the probe returned nothing at all.
func (s *QuotaSnapshot) IsEmpty() bool {
	return s == nil || (len(s.Usage) == 0 && len(s.Limits) == 0)
}

// Summarize reduces a snapshot side to its numeric fields so it fits in an
// event log entry. At most five entries are kept.
func Summarize(block map[string]any) map[string]any {
	summary := make(map[string]any)
	for key, value := range block {
		switch value.(type) {
		case float64, int:
			summary[key] = value
		}
		if len(summary) >= 5 {
			break
		}
	}
	return summary
}

// CaptureQuotaSnapshot probes the provider's usage and limits endpoints.
// Failures degrade to warnings; a partially filled snapshot is still useful.
func (c *HTTPClient) CaptureQuotaSnapshot(ctx context.Context, eventLog *events.Log) *QuotaSnapshot {
	if c == nil || !c.supportsQuota {
		return nil
	}

	snapshot := &QuotaSnapshot{}

	params := url.Values{}
	params.Set("date", time.Now().UTC().Format("2006-01-02"))
	usage, err := c.get(ctx, "/usage", params)
	if err != nil {
		eventLog.Append(events.LevelWarning, "llm_client", "quota_usage_probe_failed",
			map[string]any{"error": err.Error()})
	} else {
		snapshot.Usage = usage
	}

	limits, err := c.get(ctx, "/limits", nil)
	if err != nil {
		eventLog.Append(events.LevelWarning, "llm_client", "quota_limits_probe_failed",
			map[string]any{"error": err.Error()})
	} else {
		snapshot.Limits = limits
	}

	if snapshot.IsEmpty() {
		return nil
	}
	return snapshot
}
