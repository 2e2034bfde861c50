// Package events is the persistent structured event log for agent runs.
// Events are appended to a single JSON file with bounded ring-buffer
// semantics: once the maximum retained count is reached, the oldest entries
// are dropped first.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxEvents is the maximum number of retained events.
const DefaultMaxEvents = 200

// Event levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is a single structured log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log appends events to a JSON file. A nil *Log discards everything, so
// callers can pass one through unconditionally.
type Log struct {
	path      string
	maxEvents int
	runID     string
}

// New creates an event log backed by the given file path.
func New(path string) *Log {
	return &Log{path: path, maxEvents: DefaultMaxEvents}
}

// WithMaxEvents overrides the retained-event bound.
func (l *Log) WithMaxEvents(n int) *Log {
	if l != nil && n > 0 {
		l.maxEvents = n
	}
	return l
}

// WithRunID tags every subsequent event with a run identifier.
func (l *Log) WithRunID(id string) *Log {
	if l != nil {
		l.runID = id
	}
	return l
}

// Path returns the backing file path.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append records an event and returns the stored entry. Write failures are
// swallowed: logging must never break an orchestrator run.
func (l *Log) Append(level, source, message string, details map[string]any) Event {
	entry := Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Source:    source,
		Message:   message,
		Details:   details,
	}
	if l == nil {
		return entry
	}
	entry.RunID = l.runID

	stored := append(l.Load(), entry)
	if len(stored) > l.maxEvents {
		stored = stored[len(stored)-l.maxEvents:]
	}
	l.write(stored)
	return entry
}

// Load returns all stored events, or an empty slice when the file is missing
// or unreadable.
func (l *Log) Load() []Event {
	if l == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var stored []Event
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil
	}
	return stored
}

// Clear removes all stored events. Removal errors are ignored so a stuck log
// file cannot block the orchestrator.
func (l *Log) Clear() {
	if l == nil {
		return
	}
	os.Remove(l.path)
}

func (l *Log) write(stored []Event) {
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	os.WriteFile(l.path, append(data, '\n'), 0o644)
}

// StageTransition records a pipeline stage start/complete transition.
func (l *Log) StageTransition(stage, status string, metadata map[string]any) {
	details := map[string]any{"stage": stage, "status": status}
	for k, v := range metadata {
		details[k] = v
	}
	l.Append(LevelInfo, "pipeline", "stage_transition", details)
}

// TokenUsage records token accounting for a stage.
func (l *Log) TokenUsage(stage string, inputTokens, outputTokens, totalTokens int) {
	l.Append(LevelInfo, "pipeline", "token_usage", map[string]any{
		"stage":         stage,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"total_tokens":  totalTokens,
	})
}

// AdminRequests persists admin assistance requests emitted by the model.
// Only well-formed mapping entries are recorded. Returns the stored event,
// or nil when nothing usable was provided.
func (l *Log) AdminRequests(requests []map[string]any) *Event {
	var normalized []map[string]any
	for _, req := range requests {
		if len(req) > 0 {
			normalized = append(normalized, req)
		}
	}
	if len(normalized) == 0 {
		return nil
	}
	entry := l.Append(LevelWarning, "admin_channel", "admin_requests", map[string]any{
		"count":    len(normalized),
		"requests": normalized,
	})
	return &entry
}

// QuotaSnapshot records account usage and rate-limit metadata for a stage.
func (l *Log) QuotaSnapshot(stage string, usage, limits map[string]any) {
	if len(usage) == 0 && len(limits) == 0 {
		return
	}
	details := map[string]any{"stage": stage}
	if len(usage) > 0 {
		details["usage"] = usage
	}
	if len(limits) > 0 {
		details["limits"] = limits
	}
	l.Append(LevelInfo, "pipeline", "openai_quota", details)
}
