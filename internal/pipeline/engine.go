package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"taskforge/internal/events"
	"taskforge/internal/llm"
	"taskforge/internal/vecstore"
)

// Config holds the tunables for stage model calls.
type Config struct {
	Model          string        `json:"model"`
	FallbackModel  string        `json:"fallback_model"`
	Timeout        time.Duration `json:"-"`
	MaxRetries     int           `json:"max_retries"`
	PollInterval   time.Duration `json:"-"`
	RequestTimeout time.Duration `json:"-"`
	MaxSnippets    int           `json:"max_snippets"`
}

// DefaultConfig returns the shipping defaults.
func DefaultConfig() Config {
	return Config{
		Model:          "gpt-5-codex",
		FallbackModel:  "gpt-5-mini",
		Timeout:        1800 * time.Second,
		MaxRetries:     2,
		PollInterval:   1500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		MaxSnippets:    3,
	}
}

// ConfigFromEnv layers environment overrides over the defaults. Each value
// is clamped to a sane floor so a typo cannot produce a busy loop.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := envSeconds("OPENAI_API_TIMEOUT"); v > 0 {
		cfg.Timeout = maxDuration(v, time.Second)
	}
	if raw := os.Getenv("OPENAI_API_MAX_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.MaxRetries = n
		}
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if v := envSeconds("OPENAI_API_POLL_INTERVAL"); v > 0 {
		cfg.PollInterval = maxDuration(v, 200*time.Millisecond)
	}
	if v := envSeconds("OPENAI_API_REQUEST_TIMEOUT"); v > 0 {
		cfg.RequestTimeout = maxDuration(v, time.Second)
	}
	return cfg
}

func envSeconds(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Engine executes pipeline stages against a model client.
type Engine struct {
	client llm.Caller
	cfg    Config
	events *events.Log
	store  *vecstore.Store

	// sleep is swapped out in tests so retry backoff runs instantly.
	sleep func(time.Duration)
}

// New creates an engine. The event log may be nil.
func New(client llm.Caller, cfg Config, eventLog *events.Log) *Engine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = DefaultConfig().MaxSnippets
	}
	return &Engine{
		client: client,
		cfg:    cfg,
		events: eventLog,
		sleep:  time.Sleep,
	}
}

// WithVectorStore attaches the store the retrieval stage queries.
func (e *Engine) WithVectorStore(store *vecstore.Store) *Engine {
	e.store = store
	return e
}

// resolveModel picks the model for a stage: an explicit override wins, then a
// per-stage environment variable, then the global environment variable, then
// the configured default.
func (e *Engine) resolveModel(stage, override string) (string, string) {
	if override != "" {
		return override, "parameter"
	}
	envKey := "TASKFORGE_MODEL_" + strings.ToUpper(stage)
	if model := strings.TrimSpace(os.Getenv(envKey)); model != "" {
		return model, "stage_env"
	}
	if model := strings.TrimSpace(os.Getenv("TASKFORGE_MODEL")); model != "" {
		return model, "global_env"
	}
	return e.cfg.Model, "default"
}

type failureKind int

const (
	failureGeneric failureKind = iota
	failureQuota
	failureTimeout
)

type recoveryAction struct {
	switchToFallback bool
}

// recoveryActions maps each failure class to what the retry loop should do
// before the next attempt. New classes get a row here, not another branch in
// the loop.
var recoveryActions = map[failureKind]recoveryAction{
	failureGeneric: {},
	failureTimeout: {},
	failureQuota:   {switchToFallback: true},
}

func classifyFailure(err error) failureKind {
	if errors.Is(err, ErrCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "rate limit", "insufficient_quota", "429"} {
		if strings.Contains(msg, marker) {
			return failureQuota
		}
	}
	return failureGeneric
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<(attempt-1)) * time.Second
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}

// callModelJSON runs one stage call with retries and returns the decoded
// JSON payload plus token usage.
func (e *Engine) callModelJSON(ctx context.Context, stage, systemPrompt, userPrompt, modelOverride string) (map[string]any, StageUsage, error) {
	model, source := e.resolveModel(stage, modelOverride)
	log.Printf("[Pipeline] Stage %s using model %s (%s)", stage, model, source)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		payload, usage, err := e.attempt(ctx, stage, model, systemPrompt, userPrompt)
		if err == nil {
			return payload, usage, nil
		}
		lastErr = err

		e.events.Append(events.LevelWarning, "pipeline", "LLM call attempt failed", map[string]any{
			"stage":   stage,
			"attempt": attempt,
			"model":   model,
			"error":   err.Error(),
		})

		action := recoveryActions[classifyFailure(err)]
		if action.switchToFallback && model == e.cfg.Model && e.cfg.FallbackModel != "" && e.cfg.FallbackModel != model {
			log.Printf("[Pipeline] Stage %s switching to fallback model %s after quota failure", stage, e.cfg.FallbackModel)
			model = e.cfg.FallbackModel
		}

		if attempt < e.cfg.MaxRetries {
			e.sleep(backoffDelay(attempt))
		}
	}

	e.events.Append(events.LevelError, "pipeline", "LLM call exhausted retries", map[string]any{
		"stage":    stage,
		"attempts": e.cfg.MaxRetries,
		"model":    model,
		"error":    lastErr.Error(),
	})
	return nil, StageUsage{}, &StageCallError{Stage: stage, Attempts: e.cfg.MaxRetries, Model: model, Err: lastErr}
}

// attempt submits one background call and polls it to a terminal status.
func (e *Engine) attempt(ctx context.Context, stage, model, systemPrompt, userPrompt string) (map[string]any, StageUsage, error) {
	deadline := time.Now().Add(e.cfg.Timeout)

	resp, err := e.roundTrip(ctx, deadline, func(callCtx context.Context) (llm.Response, error) {
		return e.client.CreateResponse(callCtx, &llm.Request{
			Model:        model,
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
		})
	})
	if err != nil {
		return nil, StageUsage{}, err
	}

	id := resp.ID()
	status := resp.Status()
	for status == "" || status == "queued" || status == "in_progress" {
		if id == "" {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, StageUsage{}, fmt.Errorf("%w after %s", ErrCallTimeout, e.cfg.Timeout)
		}
		e.sleep(minDuration(e.cfg.PollInterval, remaining))

		resp, err = e.roundTrip(ctx, deadline, func(callCtx context.Context) (llm.Response, error) {
			return e.client.RetrieveResponse(callCtx, id)
		})
		if err != nil {
			return nil, StageUsage{}, err
		}
		status = resp.Status()
	}

	switch status {
	case "completed":
		return e.decodePayload(stage, resp)
	case "failed":
		msg := resp.ErrorMessage()
		if msg == "" {
			msg = "model reported failure without detail"
		}
		return nil, StageUsage{}, fmt.Errorf("model call failed: %s", msg)
	default:
		return nil, StageUsage{}, fmt.Errorf("model call did not complete (status=%s)", status)
	}
}

// roundTrip runs one HTTP exchange under the per-request timeout, never
// extending past the overall stage deadline.
func (e *Engine) roundTrip(ctx context.Context, deadline time.Time, call func(context.Context) (llm.Response, error)) (llm.Response, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, fmt.Errorf("%w after %s", ErrCallTimeout, e.cfg.Timeout)
	}
	callCtx, cancel := context.WithTimeout(ctx, minDuration(e.cfg.RequestTimeout, remaining))
	defer cancel()
	return call(callCtx)
}

// decodePayload parses the model's output text as JSON. A parse failure is
// not fatal: the raw text is logged and the stage continues with an empty
// payload.
func (e *Engine) decodePayload(stage string, resp llm.Response) (map[string]any, StageUsage, error) {
	in, out, total := resp.Usage()
	usage := StageUsage{InputTokens: in, OutputTokens: out, TotalTokens: total}

	text := strings.TrimSpace(resp.OutputText())
	text = stripCodeFence(text)
	if text == "" {
		return map[string]any{}, usage, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		excerpt := text
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		e.events.Append(events.LevelWarning, "pipeline", "model_json_parse_failed", map[string]any{
			"stage":   stage,
			"error":   err.Error(),
			"excerpt": excerpt,
		})
		return map[string]any{}, usage, nil
	}
	return payload, usage, nil
}

// stripCodeFence unwraps a ```json fenced block, which models emit even when
// told not to.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	trimmed := strings.TrimPrefix(text, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
