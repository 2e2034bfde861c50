package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/events"
	"taskforge/internal/llm"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.PollInterval = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, client llm.Caller, cfg Config) (*Engine, *events.Log) {
	t.Helper()
	eventLog := events.New(filepath.Join(t.TempDir(), "events.json"))
	engine := New(client, cfg, eventLog)
	engine.sleep = func(time.Duration) {}
	return engine, eventLog
}

func countEvents(logged []events.Event, message string) int {
	n := 0
	for _, evt := range logged {
		if evt.Message == message {
			n++
		}
	}
	return n
}

func TestRunContextSummarySuccess(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(llm.CompletedResponse(
		`{"summary":"rework the chunker","context_clues":[{"id":"c1","path":"docs/a.md","rationale":"mentions overlap"}]}`,
		120, 40), nil)

	engine, eventLog := newTestEngine(t, client, fastConfig())
	summary, err := engine.RunContextSummary(context.Background(), StageRequest{
		SystemPrompt: "sys", UserPrompt: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, "rework the chunker", summary.Summary)
	require.Len(t, summary.ContextClues, 1)
	assert.Equal(t, "c1", summary.ContextClues[0].Identifier)
	assert.Equal(t, StageUsage{InputTokens: 120, OutputTokens: 40, TotalTokens: 160}, summary.Usage)

	logged := eventLog.Load()
	assert.Equal(t, 1, countEvents(logged, "token_usage"))
	assert.Equal(t, 2, countEvents(logged, "stage_transition"))
}

func TestRetryFailTwiceThenSucceed(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(nil, errors.New("connection reset"))
	client.QueueCreate(nil, errors.New("connection reset"))
	client.QueueCreate(llm.CompletedResponse(`{"summary":"ok"}`, 1, 1), nil)

	engine, eventLog := newTestEngine(t, client, fastConfig())
	summary, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", summary.Summary)

	logged := eventLog.Load()
	assert.Equal(t, 2, countEvents(logged, "LLM call attempt failed"))
	assert.Equal(t, 0, countEvents(logged, "LLM call exhausted retries"))
}

func TestRetryExhaustion(t *testing.T) {
	client := llm.NewMockClient()
	for i := 0; i < 3; i++ {
		client.QueueCreate(nil, errors.New("connection reset"))
	}

	engine, eventLog := newTestEngine(t, client, fastConfig())
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.Error(t, err)

	var stageErr *StageCallError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageContextSummary, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempts)

	logged := eventLog.Load()
	assert.Equal(t, 3, countEvents(logged, "LLM call attempt failed"))
	require.Equal(t, 1, countEvents(logged, "LLM call exhausted retries"))
	for _, evt := range logged {
		if evt.Message == "LLM call exhausted retries" {
			assert.Equal(t, float64(3), evt.Details["attempts"])
		}
	}
}

func TestQuotaFailureSwitchesToFallbackModel(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(nil, errors.New("insufficient_quota: billing hard limit reached"))
	client.QueueCreate(llm.CompletedResponse(`{"summary":"ok"}`, 1, 1), nil)

	engine, _ := newTestEngine(t, client, fastConfig())
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.NoError(t, err)

	require.Len(t, client.CreateCalls, 2)
	assert.Equal(t, "gpt-5-codex", client.CreateCalls[0].Model)
	assert.Equal(t, "gpt-5-mini", client.CreateCalls[1].Model)
}

func TestQuotaFailureOnOverrideModelKeepsModel(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(nil, errors.New("429 too many requests"))
	client.QueueCreate(llm.CompletedResponse(`{"summary":"ok"}`, 1, 1), nil)

	engine, _ := newTestEngine(t, client, fastConfig())
	_, err := engine.RunContextSummary(context.Background(), StageRequest{Model: "custom-model"})
	require.NoError(t, err)

	require.Len(t, client.CreateCalls, 2)
	assert.Equal(t, "custom-model", client.CreateCalls[0].Model)
	assert.Equal(t, "custom-model", client.CreateCalls[1].Model)
}

func TestMalformedJSONYieldsEmptyPayload(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(llm.CompletedResponse("this is not json at all", 5, 2), nil)

	engine, eventLog := newTestEngine(t, client, fastConfig())
	summary, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.NoError(t, err)
	assert.Empty(t, summary.Summary)
	assert.Empty(t, summary.ContextClues)
	assert.Equal(t, 7, summary.Usage.TotalTokens)

	logged := eventLog.Load()
	assert.Equal(t, 1, countEvents(logged, "model_json_parse_failed"))
}

func TestCodeFencedJSONIsUnwrapped(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(llm.CompletedResponse("```json\n{\"summary\":\"fenced\"}\n```", 1, 1), nil)

	engine, _ := newTestEngine(t, client, fastConfig())
	summary, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fenced", summary.Summary)
}

func TestBackgroundPollingToCompletion(t *testing.T) {
	client := llm.NewMockClient()
	client.QueueCreate(llm.Response{"id": "resp-9", "status": "queued"}, nil)
	client.QueueRetrieve(llm.Response{"id": "resp-9", "status": "in_progress"}, nil)
	client.QueueRetrieve(llm.CompletedResponse(`{"summary":"done"}`, 1, 1), nil)

	engine, _ := newTestEngine(t, client, fastConfig())
	summary, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", summary.Summary)
	assert.Equal(t, []string{"resp-9", "resp-9"}, client.RetrieveCalls)
}

func TestBackgroundFailureStatus(t *testing.T) {
	client := llm.NewMockClient()
	cfg := fastConfig()
	cfg.MaxRetries = 1
	client.QueueCreate(llm.Response{
		"id": "resp-9", "status": "failed",
		"error": map[string]any{"message": "model melted"},
	}, nil)

	engine, _ := newTestEngine(t, client, cfg)
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model melted")
}

func TestMissingStatusFailsAttempt(t *testing.T) {
	client := llm.NewMockClient()
	cfg := fastConfig()
	cfg.MaxRetries = 2
	client.QueueCreate(llm.Response{"output_text": `{"summary":"sneaky"}`}, nil)
	client.QueueCreate(llm.Response{"output_text": `{"summary":"sneaky"}`}, nil)

	engine, eventLog := newTestEngine(t, client, cfg)
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete")

	logged := eventLog.Load()
	assert.Equal(t, 2, countEvents(logged, "LLM call attempt failed"))
	assert.Equal(t, 1, countEvents(logged, "LLM call exhausted retries"))
}

func TestNonCompletedTerminalStatusFailsAttempt(t *testing.T) {
	client := llm.NewMockClient()
	cfg := fastConfig()
	cfg.MaxRetries = 1
	client.QueueCreate(llm.Response{"id": "resp-9", "status": "cancelled"}, nil)

	engine, _ := newTestEngine(t, client, cfg)
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=cancelled")
}

func TestPollTimeout(t *testing.T) {
	client := llm.NewMockClient()
	cfg := fastConfig()
	cfg.MaxRetries = 1
	cfg.Timeout = 10 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	client.QueueCreate(llm.Response{"id": "resp-9", "status": "queued"}, nil)
	for i := 0; i < 64; i++ {
		client.QueueRetrieve(llm.Response{"id": "resp-9", "status": "in_progress"}, nil)
	}

	eventLog := events.New(filepath.Join(t.TempDir(), "events.json"))
	engine := New(client, cfg, eventLog)
	_, err := engine.RunContextSummary(context.Background(), StageRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCallTimeout)
}

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, failureQuota, classifyFailure(errors.New("You exceeded your current quota")))
	assert.Equal(t, failureQuota, classifyFailure(errors.New("API error: 429 - rate limit")))
	assert.Equal(t, failureTimeout, classifyFailure(ErrCallTimeout))
	assert.Equal(t, failureTimeout, classifyFailure(context.DeadlineExceeded))
	assert.Equal(t, failureGeneric, classifyFailure(errors.New("connection reset")))
}

func TestBackoffDelayIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
	assert.Equal(t, 5*time.Second, backoffDelay(4))
	assert.Equal(t, 5*time.Second, backoffDelay(10))
}

func TestResolveModelPrecedence(t *testing.T) {
	engine, _ := newTestEngine(t, llm.NewMockClient(), fastConfig())

	t.Setenv("TASKFORGE_MODEL", "global-model")
	t.Setenv("TASKFORGE_MODEL_CONTEXT_SUMMARY", "stage-model")

	model, source := engine.resolveModel(StageContextSummary, "param-model")
	assert.Equal(t, "param-model", model)
	assert.Equal(t, "parameter", source)

	model, source = engine.resolveModel(StageContextSummary, "")
	assert.Equal(t, "stage-model", model)
	assert.Equal(t, "stage_env", source)

	model, source = engine.resolveModel(StageExecutionPlan, "")
	assert.Equal(t, "global-model", model)
	assert.Equal(t, "global_env", source)

	t.Setenv("TASKFORGE_MODEL", "")
	model, source = engine.resolveModel(StageExecutionPlan, "")
	assert.Equal(t, "gpt-5-codex", model)
	assert.Equal(t, "default", source)
}

func TestConfigFromEnvOverridesAndFloors(t *testing.T) {
	t.Setenv("OPENAI_API_TIMEOUT", "60")
	t.Setenv("OPENAI_API_MAX_RETRIES", "0")
	t.Setenv("OPENAI_API_POLL_INTERVAL", "0.05")
	t.Setenv("OPENAI_API_REQUEST_TIMEOUT", "10")

	cfg := ConfigFromEnv()
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}
