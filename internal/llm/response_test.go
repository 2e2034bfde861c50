package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

func TestOutputTextFlattened(t *testing.T) {
	resp := decode(t, `{"id":"resp-1","status":"completed","output_text":"hello"}`)
	assert.Equal(t, "hello", resp.OutputText())
	assert.Equal(t, "resp-1", resp.ID())
	assert.Equal(t, "completed", resp.Status())
}

func TestOutputTextNestedSegments(t *testing.T) {
	resp := decode(t, `{
		"status": "completed",
		"output": [
			{"type": "reasoning", "content": []},
			{"type": "message", "content": [
				{"type": "output_text", "text": "first "},
				{"type": "refusal", "text": "ignored"},
				{"type": "output_text", "text": "second"}
			]}
		]
	}`)
	assert.Equal(t, "first second", resp.OutputText())
}

func TestOutputTextTopLevelItems(t *testing.T) {
	resp := decode(t, `{
		"status": "completed",
		"output": [
			{"type": "output_text", "text": "plain "},
			{"type": "message", "content": [
				{"type": "output_text", "text": "nested"}
			]}
		]
	}`)
	assert.Equal(t, "plain nested", resp.OutputText())
}

func TestOutputTextMissing(t *testing.T) {
	resp := decode(t, `{"status":"completed"}`)
	assert.Empty(t, resp.OutputText())
}

func TestUsageResponsesFieldNames(t *testing.T) {
	resp := decode(t, `{"usage":{"input_tokens":10,"output_tokens":4,"total_tokens":14}}`)
	in, out, total := resp.Usage()
	assert.Equal(t, 10, in)
	assert.Equal(t, 4, out)
	assert.Equal(t, 14, total)
}

func TestUsageLegacyFieldNames(t *testing.T) {
	resp := decode(t, `{"usage":{"prompt_tokens":7,"completion_tokens":3}}`)
	in, out, total := resp.Usage()
	assert.Equal(t, 7, in)
	assert.Equal(t, 3, out)
	assert.Equal(t, 10, total)
}

func TestUsageAbsent(t *testing.T) {
	resp := decode(t, `{"status":"completed"}`)
	in, out, total := resp.Usage()
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Zero(t, total)
}

func TestErrorMessage(t *testing.T) {
	resp := decode(t, `{"status":"failed","error":{"message":"rate limit hit","code":"429"}}`)
	assert.Equal(t, "rate limit hit", resp.ErrorMessage())
}

func TestSummarizeKeepsNumericFields(t *testing.T) {
	block := map[string]any{
		"total_tokens": float64(120),
		"model":        "gpt-5-codex",
		"requests":     float64(3),
	}
	summary := Summarize(block)
	assert.Contains(t, summary, "total_tokens")
	assert.Contains(t, summary, "requests")
	assert.NotContains(t, summary, "model")
}
