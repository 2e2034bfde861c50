package events

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "run_events.json"))
}

func TestAppendAndLoad(t *testing.T) {
	log := newTestLog(t)

	entry := log.Append(LevelInfo, "pipeline", "stage_transition", map[string]any{"stage": "context_summary"})
	assert.False(t, entry.Timestamp.IsZero())

	stored := log.Load()
	require.Len(t, stored, 1)
	assert.Equal(t, "stage_transition", stored[0].Message)
	assert.Equal(t, "pipeline", stored[0].Source)
	assert.Equal(t, "context_summary", stored[0].Details["stage"])
}

func TestBoundedRetention(t *testing.T) {
	log := newTestLog(t).WithMaxEvents(5)

	for i := 0; i < 8; i++ {
		log.Append(LevelInfo, "test", fmt.Sprintf("event-%d", i), nil)
	}

	stored := log.Load()
	require.Len(t, stored, 5)
	assert.Equal(t, "event-3", stored[0].Message)
	assert.Equal(t, "event-7", stored[4].Message)
}

func TestLoadUnreadableFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_events.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	log := New(path)
	assert.Empty(t, log.Load())

	// Appending replaces the unreadable file.
	log.Append(LevelWarning, "test", "recovered", nil)
	assert.Len(t, log.Load(), 1)
}

func TestRunIDTagging(t *testing.T) {
	log := newTestLog(t).WithRunID("run-123")
	log.Append(LevelInfo, "orchestrator", "started", nil)

	stored := log.Load()
	require.Len(t, stored, 1)
	assert.Equal(t, "run-123", stored[0].RunID)
}

func TestAdminRequestsFiltersMalformedEntries(t *testing.T) {
	log := newTestLog(t)

	assert.Nil(t, log.AdminRequests(nil))
	assert.Nil(t, log.AdminRequests([]map[string]any{{}, nil}))

	entry := log.AdminRequests([]map[string]any{
		{"summary": "need repo access"},
		{},
	})
	require.NotNil(t, entry)
	assert.Equal(t, LevelWarning, entry.Level)
	assert.Equal(t, 1, entry.Details["count"])
}

func TestNilLogIsSafe(t *testing.T) {
	var log *Log
	log.Append(LevelInfo, "test", "ignored", nil)
	log.StageTransition("context_summary", "start", nil)
	log.TokenUsage("context_summary", 1, 2, 3)
	log.Clear()
	assert.Empty(t, log.Load())
}

func TestClear(t *testing.T) {
	log := newTestLog(t)
	log.Append(LevelInfo, "test", "one", nil)
	log.Clear()
	assert.Empty(t, log.Load())
}
