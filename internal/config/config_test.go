package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "tasks", cfg.Paths.TasksDir)
	assert.Equal(t, "state/vector_store.json", cfg.Paths.VectorStore)
	assert.Equal(t, "gpt-5-codex", cfg.Pipeline.Model)
	assert.Equal(t, "gpt-5-mini", cfg.Pipeline.FallbackModel)
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)
	assert.Equal(t, []string{"docs", "tests"}, cfg.Index.Roots)
	assert.Equal(t, "auto/", cfg.GitHub.BranchPrefix)
	assert.Equal(t, "0E8A16", cfg.GitHub.LabelColor)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pipeline": {"model": "custom-model", "max_retries": 5},
		"github": {"base_branch": "develop"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Pipeline.Model)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, "develop", cfg.GitHub.BaseBranch)
	assert.Equal(t, "auto/", cfg.GitHub.BranchPrefix)
	assert.Equal(t, "tasks", cfg.Paths.TasksDir)
}

func TestLoadExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("TASKFORGE_TEST_TASKS_DIR", "/srv/agent/tasks")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"paths": {"tasks_dir": "${TASKFORGE_TEST_TASKS_DIR}"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/agent/tasks", cfg.Paths.TasksDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AGENT_EVENT_LOG_PATH", "/tmp/alt_events.json")
	t.Setenv("OPENAI_API_TIMEOUT", "120")
	t.Setenv("OPENAI_API_MAX_RETRIES", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/alt_events.json", cfg.Paths.EventLog)
	assert.Equal(t, float64(120), cfg.Pipeline.TimeoutSecs)
	assert.Equal(t, 4, cfg.Pipeline.MaxRetries)
}

func TestClampFloors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pipeline": {"max_retries": 0, "poll_interval_seconds": 0.01, "request_timeout_seconds": 0.1}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 0.2, cfg.Pipeline.PollSecs)
	assert.Equal(t, float64(1), cfg.Pipeline.RequestSecs)
}

func TestEngineConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.TimeoutSecs = 90
	cfg.Pipeline.PollSecs = 1.5

	engineCfg := cfg.EngineConfig()
	assert.Equal(t, 90*time.Second, engineCfg.Timeout)
	assert.Equal(t, 1500*time.Millisecond, engineCfg.PollInterval)
	assert.Equal(t, cfg.Pipeline.Model, engineCfg.Model)
}
