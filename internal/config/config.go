// Package config loads the agent configuration from a JSON file, with
// environment variable expansion and sensible defaults for every field.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"taskforge/internal/pipeline"
	"taskforge/internal/vecindex"
	"taskforge/internal/vecstore"
)

// Config is the top-level agent configuration.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Pipeline PipelineConfig `json:"pipeline"`
	Index    IndexConfig    `json:"index"`
	GitHub   GitHubConfig   `json:"github"`
	Serve    ServeConfig    `json:"serve"`
}

// PathsConfig locates the on-disk state the agent reads and writes.
type PathsConfig struct {
	TasksDir       string `json:"tasks_dir"`
	CompletedState string `json:"completed_state"`
	VectorStore    string `json:"vector_store"`
	EventLog       string `json:"event_log"`
}

// PipelineConfig holds the model call tunables.
type PipelineConfig struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	FallbackModel string  `json:"fallback_model"`
	TimeoutSecs   float64 `json:"timeout_seconds"`
	MaxRetries    int     `json:"max_retries"`
	PollSecs      float64 `json:"poll_interval_seconds"`
	RequestSecs   float64 `json:"request_timeout_seconds"`
	MaxSnippets   int     `json:"max_snippets"`
}

// IndexConfig controls document chunking and indexing.
type IndexConfig struct {
	Roots     []string `json:"roots"`
	ChunkSize int      `json:"chunk_size"`
	Overlap   int      `json:"overlap"`
	Dimension int      `json:"dimension"`
}

// GitHubConfig controls the branch/PR publishing flow.
type GitHubConfig struct {
	BaseBranch   string `json:"base_branch"`
	BranchPrefix string `json:"branch_prefix"`
	Label        string `json:"label"`
	LabelColor   string `json:"label_color"`
}

// ServeConfig controls the scheduled run loop.
type ServeConfig struct {
	Schedule string `json:"schedule"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	pipelineDefaults := pipeline.DefaultConfig()
	return &Config{
		Paths: PathsConfig{
			TasksDir:       "tasks",
			CompletedState: "state/completed_tasks.json",
			VectorStore:    "state/vector_store.json",
			EventLog:       "state/agent_events.json",
		},
		Pipeline: PipelineConfig{
			Provider:      "scaleway",
			Model:         pipelineDefaults.Model,
			FallbackModel: pipelineDefaults.FallbackModel,
			TimeoutSecs:   pipelineDefaults.Timeout.Seconds(),
			MaxRetries:    pipelineDefaults.MaxRetries,
			PollSecs:      pipelineDefaults.PollInterval.Seconds(),
			RequestSecs:   pipelineDefaults.RequestTimeout.Seconds(),
			MaxSnippets:   pipelineDefaults.MaxSnippets,
		},
		Index: IndexConfig{
			Roots:     vecindex.DefaultRoots,
			ChunkSize: vecindex.DefaultChunkSize,
			Overlap:   vecindex.DefaultChunkOverlap,
			Dimension: vecstore.DefaultDimension,
		},
		GitHub: GitHubConfig{
			BaseBranch:   "main",
			BranchPrefix: "auto/",
			Label:        "auto",
			LabelColor:   "0E8A16",
		},
		Serve: ServeConfig{
			Schedule: "@hourly",
		},
	}
}

// Load reads a JSON config file, expanding ${ENV_VAR} references before
// decoding. Missing fields keep their defaults. An empty path returns the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

// applyEnv layers process environment overrides over the file values.
func (c *Config) applyEnv() {
	if path := os.Getenv("AGENT_EVENT_LOG_PATH"); path != "" {
		c.Paths.EventLog = path
	}
	env := pipeline.ConfigFromEnv()
	if os.Getenv("OPENAI_API_TIMEOUT") != "" {
		c.Pipeline.TimeoutSecs = env.Timeout.Seconds()
	}
	if os.Getenv("OPENAI_API_MAX_RETRIES") != "" {
		c.Pipeline.MaxRetries = env.MaxRetries
	}
	if os.Getenv("OPENAI_API_POLL_INTERVAL") != "" {
		c.Pipeline.PollSecs = env.PollInterval.Seconds()
	}
	if os.Getenv("OPENAI_API_REQUEST_TIMEOUT") != "" {
		c.Pipeline.RequestSecs = env.RequestTimeout.Seconds()
	}
}

func (c *Config) clamp() {
	if c.Pipeline.MaxRetries < 1 {
		c.Pipeline.MaxRetries = 1
	}
	if c.Pipeline.TimeoutSecs < 1 {
		c.Pipeline.TimeoutSecs = 1
	}
	if c.Pipeline.PollSecs < 0.2 {
		c.Pipeline.PollSecs = 0.2
	}
	if c.Pipeline.RequestSecs < 1 {
		c.Pipeline.RequestSecs = 1
	}
	if c.Pipeline.MaxSnippets <= 0 {
		c.Pipeline.MaxSnippets = pipeline.DefaultConfig().MaxSnippets
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = vecindex.DefaultChunkSize
	}
	if len(c.Index.Roots) == 0 {
		c.Index.Roots = vecindex.DefaultRoots
	}
}

// EngineConfig converts the file representation into the pipeline engine's
// runtime config.
func (c *Config) EngineConfig() pipeline.Config {
	return pipeline.Config{
		Model:          c.Pipeline.Model,
		FallbackModel:  c.Pipeline.FallbackModel,
		Timeout:        secondsToDuration(c.Pipeline.TimeoutSecs),
		MaxRetries:     c.Pipeline.MaxRetries,
		PollInterval:   secondsToDuration(c.Pipeline.PollSecs),
		RequestTimeout: secondsToDuration(c.Pipeline.RequestSecs),
		MaxSnippets:    c.Pipeline.MaxSnippets,
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
