// Package orchestrator drives one agent run end to end: pick a task, run the
// planning pipeline, apply the proposed patches, and publish them as a
// labelled pull request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"taskforge/internal/config"
	"taskforge/internal/events"
	"taskforge/internal/llm"
	"taskforge/internal/pipeline"
	"taskforge/internal/tasks"
	"taskforge/internal/vecindex"
	"taskforge/internal/vecstore"
)

// Orchestrator wires the agent's components for a repository working tree.
type Orchestrator struct {
	cfg     *config.Config
	repoDir string
	events  *events.Log
	git     *gitRunner
	github  *GitHubClient
	client  *llm.HTTPClient
	runID   string
}

// RunResult summarizes what a single run did.
type RunResult struct {
	Task        *tasks.TaskSpec
	Plan        *pipeline.ExecutionPlan
	Branch      string
	PullRequest int
	Committed   bool
	Skipped     string
}

// New builds an orchestrator rooted at repoDir. The model client and GitHub
// client come from the environment; either may be absent, which degrades the
// run rather than failing it.
func New(cfg *config.Config, repoDir string) *Orchestrator {
	runID := uuid.NewString()
	eventLog := events.New(resolvePath(repoDir, cfg.Paths.EventLog)).WithRunID(runID)
	return &Orchestrator{
		cfg:     cfg,
		repoDir: repoDir,
		events:  eventLog,
		git:     newGitRunner(repoDir, eventLog),
		github:  NewGitHubClientFromEnv(),
		client:  llm.NewFromEnv(cfg.Pipeline.Provider, eventLog),
		runID:   runID,
	}
}

// Events exposes the run's event log.
func (o *Orchestrator) Events() *events.Log {
	return o.events
}

// Run executes one full agent cycle. A nil result with nil error means no
// task was ready.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	o.events.Append(events.LevelInfo, "orchestrator", "run_started", nil)

	catalogue, err := tasks.LoadDir(resolvePath(o.repoDir, o.cfg.Paths.TasksDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load task catalogue: %w", err)
	}
	state, err := tasks.NewCompletedTaskStore(resolvePath(o.repoDir, o.cfg.Paths.CompletedState))
	if err != nil {
		return nil, fmt.Errorf("failed to load completion state: %w", err)
	}

	task := tasks.SelectNext(catalogue, state)
	if task == nil {
		o.events.Append(events.LevelInfo, "orchestrator", "no_ready_tasks", map[string]any{
			"catalogue_size": len(catalogue),
		})
		return nil, nil
	}
	log.Printf("[Orchestrator] Selected task %s (%s)", task.ID, task.Priority)
	o.events.Append(events.LevelInfo, "orchestrator", "task_selected", map[string]any{
		"task_id": task.ID, "priority": string(task.Priority),
	})

	result := &RunResult{Task: task}
	if o.client == nil {
		o.events.Append(events.LevelWarning, "orchestrator", "run_skipped_offline", map[string]any{
			"task_id": task.ID,
		})
		result.Skipped = "no model client configured"
		return result, nil
	}

	store, err := o.openVectorStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	o.recordQuotaSnapshot(ctx, "pre_run")

	engine := pipeline.New(o.client, o.cfg.EngineConfig(), o.events).WithVectorStore(store)
	plan, brief, err := o.runPipeline(ctx, engine, task, catalogue, state)
	if err != nil {
		return nil, err
	}
	result.Plan = plan

	if requests := plan.AdminRequests; len(requests) > 0 {
		o.events.AdminRequests(requests)
	}

	if !plan.HasChanges() {
		o.events.Append(events.LevelWarning, "orchestrator", "no_changes_proposed", map[string]any{
			"task_id": task.ID,
		})
		result.Skipped = "plan proposed no file changes"
		return result, nil
	}

	touched, err := o.applyPlan(plan)
	if err != nil {
		return nil, err
	}
	o.refreshIndex(store, touched)

	if err := o.publish(ctx, task, plan, brief, result); err != nil {
		return nil, err
	}

	if result.Committed {
		if err := state.MarkCompleted(tasks.CompletedTask{
			ID:          task.ID,
			Branch:      result.Branch,
			PullRequest: pullRequestRef(result.PullRequest),
		}); err != nil {
			return nil, err
		}
	}

	o.events.Append(events.LevelInfo, "orchestrator", "run_completed", map[string]any{
		"task_id":   task.ID,
		"committed": result.Committed,
		"files":     len(touched),
	})
	o.recordQuotaSnapshot(ctx, "post_run")
	return result, nil
}

// openVectorStore opens the configured store, quarantining a corrupt file as
// *.invalid.json and starting fresh instead of aborting the run.
func (o *Orchestrator) openVectorStore() (*vecstore.Store, error) {
	path := resolvePath(o.repoDir, o.cfg.Paths.VectorStore)
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}

	build := func() (*vecstore.Store, error) {
		return vecstore.NewBuilder(path).WithDimension(o.cfg.Index.Dimension).Build()
	}

	store, err := build()
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, vecstore.ErrCorruptStore) && !errors.Is(err, vecstore.ErrBadVersion) {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	quarantine := strings.TrimSuffix(path, filepath.Ext(path)) + ".invalid.json"
	if renameErr := os.Rename(path, quarantine); renameErr != nil {
		return nil, fmt.Errorf("failed to quarantine vector store: %w", renameErr)
	}
	o.events.Append(events.LevelWarning, "orchestrator", "vector_store_quarantined", map[string]any{
		"path": quarantine, "error": err.Error(),
	})
	log.Printf("[Orchestrator] Quarantined corrupt vector store to %s", quarantine)
	return build()
}

func (o *Orchestrator) runPipeline(ctx context.Context, engine *pipeline.Engine, task *tasks.TaskSpec, catalogue []tasks.TaskSpec, state *tasks.CompletedTaskStore) (*pipeline.ExecutionPlan, *pipeline.RetrievalBrief, error) {
	batch := tasks.NewTaskBatch(catalogue, state)
	taskBlock := tasks.BuildTaskPrompt(task, batch)

	var snapshot string
	if files, err := o.git.LsFiles(); err == nil {
		snapshot = RepoSnapshot(o.repoDir, files)
	}

	summary, err := engine.RunContextSummary(ctx, pipeline.StageRequest{
		SystemPrompt: contextSummarySystemPrompt,
		UserPrompt:   buildContextSummaryPrompt(taskBlock, snapshot),
	})
	if err != nil {
		return nil, nil, err
	}

	queryText := summary.Summary
	if queryText == "" {
		queryText = task.Title
	}
	brief, err := engine.RunRetrievalBrief(ctx, pipeline.StageRequest{
		SystemPrompt: retrievalBriefSystemPrompt,
		UserPrompt:   buildRetrievalBriefPrompt(taskBlock, summary),
	}, queryText)
	if err != nil {
		return nil, nil, err
	}

	plan, err := engine.RunExecutionPlan(ctx, pipeline.StageRequest{
		SystemPrompt: executionPlanSystemPrompt,
		UserPrompt:   buildExecutionPlanPrompt(taskBlock, summary, brief),
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, brief, nil
}

// applyPlan writes every patch in the plan and returns the touched paths
// relative to the repo root.
func (o *Orchestrator) applyPlan(plan *pipeline.ExecutionPlan) ([]string, error) {
	var touched []string
	for _, patch := range append(append([]pipeline.FilePatch{}, plan.CodePatches...), plan.NewTests...) {
		rel := filepath.Clean(filepath.FromSlash(patch.Path))
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			o.events.Append(events.LevelWarning, "orchestrator", "patch_path_rejected", map[string]any{
				"path": patch.Path,
			})
			continue
		}
		target := filepath.Join(o.repoDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, []byte(patch.Content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		touched = append(touched, target)
	}
	o.events.Append(events.LevelInfo, "orchestrator", "plan_applied", map[string]any{
		"files": len(touched),
	})
	return touched, nil
}

// refreshIndex re-chunks touched files that live under the indexable roots.
// Index failures degrade to a warning.
func (o *Orchestrator) refreshIndex(store *vecstore.Store, touched []string) {
	if len(touched) == 0 {
		return
	}
	opts := vecindex.Options{
		ChunkSize: o.cfg.Index.ChunkSize,
		Overlap:   vecindex.Overlap(o.cfg.Index.Overlap),
		Roots:     o.cfg.Index.Roots,
	}
	indexed, err := vecindex.IndexPaths(store, touched, o.repoDir, opts)
	if err != nil {
		o.events.Append(events.LevelWarning, "orchestrator", "vector_index_refresh_failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if len(indexed) > 0 {
		o.events.Append(events.LevelInfo, "orchestrator", "vector_index_refreshed", map[string]any{
			"files": len(indexed),
		})
	}
}

// publish commits the working tree on the task branch and opens a labelled
// pull request when GitHub credentials are configured.
func (o *Orchestrator) publish(ctx context.Context, task *tasks.TaskSpec, plan *pipeline.ExecutionPlan, brief *pipeline.RetrievalBrief, result *RunResult) error {
	branch := task.BranchName(o.cfg.GitHub.BranchPrefix)
	if err := o.git.CheckoutNewBranch(branch); err != nil {
		return err
	}
	result.Branch = branch

	committed, err := o.git.CommitAll(task.CommitMessage())
	if err != nil {
		return err
	}
	result.Committed = committed
	if !committed {
		o.events.Append(events.LevelWarning, "orchestrator", "nothing_to_commit", map[string]any{
			"task_id": task.ID, "branch": branch,
		})
		return nil
	}

	if o.github == nil {
		o.events.Append(events.LevelWarning, "orchestrator", "pull_request_skipped", map[string]any{
			"reason": "missing GITHUB_REPOSITORY or GITHUB_TOKEN",
		})
		return nil
	}

	if err := o.git.Push(branch); err != nil {
		return err
	}
	if err := o.github.EnsureLabel(ctx, o.cfg.GitHub.Label, o.cfg.GitHub.LabelColor); err != nil {
		o.events.Append(events.LevelWarning, "orchestrator", "label_ensure_failed", map[string]any{
			"error": err.Error(),
		})
	}

	body := buildPullRequestBody(task, plan, brief.RetrievedSnippets)
	number, err := o.github.CreatePullRequest(ctx, task.PullRequestTitle(), body, branch, o.cfg.GitHub.BaseBranch)
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	result.PullRequest = number

	if err := o.github.AddLabels(ctx, number, []string{o.cfg.GitHub.Label}); err != nil {
		o.events.Append(events.LevelWarning, "orchestrator", "label_apply_failed", map[string]any{
			"error": err.Error(),
		})
	}
	o.events.Append(events.LevelInfo, "orchestrator", "pull_request_created", map[string]any{
		"number": number, "branch": branch,
	})
	return nil
}

func (o *Orchestrator) recordQuotaSnapshot(ctx context.Context, stage string) {
	snapshot := o.client.CaptureQuotaSnapshot(ctx, o.events)
	if snapshot.IsEmpty() {
		return
	}
	o.events.QuotaSnapshot(stage, llm.Summarize(snapshot.Usage), llm.Summarize(snapshot.Limits))
}

func pullRequestRef(number int) string {
	if number == 0 {
		return ""
	}
	return fmt.Sprintf("#%d", number)
}

func resolvePath(repoDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoDir, path)
}
