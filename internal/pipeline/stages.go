package pipeline

import (
	"context"
	"strings"

	"taskforge/internal/events"
	"taskforge/internal/vecstore"
)

// StageRequest carries the prompts for one stage call. Model optionally
// overrides the configured default for this call only.
type StageRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
}

const (
	StageContextSummary = "context_summary"
	StageRetrievalBrief = "retrieval_brief"
	StageExecutionPlan  = "execution_plan"
)

// RunContextSummary executes the first stage: condense the task and its
// surroundings into a summary plus a list of context clues.
func (e *Engine) RunContextSummary(ctx context.Context, req StageRequest) (*ContextSummary, error) {
	e.events.StageTransition(StageContextSummary, "start", nil)

	payload, usage, err := e.callModelJSON(ctx, StageContextSummary, req.SystemPrompt, req.UserPrompt, req.Model)
	if err != nil {
		e.events.StageTransition(StageContextSummary, "failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	summary := newContextSummary(payload, usage)
	e.recordUsage(StageContextSummary, usage)
	e.events.StageTransition(StageContextSummary, "complete", map[string]any{
		"clues": len(summary.ContextClues),
	})
	return summary, nil
}

// RunRetrievalBrief executes the second stage. queryText seeds the vector
// store lookup; when blank, the brief text produced by the model is used
// instead. Store failures degrade to a warning and an empty snippet list.
func (e *Engine) RunRetrievalBrief(ctx context.Context, req StageRequest, queryText string) (*RetrievalBrief, error) {
	e.events.StageTransition(StageRetrievalBrief, "start", nil)

	payload, usage, err := e.callModelJSON(ctx, StageRetrievalBrief, req.SystemPrompt, req.UserPrompt, req.Model)
	if err != nil {
		e.events.StageTransition(StageRetrievalBrief, "failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	brief := newRetrievalBrief(payload, usage)
	brief.RetrievedSnippets = e.retrieveSnippets(queryText, brief.Brief)

	e.recordUsage(StageRetrievalBrief, usage)
	e.events.StageTransition(StageRetrievalBrief, "complete", map[string]any{
		"focus_paths": len(brief.FocusPaths),
		"snippets":    len(brief.RetrievedSnippets),
	})
	return brief, nil
}

// RunExecutionPlan executes the final stage, producing the plan and any file
// patches.
func (e *Engine) RunExecutionPlan(ctx context.Context, req StageRequest) (*ExecutionPlan, error) {
	e.events.StageTransition(StageExecutionPlan, "start", nil)

	payload, usage, err := e.callModelJSON(ctx, StageExecutionPlan, req.SystemPrompt, req.UserPrompt, req.Model)
	if err != nil {
		e.events.StageTransition(StageExecutionPlan, "failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	plan := newExecutionPlan(payload, usage)
	e.recordUsage(StageExecutionPlan, usage)
	e.events.StageTransition(StageExecutionPlan, "complete", map[string]any{
		"steps":   len(plan.Plan),
		"patches": len(plan.CodePatches) + len(plan.NewTests),
	})
	return plan, nil
}

func (e *Engine) recordUsage(stage string, usage StageUsage) {
	if usage.IsEmpty() {
		return
	}
	e.events.TokenUsage(stage, usage.InputTokens, usage.OutputTokens, usage.TotalTokens)
}

func (e *Engine) retrieveSnippets(queryText, brief string) []vecstore.QueryResult {
	if e.store == nil {
		return nil
	}
	basis := strings.TrimSpace(queryText)
	if basis == "" {
		basis = strings.TrimSpace(brief)
	}
	if basis == "" {
		return nil
	}
	snippets, err := e.store.QueryText(basis, e.cfg.MaxSnippets)
	if err != nil {
		e.events.Append(events.LevelWarning, "pipeline", "vector_store_query_failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	return snippets
}
