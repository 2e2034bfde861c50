package orchestrator

import (
	"fmt"
	"strings"

	"taskforge/internal/pipeline"
	"taskforge/internal/tasks"
	"taskforge/internal/vecstore"
)

const contextSummarySystemPrompt = `You are the context analyst for an autonomous coding agent.
Study the selected task and the repository snapshot, then respond with a single JSON object:
{"summary": "...", "context_clues": [{"id": "...", "path": "...", "rationale": "...", "content": "..."}]}
List at most 5 context clues. Respond with JSON only, no prose and no code fences.`

const retrievalBriefSystemPrompt = `You are the retrieval planner for an autonomous coding agent.
Given the task, the context summary, and its clues, respond with a single JSON object:
{"brief": "...", "selected_context_ids": [...], "focus_paths": [...], "handoff_notes": "...", "open_questions": [...]}
selected_context_ids must reference clue ids from the input. Respond with JSON only.`

const executionPlanSystemPrompt = `You are the implementation planner for an autonomous coding agent.
Respond with a single JSON object:
{"rationale": "...", "plan": [...], "code_patches": [{"path": "...", "content": "..."}], "new_tests": [{"path": "...", "content": "..."}], "admin_requests": [...], "notes": "..."}
code_patches and new_tests carry complete file contents. Use admin_requests for anything needing human help. Respond with JSON only.`

// buildContextSummaryPrompt combines the task block with the repo snapshot.
func buildContextSummaryPrompt(taskBlock, snapshot string) string {
	var b strings.Builder
	b.WriteString(taskBlock)
	if snapshot != "" {
		b.WriteString("\n## Repository snapshot\n\n")
		b.WriteString(snapshot)
	}
	return b.String()
}

// buildRetrievalBriefPrompt feeds the first stage output into the second.
func buildRetrievalBriefPrompt(taskBlock string, summary *pipeline.ContextSummary) string {
	var b strings.Builder
	b.WriteString(taskBlock)
	fmt.Fprintf(&b, "\n## Context summary\n\n%s\n", summary.Summary)
	if len(summary.ContextClues) > 0 {
		b.WriteString("\n## Context clues\n\n")
		for _, clue := range summary.ContextClues {
			fmt.Fprintf(&b, "- [%s] %s", clue.Identifier, clue.Path)
			if clue.Rationale != "" {
				fmt.Fprintf(&b, ": %s", clue.Rationale)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildExecutionPlanPrompt feeds the brief, the clues it selected, and the
// retrieved snippets into the final stage.
func buildExecutionPlanPrompt(taskBlock string, summary *pipeline.ContextSummary, brief *pipeline.RetrievalBrief) string {
	var b strings.Builder
	b.WriteString(taskBlock)
	fmt.Fprintf(&b, "\n## Retrieval brief\n\n%s\n", brief.Brief)

	selected := selectClues(summary.ContextClues, brief.SelectedContextIDs)
	if len(selected) > 0 {
		b.WriteString("\n## Selected context\n\n")
		for _, clue := range selected {
			fmt.Fprintf(&b, "### %s (%s)\n", clue.Identifier, clue.Path)
			if clue.Content != "" {
				fmt.Fprintf(&b, "%s\n", clue.Content)
			} else if clue.Rationale != "" {
				fmt.Fprintf(&b, "%s\n", clue.Rationale)
			}
		}
	}

	if len(brief.FocusPaths) > 0 {
		fmt.Fprintf(&b, "\n## Focus paths\n\n%s\n", strings.Join(brief.FocusPaths, "\n"))
	}
	if len(brief.RetrievedSnippets) > 0 {
		b.WriteString("\n## Retrieved snippets\n\n")
		for _, snippet := range brief.RetrievedSnippets {
			fmt.Fprintf(&b, "### %s (score %.3f)\n%s\n", snippet.ID, snippet.Score, snippet.Content)
		}
	}
	if brief.HandoffNotes != "" {
		fmt.Fprintf(&b, "\n## Handoff notes\n\n%s\n", brief.HandoffNotes)
	}
	return b.String()
}

// selectClues resolves the brief's clue id selection against the summary's
// clues. When none of the ids match, every clue is carried forward rather
// than dropping context on a model slip.
func selectClues(clues []pipeline.ContextClue, ids []string) []pipeline.ContextClue {
	if len(clues) == 0 {
		return nil
	}
	if len(ids) == 0 {
		return clues
	}
	byID := make(map[string]pipeline.ContextClue, len(clues))
	for _, clue := range clues {
		byID[clue.Identifier] = clue
	}
	var selected []pipeline.ContextClue
	for _, id := range ids {
		if clue, ok := byID[strings.TrimSpace(id)]; ok {
			selected = append(selected, clue)
		}
	}
	if len(selected) == 0 {
		return clues
	}
	return selected
}

// buildPullRequestBody renders the plan into the PR description.
func buildPullRequestBody(task *tasks.TaskSpec, plan *pipeline.ExecutionPlan, snippets []vecstore.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated change for task `%s`.\n", task.ID)
	if plan.Rationale != "" {
		fmt.Fprintf(&b, "\n## Rationale\n\n%s\n", plan.Rationale)
	}
	if len(plan.Plan) > 0 {
		b.WriteString("\n## Plan\n\n")
		for _, step := range plan.Plan {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	if len(snippets) > 0 {
		b.WriteString("\n## Grounding\n\n")
		for _, snippet := range snippets {
			fmt.Fprintf(&b, "- `%s`\n", snippet.ID)
		}
	}
	if plan.Notes != "" {
		fmt.Fprintf(&b, "\n## Notes\n\n%s\n", plan.Notes)
	}
	return b.String()
}
