// Package pipeline runs the staged planning flow: a context summary, a
// retrieval brief grounded in the vector store, and an execution plan. Each
// stage is one JSON-producing model call with retries and typed failure
// recovery.
package pipeline

import (
	"fmt"
	"strings"

	"taskforge/internal/vecstore"
)

// StageUsage records token counts for a single stage call.
type StageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// IsEmpty reports whether no usage information was returned.
func (u StageUsage) IsEmpty() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0
}

// ContextClue is one piece of context the first stage flagged as relevant.
type ContextClue struct {
	Identifier string `json:"id"`
	Path       string `json:"path,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
	Content    string `json:"content,omitempty"`
}

// ContextSummary is the output of the first stage.
type ContextSummary struct {
	Summary      string         `json:"summary"`
	ContextClues []ContextClue  `json:"context_clues"`
	Usage        StageUsage     `json:"usage"`
	Raw          map[string]any `json:"-"`
}

// RetrievalBrief is the output of the second stage.
type RetrievalBrief struct {
	Brief              string                 `json:"brief"`
	SelectedContextIDs []string               `json:"selected_context_ids"`
	FocusPaths         []string               `json:"focus_paths"`
	HandoffNotes       string                 `json:"handoff_notes,omitempty"`
	OpenQuestions      []string               `json:"open_questions,omitempty"`
	RetrievedSnippets  []vecstore.QueryResult `json:"retrieved_snippets,omitempty"`
	Usage              StageUsage             `json:"usage"`
	Raw                map[string]any         `json:"-"`
}

// FilePatch is a whole-file write the execution plan proposes.
type FilePatch struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ExecutionPlan is the output of the final stage.
type ExecutionPlan struct {
	Rationale     string           `json:"rationale,omitempty"`
	Plan          []string         `json:"plan"`
	CodePatches   []FilePatch      `json:"code_patches,omitempty"`
	NewTests      []FilePatch      `json:"new_tests,omitempty"`
	AdminRequests []map[string]any `json:"admin_requests,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Usage         StageUsage       `json:"usage"`
	Raw           map[string]any   `json:"-"`
}

// HasChanges reports whether the plan proposes any file writes.
func (p *ExecutionPlan) HasChanges() bool {
	return len(p.CodePatches) > 0 || len(p.NewTests) > 0
}

// newContextSummary builds a summary from a decoded stage payload, tolerating
// older key names and loosely typed values.
func newContextSummary(payload map[string]any, usage StageUsage) *ContextSummary {
	return &ContextSummary{
		Summary:      firstString(payload, "summary", "context_summary"),
		ContextClues: clueList(payload["context_clues"]),
		Usage:        usage,
		Raw:          payload,
	}
}

func newRetrievalBrief(payload map[string]any, usage StageUsage) *RetrievalBrief {
	return &RetrievalBrief{
		Brief:              firstString(payload, "brief", "retrieval_brief"),
		SelectedContextIDs: stringList(firstValue(payload, "selected_context_ids", "context_ids")),
		FocusPaths:         stringList(firstValue(payload, "focus_paths", "target_files")),
		HandoffNotes:       firstString(payload, "handoff_notes"),
		OpenQuestions:      stringList(payload["open_questions"]),
		Usage:              usage,
		Raw:                payload,
	}
}

func newExecutionPlan(payload map[string]any, usage StageUsage) *ExecutionPlan {
	return &ExecutionPlan{
		Rationale:     firstString(payload, "rationale"),
		Plan:          stringList(payload["plan"]),
		CodePatches:   patchList(payload["code_patches"]),
		NewTests:      patchList(payload["new_tests"]),
		AdminRequests: requestList(payload["admin_requests"]),
		Notes:         firstString(payload, "notes"),
		Usage:         usage,
		Raw:           payload,
	}
}

func firstValue(payload map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := payload[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if text := asString(payload[key]); text != "" {
			return text
		}
	}
	return ""
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64, int, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func stringList(value any) []string {
	switch v := value.(type) {
	case []any:
		var out []string
		for _, item := range v {
			if text := asString(item); text != "" {
				out = append(out, text)
			}
		}
		return out
	case string:
		if text := strings.TrimSpace(v); text != "" {
			return []string{text}
		}
	}
	return nil
}

func clueList(value any) []ContextClue {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var clues []ContextClue
	for i, item := range items {
		var clue ContextClue
		switch entry := item.(type) {
		case map[string]any:
			clue = ContextClue{
				Identifier: firstString(entry, "id", "identifier"),
				Path:       firstString(entry, "path", "file"),
				Rationale:  firstString(entry, "rationale", "reason"),
				Content:    firstString(entry, "content", "snippet"),
			}
		case string:
			// Lazily formatted models sometimes emit clues as plain strings.
			text := strings.TrimSpace(entry)
			if text == "" {
				continue
			}
			clue = ContextClue{Content: text}
		default:
			continue
		}
		if clue.Identifier == "" {
			clue.Identifier = fmt.Sprintf("clue-%d", i+1)
		}
		clues = append(clues, clue)
	}
	return clues
}

func patchList(value any) []FilePatch {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var patches []FilePatch
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path := firstString(entry, "path", "file")
		content, hasContent := entry["content"].(string)
		if path == "" || !hasContent {
			continue
		}
		patches = append(patches, FilePatch{Path: path, Content: content})
	}
	return patches
}

func requestList(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var requests []map[string]any
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok && len(entry) > 0 {
			requests = append(requests, entry)
		}
	}
	return requests
}
