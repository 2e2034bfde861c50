// Package tasks loads the task catalogue, tracks completion state, and
// selects the next task to run based on priority and dependencies.
package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// Priority orders tasks for selection. Unknown values fail validation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank returns the sort weight, highest first.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TaskSpec is one unit of work from the catalogue.
type TaskSpec struct {
	ID                 string   `json:"task_id" yaml:"task_id"`
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	Priority           Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Notes              string   `json:"notes,omitempty" yaml:"notes,omitempty"`

	// SourceFile records which catalogue file the task came from.
	SourceFile string `json:"-" yaml:"-"`
}

var (
	ErrMissingID    = errors.New("task is missing task_id")
	ErrMissingTitle = errors.New("task is missing title")
)

// Normalize trims fields, defaults the priority to medium, and validates the
// spec.
func (t *TaskSpec) Normalize() error {
	t.ID = strings.TrimSpace(t.ID)
	t.Title = strings.TrimSpace(t.Title)
	if t.ID == "" {
		return ErrMissingID
	}
	if t.Title == "" {
		return fmt.Errorf("task %s: %w", t.ID, ErrMissingTitle)
	}

	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.Priority = Priority(strings.ToLower(string(t.Priority)))
	if !t.Priority.valid() {
		return fmt.Errorf("task %s: invalid priority %q", t.ID, t.Priority)
	}

	var deps []string
	for _, dep := range t.DependsOn {
		if dep = strings.TrimSpace(dep); dep != "" && dep != t.ID {
			deps = append(deps, dep)
		}
	}
	t.DependsOn = deps
	return nil
}

// BranchName returns the working branch for this task.
func (t *TaskSpec) BranchName(prefix string) string {
	slug := strings.ToLower(t.ID)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "task"
	}
	return prefix + slug
}

// CommitMessage returns the conventional commit subject for this task.
func (t *TaskSpec) CommitMessage() string {
	return "feat: " + t.Title
}

// PullRequestTitle returns the PR title for this task.
func (t *TaskSpec) PullRequestTitle() string {
	return t.Title + " (auto)"
}
