package tasks

import (
	"fmt"
	"strings"
)

// TaskBatch is the catalogue partitioned against the completion state, in
// the shape the prompt builders consume.
type TaskBatch struct {
	Ready     []TaskSpec
	Blocked   []TaskSpec
	Completed []TaskSpec
}

// NewTaskBatch partitions the catalogue for prompting.
func NewTaskBatch(catalogue []TaskSpec, completed *CompletedTaskStore) TaskBatch {
	ready, blocked, done := Partition(catalogue, completed)
	return TaskBatch{Ready: ready, Blocked: blocked, Completed: done}
}

// BuildTaskPrompt renders the selected task and its surrounding catalogue as
// the markdown block shared by every pipeline stage.
func BuildTaskPrompt(task *TaskSpec, batch TaskBatch) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Selected task\n\n")
	fmt.Fprintf(&b, "- id: %s\n- title: %s\n- priority: %s\n", task.ID, task.Title, task.Priority)
	if len(task.DependsOn) > 0 {
		fmt.Fprintf(&b, "- depends_on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(task.Description))
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n### Acceptance criteria\n\n")
		for _, criterion := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", criterion)
		}
	}
	if task.Notes != "" {
		fmt.Fprintf(&b, "\n### Notes\n\n%s\n", strings.TrimSpace(task.Notes))
	}

	writeCatalogueSection(&b, "Other ready tasks", exclude(batch.Ready, task.ID))
	writeCatalogueSection(&b, "Blocked tasks", batch.Blocked)
	writeCatalogueSection(&b, "Completed tasks", batch.Completed)

	return b.String()
}

func writeCatalogueSection(b *strings.Builder, heading string, items []TaskSpec) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %s (%s)\n", item.ID, item.Title, item.Priority)
	}
}

func exclude(items []TaskSpec, id string) []TaskSpec {
	var out []TaskSpec
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}
