package tasks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTask(t *testing.T, id, title string, priority Priority, deps ...string) TaskSpec {
	t.Helper()
	spec := TaskSpec{ID: id, Title: title, Priority: priority, DependsOn: deps}
	require.NoError(t, spec.Normalize())
	return spec
}

func emptyState(t *testing.T) *CompletedTaskStore {
	t.Helper()
	store, err := NewCompletedTaskStore(filepath.Join(t.TempDir(), "completed.json"))
	require.NoError(t, err)
	return store
}

func TestOrderByPriorityStable(t *testing.T) {
	catalogue := []TaskSpec{
		mustTask(t, "m1", "Medium first", PriorityMedium),
		mustTask(t, "c1", "Critical", PriorityCritical),
		mustTask(t, "m2", "Medium second", PriorityMedium),
		mustTask(t, "h1", "High", PriorityHigh),
	}

	ordered := OrderByPriority(catalogue)
	var ids []string
	for _, task := range ordered {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"c1", "h1", "m1", "m2"}, ids)
}

func TestSelectNextSkipsCompletedAndBlocked(t *testing.T) {
	catalogue := []TaskSpec{
		mustTask(t, "done", "Done already", PriorityCritical),
		mustTask(t, "blocked", "Needs missing dep", PriorityCritical, "absent"),
		mustTask(t, "ready", "Ready to go", PriorityHigh),
	}
	state := emptyState(t)
	require.NoError(t, state.MarkCompleted(CompletedTask{ID: "done"}))

	next := SelectNext(catalogue, state)
	require.NotNil(t, next)
	assert.Equal(t, "ready", next.ID)
}

func TestSelectNextDependencyUnlocks(t *testing.T) {
	catalogue := []TaskSpec{
		mustTask(t, "second", "Second", PriorityCritical, "first"),
		mustTask(t, "first", "First", PriorityLow),
	}
	state := emptyState(t)

	next := SelectNext(catalogue, state)
	require.NotNil(t, next)
	assert.Equal(t, "first", next.ID)

	require.NoError(t, state.MarkCompleted(CompletedTask{ID: "first"}))
	next = SelectNext(catalogue, state)
	require.NotNil(t, next)
	assert.Equal(t, "second", next.ID)
}

func TestSelectNextNothingReady(t *testing.T) {
	catalogue := []TaskSpec{
		mustTask(t, "blocked", "Blocked", PriorityHigh, "absent"),
	}
	assert.Nil(t, SelectNext(catalogue, emptyState(t)))
}

func TestCompletedStatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "completed.json")
	store, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-1", Branch: "auto/t-1"}))
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-2"}))

	reloaded, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsCompleted("t-1"))
	assert.True(t, reloaded.IsCompleted("t-2"))
	assert.False(t, reloaded.IsCompleted("t-3"))
	assert.Equal(t, []string{"t-1", "t-2"}, reloaded.CompletedIDs())
}

func TestMarkIncompleteReopensTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.json")
	store, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-1"}))
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-2"}))

	reopened, err := store.MarkIncomplete("t-1")
	require.NoError(t, err)
	assert.True(t, reopened)
	assert.False(t, store.IsCompleted("t-1"))
	assert.True(t, store.IsCompleted("t-2"))

	reopened, err = store.MarkIncomplete("t-1")
	require.NoError(t, err)
	assert.False(t, reopened)

	reloaded, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-2"}, reloaded.CompletedIDs())
}

func TestClearForgetsAllCompletions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.json")
	store, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-1"}))
	require.NoError(t, store.MarkCompleted(CompletedTask{ID: "t-2"}))

	require.NoError(t, store.Clear())
	assert.Empty(t, store.CompletedIDs())

	reloaded, err := NewCompletedTaskStore(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.CompletedIDs())
	assert.False(t, reloaded.IsCompleted("t-1"))
}

func TestBuildTaskPromptSections(t *testing.T) {
	catalogue := []TaskSpec{
		mustTask(t, "pick", "Fix the chunker", PriorityHigh),
		mustTask(t, "other", "Another ready task", PriorityLow),
		mustTask(t, "blocked", "Blocked task", PriorityMedium, "absent"),
		mustTask(t, "done", "Finished task", PriorityMedium),
	}
	catalogue[0].Description = "The chunker drops the final window."
	catalogue[0].AcceptanceCriteria = []string{"all text covered"}

	state := emptyState(t)
	require.NoError(t, state.MarkCompleted(CompletedTask{ID: "done"}))

	batch := NewTaskBatch(catalogue, state)
	prompt := BuildTaskPrompt(&catalogue[0], batch)

	assert.Contains(t, prompt, "## Selected task")
	assert.Contains(t, prompt, "id: pick")
	assert.Contains(t, prompt, "The chunker drops the final window.")
	assert.Contains(t, prompt, "### Acceptance criteria")
	assert.Contains(t, prompt, "## Other ready tasks")
	assert.Contains(t, prompt, "other: Another ready task")
	assert.Contains(t, prompt, "## Blocked tasks")
	assert.Contains(t, prompt, "## Completed tasks")
	assert.NotContains(t, prompt, "pick: Fix the chunker")
}
