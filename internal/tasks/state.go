package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CompletedTask records one finished task.
type CompletedTask struct {
	ID          string    `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
	Branch      string    `json:"branch,omitempty"`
	PullRequest string    `json:"pull_request,omitempty"`
}

type completedFile struct {
	Completed []CompletedTask `json:"completed"`
}

// CompletedTaskStore persists the set of finished task ids as a JSON file.
type CompletedTaskStore struct {
	path string
	done map[string]CompletedTask
}

// NewCompletedTaskStore loads the completion state from path. A missing file
// yields an empty store; a malformed one is an error.
func NewCompletedTaskStore(path string) (*CompletedTaskStore, error) {
	store := &CompletedTaskStore{
		path: path,
		done: make(map[string]CompletedTask),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read completed state: %w", err)
	}

	var decoded completedFile
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse completed state: %w", err)
	}
	for _, task := range decoded.Completed {
		if task.ID != "" {
			store.done[task.ID] = task
		}
	}
	return store, nil
}

// IsCompleted reports whether the given task id has finished.
func (s *CompletedTaskStore) IsCompleted(id string) bool {
	_, ok := s.done[id]
	return ok
}

// CompletedIDs returns the finished ids in sorted order.
func (s *CompletedTaskStore) CompletedIDs() []string {
	ids := make([]string, 0, len(s.done))
	for id := range s.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkCompleted records a finished task and saves the state file.
func (s *CompletedTaskStore) MarkCompleted(task CompletedTask) error {
	if task.ID == "" {
		return fmt.Errorf("cannot mark completion without a task_id")
	}
	if task.CompletedAt.IsZero() {
		task.CompletedAt = time.Now().UTC()
	}
	s.done[task.ID] = task
	return s.save()
}

// MarkIncomplete reopens a finished task so selection can pick it again.
// Returns false without touching the file when the id was not completed.
func (s *CompletedTaskStore) MarkIncomplete(id string) (bool, error) {
	if _, ok := s.done[id]; !ok {
		return false, nil
	}
	delete(s.done, id)
	return true, s.save()
}

// Clear forgets every completed task.
func (s *CompletedTaskStore) Clear() error {
	s.done = make(map[string]CompletedTask)
	return s.save()
}

func (s *CompletedTaskStore) save() error {
	out := completedFile{Completed: make([]CompletedTask, 0, len(s.done))}
	for _, id := range s.CompletedIDs() {
		out.Completed = append(out.Completed, s.done[id])
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal completed state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write completed state: %w", err)
	}
	return nil
}
