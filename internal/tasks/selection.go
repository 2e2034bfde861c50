package tasks

import "sort"

// OrderByPriority sorts the catalogue highest priority first. The sort is
// stable, so catalogue file order breaks ties.
func OrderByPriority(catalogue []TaskSpec) []TaskSpec {
	ordered := make([]TaskSpec, len(catalogue))
	copy(ordered, catalogue)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.rank() > ordered[j].Priority.rank()
	})
	return ordered
}

// SelectNext picks the highest-priority task that is not yet completed and
// whose dependencies have all completed. Returns nil when nothing is ready.
func SelectNext(catalogue []TaskSpec, completed *CompletedTaskStore) *TaskSpec {
	for _, task := range OrderByPriority(catalogue) {
		if completed.IsCompleted(task.ID) {
			continue
		}
		if depsSatisfied(task, completed) {
			picked := task
			return &picked
		}
	}
	return nil
}

// Partition splits the catalogue into ready, blocked, and completed sets with
// respect to the completion state.
func Partition(catalogue []TaskSpec, completed *CompletedTaskStore) (ready, blocked, done []TaskSpec) {
	for _, task := range OrderByPriority(catalogue) {
		switch {
		case completed.IsCompleted(task.ID):
			done = append(done, task)
		case depsSatisfied(task, completed):
			ready = append(ready, task)
		default:
			blocked = append(blocked, task)
		}
	}
	return ready, blocked, done
}

func depsSatisfied(task TaskSpec, completed *CompletedTaskStore) bool {
	for _, dep := range task.DependsOn {
		if !completed.IsCompleted(dep) {
			return false
		}
	}
	return true
}
