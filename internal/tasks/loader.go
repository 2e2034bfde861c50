package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir reads every task file in dir (non-recursive) and returns the merged
// catalogue. Hidden files and unknown extensions are skipped. A task_id
// appearing twice across the catalogue is an error.
func LoadDir(dir string) ([]TaskSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tasks dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".yaml", ".yml":
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var catalogue []TaskSpec
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, task := range loaded {
			if prev, dup := seen[task.ID]; dup {
				return nil, fmt.Errorf("duplicate task_id %q in %s (first seen in %s)", task.ID, name, prev)
			}
			seen[task.ID] = name
			catalogue = append(catalogue, task)
		}
	}
	return catalogue, nil
}

// LoadFile reads a single task file. The document may be one task object, an
// array of tasks, or an envelope of the form {"tasks": [...]}.
func LoadFile(path string) ([]TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var specs []TaskSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		specs, err = decodeTasks(func(out any) error { return yaml.Unmarshal(data, out) })
	default:
		specs, err = decodeTasks(func(out any) error { return json.Unmarshal(data, out) })
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	for i := range specs {
		if err := specs[i].Normalize(); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		specs[i].SourceFile = path
	}
	return specs, nil
}

type taskEnvelope struct {
	Tasks []TaskSpec `json:"tasks" yaml:"tasks"`
}

func decodeTasks(unmarshal func(any) error) ([]TaskSpec, error) {
	var list []TaskSpec
	if err := unmarshal(&list); err == nil {
		return list, nil
	}

	var envelope taskEnvelope
	if err := unmarshal(&envelope); err == nil && len(envelope.Tasks) > 0 {
		return envelope.Tasks, nil
	}

	var single TaskSpec
	if err := unmarshal(&single); err != nil {
		return nil, fmt.Errorf("failed to parse task document: %w", err)
	}
	return []TaskSpec{single}, nil
}
