package vecstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// storePayload is the versioned persistence format shared by all backends.
type storePayload struct {
	Version   int             `json:"version"`
	Dimension int             `json:"dimension"`
	Records   []recordPayload `json:"records"`
}

type recordPayload struct {
	ID        string         `json:"id"`
	Embedding []float64      `json:"embedding"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// backend persists the full record set. Save is a complete rewrite, not an
// append; a crash mid-write surfaces as ErrCorruptStore on the next load.
type backend interface {
	// Load returns nil when no data has been persisted yet.
	Load() (*storePayload, error)
	Save(*storePayload) error
	Close() error
}

// fileBackend stores the payload as a single JSON document.
type fileBackend struct {
	path string
}

func newFileBackend(path string) *fileBackend {
	return &fileBackend{path: path}
}

func (f *fileBackend) Load() (*storePayload, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var payload storePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return &payload, nil
}

func (f *fileBackend) Save(payload *storePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store payload: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if err := os.WriteFile(f.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

func (f *fileBackend) Close() error {
	return nil
}
