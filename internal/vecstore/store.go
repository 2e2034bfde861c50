// Package vecstore implements a lightweight persisted vector store with
// cosine-similarity search. It is designed for short-lived batch processes:
// single-threaded access, a dirty flag to avoid needless writes, and no
// running database requirement (JSON file by default, SQLite optionally).
package vecstore

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// StoreVersion is the persistence format version.
	StoreVersion = 1

	// DefaultDimension is the embedding dimensionality used when no
	// embedding has established one yet.
	DefaultDimension = 256
)

// Record represents a stored snippet and its embedding.
type Record struct {
	ID        string
	Embedding []float64
	Content   string
	Metadata  map[string]any
}

// QueryResult is a top-k match returned from a similarity search.
type QueryResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Path returns the metadata path field, if present.
func (r QueryResult) Path() string {
	if p, ok := r.Metadata["path"].(string); ok {
		return p
	}
	return ""
}

// Store is a persisted embedding store. It is not safe for concurrent use;
// the agent runs single-threaded and external processes racing on the same
// backing file are out of scope.
type Store struct {
	backend    backend
	path       string
	defaultDim int
	embedFn    EmbedFunc

	records   map[string]Record
	order     []string // insertion order, for stable persistence
	dimension int      // 0 until the first embedding fixes it
	dirty     bool
	cache     []Record // flat search snapshot, invalidated on mutation
}

// Builder configures a Store.
type Builder struct {
	path    string
	dim     int
	embedFn EmbedFunc
}

// NewBuilder creates a Store builder for the given storage path. Paths ending
// in .db or .sqlite use the SQLite backend; everything else uses JSON.
func NewBuilder(path string) *Builder {
	return &Builder{
		path: path,
		dim:  DefaultDimension,
	}
}

// WithDimension sets the default embedding dimensionality.
func (b *Builder) WithDimension(dim int) *Builder {
	if dim > 0 {
		b.dim = dim
	}
	return b
}

// WithEmbedFunc sets the embedding function used by AddText and QueryText.
func (b *Builder) WithEmbedFunc(fn EmbedFunc) *Builder {
	b.embedFn = fn
	return b
}

// Build opens the backend and loads any persisted records.
func (b *Builder) Build() (*Store, error) {
	s := &Store{
		path:       b.path,
		defaultDim: b.dim,
		embedFn:    b.embedFn,
		records:    make(map[string]Record),
	}
	if s.embedFn == nil {
		s.embedFn = HashingEmbed
	}

	switch strings.ToLower(filepath.Ext(b.path)) {
	case ".db", ".sqlite":
		sb, err := newSQLiteBackend(b.path)
		if err != nil {
			return nil, wrapError("open", err)
		}
		s.backend = sb
	default:
		s.backend = newFileBackend(b.path)
	}

	if err := s.Load(); err != nil {
		s.backend.Close()
		return nil, err
	}
	return s, nil
}

// Open creates a Store with default settings.
func Open(path string) (*Store, error) {
	return NewBuilder(path).Build()
}

// Load replaces in-memory state with the persisted record set. A missing
// backing file yields an empty store, not an error.
func (s *Store) Load() error {
	payload, err := s.backend.Load()
	if err != nil {
		return wrapError("load", err)
	}

	s.records = make(map[string]Record)
	s.order = nil
	s.dirty = false
	s.cache = nil
	if payload == nil {
		s.dimension = 0
		return nil
	}

	if payload.Version != StoreVersion {
		return wrapError("load", fmt.Errorf("%w: expected %d, got %d",
			ErrBadVersion, StoreVersion, payload.Version))
	}

	s.dimension = payload.Dimension
	if s.dimension <= 0 {
		s.dimension = s.defaultDim
	}
	for _, rec := range payload.Records {
		record := Record{
			ID:        rec.ID,
			Embedding: normalize(rec.Embedding),
			Content:   rec.Content,
			Metadata:  rec.Metadata,
		}
		if record.Metadata == nil {
			record.Metadata = make(map[string]any)
		}
		s.insert(record)
	}
	s.dirty = false
	return nil
}

// Save persists the current record set, but only when in-memory state has
// changed since the last load or save.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}

	dimension := s.dimension
	if dimension == 0 {
		dimension = s.defaultDim
	}
	payload := &storePayload{
		Version:   StoreVersion,
		Dimension: dimension,
		Records:   make([]recordPayload, 0, len(s.records)),
	}
	for _, id := range s.order {
		rec := s.records[id]
		payload.Records = append(payload.Records, recordPayload{
			ID:        rec.ID,
			Embedding: rec.Embedding,
			Content:   rec.Content,
			Metadata:  rec.Metadata,
		})
	}

	if err := s.backend.Save(payload); err != nil {
		return wrapError("save", err)
	}
	s.dirty = false
	return nil
}

// Upsert inserts or replaces a snippet embedding. The embedding is normalized
// to unit length; the first inserted embedding fixes the store dimensionality
// and later mismatches are rejected without altering it.
func (s *Store) Upsert(id string, embedding []float64, content string, metadata map[string]any) error {
	if len(embedding) == 0 {
		return wrapError("upsert", ErrEmptyEmbedding)
	}
	normalized := normalize(embedding)
	if s.dimension == 0 {
		s.dimension = len(normalized)
	} else if len(normalized) != s.dimension {
		return wrapError("upsert", fmt.Errorf("%w: expected %d, got %d",
			ErrDimensionMismatch, s.dimension, len(normalized)))
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}
	s.insert(Record{
		ID:        id,
		Embedding: normalized,
		Content:   content,
		Metadata:  metadata,
	})
	s.dirty = true
	s.cache = nil
	return nil
}

// AddText embeds text with the configured embedding function and stores it.
func (s *Store) AddText(id, text string, metadata map[string]any) error {
	dim := s.dimension
	if dim == 0 {
		dim = s.defaultDim
	}
	return s.Upsert(id, s.embedFn(text, dim), text, metadata)
}

// BulkUpsert inserts the provided records in order, stopping on first error.
func (s *Store) BulkUpsert(records []Record) error {
	for _, rec := range records {
		if err := s.Upsert(rec.ID, rec.Embedding, rec.Content, rec.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a snippet by id, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	s.remove(id)
	s.dirty = true
	s.cache = nil
	return true
}

// DeleteWhere removes records matching the predicate, returning the count.
func (s *Store) DeleteWhere(predicate func(Record) bool) int {
	var doomed []string
	for _, id := range s.order {
		if predicate(s.records[id]) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		s.remove(id)
	}
	if len(doomed) > 0 {
		s.dirty = true
		s.cache = nil
	}
	return len(doomed)
}

// DeleteByPath removes all snippets whose metadata path matches the given
// repository-relative path. Separators are normalized to forward slashes.
func (s *Store) DeleteByPath(path string) int {
	normalized := filepath.ToSlash(path)
	return s.DeleteWhere(func(rec Record) bool {
		p, _ := rec.Metadata["path"].(string)
		return p == normalized
	})
}

// Query returns up to topK results ordered by descending cosine similarity.
// An empty store yields an empty result, not an error.
func (s *Store) Query(embedding []float64, topK int) ([]QueryResult, error) {
	if len(s.records) == 0 || topK <= 0 {
		return nil, nil
	}
	if s.dimension == 0 {
		return nil, wrapError("query", ErrNotInitialized)
	}
	normalized := normalize(embedding)
	if len(normalized) != s.dimension {
		return nil, wrapError("query", fmt.Errorf("%w: expected %d, got %d",
			ErrDimensionMismatch, s.dimension, len(normalized)))
	}

	snapshot := s.searchSnapshot()
	results := make([]QueryResult, 0, len(snapshot))
	for _, rec := range snapshot {
		results = append(results, QueryResult{
			ID:       rec.ID,
			Score:    dotProduct(normalized, rec.Embedding),
			Content:  rec.Content,
			Metadata: rec.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// QueryText embeds the query text and delegates to Query. Blank text yields
// an empty result without invoking the embedder.
func (s *Store) QueryText(text string, topK int) ([]QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	dim := s.dimension
	if dim == 0 {
		dim = s.defaultDim
	}
	return s.Query(s.embedFn(text, dim), topK)
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

// Dimension returns the established embedding dimensionality, or 0 when no
// embedding has been stored yet.
func (s *Store) Dimension() int {
	return s.dimension
}

// Path returns the backing storage path.
func (s *Store) Path() string {
	return s.path
}

// Close releases backend resources.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) insert(rec Record) {
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
}

func (s *Store) remove(id string) {
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// searchSnapshot returns a flat view of the records, rebuilt lazily after
// mutations so repeated queries avoid re-walking the map.
func (s *Store) searchSnapshot() []Record {
	if s.cache == nil {
		s.cache = make([]Record, 0, len(s.records))
		for _, id := range s.order {
			s.cache = append(s.cache, s.records[id])
		}
	}
	return s.cache
}
