package vecindex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taskforge/internal/vecstore"
)

// DefaultRoots are the top-level directories eligible for indexing. The
// allow-list is a scope guard: the agent only indexes its own documentation
// and test trees, not arbitrary repository content.
var DefaultRoots = []string{"docs", "tests"}

var allowedExtensions = map[string]bool{
	".md":   true,
	".mdx":  true,
	".rst":  true,
	".txt":  true,
	".go":   true,
	".py":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Options configures indexing. Unset values fall back to the defaults; a nil
// Overlap selects the default, so an explicit zero stays zero.
type Options struct {
	ChunkSize int
	Overlap   *int
	Roots     []string
}

// Overlap wraps a chunk overlap value for Options, distinguishing an
// explicit zero from an unset value.
func Overlap(n int) *int {
	return &n
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap == nil {
		// The default overlap only fits the default chunk size; a custom
		// smaller chunk size gets no implied overlap.
		overlap := 0
		if o.ChunkSize == DefaultChunkSize {
			overlap = DefaultChunkOverlap
		}
		o.Overlap = &overlap
	}
	if len(o.Roots) == 0 {
		o.Roots = DefaultRoots
	}
	return o
}

func rootAllowed(relPath string, roots []string) bool {
	top := strings.SplitN(relPath, "/", 2)[0]
	for _, root := range roots {
		if top == root {
			return true
		}
	}
	return false
}

// IndexFile chunks the file at path and registers the chunks in the store
// under ids derived from the root-relative path. Paths whose top-level
// directory is not allow-listed index zero chunks without error. Any
// previously indexed chunks for the same relative path are removed first, so
// re-indexing a shrunken file cannot leave stale chunks behind.
func IndexFile(store *vecstore.Store, path, root string, opts Options) (int, error) {
	opts = opts.withDefaults()

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return 0, fmt.Errorf("vecindex: %s is outside root %s", path, root)
	}
	relPosix := filepath.ToSlash(rel)
	if !rootAllowed(relPosix, opts.Roots) {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("vecindex: failed to read %s: %w", path, err)
	}
	chunks, err := ChunkText(string(data), opts.ChunkSize, *opts.Overlap)
	if err != nil {
		return 0, err
	}

	store.DeleteByPath(relPosix)
	source := strings.SplitN(relPosix, "/", 2)[0]
	for i, chunk := range chunks {
		metadata := map[string]any{
			"path":        relPosix,
			"source":      source,
			"chunk_index": i,
			"chunk_count": len(chunks),
			"char_start":  chunk.Start,
			"char_end":    chunk.End,
		}
		id := snippetID(relPosix, i)
		if err := store.AddText(id, chunk.Text, metadata); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// IndexPaths indexes the supplied files, silently skipping paths that do not
// exist, are not regular files, or fall outside the root or its allow-listed
// directories. The store is saved once at the end when anything was indexed.
// The returned map is relative-posix-path -> chunk count.
func IndexPaths(store *vecstore.Store, paths []string, root string, opts Options) (map[string]int, error) {
	opts = opts.withDefaults()

	unique := make(map[string]bool, len(paths))
	var ordered []string
	for _, p := range paths {
		if !unique[p] {
			unique[p] = true
			ordered = append(ordered, p)
		}
	}
	sort.Strings(ordered)

	indexed := make(map[string]int)
	for _, path := range ordered {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		relPosix := filepath.ToSlash(rel)
		if !rootAllowed(relPosix, opts.Roots) {
			continue
		}
		count, err := IndexFile(store, path, root, opts)
		if err != nil {
			return indexed, err
		}
		if count > 0 {
			indexed[relPosix] = count
		}
	}

	if len(indexed) > 0 {
		if err := store.Save(); err != nil {
			return indexed, err
		}
	}
	return indexed, nil
}

// Rebuild destroys any store at storagePath and recreates it from scratch,
// walking the allow-listed directories under root and indexing every file
// with a recognized extension.
func Rebuild(storagePath, root string, opts Options) (map[string]int, error) {
	opts = opts.withDefaults()

	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("vecindex: failed to remove %s: %w", storagePath, err)
	}
	store, err := vecstore.Open(storagePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	indexed := make(map[string]int)
	for _, path := range sourceFiles(root, opts.Roots) {
		count, err := IndexFile(store, path, root, opts)
		if err != nil {
			return indexed, err
		}
		if count > 0 {
			rel, _ := filepath.Rel(root, path)
			indexed[filepath.ToSlash(rel)] = count
		}
	}
	if err := store.Save(); err != nil {
		return indexed, err
	}
	return indexed, nil
}

// sourceFiles yields indexable files under the requested directories, sorted
// for deterministic processing order.
func sourceFiles(root string, roots []string) []string {
	var files []string
	for _, dir := range roots {
		base := filepath.Join(root, dir)
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			continue
		}
		filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if allowedExtensions[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
	}
	sort.Strings(files)
	return files
}

func snippetID(relPosix string, chunkIndex int) string {
	return fmt.Sprintf("%s::chunk-%04d", relPosix, chunkIndex+1)
}
