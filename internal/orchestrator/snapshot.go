package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	snapshotMaxFiles = 40
	snapshotMaxBytes = 4000
)

// snapshotSkipPrefixes excludes trees that never help the model plan.
var snapshotSkipPrefixes = []string{
	"state/",
	"vendor/",
	".git/",
	"node_modules/",
}

// snapshotSkipSuffixes excludes binary and generated artifacts.
var snapshotSkipSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".ico",
	".lock", ".sum", ".db", ".sqlite",
}

// RepoSnapshot renders a bounded textual snapshot of the working tree: at
// most snapshotMaxFiles files, each truncated to snapshotMaxBytes bytes. It
// gives the first pipeline stage something to ground its summary in without
// blowing up the prompt.
func RepoSnapshot(dir string, files []string) string {
	kept := make([]string, 0, snapshotMaxFiles)
	for _, file := range files {
		if snapshotSkip(file) {
			continue
		}
		kept = append(kept, file)
	}
	sort.Strings(kept)
	if len(kept) > snapshotMaxFiles {
		kept = kept[:snapshotMaxFiles]
	}

	var b strings.Builder
	for _, file := range kept {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			continue
		}
		truncated := false
		if len(data) > snapshotMaxBytes {
			data = data[:snapshotMaxBytes]
			truncated = true
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", file, string(data))
		if truncated {
			b.WriteString("... (truncated)\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func snapshotSkip(file string) bool {
	normalized := filepath.ToSlash(file)
	for _, prefix := range snapshotSkipPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	lower := strings.ToLower(normalized)
	for _, suffix := range snapshotSkipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
