package orchestrator

import (
	"fmt"
	"log"
	"os/exec"
	"strings"

	"taskforge/internal/events"
)

// gitRunner executes git commands in the repository working tree.
type gitRunner struct {
	dir    string
	events *events.Log
}

func newGitRunner(dir string, eventLog *events.Log) *gitRunner {
	return &gitRunner{dir: dir, events: eventLog}
}

// run executes one git command and returns its trimmed stdout. Failures are
// logged to the event log with the captured output.
func (g *gitRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		g.events.Append(events.LevelError, "orchestrator", "git_command_failed", map[string]any{
			"args":   strings.Join(args, " "),
			"output": text,
		})
		return text, fmt.Errorf("git %s: %w", args[0], err)
	}
	return text, nil
}

// CurrentBranch returns the checked-out branch name.
func (g *gitRunner) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

// CheckoutNewBranch creates and switches to branch, reusing it when it
// already exists.
func (g *gitRunner) CheckoutNewBranch(branch string) error {
	if _, err := g.run("checkout", "-b", branch); err != nil {
		_, err = g.run("checkout", branch)
		return err
	}
	return nil
}

// CommitAll stages everything and commits. Returns false without error when
// there is nothing to commit.
func (g *gitRunner) CommitAll(message string) (bool, error) {
	if _, err := g.run("add", "-A"); err != nil {
		return false, err
	}
	status, err := g.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	if status == "" {
		return false, nil
	}
	if _, err := g.run("commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Push publishes the branch to origin.
func (g *gitRunner) Push(branch string) error {
	_, err := g.run("push", "-u", "origin", branch)
	return err
}

// LsFiles returns the tracked file list, one path per line.
func (g *gitRunner) LsFiles() ([]string, error) {
	out, err := g.run("ls-files")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	files := strings.Split(out, "\n")
	log.Printf("[Orchestrator] Repository has %d tracked files", len(files))
	return files, nil
}
