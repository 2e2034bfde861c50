package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// GitHubClient publishes branches as labelled pull requests through the REST
// API. Repo is the "owner/name" slug.
type GitHubClient struct {
	baseURL string
	repo    string
	token   string
	client  *http.Client
}

// NewGitHubClientFromEnv reads GITHUB_REPOSITORY and GITHUB_TOKEN. Returns
// nil when either is missing; the run then stops after the local commit.
func NewGitHubClientFromEnv() *GitHubClient {
	repo := strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY"))
	token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	if repo == "" || token == "" {
		return nil
	}
	return &GitHubClient{
		baseURL: "https://api.github.com",
		repo:    repo,
		token:   token,
		client:  &http.Client{},
	}
}

// EnsureLabel creates the label if it does not exist. GitHub answers 422
// when the label is already there.
func (g *GitHubClient) EnsureLabel(ctx context.Context, name, color string) error {
	status, _, err := g.post(ctx, fmt.Sprintf("/repos/%s/labels", g.repo), map[string]any{
		"name":  name,
		"color": color,
	})
	if err != nil {
		return err
	}
	if status == http.StatusCreated || status == http.StatusUnprocessableEntity {
		return nil
	}
	return fmt.Errorf("label creation returned status %d", status)
}

// CreatePullRequest opens a PR from head into base and returns its number.
func (g *GitHubClient) CreatePullRequest(ctx context.Context, title, body, head, base string) (int, error) {
	status, payload, err := g.post(ctx, fmt.Sprintf("/repos/%s/pulls", g.repo), map[string]any{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("pull request creation returned status %d: %s", status, apiErrorMessage(payload))
	}
	number, ok := payload["number"].(float64)
	if !ok {
		return 0, fmt.Errorf("pull request response missing number")
	}
	return int(number), nil
}

// AddLabels applies labels to an issue or pull request.
func (g *GitHubClient) AddLabels(ctx context.Context, number int, labels []string) error {
	status, payload, err := g.post(ctx, fmt.Sprintf("/repos/%s/issues/%d/labels", g.repo, number), map[string]any{
		"labels": labels,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("label apply returned status %d: %s", status, apiErrorMessage(payload))
	}
	return nil
}

func (g *GitHubClient) post(ctx context.Context, path string, body map[string]any) (int, map[string]any, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var payload map[string]any
	json.Unmarshal(data, &payload)
	return resp.StatusCode, payload, nil
}

func apiErrorMessage(payload map[string]any) string {
	if payload == nil {
		return "no response body"
	}
	if msg, ok := payload["message"].(string); ok {
		return msg
	}
	return "unknown error"
}
