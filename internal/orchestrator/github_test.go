package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGitHubClient(serverURL string) *GitHubClient {
	return &GitHubClient{
		baseURL: serverURL,
		repo:    "acme/widgets",
		token:   "gh-test",
		client:  &http.Client{},
	}
}

func TestNewGitHubClientFromEnvMissing(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	t.Setenv("GITHUB_TOKEN", "")
	assert.Nil(t, NewGitHubClientFromEnv())

	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	assert.Nil(t, NewGitHubClientFromEnv())

	t.Setenv("GITHUB_TOKEN", "gh-test")
	client := NewGitHubClientFromEnv()
	require.NotNil(t, client)
	assert.Equal(t, "acme/widgets", client.repo)
}

func TestEnsureLabelTreatsExistingAsSuccess(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/repos/acme/widgets/labels", r.URL.Path)
		if calls == 1 {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"message": "Validation Failed"})
	}))
	defer server.Close()

	client := testGitHubClient(server.URL)
	require.NoError(t, client.EnsureLabel(context.Background(), "auto", "0E8A16"))
	require.NoError(t, client.EnsureLabel(context.Background(), "auto", "0E8A16"))
}

func TestCreatePullRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		require.Equal(t, "Bearer gh-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"number": 7})
	}))
	defer server.Close()

	client := testGitHubClient(server.URL)
	number, err := client.CreatePullRequest(context.Background(),
		"Fix the loader (auto)", "body", "auto/fix-loader", "main")
	require.NoError(t, err)
	assert.Equal(t, 7, number)
	assert.Equal(t, "auto/fix-loader", captured["head"])
	assert.Equal(t, "main", captured["base"])
}

func TestCreatePullRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"message": "A pull request already exists"})
	}))
	defer server.Close()

	client := testGitHubClient(server.URL)
	_, err := client.CreatePullRequest(context.Background(), "t", "b", "h", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/7/labels", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"auto"}, body["labels"])
		json.NewEncoder(w).Encode([]map[string]any{{"name": "auto"}})
	}))
	defer server.Close()

	client := testGitHubClient(server.URL)
	require.NoError(t, client.AddLabels(context.Background(), 7, []string{"auto"}))
}
