// Package llm talks to chat-completion style model endpoints that support
// background responses: a request is submitted once and then polled by id
// until it reaches a terminal status.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"taskforge/internal/events"
)

// Request describes one background model call.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Caller is the minimal client surface the pipeline engine needs.
type Caller interface {
	// CreateResponse submits a background request and returns the initial
	// response envelope (typically status "queued" with an id).
	CreateResponse(ctx context.Context, req *Request) (Response, error)

	// RetrieveResponse polls a previously created response by id.
	RetrieveResponse(ctx context.Context, id string) (Response, error)
}

// HTTPClient implements Caller against an OpenAI-compatible endpoint.
type HTTPClient struct {
	provider      string
	apiKey        string
	baseURL       string
	extraHeaders  map[string]string
	supportsQuota bool
	client        *http.Client
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewHTTPClient creates a client for an OpenAI-compatible responses endpoint.
// Request deadlines come from the caller's context, so the underlying
// http.Client carries no global timeout.
func NewHTTPClient(provider, apiKey, baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &HTTPClient{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{},
	}
}

// Provider returns the provider name ("openai", "scaleway", ...).
func (c *HTTPClient) Provider() string {
	return c.provider
}

// SupportsQuota reports whether the provider exposes usage/limit endpoints.
func (c *HTTPClient) SupportsQuota() bool {
	return c.supportsQuota
}

// CreateResponse submits a background request.
func (c *HTTPClient) CreateResponse(ctx context.Context, req *Request) (Response, error) {
	body := map[string]any{
		"model": req.Model,
		"input": []map[string]any{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
		"background": true,
	}
	return c.post(ctx, "/responses", body)
}

// RetrieveResponse polls a background response by id.
func (c *HTTPClient) RetrieveResponse(ctx context.Context, id string) (Response, error) {
	return c.get(ctx, "/responses/"+url.PathEscape(id), nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any) (Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(httpReq)

	return c.do(httpReq)
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) (Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	return c.do(httpReq)
}

func (c *HTTPClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for name, value := range c.extraHeaders {
		req.Header.Set(name, value)
	}
}

func (c *HTTPClient) do(httpReq *http.Request) (Response, error) {
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1000))
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var decoded Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return decoded, nil
}

// NewFromEnv builds a client for the requested provider, falling back to the
// LLM_PROVIDER environment variable and then to "scaleway". A missing API key
// logs a warning and yields nil; the orchestrator then runs offline.
func NewFromEnv(provider string, eventLog *events.Log) *HTTPClient {
	resolved := strings.ToLower(strings.TrimSpace(provider))
	if resolved == "" {
		resolved = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	}
	if resolved == "" {
		resolved = "scaleway"
	}

	switch resolved {
	case "openai":
		return buildOpenAIClient(eventLog)
	case "scaleway":
		return buildScalewayClient(eventLog)
	default:
		eventLog.Append(events.LevelWarning, "llm_client", "unsupported_provider",
			map[string]any{"provider": resolved})
		return nil
	}
}

func buildOpenAIClient(eventLog *events.Log) *HTTPClient {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		eventLog.Append(events.LevelWarning, "llm_client", "openai_api_key_missing",
			map[string]any{"provider": "openai"})
		return nil
	}
	client := NewHTTPClient("openai", apiKey, "")
	client.supportsQuota = true
	eventLog.Append(events.LevelInfo, "llm_client", "client_initialized",
		map[string]any{"provider": "openai"})
	return client
}

func buildScalewayClient(eventLog *events.Log) *HTTPClient {
	apiKey := os.Getenv("SCALEWAY_API_KEY")
	if apiKey == "" {
		eventLog.Append(events.LevelWarning, "llm_client", "scaleway_api_key_missing",
			map[string]any{"provider": "scaleway"})
		return nil
	}

	baseURL := os.Getenv("SCALEWAY_API_BASE")
	if baseURL == "" {
		baseURL = "https://api.scaleway.com/ai/v1alpha1"
	}

	// Some deployments expect a custom header carrying the key while a
	// separate bearer token fills the Authorization header.
	headerName := os.Getenv("SCALEWAY_API_KEY_HEADER")
	var extra map[string]string
	if headerName != "" {
		extra = map[string]string{headerName: apiKey}
		if bearer := os.Getenv("SCALEWAY_BEARER_TOKEN"); bearer != "" {
			apiKey = bearer
		}
	}

	client := NewHTTPClient("scaleway", apiKey, baseURL)
	client.extraHeaders = extra
	log.Printf("[LLM] Using Scaleway endpoint %s", client.baseURL)
	eventLog.Append(events.LevelInfo, "llm_client", "client_initialized",
		map[string]any{"provider": "scaleway", "base_url": client.baseURL})
	return client
}
