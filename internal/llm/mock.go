package llm

import (
	"context"
	"errors"
	"sync"
)

// MockOutcome scripts a single client call: a canned envelope or an error.
type MockOutcome struct {
	Response Response
	Err      error
}

// MockClient is a scripted Caller for pipeline tests. Outcomes are consumed
// in FIFO order; calls are recorded for assertion.
type MockClient struct {
	mu            sync.Mutex
	creates       []MockOutcome
	retrieves     []MockOutcome
	CreateCalls   []*Request
	RetrieveCalls []string
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueCreate appends an outcome for the next CreateResponse call.
func (m *MockClient) QueueCreate(resp Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, MockOutcome{Response: resp, Err: err})
}

// QueueRetrieve appends an outcome for the next RetrieveResponse call.
func (m *MockClient) QueueRetrieve(resp Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieves = append(m.retrieves, MockOutcome{Response: resp, Err: err})
}

// CompletedResponse builds an envelope in the shape the engine expects for a
// successful background call.
func CompletedResponse(outputText string, inputTokens, outputTokens int) Response {
	return Response{
		"id":          "resp-mock",
		"status":      "completed",
		"output_text": outputText,
		"usage": map[string]any{
			"input_tokens":  float64(inputTokens),
			"output_tokens": float64(outputTokens),
			"total_tokens":  float64(inputTokens + outputTokens),
		},
	}
}

func (m *MockClient) CreateResponse(_ context.Context, req *Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = append(m.CreateCalls, req)
	if len(m.creates) == 0 {
		return nil, errors.New("mock: no scripted create outcome")
	}
	outcome := m.creates[0]
	m.creates = m.creates[1:]
	return outcome.Response, outcome.Err
}

func (m *MockClient) RetrieveResponse(_ context.Context, id string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RetrieveCalls = append(m.RetrieveCalls, id)
	if len(m.retrieves) == 0 {
		return nil, errors.New("mock: no scripted retrieve outcome")
	}
	outcome := m.retrieves[0]
	m.retrieves = m.retrieves[1:]
	return outcome.Response, outcome.Err
}
