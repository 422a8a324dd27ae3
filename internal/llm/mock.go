package llm

import (
	"context"
	"errors"
	"sync"
)

// MockProvider is a scriptable Provider for tests and offline runs.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	index     int
	genErr    error
	pingErr   error
	calls     int
	pings     int
	requests  []Request
}

// NewFixedProvider always answers response.
func NewFixedProvider(name, response string) *MockProvider {
	return &MockProvider{name: name, responses: []string{response}}
}

// NewFixturesProvider cycles through responses.
func NewFixturesProvider(name string, responses []string) *MockProvider {
	return &MockProvider{name: name, responses: responses}
}

// NewErrorProvider is reachable but fails every generation.
func NewErrorProvider(name string, err error) *MockProvider {
	if err == nil {
		err = errors.New("mock provider error")
	}
	return &MockProvider{name: name, genErr: err}
}

// NewUnreachableProvider fails Ping and Generate.
func NewUnreachableProvider(name string) *MockProvider {
	err := errors.New("connection refused")
	return &MockProvider{name: name, genErr: err, pingErr: err}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.genErr != nil {
		return "", m.genErr
	}
	if len(m.responses) == 0 {
		return req.Prompt, nil
	}
	resp := m.responses[m.index%len(m.responses)]
	m.index++
	return resp, nil
}

func (m *MockProvider) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

// SetPingError changes reachability.
func (m *MockProvider) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// LastRequest returns the most recent Generate request.
func (m *MockProvider) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}
