package stt

import (
	"context"
	"sync"
)

// MockProvider is a test double for the Provider interface.
// Set the *Func fields to override behavior, or use the Results queue to
// script successive Transcribe calls.
type MockProvider struct {
	mu sync.Mutex

	// TranscribeFunc overrides Transcribe when set.
	TranscribeFunc func(ctx context.Context, req *Request) (*Result, error)

	// HealthFunc overrides Health when set.
	HealthFunc func(ctx context.Context) error

	// Results are returned in order by successive Transcribe calls when
	// TranscribeFunc is nil. A QueuedResult with Err set fails that call.
	Results []QueuedResult

	// Calls records every request received.
	Calls []*Request

	closed bool
}

// QueuedResult scripts one Transcribe response.
type QueuedResult struct {
	Text string
	Err  error
}

// NewMock creates a mock provider that returns the given text for every
// transcription.
func NewMock(text string) *MockProvider {
	return &MockProvider{
		TranscribeFunc: func(ctx context.Context, req *Request) (*Result, error) {
			return &Result{Text: text}, nil
		},
	}
}

// Transcribe returns the scripted response.
func (m *MockProvider) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.TranscribeFunc
	var queued *QueuedResult
	if fn == nil && len(m.Results) > 0 {
		q := m.Results[0]
		m.Results = m.Results[1:]
		queued = &q
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if queued != nil {
		if queued.Err != nil {
			return nil, queued.Err
		}
		return &Result{Text: queued.Text}, nil
	}
	return &Result{}, nil
}

// Health reports healthy unless overridden.
func (m *MockProvider) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close marks the provider closed.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns how many Transcribe calls were received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Verify MockProvider implements Provider at compile time.
var _ Provider = (*MockProvider)(nil)
