package player

import (
	"context"
	"sync"
	"time"
)

// MockPlayer is a Player for tests. By default each clip "plays" for Delay
// and then completes. With Manual set, playback stays active until the test
// calls Finish.
type MockPlayer struct {
	// Delay is the simulated playback time (default 5ms).
	Delay time.Duration

	// Manual disables automatic completion; tests drive Finish themselves.
	Manual bool

	mu      sync.Mutex
	current *mockPlayback
	closed  bool
	played  []Clip
	cancels int
}

type mockPlayback struct {
	mu        sync.Mutex
	cancelled bool
	done      bool
	resultCh  chan Result
	stop      chan struct{}
	started   time.Time
}

// NewMockPlayer creates a mock with automatic completion.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{Delay: 5 * time.Millisecond}
}

// Play starts a simulated playback.
func (m *MockPlayer) Play(ctx context.Context, clip Clip) (<-chan Result, error) {
	if len(clip.Audio) == 0 {
		return nil, ErrEmptyClip
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.current != nil {
		m.mu.Unlock()
		return nil, ErrAlreadyPlaying
	}
	pb := &mockPlayback{
		resultCh: make(chan Result, 1),
		stop:     make(chan struct{}),
		started:  time.Now(),
	}
	m.current = pb
	m.played = append(m.played, clip)
	m.mu.Unlock()

	if !m.Manual {
		go func() {
			select {
			case <-pb.stop:
				return
			case <-ctx.Done():
				m.deliver(pb, Result{Err: ctx.Err(), Played: time.Since(pb.started)})
			case <-time.After(m.Delay):
				m.deliver(pb, Result{Played: time.Since(pb.started)})
			}
		}()
	}

	return pb.resultCh, nil
}

// Finish completes the active playback with the given error.
// Only meaningful in Manual mode.
func (m *MockPlayer) Finish(err error) {
	m.mu.Lock()
	pb := m.current
	m.mu.Unlock()
	if pb == nil {
		return
	}
	m.deliver(pb, Result{Err: err, Played: time.Since(pb.started)})
}

// deliver emits the result unless the playback was cancelled.
func (m *MockPlayer) deliver(pb *mockPlayback, res Result) {
	pb.mu.Lock()
	if pb.cancelled || pb.done {
		pb.mu.Unlock()
		return
	}
	pb.done = true
	pb.resultCh <- res
	pb.mu.Unlock()

	m.clear(pb)
}

// Cancel stops the active playback without delivering a result.
func (m *MockPlayer) Cancel() error {
	m.mu.Lock()
	pb := m.current
	m.mu.Unlock()
	if pb == nil {
		return ErrNoPlayback
	}

	pb.mu.Lock()
	if pb.done {
		pb.mu.Unlock()
		return ErrNoPlayback
	}
	pb.cancelled = true
	pb.mu.Unlock()

	close(pb.stop)
	m.clear(pb)

	m.mu.Lock()
	m.cancels++
	m.mu.Unlock()
	return nil
}

// Active reports whether a playback is in progress.
func (m *MockPlayer) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Close cancels any active playback.
func (m *MockPlayer) Close() error {
	_ = m.Cancel()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Played returns every clip handed to Play, in order.
func (m *MockPlayer) Played() []Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Clip, len(m.played))
	copy(out, m.played)
	return out
}

// Cancels returns how many playbacks were cancelled.
func (m *MockPlayer) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// clear releases the current slot if it still belongs to pb.
func (m *MockPlayer) clear(pb *mockPlayback) {
	m.mu.Lock()
	if m.current == pb {
		m.current = nil
	}
	m.mu.Unlock()
}

// Verify MockPlayer implements Player at compile time.
var _ Player = (*MockPlayer)(nil)
