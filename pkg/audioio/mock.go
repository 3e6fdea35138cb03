package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const backendMock = "mock"

// MockCapture is a mock audio capture for testing.
// It generates synthetic audio (silence or a sine wave) on the configured
// cadence, or accepts injected chunks in manual mode.
type MockCapture struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	accessed bool
	closed   bool
	chunkCh  chan Chunk
	stopCh   chan struct{}
	genDone  chan struct{}

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	manual    bool
	denied    bool

	chunksEmitted  atomic.Int64
	samplesEmitted atomic.Int64
	overruns       atomic.Int64
}

// MockOption configures a MockCapture.
type MockOption func(*MockCapture)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockOption {
	return func(m *MockCapture) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithManualChunks disables automatic generation; tests push chunks
// explicitly via Inject.
func WithManualChunks() MockOption {
	return func(m *MockCapture) {
		m.manual = true
	}
}

// WithAccessDenied makes RequestAccess fail with ErrDeviceUnavailable,
// simulating a denied or absent microphone.
func WithAccessDenied() MockOption {
	return func(m *MockCapture) {
		m.denied = true
	}
}

// NewMockCapture creates a new mock capture.
func NewMockCapture(cfg Config, logger *slog.Logger, opts ...MockOption) *MockCapture {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockCapture{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.mock"),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestAccess simulates device acquisition.
func (m *MockCapture) RequestAccess(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.denied {
		return ErrDeviceUnavailable
	}
	m.accessed = true
	return nil
}

// Start begins chunk generation.
func (m *MockCapture) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != StateInactive {
		return ErrAlreadyCapturing
	}
	if !m.accessed {
		return ErrNoAccess
	}

	m.state = StateRecording
	m.chunkCh = make(chan Chunk, 16)
	m.stopCh = make(chan struct{})
	m.genDone = make(chan struct{})

	if m.manual {
		close(m.genDone)
	} else {
		go m.generateLoop(m.stopCh, m.genDone, m.chunkCh)
	}
	return nil
}

func (m *MockCapture) generateLoop(stop <-chan struct{}, done chan<- struct{}, out chan<- Chunk) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			paused := m.state != StateRecording
			m.mu.Unlock()
			if paused {
				continue
			}
			chunk := m.generateChunk()
			select {
			case out <- chunk:
				m.chunksEmitted.Add(1)
				m.samplesEmitted.Add(int64(len(chunk.Samples)))
			default:
				m.overruns.Add(1)
			}
		}
	}
}

func (m *MockCapture) generateChunk() Chunk {
	n := m.cfg.ChunkSamples()
	samples := make([]int16, n*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < n; i++ {
			v := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			s := int16(v * 32767)
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = s
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples stay zero (silence)

	return Chunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Inject pushes a chunk into the stream. Valid only while recording;
// intended for tests using WithManualChunks.
func (m *MockCapture) Inject(chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return ErrInvalidState
	}
	select {
	case m.chunkCh <- chunk:
		m.chunksEmitted.Add(1)
		m.samplesEmitted.Add(int64(len(chunk.Samples)))
		return nil
	default:
		m.overruns.Add(1)
		return nil
	}
}

// Pause suspends chunk generation.
func (m *MockCapture) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return ErrInvalidState
	}
	m.state = StatePaused
	return nil
}

// Resume restarts chunk generation.
func (m *MockCapture) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePaused {
		return ErrInvalidState
	}
	m.state = StateRecording
	return nil
}

// Stop finalizes the chunk sequence and releases the simulated device.
func (m *MockCapture) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateInactive {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	stopCh, genDone, chunkCh := m.stopCh, m.genDone, m.chunkCh
	m.mu.Unlock()

	close(stopCh)
	<-genDone
	close(chunkCh)

	m.mu.Lock()
	m.state = StateInactive
	m.mu.Unlock()
	return nil
}

// Chunks returns the channel carrying generated chunks.
func (m *MockCapture) Chunks() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkCh
}

// Active reports whether the simulated mic indicator is asserted.
func (m *MockCapture) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRecording || m.state == StatePaused
}

// State returns the current state.
func (m *MockCapture) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the capture configuration.
func (m *MockCapture) Config() Config { return m.cfg }

// Name returns the backend name.
func (m *MockCapture) Name() string { return backendMock }

// Stats returns capture statistics.
func (m *MockCapture) Stats() Stats {
	return Stats{
		ChunksEmitted:  m.chunksEmitted.Load(),
		SamplesEmitted: m.samplesEmitted.Load(),
		Overruns:       m.overruns.Load(),
		Backend:        backendMock,
	}
}

// Close releases all resources.
func (m *MockCapture) Close() error {
	_ = m.Stop(context.Background())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accessed = false
	return nil
}

// Verify interface compliance at compile time.
var (
	_ Capture          = (*MockCapture)(nil)
	_ CaptureWithStats = (*MockCapture)(nil)
)
