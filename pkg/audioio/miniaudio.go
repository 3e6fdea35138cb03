package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const backendMiniaudio = "miniaudio"

// MiniaudioCapture captures audio from the default input device using
// miniaudio (malgo). It implements Capture and CaptureWithStats.
type MiniaudioCapture struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	actx   *malgo.AllocatedContext
	device *malgo.Device
	state  State
	closed bool

	chunkCh chan Chunk
	paused  atomic.Bool

	// Accumulates callback samples until a full chunk is ready.
	pendMu  sync.Mutex
	pending []int16

	chunksEmitted  atomic.Int64
	samplesEmitted atomic.Int64
	overruns       atomic.Int64
}

// NewMiniaudioCapture creates a capture backed by the system microphone.
// The device is not acquired until RequestAccess.
func NewMiniaudioCapture(cfg Config, logger *slog.Logger) *MiniaudioCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &MiniaudioCapture{
		cfg:    cfg,
		logger: logger.With("component", "audioio.miniaudio"),
	}
}

// RequestAccess acquires the microphone device. Idempotent on success.
func (m *MiniaudioCapture) RequestAccess(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.device != nil {
		return nil
	}

	if m.actx == nil {
		actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			m.logger.Debug("miniaudio", "msg", msg)
		})
		if err != nil {
			return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
		}
		m.actx = actx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.cfg.Channels)
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onSamples(input)
		},
	}

	device, err := malgo.InitDevice(m.actx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	m.device = device

	m.logger.Info("microphone acquired",
		"sample_rate", m.cfg.SampleRate,
		"channels", m.cfg.Channels,
	)
	return nil
}

// Start begins emitting chunks.
func (m *MiniaudioCapture) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != StateInactive {
		return ErrAlreadyCapturing
	}
	if m.device == nil {
		return ErrNoAccess
	}

	m.pendMu.Lock()
	m.pending = m.pending[:0]
	m.pendMu.Unlock()

	m.chunkCh = make(chan Chunk, 16)
	m.paused.Store(false)

	if err := m.device.Start(); err != nil {
		m.releaseDeviceLocked()
		close(m.chunkCh)
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	m.state = StateRecording
	m.logger.Debug("capture started", "chunk_ms", m.cfg.ChunkDuration.Milliseconds())
	return nil
}

// onSamples accumulates device callback data and emits full chunks.
// Runs on the miniaudio callback thread; must never block.
func (m *MiniaudioCapture) onSamples(input []byte) {
	if m.paused.Load() {
		return
	}

	m.pendMu.Lock()
	for i := 0; i+1 < len(input); i += 2 {
		m.pending = append(m.pending, int16(input[i])|int16(input[i+1])<<8)
	}
	chunkLen := m.cfg.ChunkSamples() * m.cfg.Channels
	for len(m.pending) >= chunkLen {
		samples := make([]int16, chunkLen)
		copy(samples, m.pending[:chunkLen])
		m.pending = m.pending[chunkLen:]
		m.emit(Chunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels})
	}
	m.pendMu.Unlock()
}

// emit delivers a chunk without blocking; drops on a full buffer.
func (m *MiniaudioCapture) emit(chunk Chunk) {
	select {
	case m.chunkCh <- chunk:
		m.chunksEmitted.Add(1)
		m.samplesEmitted.Add(int64(len(chunk.Samples)))
	default:
		m.overruns.Add(1)
	}
}

// Pause suspends chunk emission. The device stays held, so the platform mic
// indicator stays asserted.
func (m *MiniaudioCapture) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return ErrInvalidState
	}
	m.paused.Store(true)
	m.state = StatePaused
	return nil
}

// Resume restarts chunk emission.
func (m *MiniaudioCapture) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePaused {
		return ErrInvalidState
	}
	m.paused.Store(false)
	m.state = StateRecording
	return nil
}

// Stop finalizes the chunk sequence and releases the device. Safe to call
// when no capture is active. Returns once the device handle is released.
func (m *MiniaudioCapture) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateInactive {
		return nil
	}
	m.state = StateStopping
	m.paused.Store(true)

	// Stop the callback stream before flushing so no chunk can race the close.
	if err := m.device.Stop(); err != nil {
		m.logger.Warn("device stop failed", "error", err)
	}

	m.pendMu.Lock()
	if len(m.pending) > 0 {
		samples := make([]int16, len(m.pending))
		copy(samples, m.pending)
		m.pending = m.pending[:0]
		m.emit(Chunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels})
	}
	m.pendMu.Unlock()

	close(m.chunkCh)
	m.releaseDeviceLocked()
	m.state = StateInactive

	m.logger.Debug("capture stopped",
		"chunks", m.chunksEmitted.Load(),
		"overruns", m.overruns.Load(),
	)
	return nil
}

// releaseDeviceLocked uninitializes the device handle. Caller holds mu.
func (m *MiniaudioCapture) releaseDeviceLocked() {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
}

// Chunks returns the channel carrying captured chunks.
func (m *MiniaudioCapture) Chunks() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkCh
}

// Active reports whether the mic indicator is asserted.
func (m *MiniaudioCapture) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRecording || m.state == StatePaused
}

// State returns the current device-level state.
func (m *MiniaudioCapture) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the capture configuration.
func (m *MiniaudioCapture) Config() Config { return m.cfg }

// Name returns the backend name.
func (m *MiniaudioCapture) Name() string { return backendMiniaudio }

// Stats returns capture statistics.
func (m *MiniaudioCapture) Stats() Stats {
	return Stats{
		ChunksEmitted:  m.chunksEmitted.Load(),
		SamplesEmitted: m.samplesEmitted.Load(),
		Overruns:       m.overruns.Load(),
		Backend:        backendMiniaudio,
	}
}

// Close releases all resources.
func (m *MiniaudioCapture) Close() error {
	_ = m.Stop(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.releaseDeviceLocked()
	if m.actx != nil {
		_ = m.actx.Uninit()
		m.actx.Free()
		m.actx = nil
	}
	return nil
}

// Verify interface compliance at compile time.
var (
	_ Capture          = (*MiniaudioCapture)(nil)
	_ CaptureWithStats = (*MiniaudioCapture)(nil)
)
