package audioio

import (
	"fmt"
	"log/slog"
)

// NewCapture creates a new audio capture with the given configuration.
// If cfg.Backend is BackendAuto, the miniaudio backend is selected.
func NewCapture(cfg Config, logger *slog.Logger) (Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendMiniaudio
	}

	logger.Info("creating audio capture",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"chunk_ms", cfg.ChunkDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockCapture(cfg, logger), nil
	case BackendMiniaudio:
		return NewMiniaudioCapture(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
