// Package audioio provides microphone capture for voice conversations.
//
// A Capture owns the microphone device handle for the lifetime of one
// recording and guarantees the handle is released on every exit path. Two
// backends are provided: miniaudio (via malgo) for real devices, and a mock
// for CI/testing without hardware.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMiniaudio uses miniaudio (malgo) for cross-platform capture.
	BackendMiniaudio Backend = "miniaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (miniaudio on real hardware).
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (what the transcription models expect).
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono).
	Channels int `yaml:"channels" json:"channels"`

	// ChunkDuration is the cadence at which chunks are emitted.
	// Default: 200ms.
	ChunkDuration time.Duration `yaml:"chunk_duration" json:"chunk_duration"`

	// Device is the platform-specific device identifier.
	// Empty selects the system default input device.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000,
		Channels:      1,
		ChunkDuration: 200 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %v", c.ChunkDuration)
	}
	return nil
}

// ChunkSamples returns the number of samples per chunk (per channel).
func (c *Config) ChunkSamples() int {
	return int(float64(c.SampleRate) * c.ChunkDuration.Seconds())
}

// ChunkBytes returns the size of one chunk in bytes (int16 samples).
func (c *Config) ChunkBytes() int {
	return c.ChunkSamples() * c.Channels * 2
}
