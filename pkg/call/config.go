package call

import (
	"log/slog"
	"time"
)

// Config holds tunable parameters for a call session.
type Config struct {
	// AssistantName is used in logs and presentation.
	AssistantName string

	// SystemPrompt seeds the reply model's instructions.
	SystemPrompt string

	// HistoryWindow bounds how many past turns feed the reply context.
	HistoryWindow int

	// Per-stage timeouts. Exceeding one fails the turn at that stage.
	// Zero disables the bound for that stage.
	TranscribeTimeout time.Duration
	ReplyTimeout      time.Duration
	SynthesizeTimeout time.Duration
	PlaybackTimeout   time.Duration

	// EventBuffer is the size of the session event channel.
	EventBuffer int

	// Cleanup runs exactly once after EndCall, for releasing per-session
	// resources the session does not own (e.g. the capture device handle).
	Cleanup func()

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring a session.
type Option func(*Config)

// WithAssistantName sets the assistant display name.
func WithAssistantName(name string) Option {
	return func(c *Config) { c.AssistantName = name }
}

// WithCleanup sets a hook that runs once when the call ends.
func WithCleanup(fn func()) Option {
	return func(c *Config) { c.Cleanup = fn }
}

// WithSystemPrompt sets the reply model's system instructions.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithHistoryWindow bounds the number of past turns sent as reply context.
func WithHistoryWindow(turns int) Option {
	return func(c *Config) { c.HistoryWindow = turns }
}

// WithTranscribeTimeout bounds the transcription stage.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(c *Config) { c.TranscribeTimeout = d }
}

// WithReplyTimeout bounds the reply generation stage.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReplyTimeout = d }
}

// WithSynthesizeTimeout bounds the speech synthesis stage.
func WithSynthesizeTimeout(d time.Duration) Option {
	return func(c *Config) { c.SynthesizeTimeout = d }
}

// WithPlaybackTimeout bounds the playback stage.
func WithPlaybackTimeout(d time.Duration) Option {
	return func(c *Config) { c.PlaybackTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AssistantName:     "Aura",
		SystemPrompt:      "You are a helpful voice assistant. Keep replies short and conversational.",
		HistoryWindow:     6,
		TranscribeTimeout: 15 * time.Second,
		ReplyTimeout:      30 * time.Second,
		SynthesizeTimeout: 20 * time.Second,
		EventBuffer:       256,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
