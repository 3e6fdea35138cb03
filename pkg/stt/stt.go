// Package stt provides a unified interface for speech-to-text providers.
//
// A Provider turns one complete utterance (a finalized audio clip) into text.
// There is no streaming mode: the voice pipeline works on whole utterances.
// The bundled Whisper client works with any OpenAI-compatible transcription
// endpoint.
//
// Example usage:
//
//	provider, _ := stt.NewWhisper(
//	    stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Transcribe(ctx, &stt.Request{
//	    Audio:    clip.Audio,
//	    MIMEType: clip.MIMEType,
//	})
//	// result.Text contains the transcript
package stt

import "context"

// Provider defines the speech-to-text provider interface.
// Implementations are single-shot request/response adapters: no internal
// retry, cancellation via ctx.
type Provider interface {
	// Transcribe converts one complete utterance to text.
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request carries one encoded utterance.
type Request struct {
	// Audio is the encoded audio payload (one object per utterance).
	Audio []byte

	// MIMEType describes the payload encoding (e.g. "audio/wav").
	MIMEType string

	// Language is an optional ISO-639-1 language hint.
	Language string

	// SessionID identifies the conversation for server-side context.
	SessionID string
}

// Result is a completed transcription.
type Result struct {
	// Text is the transcript. May be empty if nothing was recognized;
	// callers decide what an empty transcript means.
	Text string

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}
