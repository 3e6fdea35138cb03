// Package tts voice presets for ElevenLabs.
package tts

// DefaultFallbackVoiceID is the stock ElevenLabs voice used when a custom
// cloned voice is unavailable or fails.
const DefaultFallbackVoiceID = "Jn2FTGxo9WlzIb33zWo9"

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
// Use ResolveElevenLabsVoice to look up a voice by name or pass through raw IDs.
var ElevenLabsVoices = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
	"aria":      "9BWtsMINqrJLrRacOk9x", // American female, expressive
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
	"lily":      "pFZP5JQG7iQjIQuC4Bku", // British female, warm
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"domi":      "AZnzlk1XvdvUeBnXmlld", // American female, strong
	"elli":      "MF3mGyEYCl7XYWbV9V6O", // American female, young
	"josh":      "TxGEqnHWrfWFTfGW9XjX", // American male, deep
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
	"sam":       "yoZ06aMxZJJ28mfd3POQ", // American male, raspy
}

// ResolveElevenLabsVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name // Assume it's already a voice ID
}

// IsElevenLabsPreset returns true if the name is a known preset.
func IsElevenLabsPreset(name string) bool {
	_, ok := ElevenLabsVoices[name]
	return ok
}

// NewFallbackChain builds the standard synthesis chain: the given voice
// first, the stock fallback voice behind it. Both providers share the same
// API key and options.
func NewFallbackChain(voiceID string, opts ...Option) (*Chain, error) {
	primaryOpts := make([]Option, 0, len(opts)+1)
	primaryOpts = append(primaryOpts, opts...)
	primaryOpts = append(primaryOpts, WithVoice(ResolveElevenLabsVoice(voiceID)))

	fallbackOpts := make([]Option, 0, len(opts)+1)
	fallbackOpts = append(fallbackOpts, opts...)
	fallbackOpts = append(fallbackOpts, WithVoice(DefaultFallbackVoiceID))

	primary, err := NewElevenLabs(primaryOpts...)
	if err != nil {
		return nil, err
	}
	fallback, err := NewElevenLabs(fallbackOpts...)
	if err != nil {
		primary.Close()
		return nil, err
	}
	return NewChain(primary, fallback)
}
