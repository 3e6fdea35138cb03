package audioio

import (
	"testing"
	"time"
)

func TestChunkBytesRoundTrip(t *testing.T) {
	orig := Chunk{
		Samples:    []int16{0, 1, -1, 32767, -32768, 12345},
		SampleRate: 16000,
		Channels:   1,
	}

	var decoded Chunk
	decoded.FromBytes(orig.Bytes(), orig.SampleRate, orig.Channels)

	if len(decoded.Samples) != len(orig.Samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded.Samples), len(orig.Samples))
	}
	for i := range orig.Samples {
		if decoded.Samples[i] != orig.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, decoded.Samples[i], orig.Samples[i])
		}
	}
}

func TestChunkDuration(t *testing.T) {
	chunk := Chunk{
		Samples:    make([]int16, 3200), // 200ms at 16kHz mono
		SampleRate: 16000,
		Channels:   1,
	}
	if d := chunk.Duration(); d != 200*time.Millisecond {
		t.Errorf("Duration = %v, want 200ms", d)
	}

	var empty Chunk
	if d := empty.Duration(); d != 0 {
		t.Errorf("empty chunk Duration = %v, want 0", d)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"zero chunk duration", func(c *Config) { c.ChunkDuration = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigChunkSamples(t *testing.T) {
	cfg := DefaultConfig()
	if n := cfg.ChunkSamples(); n != 3200 {
		t.Errorf("ChunkSamples = %d, want 3200 (200ms at 16kHz)", n)
	}
	if n := cfg.ChunkBytes(); n != 6400 {
		t.Errorf("ChunkBytes = %d, want 6400", n)
	}
}
