// Package config provides environment configuration helpers for go-aura commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env returns the value of an environment variable or a default.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvRequired returns the value of an environment variable.
// Exits with a usage hint if not set.
func EnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", key)
		fmt.Fprintf(os.Stderr, "Usage: %s=... go run ./cmd/aura\n", key)
		os.Exit(1)
	}
	return v
}

// EnvBool returns a boolean environment variable ("1", "true", "yes" are true).
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes"
	}
	return b
}

// EnvDuration returns a duration environment variable (e.g. "30s").
func EnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// OpenAIKey returns the OpenAI API key from OPENAI_API_KEY.
func OpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// ElevenLabsKey returns the ElevenLabs API key from ELEVENLABS_API_KEY.
func ElevenLabsKey() string {
	return os.Getenv("ELEVENLABS_API_KEY")
}
