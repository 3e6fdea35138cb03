// Aura - push-to-talk voice assistant.
// Captures an utterance from the microphone, transcribes it, generates a
// reply, speaks it back, and streams the whole exchange to the browser.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/auralabs/go-aura/internal/config"
	"github.com/auralabs/go-aura/internal/log"
	"github.com/auralabs/go-aura/pkg/audioio"
	"github.com/auralabs/go-aura/pkg/call"
	"github.com/auralabs/go-aura/pkg/inference"
	"github.com/auralabs/go-aura/pkg/player"
	"github.com/auralabs/go-aura/pkg/recorder"
	"github.com/auralabs/go-aura/pkg/stt"
	"github.com/auralabs/go-aura/pkg/tts"
	"github.com/auralabs/go-aura/pkg/web"
)

type appConfig struct {
	addr      string
	staticDir string
	logLevel  string

	openAIKey     string
	elevenKey     string
	voice         string
	ttsProvider   string
	chatModel     string
	fallbackModel string
	sttModel      string
	systemPrompt  string
	assistantName string

	mockAudio bool
	textOnly  bool
}

func main() {
	cfg := parseFlags()
	log.Init(cfg.logLevel)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory, cleanup, err := buildFactory(cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := web.NewServer(factory,
		web.WithLogger(logger),
		web.WithStaticDir(cfg.staticDir),
	)

	logger.Info("aura starting", "addr", cfg.addr, "text_only", cfg.textOnly)
	if err := srv.Run(ctx, cfg.addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildFactory wires the pipeline components behind a session factory.
// The speaker is shared across sessions; capture and session state are
// per-call.
func buildFactory(cfg appConfig) (web.SessionFactory, func(), error) {
	logger := log.L()

	responder, err := buildResponder(cfg)
	if err != nil {
		return nil, nil, err
	}

	transcriber, err := stt.NewWhisper(
		stt.WithAPIKey(cfg.openAIKey),
		stt.WithModel(cfg.sttModel),
		stt.WithLogger(log.Component("stt")),
	)
	if err != nil {
		responder.Close()
		return nil, nil, err
	}

	var synth tts.Provider
	var out player.Player
	cleanup := func() {
		responder.Close()
		transcriber.Close()
	}

	if !cfg.textOnly {
		voicer, err := buildSynthesizer(cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		synth = voicer

		speaker, err := player.NewOtoPlayer(24000, 1, log.Component("player"))
		if err != nil {
			voicer.Close()
			cleanup()
			return nil, nil, err
		}
		out = speaker

		prev := cleanup
		cleanup = func() {
			speaker.Close()
			voicer.Close()
			prev()
		}
	}

	captureCfg := audioio.DefaultConfig()
	if cfg.mockAudio {
		captureCfg.Backend = audioio.BackendMock
	}

	factory := func() (*call.Session, error) {
		capture, err := audioio.NewCapture(captureCfg, log.Component("audioio"))
		if err != nil {
			return nil, err
		}
		rec := recorder.New(capture,
			recorder.WithLogger(log.Component("recorder")),
		)
		return call.NewSession(call.Deps{
			Recorder:    rec,
			Transcriber: transcriber,
			Responder:   responder,
			Synthesizer: synth,
			Player:      out,
		},
			call.WithAssistantName(cfg.assistantName),
			call.WithSystemPrompt(cfg.systemPrompt),
			call.WithLogger(logger),
			call.WithCleanup(func() { capture.Close() }),
		)
	}
	return factory, cleanup, nil
}

// buildResponder creates the chat backend. With a fallback model configured
// it becomes a chain: primary model first, fallback behind it.
func buildResponder(cfg appConfig) (inference.Provider, error) {
	primary, err := inference.NewClient(
		inference.WithAPIKey(cfg.openAIKey),
		inference.WithModel(cfg.chatModel),
		inference.WithLogger(log.Component("inference")),
	)
	if err != nil {
		return nil, err
	}

	if cfg.fallbackModel == "" {
		return primary, nil
	}

	fallback, err := inference.NewClient(
		inference.WithAPIKey(cfg.openAIKey),
		inference.WithModel(cfg.fallbackModel),
		inference.WithLogger(log.Component("inference")),
	)
	if err != nil {
		primary.Close()
		return nil, err
	}

	return inference.NewChainWithLogger(log.L(), primary, fallback)
}

// buildSynthesizer picks the TTS backend. ElevenLabs gets the usual
// cloned-voice-with-stock-fallback chain; OpenAI speaks raw PCM so the
// shared player can consume it directly.
func buildSynthesizer(cfg appConfig) (tts.Provider, error) {
	if cfg.ttsProvider == "openai" {
		return tts.NewOpenAI(
			tts.WithAPIKey(cfg.openAIKey),
			tts.WithOutputFormat(tts.EncodingPCM24),
			tts.WithLogger(log.Component("tts")),
		)
	}

	return tts.NewFallbackChain(cfg.voice,
		tts.WithAPIKey(cfg.elevenKey),
		tts.WithOutputFormat(tts.EncodingPCM24),
		tts.WithLogger(log.Component("tts")),
	)
}

// parseFlags merges flags over environment configuration.
func parseFlags() appConfig {
	cfg := appConfig{
		addr:          config.Env("AURA_ADDR", ":8080"),
		staticDir:     config.Env("AURA_STATIC_DIR", ""),
		logLevel:      config.Env("AURA_LOG_LEVEL", "info"),
		voice:         config.Env("AURA_VOICE", "rachel"),
		ttsProvider:   config.Env("AURA_TTS_PROVIDER", "elevenlabs"),
		chatModel:     config.Env("AURA_CHAT_MODEL", "gpt-4o-mini"),
		fallbackModel: config.Env("AURA_FALLBACK_CHAT_MODEL", ""),
		sttModel:      config.Env("AURA_STT_MODEL", "whisper-1"),
		assistantName: config.Env("AURA_NAME", "Aura"),
		systemPrompt: config.Env("AURA_SYSTEM_PROMPT",
			"You are Aura, a friendly voice assistant. Keep replies short and conversational."),
	}

	addr := flag.String("addr", cfg.addr, "HTTP listen address")
	staticDir := flag.String("static", cfg.staticDir, "Directory of web UI assets to serve at /")
	logLevel := flag.String("log-level", cfg.logLevel, "Log level: debug, info, warn, error")
	voice := flag.String("voice", cfg.voice, "ElevenLabs voice preset or ID")
	ttsProvider := flag.String("tts-provider", cfg.ttsProvider, "TTS backend: elevenlabs or openai")
	fallbackModel := flag.String("fallback-model", cfg.fallbackModel, "Chat model to fall back to when the primary fails")
	textOnly := flag.Bool("text-only", false, "Disable speech synthesis and playback")
	mockAudio := flag.Bool("mock-audio", false, "Use the simulated microphone instead of a real device")
	flag.Parse()

	cfg.addr = *addr
	cfg.staticDir = *staticDir
	cfg.logLevel = *logLevel
	cfg.voice = *voice
	cfg.ttsProvider = *ttsProvider
	cfg.fallbackModel = *fallbackModel
	cfg.textOnly = *textOnly
	cfg.mockAudio = *mockAudio

	cfg.openAIKey = config.EnvRequired("OPENAI_API_KEY")
	if !cfg.textOnly && cfg.ttsProvider != "openai" {
		cfg.elevenKey = config.ElevenLabsKey()
		if cfg.elevenKey == "" {
			cfg.textOnly = true
		}
	}

	return cfg
}
