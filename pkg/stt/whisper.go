package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/auralabs/go-aura/internal/httpc"
)

const (
	whisperBaseURL  = "https://api.openai.com/v1"
	providerWhisper = "whisper"
)

// Whisper is the standard HTTP-based transcription provider.
// Works with any OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI, Groq, local whisper.cpp servers, etc.).
type Whisper struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewWhisper creates a new Whisper transcription provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = whisperBaseURL
	}

	return &Whisper{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "stt.whisper"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Transcribe uploads one utterance and returns the transcript.
func (w *Whisper) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	if len(req.Audio) == 0 {
		return nil, ErrNoAudio
	}

	body, contentType, err := w.buildForm(req)
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	url := w.baseURL + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+w.config.APIKey)

	resp, err := w.doWithRetry(ctx, httpReq, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, w.parseError(resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("decode response: %w", err))
	}

	latency := time.Since(start).Milliseconds()

	w.logger.Debug("transcribed utterance",
		"bytes", len(req.Audio),
		"chars", len(result.Text),
		"latency_ms", latency,
	)

	return &Result{
		Text:      strings.TrimSpace(result.Text),
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (w *Whisper) Health(ctx context.Context) error {
	url := w.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(providerWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return WrapError(providerWhisper, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return w.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (w *Whisper) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// buildForm assembles the multipart upload body.
func (w *Whisper) buildForm(req *Request) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", "utterance"+extensionFor(req.MIMEType))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	if err := form.WriteField("model", w.config.Model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = w.config.Language
	}
	if lang != "" {
		if err := form.WriteField("language", lang); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}

	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return buf.Bytes(), form.FormDataContentType(), nil
}

// doWithRetry performs the request with retry logic.
func (w *Whisper) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
			// Reset body for retry
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerWhisper, err)
			w.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		// Check if retryable
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = w.parseError(resp)
			resp.Body.Close()
			w.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (w *Whisper) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// Try to parse OpenAI-style error
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerWhisper,
	}
}

// extensionFor maps a MIME type to the upload filename extension the API
// uses to sniff the container format.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/webm":
		return ".webm"
	default:
		return ".wav"
	}
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
