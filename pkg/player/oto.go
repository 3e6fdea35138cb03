package player

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays PCM16 clips through the system audio output.
//
// The output device format is fixed at construction; clips must match the
// configured sample rate and channel count. The underlying context is shared
// per process, so there should be at most one OtoPlayer.
type OtoPlayer struct {
	sampleRate int
	channels   int
	logger     *slog.Logger

	otoCtx *oto.Context

	mu      sync.Mutex
	current *playback
	closed  bool
}

// playback tracks one in-flight clip. The mutex serializes completion
// delivery against Cancel so a cancelled playback never emits a Result.
type playback struct {
	mu        sync.Mutex
	cancelled bool
	done      bool
	resultCh  chan Result
	player    *oto.Player
	stop      chan struct{}
	started   time.Time
}

// NewOtoPlayer opens the system audio output at the given format.
// It blocks until the audio backend is ready.
func NewOtoPlayer(sampleRate, channels int, logger *slog.Logger) (*OtoPlayer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("player: open output: %w", err)
	}
	<-ready

	return &OtoPlayer{
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With("component", "player"),
		otoCtx:     otoCtx,
	}, nil
}

// Play starts playback of the clip.
func (p *OtoPlayer) Play(ctx context.Context, clip Clip) (<-chan Result, error) {
	if len(clip.Audio) == 0 {
		return nil, ErrEmptyClip
	}
	if clip.SampleRate != p.sampleRate || clip.Channels != p.channels {
		return nil, fmt.Errorf("%w: clip %dHz/%dch, output %dHz/%dch",
			ErrUnsupportedFormat, clip.SampleRate, clip.Channels, p.sampleRate, p.channels)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.current != nil {
		p.mu.Unlock()
		return nil, ErrAlreadyPlaying
	}

	pb := &playback{
		resultCh: make(chan Result, 1),
		stop:     make(chan struct{}),
		started:  time.Now(),
	}
	pb.player = p.otoCtx.NewPlayer(bytes.NewReader(clip.Audio))
	p.current = pb
	p.mu.Unlock()

	pb.player.Play()
	go p.watch(ctx, pb, clip.Duration())

	p.logger.Debug("playback started",
		"bytes", len(clip.Audio),
		"duration_ms", clip.Duration().Milliseconds(),
	)
	return pb.resultCh, nil
}

// watch waits for the clip to drain, then delivers the completion result.
func (p *OtoPlayer) watch(ctx context.Context, pb *playback, expected time.Duration) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case <-pb.stop:
			return
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-ticker.C:
			if !pb.player.IsPlaying() {
				break loop
			}
		}
	}

	played := time.Since(pb.started)
	if played > expected {
		played = expected
	}

	pb.mu.Lock()
	if pb.cancelled {
		pb.mu.Unlock()
		return
	}
	pb.done = true
	pb.resultCh <- Result{Err: err, Played: played}
	pb.mu.Unlock()

	pb.player.Close()
	p.clear(pb)
}

// Cancel stops the active playback. No Result is delivered for it.
func (p *OtoPlayer) Cancel() error {
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()
	if pb == nil {
		return ErrNoPlayback
	}

	pb.mu.Lock()
	if pb.done {
		pb.mu.Unlock()
		return ErrNoPlayback
	}
	pb.cancelled = true
	pb.mu.Unlock()

	close(pb.stop)
	pb.player.Close()
	p.clear(pb)

	p.logger.Debug("playback cancelled")
	return nil
}

// Active reports whether a playback is in progress.
func (p *OtoPlayer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Close cancels any active playback. The oto context itself cannot be torn
// down, so the device handle lives for the process.
func (p *OtoPlayer) Close() error {
	_ = p.Cancel()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// clear releases the current slot if it still belongs to pb.
func (p *OtoPlayer) clear(pb *playback) {
	p.mu.Lock()
	if p.current == pb {
		p.current = nil
	}
	p.mu.Unlock()
}

// Verify OtoPlayer implements Player at compile time.
var _ Player = (*OtoPlayer)(nil)
