package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/auralabs/go-aura/pkg/audioio"
	"github.com/auralabs/go-aura/pkg/call"
)

// snapshotFrame is the first frame sent to each websocket client.
type snapshotFrame struct {
	Type    string                `json:"type"`
	Session *call.SessionSnapshot `json:"session"`
}

func marshalFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, call.ErrSessionEnded):
		return fiber.StatusGone
	case errors.Is(err, call.ErrTurnActive),
		errors.Is(err, call.ErrMuted),
		errors.Is(err, call.ErrNoActiveTurn),
		errors.Is(err, call.ErrInvalidStage):
		return fiber.StatusConflict
	case errors.Is(err, audioio.ErrDeviceUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// handleStartCall creates a new call session. Only one call at a time.
func (s *Server) handleStartCall(c *fiber.Ctx) error {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "call already active",
		})
	}
	sess, err := s.factory()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("session create failed", "error", err)
		return errJSON(c, err)
	}
	s.session = sess
	s.mu.Unlock()

	go s.forwardEvents(sess)

	s.logger.Info("call started", "session_id", sess.ID())
	return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
}

// handleGetCall returns the active call's snapshot.
func (s *Server) handleGetCall(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	return c.JSON(sess.Snapshot())
}

// handleEndCall hangs up the active call.
func (s *Server) handleEndCall(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	if err := sess.EndCall(); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"ended": true})
}

// handleStartTurn begins capturing a new utterance.
func (s *Server) handleStartTurn(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	if err := sess.StartTurn(c.Context()); err != nil {
		return errJSON(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
}

// handleEndUtterance finalizes capture and kicks off the reply pipeline.
func (s *Server) handleEndUtterance(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	if err := sess.EndUtterance(c.Context()); err != nil {
		return errJSON(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
}

// handleCancelTurn abandons the in-flight turn.
func (s *Server) handleCancelTurn(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	if err := sess.CancelTurn(); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(sess.Snapshot())
}

// handleToggleMute flips the mute state.
func (s *Server) handleToggleMute(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	muted, err := sess.ToggleMute()
	if err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"muted": muted})
}

// handleMetrics returns pipeline latency for the active call.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	sess := s.active()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active call",
		})
	}
	m := sess.Metrics()
	current := m.Current()
	average := m.Average()
	return c.JSON(fiber.Map{
		"current": fiber.Map{
			"transcribe_ms": current.TranscribeLatency.Milliseconds(),
			"reply_ms":      current.ReplyLatency.Milliseconds(),
			"synthesis_ms":  current.SynthesisLatency.Milliseconds(),
			"total_ms":      current.TotalLatency.Milliseconds(),
		},
		"average": fiber.Map{
			"transcribe_ms": average.TranscribeLatency.Milliseconds(),
			"reply_ms":      average.ReplyLatency.Milliseconds(),
			"synthesis_ms":  average.SynthesisLatency.Milliseconds(),
			"total_ms":      average.TotalLatency.Milliseconds(),
		},
	})
}
