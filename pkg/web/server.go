// Package web exposes the voice call over HTTP: REST commands for the call
// lifecycle and a websocket stream of session events.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/auralabs/go-aura/pkg/call"
	"github.com/auralabs/go-aura/pkg/hub"
)

// SessionFactory builds a new call session. Called once per POST /api/call.
type SessionFactory func() (*call.Session, error)

// Server is the call gateway.
type Server struct {
	app       *fiber.App
	logger    *slog.Logger
	events    *hub.Hub
	factory   SessionFactory
	staticDir string

	mu      sync.Mutex
	session *call.Session
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStaticDir serves the given directory at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// NewServer creates the gateway. factory is invoked for each new call.
func NewServer(factory SessionFactory, opts ...Option) *Server {
	s := &Server{
		logger:  slog.Default(),
		factory: factory,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	s.events = hub.New("events",
		hub.WithLogger(s.logger),
		hub.WithWelcome(s.welcome),
	)

	app := fiber.New(fiber.Config{
		AppName:               "aura",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	if s.staticDir != "" {
		app.Static("/", s.staticDir)
	}

	api := app.Group("/api")
	api.Post("/call", s.handleStartCall)
	api.Get("/call", s.handleGetCall)
	api.Delete("/call", s.handleEndCall)
	api.Post("/call/turn", s.handleStartTurn)
	api.Post("/call/turn/end", s.handleEndUtterance)
	api.Post("/call/turn/cancel", s.handleCancelTurn)
	api.Post("/call/mute", s.handleToggleMute)
	api.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.events.Run(hubCtx)

	go func() {
		<-ctx.Done()
		_ = s.app.ShutdownWithTimeout(5 * time.Second)
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Hub returns the event broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.events
}

// active returns the current session, or nil when no call is live.
func (s *Server) active() *call.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// welcome gives newly connected websocket clients the current call state.
func (s *Server) welcome() []hub.Message {
	sess := s.active()
	payload := snapshotFrame{Type: "snapshot"}
	if sess != nil {
		snap := sess.Snapshot()
		payload.Session = &snap
	}
	data, err := marshalFrame(payload)
	if err != nil {
		return nil
	}
	return []hub.Message{hub.NewJSONMessage(data)}
}

// forwardEvents relays session events to the hub until the session ends.
func (s *Server) forwardEvents(sess *call.Session) {
	for ev := range sess.Events() {
		if err := s.events.BroadcastJSON(ev); err != nil {
			s.logger.Warn("event broadcast failed", "error", err)
		}
	}

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
	s.logger.Info("call finished", "session_id", sess.ID())
}

// handleEventsWS attaches a websocket client to the event hub.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
