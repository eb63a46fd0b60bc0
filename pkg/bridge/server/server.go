package server

import (
	"log/slog"
	"net/http"

	"github.com/agenix-ai/voicebridge/pkg/bridge/call"
	"github.com/agenix-ai/voicebridge/pkg/bridge/config"
	"github.com/agenix-ai/voicebridge/pkg/bridge/handlers"
	"github.com/agenix-ai/voicebridge/pkg/bridge/lifecycle"
	"github.com/agenix-ai/voicebridge/pkg/bridge/mw"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
	"github.com/agenix-ai/voicebridge/pkg/bridge/tools"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store     store.Store
	voiceAI   call.VoiceAI
	webhook   *webhook.Client
	tools     *tools.Handler
	tracker   *call.Tracker
	lifecycle *lifecycle.Lifecycle
}

// Dependencies carries everything the HTTP surface needs; the caller owns
// construction so backends can be swapped in tests.
type Dependencies struct {
	Store   store.Store
	VoiceAI call.VoiceAI
	Webhook *webhook.Client
	Logger  *slog.Logger
}

func New(cfg config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		store:     deps.Store,
		voiceAI:   deps.VoiceAI,
		webhook:   deps.Webhook,
		tools:     tools.NewHandler(deps.Webhook, cfg.Calendars, logger),
		tracker:   call.NewTracker(),
		lifecycle: &lifecycle.Lifecycle{},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.RootHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})

	s.mux.Handle("/incoming-call", handlers.IncomingCallHandler{
		Config:  s.cfg,
		Store:   s.store,
		Webhook: s.webhook,
		Logger:  s.logger,
	})

	s.mux.Handle("/media-stream", handlers.MediaStreamHandler{
		Config:    s.cfg,
		Store:     s.store,
		VoiceAI:   s.voiceAI,
		Webhook:   s.webhook,
		Tools:     s.tools,
		Tracker:   s.tracker,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Tracker exposes the live-call tracker for shutdown draining.
func (s *Server) Tracker() *call.Tracker {
	return s.tracker
}

// Lifecycle exposes the draining flag for shutdown.
func (s *Server) Lifecycle() *lifecycle.Lifecycle {
	return s.lifecycle
}
