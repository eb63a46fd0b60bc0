package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agenix-ai/voicebridge/pkg/bridge/call"
	"github.com/agenix-ai/voicebridge/pkg/bridge/config"
	"github.com/agenix-ai/voicebridge/pkg/bridge/lifecycle"
	"github.com/agenix-ai/voicebridge/pkg/bridge/mw"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
	"github.com/agenix-ai/voicebridge/pkg/bridge/tools"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

// MediaStreamHandler upgrades the telephony media-stream socket and runs a
// bridge for the call's duration.
type MediaStreamHandler struct {
	Config    config.Config
	Store     store.Store
	VoiceAI   call.VoiceAI
	Webhook   *webhook.Client
	Tools     *tools.Handler
	Tracker   *call.Tracker
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		// The telephony provider connects server-to-server without an
		// Origin header.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	bridge, err := call.New(call.Dependencies{
		Conn:            conn,
		Store:           h.Store,
		VoiceAI:         h.VoiceAI,
		Webhook:         h.Webhook,
		Tools:           h.Tools,
		Tracker:         h.Tracker,
		Logger:          logger,
		SystemPrompt:    h.Config.SystemPrompt,
		TeardownTimeout: h.Config.TeardownTimeout,
	})
	if err != nil {
		logger.Error("bridge construction failed", "request_id", reqID, "error", err)
		return
	}

	if err := bridge.Run(r.Context()); err != nil {
		logger.Error("bridge failed", "request_id", reqID, "error", err)
	}
}
