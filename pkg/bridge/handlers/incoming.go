package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/agenix-ai/voicebridge/pkg/bridge/config"
	"github.com/agenix-ai/voicebridge/pkg/bridge/mw"
	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
	"github.com/agenix-ai/voicebridge/pkg/bridge/telephony"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

// IncomingCallHandler is the call admission endpoint. The telephony
// provider posts call setup here; the response is a call-control document
// pointing the call at the media-stream socket, and a session is created so
// the orchestrator can recognize the call when its stream starts.
type IncomingCallHandler struct {
	Config  config.Config
	Store   store.Store
	Webhook *webhook.Client
	Logger  *slog.Logger
}

func (h IncomingCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}

	callSID := strings.TrimSpace(r.Form.Get("CallSid"))
	caller := strings.TrimSpace(r.Form.Get("From"))
	if caller == "" {
		caller = "Unknown"
	}
	if callSID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	firstMessage := h.Webhook.FetchGreeting(r.Context(), caller, h.Config.DefaultGreeting)

	sess := &session.Session{
		CallSID:      callSID,
		CallerNumber: caller,
		FirstMessage: firstMessage,
	}
	if details := callDetails(r.Form); len(details) > 0 {
		sess.CallDetails = details
	}
	if err := h.Store.Save(r.Context(), callSID, sess); err != nil {
		logger.Error("session create failed",
			"request_id", reqID, "call_sid", callSID, "error", err)
		http.Error(w, "session store unavailable", http.StatusInternalServerError)
		return
	}

	doc := telephony.ConnectStream{
		URL: telephony.WebSocketURL(h.Config.PublicURL) + "/media-stream",
		Parameters: map[string]string{
			"firstMessage": firstMessage,
			"callerNumber": caller,
			"callSid":      callSID,
		},
	}
	body, err := doc.Render()
	if err != nil {
		logger.Error("call-control render failed",
			"request_id", reqID, "call_sid", callSID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("call admitted",
		"request_id", reqID, "call_sid", callSID, "caller", caller)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write(body)
}

// callDetails keeps the provider's call-setup form fields, minus the two
// already promoted to session attributes.
func callDetails(form map[string][]string) map[string]string {
	out := make(map[string]string, len(form))
	for key, values := range form {
		if key == "CallSid" || key == "From" || len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}
