package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agenix-ai/voicebridge/pkg/bridge/config"
)

type RootHandler struct{}

func (h RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": "voicebridge media stream server is running",
	})
}

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		StoreBackend string   `json:"store_backend"`
		Calendars    int      `json:"calendars"`
		Issues       []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.StoreBackend {
	case config.StoreMemory, config.StoreRedis, config.StorePostgres:
	default:
		issues = append(issues, "invalid store_backend")
	}
	if strings.TrimSpace(h.Config.VoiceAIAPIKey) == "" {
		issues = append(issues, "voice-ai api key not configured")
	}
	if strings.TrimSpace(h.Config.PublicURL) == "" {
		issues = append(issues, "public url not configured; admission endpoint cannot build stream URLs")
	}
	if strings.TrimSpace(h.Config.WebhookURL) == "" {
		issues = append(issues, "webhook url not configured; greetings and transcripts are disabled")
	}
	if h.Config.SampleRate <= 0 || h.Config.BufferSizeMs <= 0 {
		issues = append(issues, "audio parameters must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		StoreBackend: string(h.Config.StoreBackend),
		Calendars:    len(h.Config.Calendars),
		Issues:       issues,
	})
}
