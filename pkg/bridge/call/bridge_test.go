package call

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
	"github.com/agenix-ai/voicebridge/pkg/bridge/tools"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

const testDeadline = 3 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsServer accepts WebSocket upgrades and hands the server-side conns to a
// channel so tests can play either peer.
func wsServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type fakeVoiceAI struct {
	joinURL     string
	createErr   error
	createCalls atomic.Int32

	gotPrompt string
	gotFirst  string
}

func (f *fakeVoiceAI) CreateCall(ctx context.Context, systemPrompt, firstMessage string) (string, error) {
	f.createCalls.Add(1)
	f.gotPrompt = systemPrompt
	f.gotFirst = firstMessage
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.joinURL, nil
}

func (f *fakeVoiceAI) Dial(ctx context.Context, joinURL string) (*websocket.Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, joinURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return c, err
}

// harness wires a bridge between two in-process WebSocket servers: the test
// plays both the telephony provider and the voice-AI platform.
type harness struct {
	store    *store.Memory
	voiceAI  *fakeVoiceAI
	phone    *websocket.Conn      // telephony provider side
	aiConns  chan *websocket.Conn // voice-AI platform side
	webhooks chan webhook.Payload
	bridge   *Bridge
	done     chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	phoneSrv, phoneConns := wsServer(t)
	aiSrv, aiConns := wsServer(t)

	webhooks := make(chan webhook.Payload, 8)
	whSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		json.NewDecoder(r.Body).Decode(&p)
		webhooks <- p
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(whSrv.Close)

	mem := store.NewMemory()
	wh := webhook.NewClient(webhook.Options{URL: whSrv.URL, Logger: discardLogger()})
	voiceAI := &fakeVoiceAI{joinURL: wsURL(aiSrv)}

	phone, resp, err := websocket.DefaultDialer.Dial(wsURL(phoneSrv), nil)
	if err != nil {
		t.Fatalf("dial telephony server: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { phone.Close() })
	phone.SetReadDeadline(time.Now().Add(testDeadline))

	var serverConn *websocket.Conn
	select {
	case serverConn = <-phoneConns:
	case <-time.After(testDeadline):
		t.Fatal("telephony server conn not accepted")
	}

	b, err := New(Dependencies{
		Conn:            serverConn,
		Store:           mem,
		VoiceAI:         voiceAI,
		Webhook:         wh,
		Tools:           tools.NewHandler(wh, map[string]string{"London": "cal-1"}, discardLogger()),
		Tracker:         NewTracker(),
		Logger:          discardLogger(),
		SystemPrompt:    "You are a receptionist.",
		TeardownTimeout: testDeadline,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := &harness{
		store:    mem,
		voiceAI:  voiceAI,
		phone:    phone,
		aiConns:  aiConns,
		webhooks: webhooks,
		bridge:   b,
		done:     make(chan error, 1),
	}
	go func() { h.done <- b.Run(context.Background()) }()
	return h
}

func (h *harness) seedSession(t *testing.T, callSID string) {
	t.Helper()
	err := h.store.Save(context.Background(), callSID, &session.Session{
		CallSID:      callSID,
		CallerNumber: "+15550100",
		FirstMessage: "Hello, how can I help?",
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func (h *harness) sendStart(t *testing.T, callSID, streamSID string) {
	t.Helper()
	frame := map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid": streamSID,
			"callSid":   callSID,
			"customParameters": map[string]string{
				"callerNumber": "+15550100",
				"firstMessage": "Hello, how can I help?",
			},
		},
	}
	if err := h.phone.WriteJSON(frame); err != nil {
		t.Fatalf("send start: %v", err)
	}
}

func (h *harness) awaitAI(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-h.aiConns:
		c.SetReadDeadline(time.Now().Add(testDeadline))
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(testDeadline):
		t.Fatal("voice-ai socket never dialed")
		return nil
	}
}

func (h *harness) awaitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(testDeadline):
		t.Fatal("bridge did not terminate")
		return nil
	}
}

func (h *harness) awaitWebhook(t *testing.T) webhook.Payload {
	t.Helper()
	select {
	case p := <-h.webhooks:
		return p
	case <-time.After(testDeadline):
		t.Fatal("webhook never called")
		return webhook.Payload{}
	}
}

func TestRun_UnknownCallRefusesToBridge(t *testing.T) {
	h := newHarness(t)
	h.sendStart(t, "CA-unknown", "MZ1")

	if err := h.awaitDone(t); err == nil {
		t.Fatal("expected an error for an unknown call")
	}
	if n := h.voiceAI.createCalls.Load(); n != 0 {
		t.Fatalf("voice-ai call created for unknown session: %d", n)
	}
	if h.bridge.State() != StateTerminated {
		t.Fatalf("state = %s", h.bridge.State())
	}
	// The telephony socket must be closed.
	if _, _, err := h.phone.ReadMessage(); err == nil {
		t.Fatal("telephony socket still open")
	}
}

func TestRun_CallSetupFailureTerminates(t *testing.T) {
	h := newHarness(t)
	h.voiceAI.createErr = context.DeadlineExceeded
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")

	if err := h.awaitDone(t); err == nil {
		t.Fatal("expected an error when call creation fails")
	}
	if h.bridge.State() != StateTerminated {
		t.Fatalf("state = %s", h.bridge.State())
	}
}

func TestRun_BridgesAudioBothWays(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")
	ai := h.awaitAI(t)

	if h.voiceAI.gotPrompt != "You are a receptionist." || h.voiceAI.gotFirst != "Hello, how can I help?" {
		t.Fatalf("create call args = %q, %q", h.voiceAI.gotPrompt, h.voiceAI.gotFirst)
	}

	// Caller sends one 20ms frame of mu-law silence.
	silence := bytes.Repeat([]byte{0xff}, 160)
	media := map[string]any{
		"event": "media",
		"media": map[string]string{"payload": base64.StdEncoding.EncodeToString(silence)},
	}
	if err := h.phone.WriteJSON(media); err != nil {
		t.Fatalf("send media: %v", err)
	}

	msgType, pcm, err := ai.ReadMessage()
	if err != nil {
		t.Fatalf("read voice-ai audio: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d", msgType)
	}
	if len(pcm) != 320 {
		t.Fatalf("pcm length = %d, want 320", len(pcm))
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("silence decoded to nonzero byte at %d: %#x", i, b)
		}
	}

	// Agent replies with 20ms of PCM silence.
	if err := ai.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
		t.Fatalf("send agent audio: %v", err)
	}

	var envelope struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := h.phone.ReadJSON(&envelope); err != nil {
		t.Fatalf("read telephony media: %v", err)
	}
	if envelope.Event != "media" || envelope.StreamSID != "MZ1" {
		t.Fatalf("envelope = %+v", envelope)
	}
	mulaw, err := base64.StdEncoding.DecodeString(envelope.Media.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if len(mulaw) != 160 {
		t.Fatalf("mulaw length = %d, want 160", len(mulaw))
	}
}

func TestRun_TranscriptAndTeardown(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")
	ai := h.awaitAI(t)

	turns := []string{
		`{"type":"transcript","role":"user","text":"I'd like to book a visit.","final":true}`,
		`{"type":"transcript","role":"agent","text":"Of course!","final":true}`,
		`{"type":"transcript","role":"","text":"roleless noise"}`,
	}
	for _, turn := range turns {
		if err := ai.WriteMessage(websocket.TextMessage, []byte(turn)); err != nil {
			t.Fatalf("send transcript: %v", err)
		}
	}

	// Platform hangs up; the bridge must flush the transcript and delete
	// the session.
	ai.Close()

	if err := h.awaitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	flush := h.awaitWebhook(t)
	if flush.Route != webhook.RouteTranscript {
		t.Fatalf("flush route = %q", flush.Route)
	}
	if flush.Number != "+15550100" {
		t.Fatalf("flush number = %q", flush.Number)
	}
	if !strings.Contains(flush.Data, "User: I'd like to book a visit.\n") ||
		!strings.Contains(flush.Data, "Agent: Of course!\n") {
		t.Fatalf("flushed transcript = %q", flush.Data)
	}
	if strings.Contains(flush.Data, "roleless") {
		t.Fatalf("roleless transcript leaked into flush: %q", flush.Data)
	}

	if h.store.Len() != 0 {
		t.Fatalf("session not deleted, %d left", h.store.Len())
	}
	if h.bridge.State() != StateTerminated {
		t.Fatalf("state = %s", h.bridge.State())
	}
}

func TestRun_StopFrameClosesCall(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")
	h.awaitAI(t)

	if err := h.phone.WriteJSON(map[string]any{"event": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	if err := h.awaitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.awaitWebhook(t).Route; got != webhook.RouteTranscript {
		t.Fatalf("flush route = %q", got)
	}
	if h.store.Len() != 0 {
		t.Fatalf("session not deleted, %d left", h.store.Len())
	}
}

func TestRun_ToolInvocationRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")
	ai := h.awaitAI(t)

	inv := `{"type":"client_tool_invocation","toolName":"question_and_answer",` +
		`"invocationId":"inv-9","parameters":{"question":"When are you open?"}}`
	if err := ai.WriteMessage(websocket.TextMessage, []byte(inv)); err != nil {
		t.Fatalf("send invocation: %v", err)
	}

	var result map[string]any
	if err := ai.ReadJSON(&result); err != nil {
		t.Fatalf("read tool result: %v", err)
	}
	if result["type"] != "client_tool_result" || result["invocationId"] != "inv-9" {
		t.Fatalf("result = %v", result)
	}
	if result["response_type"] != "tool-response" {
		t.Fatalf("result = %v", result)
	}
}

func TestRun_UnknownControlMessagesDoNotBreakRelay(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, "CA1")
	h.sendStart(t, "CA1", "MZ1")
	ai := h.awaitAI(t)

	frames := []string{
		`not json at all`,
		`{"type":"brand_new_event","x":1}`,
		`{"type":"state","state":"thinking"}`,
	}
	for _, f := range frames {
		if err := ai.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("send frame: %v", err)
		}
	}

	// The relay must still be alive: audio keeps flowing.
	silence := bytes.Repeat([]byte{0xff}, 160)
	media := map[string]any{
		"event": "media",
		"media": map[string]string{"payload": base64.StdEncoding.EncodeToString(silence)},
	}
	if err := h.phone.WriteJSON(media); err != nil {
		t.Fatalf("send media: %v", err)
	}
	for {
		msgType, data, err := ai.ReadMessage()
		if err != nil {
			t.Fatalf("read voice-ai frame: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			if len(data) != 320 {
				t.Fatalf("pcm length = %d", len(data))
			}
			break
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateAwaitingStart: "AWAITING_START",
		StateStreaming:     "STREAMING",
		StateClosing:       "CLOSING",
		StateTerminated:    "TERMINATED",
	}
	for s, want := range states {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
