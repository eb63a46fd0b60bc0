// Package call bridges one telephone media stream to one voice-AI media
// socket: audio is transcoded and relayed in both directions while control
// messages (transcripts, tool invocations) are routed alongside.
package call

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agenix-ai/voicebridge/pkg/bridge/audio"
	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
	"github.com/agenix-ai/voicebridge/pkg/bridge/telephony"
	"github.com/agenix-ai/voicebridge/pkg/bridge/tools"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

// State is the bridge lifecycle phase.
type State int32

const (
	StateAwaitingStart State = iota
	StateStreaming
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "AWAITING_START"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// VoiceAI is the slice of the platform client the bridge needs; it is an
// interface so bridge tests can stand in a fake platform.
type VoiceAI interface {
	CreateCall(ctx context.Context, systemPrompt, firstMessage string) (string, error)
	Dial(ctx context.Context, joinURL string) (*websocket.Conn, error)
}

// Dependencies wires one bridge run.
type Dependencies struct {
	Conn         *websocket.Conn
	Store        store.Store
	VoiceAI      VoiceAI
	Webhook      *webhook.Client
	Tools        *tools.Handler
	Tracker      *Tracker
	Logger       *slog.Logger
	SystemPrompt string

	// TeardownTimeout bounds the transcript flush and session delete after
	// the media path is gone.
	TeardownTimeout time.Duration
}

// Bridge relays one call. The telephony read loop owns the state machine;
// a second goroutine reads the voice-AI socket once streaming begins.
type Bridge struct {
	conn         *websocket.Conn
	store        store.Store
	voiceAI      VoiceAI
	webhook      *webhook.Client
	tools        *tools.Handler
	tracker      *Tracker
	logger       *slog.Logger
	systemPrompt string
	teardownWait time.Duration

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	aiConn    *websocket.Conn
	aiWriteMu sync.Mutex
	aiWG      sync.WaitGroup

	sessMu  sync.Mutex
	sess    *session.Session
	callSID string

	unregister   func()
	teardownOnce sync.Once
}

// New validates deps and builds a bridge ready to Run.
func New(deps Dependencies) (*Bridge, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("telephony connection is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.VoiceAI == nil {
		return nil, fmt.Errorf("voice-ai client is required")
	}
	if deps.Webhook == nil {
		return nil, fmt.Errorf("webhook client is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool handler is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.TeardownTimeout <= 0 {
		deps.TeardownTimeout = 15 * time.Second
	}
	return &Bridge{
		conn:         deps.Conn,
		store:        deps.Store,
		voiceAI:      deps.VoiceAI,
		webhook:      deps.Webhook,
		tools:        deps.Tools,
		tracker:      deps.Tracker,
		logger:       deps.Logger,
		systemPrompt: deps.SystemPrompt,
		teardownWait: deps.TeardownTimeout,
	}, nil
}

// State reports the current lifecycle phase.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Run drives the bridge until the call ends, then tears it down. It always
// leaves the bridge in TERMINATED and both sockets closed.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()
	defer b.teardown()

	// Unblock the read loop when the surrounding server drains.
	go func() {
		<-b.ctx.Done()
		b.conn.Close()
	}()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if b.State() == StateAwaitingStart {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn("telephony socket failed", "call_sid", b.callSID, "error", err)
			}
			return nil
		}

		frame, err := telephony.DecodeStreamFrame(data)
		if err != nil {
			b.logger.Warn("dropping malformed telephony frame", "call_sid", b.callSID, "error", err)
			continue
		}

		switch f := frame.(type) {
		case telephony.StartFrame:
			if b.State() != StateAwaitingStart {
				continue
			}
			if err := b.handleStart(f); err != nil {
				b.logger.Error("call setup failed", "call_sid", f.CallSID, "error", err)
				return err
			}
		case telephony.MediaFrame:
			if b.State() != StateStreaming {
				continue
			}
			b.forwardCallerAudio(f)
		case telephony.StopFrame:
			if b.State() == StateStreaming {
				b.setState(StateClosing)
			}
			return nil
		default:
			// connected, dtmf and unknown events carry nothing the bridge
			// needs in any state.
		}
	}
}

// handleStart loads the session, connects the voice-AI side and enters
// STREAMING. Any failure is fatal for the call: audio is never bridged for
// an unknown or half-connected call.
func (b *Bridge) handleStart(f telephony.StartFrame) error {
	sess, err := b.store.Load(b.ctx, f.CallSID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no session for call %s", f.CallSID)
		}
		return fmt.Errorf("load session: %w", err)
	}

	sess.StreamSID = f.StreamSID
	if caller := f.CustomParams["callerNumber"]; caller != "" {
		sess.CallerNumber = caller
	}
	if first := f.CustomParams["firstMessage"]; first != "" {
		sess.FirstMessage = first
	}

	b.sessMu.Lock()
	b.sess = sess
	b.callSID = f.CallSID
	b.sessMu.Unlock()

	if err := b.store.Save(b.ctx, f.CallSID, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	joinURL, err := b.voiceAI.CreateCall(b.ctx, b.systemPrompt, sess.FirstMessage)
	if err != nil {
		return fmt.Errorf("create voice-ai call: %w", err)
	}
	aiConn, err := b.voiceAI.Dial(b.ctx, joinURL)
	if err != nil {
		return fmt.Errorf("connect voice-ai socket: %w", err)
	}

	b.aiConn = aiConn
	b.setState(StateStreaming)
	b.logger.Info("call streaming",
		"call_sid", f.CallSID, "stream_sid", f.StreamSID, "caller", sess.CallerNumber)

	if b.tracker != nil {
		// Held until teardown finishes so a draining server waits for the
		// transcript flush, not just the socket close.
		b.unregister = b.tracker.Register(f.CallSID, b.cancel)
	}

	b.aiWG.Add(1)
	go func() {
		defer b.aiWG.Done()
		b.aiLoop()
	}()
	return nil
}

// forwardCallerAudio decodes one inbound media frame and relays it as
// linear PCM. Bad frames are dropped; the stream continues.
func (b *Bridge) forwardCallerAudio(f telephony.MediaFrame) {
	raw, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		b.logger.Warn("dropping undecodable media payload", "call_sid", b.callSID, "error", err)
		return
	}
	pcm, err := audio.ToLinearPCM(raw)
	if err != nil {
		b.logger.Warn("dropping untranscodable media payload", "call_sid", b.callSID, "error", err)
		return
	}
	if err := b.writeAI(websocket.BinaryMessage, pcm); err != nil {
		b.logger.Warn("voice-ai audio write failed", "call_sid", b.callSID, "error", err)
	}
}

// aiLoop reads the voice-AI socket: binary frames are AI speech relayed
// back to the telephone, text frames are control messages. When the socket
// fails or closes, the telephony side is closed too so Run unwinds.
func (b *Bridge) aiLoop() {
	defer b.conn.Close()

	for {
		msgType, data, err := b.aiConn.ReadMessage()
		if err != nil {
			if b.State() == StateStreaming {
				b.setState(StateClosing)
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					b.logger.Warn("voice-ai socket failed", "call_sid", b.callSID, "error", err)
				}
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			b.forwardAgentAudio(data)
		case websocket.TextMessage:
			b.routeControl(data)
		}
	}
}

// forwardAgentAudio companding-encodes AI speech and sends it to the
// telephone as a media envelope.
func (b *Bridge) forwardAgentAudio(pcm []byte) {
	mulaw, err := audio.ToMuLaw(pcm)
	if err != nil {
		b.logger.Warn("dropping untranscodable agent audio", "call_sid", b.callSID, "error", err)
		return
	}

	b.sessMu.Lock()
	streamSID := ""
	if b.sess != nil {
		streamSID = b.sess.StreamSID
	}
	b.sessMu.Unlock()

	envelope := telephony.NewMediaEnvelope(streamSID, base64.StdEncoding.EncodeToString(mulaw))
	payload, err := telephony.MarshalFrame(envelope)
	if err != nil {
		b.logger.Error("encode media envelope failed", "call_sid", b.callSID, "error", err)
		return
	}
	if err := b.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		b.logger.Warn("telephony audio write failed", "call_sid", b.callSID, "error", err)
	}
}

// writeAI serializes writes to the voice-AI socket; caller audio and tool
// results come from different goroutines.
func (b *Bridge) writeAI(msgType int, data []byte) error {
	b.aiWriteMu.Lock()
	defer b.aiWriteMu.Unlock()
	return b.aiConn.WriteMessage(msgType, data)
}

// teardown runs exactly once: closes both sockets, archives the transcript
// and removes the session from the store.
func (b *Bridge) teardown() {
	b.teardownOnce.Do(func() {
		b.setState(StateClosing)

		if b.aiConn != nil {
			b.aiConn.Close()
		}
		b.conn.Close()
		b.aiWG.Wait()

		b.sessMu.Lock()
		sess := b.sess
		callSID := b.callSID
		b.sessMu.Unlock()

		if sess != nil {
			// The parent context is usually gone by now; the flush gets its
			// own deadline so the transcript still lands.
			ctx, cancel := context.WithTimeout(context.Background(), b.teardownWait)
			defer cancel()

			b.webhook.Send(ctx, webhook.Payload{
				Route:  webhook.RouteTranscript,
				Number: sess.CallerNumber,
				Data:   sess.Transcript,
			})
			if err := b.store.Delete(ctx, callSID); err != nil && !errors.Is(err, store.ErrNotFound) {
				b.logger.Error("session delete failed", "call_sid", callSID, "error", err)
			}
			b.logger.Info("call terminated", "call_sid", callSID)
		}

		if b.unregister != nil {
			b.unregister()
		}
		b.setState(StateTerminated)
	})
}
