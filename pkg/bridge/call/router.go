package call

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/agenix-ai/voicebridge/pkg/bridge/voiceai"
)

// routeControl dispatches one JSON control frame from the voice-AI socket.
// Malformed and unrecognized frames are logged and dropped; the relay loop
// must survive whatever the upstream protocol grows next.
func (b *Bridge) routeControl(data []byte) {
	msg, err := voiceai.DecodeServerMessage(data)
	if err != nil {
		b.logger.Warn("dropping malformed control message", "call_sid", b.callSID, "error", err)
		return
	}

	switch m := msg.(type) {
	case voiceai.Transcript:
		b.handleTranscript(m)
	case voiceai.ToolInvocation:
		b.handleToolInvocation(m)
	case voiceai.State:
		b.logger.Debug("voice-ai state", "call_sid", b.callSID, "state", m.State)
	case voiceai.Debug:
		b.logger.Debug("voice-ai debug", "call_sid", b.callSID, "message", m.Message)
	case voiceai.Diagnostic:
		b.logger.Debug("voice-ai event", "call_sid", b.callSID, "kind", m.Kind)
	case voiceai.Unknown:
		b.logger.Warn("unhandled voice-ai message", "call_sid", b.callSID, "kind", m.Kind)
	}
}

// handleTranscript appends one turn to the session transcript and persists
// it. Frames missing a role or text carry nothing to record.
func (b *Bridge) handleTranscript(t voiceai.Transcript) {
	if t.Role == "" || t.Text == "" {
		return
	}

	b.sessMu.Lock()
	if b.sess == nil {
		b.sessMu.Unlock()
		return
	}
	b.sess.AppendTranscript(t.Role, t.Text)
	snapshot := b.sess.Clone()
	callSID := b.callSID
	b.sessMu.Unlock()

	if err := b.store.Save(b.ctx, callSID, snapshot); err != nil {
		b.logger.Error("transcript persist failed", "call_sid", callSID, "error", err)
	}
}

// handleToolInvocation executes the tool and reports its result over the
// voice-AI socket. Unknown tools produce no result.
func (b *Bridge) handleToolInvocation(inv voiceai.ToolInvocation) {
	b.sessMu.Lock()
	caller := ""
	if b.sess != nil {
		caller = b.sess.CallerNumber
	}
	callSID := b.callSID
	b.sessMu.Unlock()

	b.logger.Info("tool invoked",
		"call_sid", callSID, "tool", inv.ToolName, "invocation_id", inv.InvocationID)

	result, ok := b.tools.Handle(b.ctx, inv, caller)
	if !ok {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("encode tool result failed",
			"call_sid", callSID, "invocation_id", inv.InvocationID, "error", err)
		return
	}
	if err := b.writeAI(websocket.TextMessage, payload); err != nil {
		b.logger.Warn("tool result write failed",
			"call_sid", callSID, "invocation_id", inv.InvocationID, "error", err)
	}
}
