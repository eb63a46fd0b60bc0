// Package voiceai speaks the voice-AI platform protocol: call creation over
// HTTP, then a WebSocket carrying binary PCM audio interleaved with JSON
// control messages.
package voiceai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Known diagnostic event kinds that are logged and otherwise ignored.
var diagnosticKinds = map[string]struct{}{
	"response.content.done": {},
	"response.done":         {},
	"session.created":       {},
	"conversation.item.input_audio_transcription.completed": {},
}

// Transcript is an incremental or final transcript event for one speaker.
type Transcript struct {
	Role  string
	Text  string
	Final bool
}

// ToolInvocation asks the bridge to execute a client tool and report the
// result under the given invocation id.
type ToolInvocation struct {
	ToolName     string
	InvocationID string
	Parameters   map[string]string
}

// Get returns the named parameter, trimmed; missing keys yield "".
func (t ToolInvocation) Get(name string) string {
	return strings.TrimSpace(t.Parameters[name])
}

// State reports a session state change.
type State struct {
	State string
}

// Debug carries a free-form diagnostic message.
type Debug struct {
	Message string
}

// Diagnostic is one of the known log-only event kinds.
type Diagnostic struct {
	Kind string
}

// Unknown preserves the kind of a message this bridge does not recognize.
type Unknown struct {
	Kind string
}

// DecodeServerMessage classifies one JSON control frame by its type (or
// eventType) field. Unrecognized kinds decode to Unknown rather than
// failing; the upstream protocol is externally versioned and resilience to
// new message shapes is required.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type      string `json:"type"`
		EventType string `json:"eventType"`

		Role       string                     `json:"role"`
		Text       string                     `json:"text"`
		Delta      string                     `json:"delta"`
		Final      bool                       `json:"final"`
		ToolName   string                     `json:"toolName"`
		InvocID    string                     `json:"invocationId"`
		Parameters map[string]json.RawMessage `json:"parameters"`
		State      string                     `json:"state"`
		Message    string                     `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode control message: %w", err)
	}

	kind := strings.TrimSpace(envelope.Type)
	if kind == "" {
		kind = strings.TrimSpace(envelope.EventType)
	}

	switch kind {
	case "transcript":
		text := envelope.Text
		if text == "" {
			text = envelope.Delta
		}
		return Transcript{Role: envelope.Role, Text: text, Final: envelope.Final}, nil
	case "client_tool_invocation":
		params := make(map[string]string, len(envelope.Parameters))
		for name, raw := range envelope.Parameters {
			params[name] = rawToString(raw)
		}
		return ToolInvocation{
			ToolName:     envelope.ToolName,
			InvocationID: envelope.InvocID,
			Parameters:   params,
		}, nil
	case "state":
		return State{State: envelope.State}, nil
	case "debug":
		return Debug{Message: envelope.Message}, nil
	default:
		if _, ok := diagnosticKinds[kind]; ok {
			return Diagnostic{Kind: kind}, nil
		}
		return Unknown{Kind: kind}, nil
	}
}

// rawToString flattens a JSON parameter value to its string form. Tool
// parameters are declared as strings but models occasionally send numbers
// or booleans; those are kept rather than dropped.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(trimmed); err == nil {
		return unquoted
	}
	return trimmed
}

// ToolResult is the reply to one ToolInvocation; exactly one is sent per
// handled invocation. Zero-valued error fields mean success.
type ToolResult struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId"`
	Result       string `json:"result,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const (
	toolResultType      = "client_tool_result"
	toolResponseType    = "tool-response"
	implementationError = "implementation-error"
)

// NewToolResult builds a success result for the invocation.
func NewToolResult(invocationID, result string) ToolResult {
	return ToolResult{
		Type:         toolResultType,
		InvocationID: invocationID,
		Result:       result,
		ResponseType: toolResponseType,
	}
}

// NewToolError builds an error result for the invocation.
func NewToolError(invocationID, message string) ToolResult {
	return ToolResult{
		Type:         toolResultType,
		InvocationID: invocationID,
		ErrorType:    implementationError,
		ErrorMessage: message,
	}
}
