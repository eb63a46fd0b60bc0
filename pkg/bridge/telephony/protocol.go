// Package telephony implements the provider media-stream wire protocol:
// inbound JSON frames from the telephony socket, the outbound media
// envelope, and the call-control document returned by the admission
// endpoint.
package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badFrame(message string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message}
}

// StartFrame announces stream start and carries the identifiers and custom
// parameters set by the admission endpoint.
type StartFrame struct {
	StreamSID    string            `json:"streamSid"`
	CallSID      string            `json:"callSid"`
	AccountSID   string            `json:"accountSid"`
	Tracks       []string          `json:"tracks"`
	CustomParams map[string]string `json:"customParameters"`
}

// MediaFrame carries one chunk of base64 mu-law caller audio.
type MediaFrame struct {
	Track   string `json:"track"`
	Chunk   string `json:"chunk"`
	Payload string `json:"payload"`
}

// StopFrame announces stream end.
type StopFrame struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// DTMFFrame carries one keypad digit.
type DTMFFrame struct {
	Digit string `json:"digit"`
}

// ConnectedFrame is the provider's initial handshake frame.
type ConnectedFrame struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// UnknownFrame preserves the event name of a frame kind this bridge does
// not handle; callers log it and move on.
type UnknownFrame struct {
	Event string
}

// DecodeStreamFrame classifies one inbound telephony frame by its "event"
// field. Unrecognized events decode to UnknownFrame rather than failing:
// the stream protocol is externally versioned.
func DecodeStreamFrame(data []byte) (any, error) {
	var envelope struct {
		Event string          `json:"event"`
		Start json.RawMessage `json:"start"`
		Media json.RawMessage `json:"media"`
		Stop  json.RawMessage `json:"stop"`
		DTMF  json.RawMessage `json:"dtmf"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame")
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return nil, badFrame("missing event")
	}

	switch event {
	case "start":
		var frame StartFrame
		if err := json.Unmarshal(envelope.Start, &frame); err != nil {
			return nil, badFrame("invalid start frame")
		}
		if strings.TrimSpace(frame.StreamSID) == "" {
			return nil, badFrame("start.streamSid is required")
		}
		if strings.TrimSpace(frame.CallSID) == "" {
			return nil, badFrame("start.callSid is required")
		}
		return frame, nil
	case "media":
		var frame MediaFrame
		if err := json.Unmarshal(envelope.Media, &frame); err != nil {
			return nil, badFrame("invalid media frame")
		}
		if frame.Payload == "" {
			return nil, badFrame("media.payload is required")
		}
		return frame, nil
	case "stop":
		var frame StopFrame
		if len(envelope.Stop) > 0 {
			if err := json.Unmarshal(envelope.Stop, &frame); err != nil {
				return nil, badFrame("invalid stop frame")
			}
		}
		return frame, nil
	case "dtmf":
		var frame DTMFFrame
		if err := json.Unmarshal(envelope.DTMF, &frame); err != nil {
			return nil, badFrame("invalid dtmf frame")
		}
		return frame, nil
	case "connected":
		return ConnectedFrame{}, nil
	default:
		return UnknownFrame{Event: event}, nil
	}
}

// MediaEnvelope is the outbound media frame sent back to the telephony
// socket, carrying base64 mu-law audio tagged with the stream id.
type MediaEnvelope struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

type MediaPayload struct {
	Payload string `json:"payload"`
}

// NewMediaEnvelope wraps one base64 mu-law chunk for the given stream.
func NewMediaEnvelope(streamSID, payloadB64 string) MediaEnvelope {
	return MediaEnvelope{
		Event:     "media",
		StreamSID: streamSID,
		Media:     MediaPayload{Payload: payloadB64},
	}
}

// MarshalFrame encodes an outbound frame as one JSON text message.
func MarshalFrame(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode stream frame: %w", err)
	}
	return data, nil
}
