// Package tools executes client tool invocations requested by the voice-AI
// agent during a live call.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agenix-ai/voicebridge/pkg/bridge/voiceai"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

// ErrInvalidLocation marks a schedule request for a venue with no configured
// calendar.
var ErrInvalidLocation = errors.New("invalid location")

// scheduleParams are the fields the agent must collect before a booking can
// be attempted, in prompt order.
var scheduleParams = []string{"name", "email", "purpose", "datetime", "location"}

const (
	scheduleFailureMessage = "I'm sorry, I couldn't schedule the meeting at this time."
	genericErrorMessage    = "An error occurred while processing your request."
	scheduleErrorMessage   = "An error occurred while scheduling your meeting."
)

// Handler resolves tool invocations to tool results. Every failure path is
// converted into an error result; Handle never returns an error, since a
// tool call is one control message among many on a live media relay.
type Handler struct {
	webhook   *webhook.Client
	calendars map[string]string
	logger    *slog.Logger
}

// NewHandler builds a handler. calendars maps human venue names to calendar
// identifiers.
func NewHandler(wh *webhook.Client, calendars map[string]string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{webhook: wh, calendars: calendars, logger: logger}
}

// Handle executes one invocation and returns the result to send back, or
// false when the tool name is unknown and no result should be sent.
func (h *Handler) Handle(ctx context.Context, inv voiceai.ToolInvocation, callerNumber string) (voiceai.ToolResult, bool) {
	switch inv.ToolName {
	case voiceai.ToolQuestionAndAnswer:
		return h.questionAndAnswer(inv), true
	case voiceai.ToolScheduleMeeting:
		return h.scheduleMeeting(ctx, inv, callerNumber), true
	default:
		h.logger.Warn("unknown tool invoked", "tool", inv.ToolName, "invocation_id", inv.InvocationID)
		return voiceai.ToolResult{}, false
	}
}

func (h *Handler) questionAndAnswer(inv voiceai.ToolInvocation) voiceai.ToolResult {
	question := inv.Get("question")
	if question == "" {
		return voiceai.NewToolError(inv.InvocationID, genericErrorMessage)
	}
	answer := fmt.Sprintf("This is a placeholder answer for your question: '%s'.", question)
	return voiceai.NewToolResult(inv.InvocationID, answer)
}

func (h *Handler) scheduleMeeting(ctx context.Context, inv voiceai.ToolInvocation, callerNumber string) voiceai.ToolResult {
	var missing []string
	for _, name := range scheduleParams {
		if inv.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		// The agent relays this back to the caller; no booking attempt is
		// made until every field is present.
		prompt := fmt.Sprintf("Please provide: %s.", strings.Join(missing, ", "))
		return voiceai.NewToolResult(inv.InvocationID, prompt)
	}

	location := inv.Get("location")
	calendarID, ok := h.calendars[location]
	if !ok {
		h.logger.Warn("schedule_meeting rejected",
			"invocation_id", inv.InvocationID, "location", location, "error", ErrInvalidLocation)
		return voiceai.NewToolError(inv.InvocationID, scheduleErrorMessage)
	}

	data, err := json.Marshal(map[string]string{
		"name":        inv.Get("name"),
		"email":       inv.Get("email"),
		"purpose":     inv.Get("purpose"),
		"datetime":    inv.Get("datetime"),
		"calendar_id": calendarID,
	})
	if err != nil {
		h.logger.Error("schedule_meeting payload encode failed",
			"invocation_id", inv.InvocationID, "error", err)
		return voiceai.NewToolError(inv.InvocationID, scheduleErrorMessage)
	}

	body := h.webhook.Send(ctx, webhook.Payload{
		Route:  webhook.RouteSchedule,
		Number: callerNumber,
		Data:   string(data),
	})

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Error != "" {
		if parsed.Error != "" {
			h.logger.Warn("schedule_meeting webhook failed",
				"invocation_id", inv.InvocationID, "error", parsed.Error)
		}
		return voiceai.NewToolResult(inv.InvocationID, scheduleFailureMessage)
	}
	if parsed.Message == "" {
		return voiceai.NewToolResult(inv.InvocationID, scheduleFailureMessage)
	}
	return voiceai.NewToolResult(inv.InvocationID, parsed.Message)
}
