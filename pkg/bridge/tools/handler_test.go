package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agenix-ai/voicebridge/pkg/bridge/voiceai"
	"github.com/agenix-ai/voicebridge/pkg/bridge/webhook"
)

var testCalendars = map[string]string{
	"London":     "cal-london",
	"Manchester": "cal-manchester",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(webhookURL string) *Handler {
	wh := webhook.NewClient(webhook.Options{URL: webhookURL, Logger: discardLogger()})
	return NewHandler(wh, testCalendars, discardLogger())
}

func invocation(tool string, params map[string]string) voiceai.ToolInvocation {
	return voiceai.ToolInvocation{ToolName: tool, InvocationID: "inv-1", Parameters: params}
}

func fullParams() map[string]string {
	return map[string]string{
		"name":     "Ada Lovelace",
		"email":    "ada@example.com",
		"purpose":  "consultation",
		"datetime": "2026-09-04T10:00:00Z",
		"location": "London",
	}
}

func TestHandle_UnknownToolSendsNothing(t *testing.T) {
	h := newHandler("")
	if _, ok := h.Handle(context.Background(), invocation("transfer_call", nil), "+1555"); ok {
		t.Fatal("unknown tool must not produce a result")
	}
}

func TestQuestionAndAnswer(t *testing.T) {
	h := newHandler("")
	res, ok := h.Handle(context.Background(), invocation("question_and_answer",
		map[string]string{"question": "Are you open Sundays?"}), "+1555")
	if !ok {
		t.Fatal("expected a result")
	}
	if res.ErrorType != "" {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if !strings.Contains(res.Result, "Are you open Sundays?") {
		t.Fatalf("answer does not echo question: %q", res.Result)
	}
	if res.InvocationID != "inv-1" || res.ResponseType != "tool-response" {
		t.Fatalf("result envelope = %+v", res)
	}
}

func TestQuestionAndAnswer_MissingQuestion(t *testing.T) {
	h := newHandler("")
	res, ok := h.Handle(context.Background(), invocation("question_and_answer", nil), "+1555")
	if !ok || res.ErrorType != "implementation-error" {
		t.Fatalf("expected implementation-error, got %+v", res)
	}
}

func TestScheduleMeeting_MissingParamsPrompt(t *testing.T) {
	h := newHandler("http://127.0.0.1:1") // must not be called
	params := fullParams()
	delete(params, "email")
	delete(params, "datetime")

	res, ok := h.Handle(context.Background(), invocation("schedule_meeting", params), "+1555")
	if !ok {
		t.Fatal("expected a result")
	}
	if res.ErrorType != "" {
		t.Fatalf("missing params must not be an error result: %+v", res)
	}
	if res.Result != "Please provide: email, datetime." {
		t.Fatalf("prompt = %q", res.Result)
	}
}

func TestScheduleMeeting_InvalidLocation(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	params := fullParams()
	params["location"] = "Atlantis"
	res, _ := newHandler(srv.URL).Handle(context.Background(), invocation("schedule_meeting", params), "+1555")
	if res.ErrorType != "implementation-error" {
		t.Fatalf("expected implementation-error, got %+v", res)
	}
	if called {
		t.Fatal("webhook must not be called for an invalid location")
	}
}

func TestScheduleMeeting_Success(t *testing.T) {
	var payload webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"message":"You're booked for Friday at 10am."}`))
	}))
	defer srv.Close()

	res, _ := newHandler(srv.URL).Handle(context.Background(),
		invocation("schedule_meeting", fullParams()), "+15550100")
	if res.ErrorType != "" || res.Result != "You're booked for Friday at 10am." {
		t.Fatalf("result = %+v", res)
	}

	if payload.Route != webhook.RouteSchedule || payload.Number != "+15550100" {
		t.Fatalf("payload = %+v", payload)
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(payload.Data), &data); err != nil {
		t.Fatalf("data is not JSON: %q", payload.Data)
	}
	if data["calendar_id"] != "cal-london" {
		t.Fatalf("calendar_id = %q", data["calendar_id"])
	}
	if data["name"] != "Ada Lovelace" || data["email"] != "ada@example.com" {
		t.Fatalf("data = %v", data)
	}
}

func TestScheduleMeeting_WebhookFailureBecomesApology(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, _ := newHandler(srv.URL).Handle(context.Background(),
		invocation("schedule_meeting", fullParams()), "+1555")
	if res.ErrorType != "" {
		t.Fatalf("webhook failure must yield a spoken result, got %+v", res)
	}
	if res.Result != "I'm sorry, I couldn't schedule the meeting at this time." {
		t.Fatalf("result = %q", res.Result)
	}
}

func TestScheduleMeeting_ResponseWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	res, _ := newHandler(srv.URL).Handle(context.Background(),
		invocation("schedule_meeting", fullParams()), "+1555")
	if res.Result != "I'm sorry, I couldn't schedule the meeting at this time." {
		t.Fatalf("result = %q", res.Result)
	}
}
