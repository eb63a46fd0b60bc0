// Package webhook posts business events (greeting lookup, transcript
// archive, booking) to the configured automation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Routes understood by the automation endpoint.
const (
	RouteGreeting   = "1"
	RouteTranscript = "2"
	RouteSchedule   = "3"
)

// Payload is the envelope sent on every webhook call.
type Payload struct {
	Route  string `json:"route"`
	Number string `json:"number"`
	Data   string `json:"data"`
}

// Client posts payloads to one automation endpoint. A zero URL disables
// delivery; Send then reports an error body without performing I/O.
type Client struct {
	url     string
	http    *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// Options configures a webhook client.
type Options struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{url: opts.URL, http: httpClient, logger: logger, timeout: timeout}
}

// Send posts the payload and returns the response body text. Webhook
// delivery is best effort: any failure is logged and reported as a JSON
// error body rather than an error, so callers never abandon a live call
// over a sidecar outage.
func (c *Client) Send(ctx context.Context, p Payload) string {
	if c.url == "" {
		return errorBody("webhook url not configured")
	}

	body, err := json.Marshal(p)
	if err != nil {
		c.logger.Error("webhook encode failed", "route", p.Route, "error", err)
		return errorBody(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("webhook request build failed", "route", p.Route, "error", err)
		return errorBody(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("webhook send failed", "route", p.Route, "error", err)
		return errorBody(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Error("webhook response read failed", "route", p.Route, "error", err)
		return errorBody(err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("webhook returned error status",
			"route", p.Route, "status", resp.StatusCode)
		return errorBody(fmt.Sprintf("status %d", resp.StatusCode))
	}
	return string(respBody)
}

// FetchGreeting asks the endpoint for the caller's opening message. The
// response may be a JSON object with a firstMessage field or plain text;
// anything unusable falls back to fallback.
func (c *Client) FetchGreeting(ctx context.Context, callerNumber, fallback string) string {
	body := c.Send(ctx, Payload{Route: RouteGreeting, Number: callerNumber, Data: "empty"})

	var parsed struct {
		FirstMessage string `json:"firstMessage"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Error != "" {
			return fallback
		}
		if msg := strings.TrimSpace(parsed.FirstMessage); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := strings.TrimSpace(body); msg != "" {
		return msg
	}
	return fallback
}

func errorBody(message string) string {
	b, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"webhook failed"}`
	}
	return string(b)
}
