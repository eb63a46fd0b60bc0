package voiceai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures a voice-AI platform client.
type Options struct {
	APIURL       string
	APIKey       string
	Model        string
	Voice        string
	SampleRate   int
	BufferSizeMs int
	Calendars    map[string]string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client creates calls on the voice-AI platform and dials their media
// sockets.
type Client struct {
	opts   Options
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		opts:   opts,
		http:   httpClient,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

type createCallRequest struct {
	SystemPrompt    string           `json:"systemPrompt"`
	Model           string           `json:"model"`
	Voice           string           `json:"voice"`
	Temperature     float64          `json:"temperature"`
	InitialMessages []initialMessage `json:"initialMessages,omitempty"`
	Medium          medium           `json:"medium"`
	SelectedTools   []SelectedTool   `json:"selectedTools"`
}

type initialMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type medium struct {
	ServerWebSocket serverWebSocket `json:"serverWebSocket"`
}

type serverWebSocket struct {
	InputSampleRate    int `json:"inputSampleRate"`
	OutputSampleRate   int `json:"outputSampleRate"`
	ClientBufferSizeMs int `json:"clientBufferSizeMs"`
}

// CreateCall registers a new agent call and returns the WebSocket join URL
// for its media stream. firstMessage, when non-empty, seeds the conversation
// so the agent opens with it.
func (c *Client) CreateCall(ctx context.Context, systemPrompt, firstMessage string) (string, error) {
	reqBody := createCallRequest{
		SystemPrompt: systemPrompt,
		Model:        c.opts.Model,
		Voice:        c.opts.Voice,
		Temperature:  0.1,
		Medium: medium{ServerWebSocket: serverWebSocket{
			InputSampleRate:    c.opts.SampleRate,
			OutputSampleRate:   c.opts.SampleRate,
			ClientBufferSizeMs: c.opts.BufferSizeMs,
		}},
		SelectedTools: SelectedTools(c.opts.Calendars),
	}
	if firstMessage != "" {
		reqBody.InitialMessages = []initialMessage{{Role: "MESSAGE_ROLE_USER", Text: firstMessage}}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode create call request: %w", err)
	}

	url := strings.TrimRight(c.opts.APIURL, "/") + "/api/calls"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read create call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("create call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		JoinURL string `json:"joinUrl"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode create call response: %w", err)
	}
	if out.JoinURL == "" {
		return "", fmt.Errorf("create call: response missing joinUrl")
	}
	return out.JoinURL, nil
}

// Dial opens the media WebSocket for a created call.
func (c *Client) Dial(ctx context.Context, joinURL string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, joinURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial media socket: %w", err)
	}
	return conn, nil
}
