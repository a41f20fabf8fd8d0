// Package chatstream consumes the portal's chat turn event stream and turns
// it into ordered callbacks with exactly one terminal callback per call.
package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 2 * time.Minute

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// VectorStore selects the document collection used by file search.
type VectorStore struct {
	ID string `json:"id" validate:"required"`
}

// ToolsState tells the server which tools it may use for the turn.
type ToolsState struct {
	FileSearchEnabled      bool         `json:"fileSearchEnabled"`
	WebSearchEnabled       bool         `json:"webSearchEnabled"`
	CodeInterpreterEnabled bool         `json:"codeInterpreterEnabled"`
	VectorStore            *VectorStore `json:"vectorStore,omitempty"`
}

// Enabled lists the names of the enabled tools.
func (t ToolsState) Enabled() []string {
	var tools []string
	if t.FileSearchEnabled {
		tools = append(tools, "file_search")
	}
	if t.WebSearchEnabled {
		tools = append(tools, "web_search")
	}
	if t.CodeInterpreterEnabled {
		tools = append(tools, "code_interpreter")
	}
	return tools
}

// TurnRequest is the body of POST {chatApiBase}/turn.
type TurnRequest struct {
	Messages   []Turn     `json:"messages" validate:"required,min=1,dive"`
	ToolsState ToolsState `json:"toolsState"`
}

// Client opens streaming chat turns.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient returns a client for the chat API rooted at baseURL.
// The HTTP client has no overall timeout; streams are bounded by SetTimeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "chatstream").Logger(),
	}
}

func (c *Client) SetToken(token string) *Client {
	c.token = token
	return c
}

// SetTimeout bounds each call from request to terminal callback. Zero
// disables the bound.
func (c *Client) SetTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) SetHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) SetLogger(l zerolog.Logger) *Client {
	c.logger = l
	return c
}

// Start sends req and consumes the response stream on its own goroutine.
// Callbacks are invoked from that goroutine in receipt order.
func (c *Client) Start(ctx context.Context, req TurnRequest, cb Callbacks) *Call {
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	call := newCall(cancel, cb, c.logger)
	go call.run(ctx, c, req)
	return call
}

// Send is the blocking form of Start. It returns nil when the stream
// completed and the terminal error otherwise.
func (c *Client) Send(ctx context.Context, req TurnRequest, onChunk func(StreamEvent)) error {
	call := c.Start(ctx, req, Callbacks{OnChunk: onChunk})
	return call.Wait()
}

func (c *Client) newRequest(ctx context.Context, req TurnRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/turn", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create turn request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	return httpReq, nil
}
