// ABOUTME: HTTP client for the conversation API's request/response operations.
// ABOUTME: Session CRUD, send-and-wait, and the health probe.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

// DefaultTimeout bounds a single request/response call. Send-and-wait blocks
// on model inference server-side, so this is generous.
const DefaultTimeout = 2 * time.Minute

// Client is a thin HTTP client for the conversation API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the API at baseURL (e.g. "http://localhost:8000").
// The bearer token is attached to every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetHTTPClient replaces the underlying HTTP client (used by tests).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// historyResponse wraps the session list returned by the history endpoint.
type historyResponse struct {
	Sessions []chat.Session `json:"sessions"`
}

// SendResult is the response to a send-and-wait call.
type SendResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// errorBody is the server's error payload shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// History lists the caller's sessions, most recently updated first.
func (c *Client) History(ctx context.Context) ([]chat.Session, error) {
	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, "/chat/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CreateSession creates a new session with an optional title.
func (c *Client) CreateSession(ctx context.Context, title string) (*chat.Session, error) {
	body := map[string]any{"title": nil}
	if title != "" {
		body["title"] = title
	}

	var session chat.Session
	if err := c.do(ctx, http.MethodPost, "/chat/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a session including its full message log.
func (c *Client) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	var session chat.Session
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession changes a session's title.
func (c *Client) UpdateSession(ctx context.Context, id, title string) (*chat.Session, error) {
	var session chat.Session
	body := map[string]any{"title": title}
	if err := c.do(ctx, http.MethodPut, "/chat/sessions/"+id, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session and its log.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chat/sessions/"+id, nil, nil)
}

// SendMessage performs the synchronous send-and-wait call. A nil sessionID
// asks the server to create a session; the assigned id comes back in the
// result.
func (c *Client) SendMessage(ctx context.Context, text string, sessionID *string) (*SendResult, error) {
	body := map[string]any{
		"message":    text,
		"session_id": sessionID,
	}

	var result SendResult
	if err := c.do(ctx, http.MethodPost, "/chat/message", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health probes the API. A nil return means the request/response path is
// usable even when the push channel is not.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do executes one request and decodes the response into result (if non-nil).
// Non-2xx responses become a *chat.RequestError carrying the server's detail.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &chat.RequestError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &chat.RequestError{Status: resp.StatusCode, Detail: "reading response body"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if err := json.Unmarshal(data, &eb); err != nil || eb.Detail == "" {
			eb.Detail = http.StatusText(resp.StatusCode)
		}
		return &chat.RequestError{Status: resp.StatusCode, Detail: eb.Detail}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
