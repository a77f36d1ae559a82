// Package api implements the HTTP client for the RansomNegotiator backend.
// Identity rides on ambient session cookies; every mutating request also
// carries the signing token in the X-CSRFToken header or the backend rejects
// it. Exact paths live here and nowhere else.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// LoginPath is the prefix of the external login surface. The bootstrap
	// redirect guard checks against it to avoid redirect loops.
	LoginPath = "/accounts/"

	defaultTimeout = 30 * time.Second
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend origin, e.g. http://localhost:8000.
	BaseURL string
	// Timeout bounds each individual request. Zero means the default.
	Timeout time.Duration
}

// Client talks to the backend HTTP surface. Safe for use from multiple
// goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string // signing token, set after bootstrap
}

// New creates a client. The cookie jar is mandatory: the backend identifies
// the operator by session cookie, not by the signing token.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL required")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// SetToken records the signing token attached to subsequent mutating calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current signing token, or "" before bootstrap.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginURL returns the external login surface for redirecting an
// unauthenticated operator.
func (c *Client) LoginURL() string {
	return c.baseURL + LoginPath + "login/"
}

// LogoutURL returns the backend logout endpoint.
func (c *Client) LogoutURL() string {
	return c.baseURL + LoginPath + "logout/"
}

// BackendError is a well-formed error response from the backend, as opposed
// to a transport failure.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// do issues a request and decodes the JSON response into out (unless out is
// nil). Mutating methods get the X-CSRFToken header. Non-2xx responses are
// surfaced as *BackendError with the backend's error text when present.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRFToken", c.Token())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &errBody)
		return &BackendError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// =============================================================================
// AUTH SURFACE
// =============================================================================

// FetchToken acquires a signing token from the token issuance endpoint.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/accounts/csrf", nil, &out); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", fmt.Errorf("backend returned an empty signing token")
	}
	return out.CSRFToken, nil
}

// AuthStatus reports whether the ambient session cookie is authenticated.
func (c *Client) AuthStatus(ctx context.Context) (bool, error) {
	var out struct {
		IsLoggedIn bool `json:"isLoggedIn"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/accounts/status", nil, &out); err != nil {
		return false, err
	}
	return out.IsLoggedIn, nil
}

// Profile is the operator identity payload from the profile endpoint.
type Profile struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"isAdmin"`
	HasAPIKey bool   `json:"hasApiKey"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
}

// Me fetches the operator profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/api/accounts/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout hits the backend logout endpoint, invalidating the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, LoginPath+"logout/", nil, nil)
}

// =============================================================================
// GROUPS
// =============================================================================

// Group is one available negotiation counterparty. Size is the byte size of
// its behaviour corpus, used purely for display.
type Group struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Groups fetches the counterparty catalog.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/groups", nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// =============================================================================
// CHAT SESSIONS
// =============================================================================

// ChatSummary is one catalog row from the list/search endpoints.
type ChatSummary struct {
	ID              string `json:"id"`
	GroupName       string `json:"group_name"`
	Title           string `json:"title"`
	MessageCount    int    `json:"message_count"`
	FirstMessage    string `json:"first_message"`
	LastMessage     string `json:"last_message"`
	MatchingContext string `json:"matching_context,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// ListChats fetches the full session catalog.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var out struct {
		Chats []ChatSummary `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// SearchChats fetches catalog rows whose messages match the query.
func (c *Client) SearchChats(ctx context.Context, query string) ([]ChatSummary, error) {
	var out struct {
		Chats []ChatSummary `json:"chats"`
	}
	path := "/api/chats/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// ChatMessage is one stored transcript entry in a full session record.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ChatRecord is a full session record: config plus message history.
type ChatRecord struct {
	ID        string        `json:"id"`
	GroupName string        `json:"group_name"`
	APIKey    string        `json:"api_key"`
	BaseURL   string        `json:"base_url"`
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt string        `json:"created_at"`
}

// GetChat fetches a full session record.
func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatRecord, error) {
	var out ChatRecord
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChat requests deletion of a session.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+chatID+"/delete", nil, nil)
}

// InitRequest creates a new persisted session.
type InitRequest struct {
	GroupName   string `json:"group_name"`
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	SaveSession bool   `json:"save_session"`
	CompanyName string `json:"company_name,omitempty"`
	Revenue     string `json:"revenue,omitempty"`
}

// InitResponse carries the new session id and the opening assistant message.
type InitResponse struct {
	SessionID      string `json:"session_id"`
	WelcomeMessage string `json:"welcome_message"`
	Group          string `json:"group"`
	Revenue        string `json:"revenue"`
	CompanyName    string `json:"company_name"`
}

// InitChat creates a new session server-side.
func (c *Client) InitChat(ctx context.Context, req InitRequest) (*InitResponse, error) {
	var out InitResponse
	if err := c.do(ctx, http.MethodPost, "/api/init", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// ASYNC MESSAGING
// =============================================================================

// HistoryEntry is a prior transcript message sent with a dispatch.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SubmitRequest dispatches one outgoing message for asynchronous processing.
type SubmitRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	APIKey    string         `json:"api_key"`
	BaseURL   string         `json:"base_url"`
	Model     string         `json:"model"`
	GroupName string         `json:"group_name"`
	Message   string         `json:"message"`
	History   []HistoryEntry `json:"history"`
}

// SubmitResponse is returned immediately by the submission endpoint. The
// session id is always populated; it differs from the request only when the
// backend minted a new session for a first send.
type SubmitResponse struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SubmitMessage queues a message and returns a task id to poll.
func (c *Client) SubmitMessage(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/async", req, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, fmt.Errorf("backend accepted the message but returned no task id")
	}
	return &out, nil
}

// Task statuses reported by the status endpoint. Anything that is not
// completed or error counts as in flight.
const (
	TaskCompleted  = "completed"
	TaskFailed     = "error"
	TaskProcessing = "processing"
	TaskWaiting    = "waiting"
	TaskQueued     = "queued"
)

// TaskStatus is one observation of a backend task.
type TaskStatus struct {
	Status    string `json:"status"`
	TaskID    string `json:"task_id"`
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Terminal reports whether the status ends the poll loop.
func (s *TaskStatus) Terminal() bool {
	return s.Status == TaskCompleted || s.Status == TaskFailed
}

// PollTask queries the status of a queued task.
func (c *Client) PollTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.do(ctx, http.MethodGet, "/api/chat/status/"+taskID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsPayload is the operator defaults record. On read the api_key may be
// a redacted placeholder; on write all fields are submitted, always.
type SettingsPayload struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// GetSettings fetches operator defaults. The credential may arrive redacted.
func (c *Client) GetSettings(ctx context.Context) (*SettingsPayload, error) {
	var out SettingsPayload
	if err := c.do(ctx, http.MethodGet, "/api/accounts/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutSettings overwrites operator defaults. Empty fields are meaningful and
// are never omitted.
func (c *Client) PutSettings(ctx context.Context, payload SettingsPayload) error {
	return c.do(ctx, http.MethodPut, "/api/accounts/settings", payload, nil)
}
