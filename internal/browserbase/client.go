// Package browserbase manages hosted browser sessions: the Browserbase REST
// API for the session lifecycle and chromedp for driving a session's page.
package browserbase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opensuperagent/superagent/internal/httpx"
)

// APIURL is the default REST base.
const APIURL = "https://api.browserbase.com/v1"

// Session statuses.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
	StatusTimedOut  = "TIMED_OUT"
)

// ErrMissingID is returned for blank session ids.
var ErrMissingID = errors.New("session id is required")

// Session mirrors the Browserbase session object.
type Session struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Status     string    `json:"status"`
	Region     string    `json:"region,omitempty"`
	ConnectURL string    `json:"connectUrl,omitempty"`
	KeepAlive  bool      `json:"keepAlive,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CreateRequest configures a new session.
type CreateRequest struct {
	Region    string `json:"region,omitempty"`
	KeepAlive bool   `json:"keepAlive,omitempty"`
	// Timeout is the session lifetime in seconds.
	Timeout int `json:"timeout,omitempty"`
}

// DebugPage is one open page of a session.
type DebugPage struct {
	ID                    string `json:"id"`
	URL                   string `json:"url"`
	Title                 string `json:"title"`
	DebuggerURL           string `json:"debuggerUrl"`
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
}

// DebugURLs are the live-view endpoints of a session.
type DebugURLs struct {
	DebuggerURL           string      `json:"debuggerUrl"`
	DebuggerFullscreenURL string      `json:"debuggerFullscreenUrl"`
	WSURL                 string      `json:"wsUrl"`
	Pages                 []DebugPage `json:"pages"`
}

// Client talks to the Browserbase REST API.
type Client struct {
	APIKey    string
	ProjectID string
	BaseURL   string
	Doer      httpx.Doer
	Retry     httpx.Retry
}

func (c Client) api() httpx.Client {
	return httpx.Client{
		Vendor: "browserbase",
		Doer:   c.Doer,
		Header: http.Header{"X-BB-API-Key": {c.APIKey}},
		Retry:  c.Retry,
	}
}

func (c Client) url(parts ...string) string {
	base := c.BaseURL
	if base == "" {
		base = APIURL
	}
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, strings.TrimSuffix(base, "/"))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

// CreateSession starts a new browser session in the configured project.
func (c Client) CreateSession(ctx context.Context, req CreateRequest) (Session, error) {
	body := struct {
		ProjectID string `json:"projectId"`
		CreateRequest
	}{ProjectID: c.ProjectID, CreateRequest: req}

	var s Session
	err := c.api().JSON(ctx, http.MethodPost, c.url("sessions"), body, &s)
	return s, err
}

// GetSession returns a session by id.
func (c Client) GetSession(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrMissingID
	}
	var s Session
	err := c.api().JSON(ctx, http.MethodGet, c.url("sessions", id), nil, &s)
	return s, err
}

// ListSessions lists sessions, optionally filtered by status.
func (c Client) ListSessions(ctx context.Context, status string) ([]Session, error) {
	u := c.url("sessions")
	if status != "" {
		u += "?" + url.Values{"status": {status}}.Encode()
	}
	var out []Session
	err := c.api().JSON(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

// DebugURLs returns the live-view URLs of a running session.
func (c Client) DebugURLs(ctx context.Context, id string) (DebugURLs, error) {
	if strings.TrimSpace(id) == "" {
		return DebugURLs{}, ErrMissingID
	}
	var d DebugURLs
	err := c.api().JSON(ctx, http.MethodGet, c.url("sessions", id, "debug"), nil, &d)
	return d, err
}

// Release asks Browserbase to end the session.
func (c Client) Release(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrMissingID
	}
	body := map[string]string{"status": "REQUEST_RELEASE", "projectId": c.ProjectID}
	var s Session
	err := c.api().JSON(ctx, http.MethodPost, c.url("sessions", id), body, &s)
	return s, err
}
