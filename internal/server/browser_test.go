package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/browserbase"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/tools"
)

type fakeBrowser struct {
	mu         sync.Mutex
	connectURL string
	status     string
	released   []string
}

func (f *fakeBrowser) CreateSession(_ context.Context, req browserbase.CreateRequest) (browserbase.Session, error) {
	return browserbase.Session{ID: "sess-1", Status: browserbase.StatusRunning, Region: req.Region, ConnectURL: f.connectURL}, nil
}

func (f *fakeBrowser) GetSession(_ context.Context, id string) (browserbase.Session, error) {
	if id != "sess-1" {
		return browserbase.Session{}, &httpx.StatusError{Vendor: "browserbase", StatusCode: http.StatusNotFound}
	}
	f.mu.Lock()
	status := f.status
	f.mu.Unlock()
	if status == "" {
		status = browserbase.StatusRunning
	}
	return browserbase.Session{ID: id, Status: status, ConnectURL: f.connectURL}, nil
}

func (f *fakeBrowser) setStatus(status string) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeBrowser) ListSessions(_ context.Context, status string) ([]browserbase.Session, error) {
	if status != browserbase.StatusRunning {
		return nil, nil
	}
	return []browserbase.Session{{ID: "sess-1", Status: status}}, nil
}

func (f *fakeBrowser) DebugURLs(_ context.Context, id string) (browserbase.DebugURLs, error) {
	return browserbase.DebugURLs{DebuggerURL: "https://debug/" + id}, nil
}

func (f *fakeBrowser) Release(_ context.Context, id string) (browserbase.Session, error) {
	f.mu.Lock()
	f.released = append(f.released, id)
	f.mu.Unlock()
	return browserbase.Session{ID: id, Status: browserbase.StatusCompleted}, nil
}

type closedPages struct {
	tools.Pages
	mu     sync.Mutex
	closed []string
}

func (p *closedPages) Close(id string) {
	p.mu.Lock()
	p.closed = append(p.closed, id)
	p.mu.Unlock()
}

func TestBrowserSessions(t *testing.T) {
	browser := &fakeBrowser{connectURL: "wss://connect/sess-1"}
	pages := &closedPages{}
	s := newTestServer(t, testConfig(), Options{Browser: browser, Pages: pages})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/browser/sessions", `{"region":"us-west-2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeBody[tools.SessionView](t, rec)
	require.Equal(t, "sess-1", view.ID)
	require.Equal(t, "us-west-2", view.Region)
	require.Equal(t, "https://debug/sess-1", view.DebuggerURL)

	rec = do(t, h, http.MethodGet, "/api/browser/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]browserbase.Session](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/browser/sessions?status=ERROR", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/browser/sessions/sess-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://debug/sess-1", decodeBody[tools.SessionView](t, rec).DebuggerURL)

	rec = do(t, h, http.MethodGet, "/api/browser/sessions/ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/browser/sessions/sess-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, browserbase.StatusCompleted, decodeBody[browserbase.Session](t, rec).Status)
	require.Equal(t, []string{"sess-1"}, browser.released)
	require.Equal(t, []string{"sess-1"}, pages.closed)
}

func TestLiveSession(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, append([]byte("cdp:"), msg...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(upstream.Close)

	browser := &fakeBrowser{connectURL: "ws" + strings.TrimPrefix(upstream.URL, "http")}
	s := newTestServer(t, testConfig(), Options{Browser: browser})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/browser/sessions/"

	conn, _, err := websocket.DefaultDialer.Dial(base+"sess-1/live", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"Page.enable"}`)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	require.Equal(t, `cdp:{"id":1,"method":"Page.enable"}`, string(msg))

	t.Run("session not running", func(t *testing.T) {
		browser.setStatus(browserbase.StatusTimedOut)
		t.Cleanup(func() { browser.setStatus("") })

		_, resp, err := websocket.DefaultDialer.Dial(base+"sess-1/live", nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
