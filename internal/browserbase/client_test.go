package browserbase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bb-key", r.Header.Get("X-BB-API-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "proj-1", body["projectId"])
		require.Equal(t, true, body["keepAlive"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"sess-1","projectId":"proj-1","status":"RUNNING","connectUrl":"wss://connect.example/?sessionId=sess-1","createdAt":"2025-01-02T03:04:05Z"}`))
	})
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "RUNNING", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[{"id":"sess-1","status":"RUNNING"},{"id":"sess-2","status":"RUNNING"}]`))
	})
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "sess-1" {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"sess-1","status":"RUNNING"}`))
	})
	mux.HandleFunc("GET /sessions/{id}/debug", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"debuggerUrl":"https://dbg/1","debuggerFullscreenUrl":"https://dbg/1/full","wsUrl":"wss://dbg/1","pages":[{"id":"p1","url":"https://go.dev","title":"Go"}]}`))
	})
	mux.HandleFunc("POST /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{"status": "REQUEST_RELEASE", "projectId": "proj-1"}, body)
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","status":"COMPLETED"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLifecycle(t *testing.T) {
	srv := newAPI(t)
	c := Client{APIKey: "bb-key", ProjectID: "proj-1", BaseURL: srv.URL, Doer: srv.Client()}
	ctx := context.Background()

	s, err := c.CreateSession(ctx, CreateRequest{KeepAlive: true})
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, StatusRunning, s.Status)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), s.CreatedAt)

	list, err := c.ListSessions(ctx, StatusRunning)
	require.NoError(t, err)
	require.Len(t, list, 2)

	got, err := c.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.ID)

	dbg, err := c.DebugURLs(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "https://dbg/1/full", dbg.DebuggerFullscreenURL)
	require.Equal(t, "Go", dbg.Pages[0].Title)

	released, err := c.Release(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, released.Status)
}

func TestClientErrors(t *testing.T) {
	srv := newAPI(t)
	c := Client{APIKey: "bb-key", ProjectID: "proj-1", BaseURL: srv.URL, Doer: srv.Client()}

	_, err := c.GetSession(context.Background(), "  ")
	require.ErrorIs(t, err, ErrMissingID)

	_, err = c.GetSession(context.Background(), "missing")
	require.ErrorContains(t, err, "browserbase 404")
}

func TestPages(t *testing.T) {
	var dialed []string
	ps := NewPages(time.Second)
	ps.dial = func(connectURL string, timeout time.Duration) *Page {
		dialed = append(dialed, connectURL)
		ctx, cancel := context.WithCancel(context.Background())
		return &Page{ctx: ctx, cancel: cancel, timeout: timeout}
	}

	_, err := ps.Get("", "wss://x")
	require.ErrorIs(t, err, ErrMissingID)
	_, err = ps.Get("sess-1", "")
	require.EqualError(t, err, "session sess-1 has no connect url")

	p1, err := ps.Get("sess-1", "wss://one")
	require.NoError(t, err)
	p2, err := ps.Get("sess-1", "")
	require.NoError(t, err)
	require.Same(t, p1, p2)
	require.True(t, ps.Has("sess-1"))

	ps.Close("sess-1")
	require.False(t, ps.Has("sess-1"))
	require.Error(t, p1.ctx.Err())

	_, err = ps.Get("sess-2", "wss://two")
	require.NoError(t, err)
	ps.CloseAll()
	require.False(t, ps.Has("sess-2"))
	require.Equal(t, []string{"wss://one", "wss://two"}, dialed)
}

func stubPage(timeout time.Duration, open func(context.Context) error) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{ctx: ctx, cancel: cancel, timeout: timeout, open: open}
}

func TestPageConnectFailureRedials(t *testing.T) {
	var dials atomic.Int32
	ps := NewPages(time.Second)
	ps.dial = func(_ string, timeout time.Duration) *Page {
		n := dials.Add(1)
		return stubPage(timeout, func(context.Context) error {
			if n == 1 {
				return errors.New("connection refused")
			}
			return nil
		})
	}

	p1, err := ps.Get("sess-1", "wss://one")
	require.NoError(t, err)
	_, err = p1.Navigate(context.Background(), "https://go.dev")
	require.EqualError(t, err, "browser connect: connection refused")
	require.False(t, ps.Has("sess-1"))
	require.Error(t, p1.ctx.Err())

	p2, err := ps.Get("sess-1", "wss://one")
	require.NoError(t, err)
	require.NotSame(t, p1, p2)
	require.NoError(t, p2.connect(context.Background()))
	require.NoError(t, p2.connect(context.Background()))
	require.True(t, ps.Has("sess-1"))
	require.Equal(t, int32(2), dials.Load())
}

func TestPageConnectTimeout(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	t.Run("page timeout", func(t *testing.T) {
		ps := NewPages(20 * time.Millisecond)
		ps.dial = func(_ string, timeout time.Duration) *Page { return stubPage(timeout, hang) }
		p, err := ps.Get("sess-1", "wss://one")
		require.NoError(t, err)

		err = p.connect(context.Background())
		require.EqualError(t, err, "browser connect: timed out after 20ms")
		require.False(t, ps.Has("sess-1"))
	})

	t.Run("caller cancels", func(t *testing.T) {
		ps := NewPages(time.Minute)
		ps.dial = func(_ string, timeout time.Duration) *Page { return stubPage(timeout, hang) }
		p, err := ps.Get("sess-1", "wss://one")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		err = p.connect(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Less(t, time.Since(start), 10*time.Second)
		require.False(t, ps.Has("sess-1"))
	})
}

func TestScreenshotMIMEType(t *testing.T) {
	require.Equal(t, "image/png", ScreenshotMIMEType(100))
	require.Equal(t, "image/jpeg", ScreenshotMIMEType(99))
	require.Equal(t, "image/jpeg", ScreenshotMIMEType(0))
	require.Equal(t, "image/jpeg", ScreenshotMIMEType(250))
}
