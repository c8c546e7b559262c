package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/errs"
)

func TestClientJSONRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("X-Key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	c := Client{
		Vendor: "acme",
		Doer:   srv.Client(),
		Header: http.Header{"X-Key": {"secret"}},
		Retry:  Retry{Attempts: 2, Delay: time.Millisecond},
	}
	var out struct{ OK bool }
	require.NoError(t, c.JSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"a": "b"}, &out))
	require.True(t, out.OK)
	require.EqualValues(t, 3, hits.Load())
}

func TestClientJSONGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := Client{Vendor: "acme", Doer: srv.Client(), Retry: Retry{Attempts: 1, Delay: time.Millisecond}}
	err := c.JSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusTooManyRequests, serr.StatusCode)
	require.EqualValues(t, 2, hits.Load())
	require.Equal(t, errs.KindUnavailable, errs.KindOf(Classify(err, "acme failed")))
}

func TestClientJSONDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := Client{Vendor: "acme", Doer: srv.Client(), Retry: Retry{Attempts: 3, Delay: time.Millisecond}}
	err := c.JSON(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.ErrorContains(t, err, "acme 401: bad key")
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, errs.KindUpstream, errs.KindOf(Classify(err, "acme failed")))
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil, "x"))
	require.Equal(t, errs.KindNotFound, errs.KindOf(Classify(&StatusError{StatusCode: 404}, "x")))
	require.Equal(t, errs.KindUpstream, errs.KindOf(Classify(errors.New("dial tcp"), "x")))
	require.Equal(t, errs.KindUnavailable, errs.KindOf(Classify(context.DeadlineExceeded, "x")))
	require.Equal(t, errs.KindInvalid, errs.KindOf(Classify(errs.Invalid(errors.New("bad"), "bad"), "x")))
}
