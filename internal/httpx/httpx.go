// Package httpx is the shared JSON-over-HTTP plumbing of the vendor clients:
// request construction, status handling and fixed-delay retries.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opensuperagent/superagent/internal/errs"
)

const maxBody = 16 << 20

// Doer sends HTTP requests. *http.Client satisfies it; tests inject fakes.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is a non-2xx vendor response.
type StatusError struct {
	Vendor     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Vendor, e.StatusCode, Truncate(e.Body, 300))
}

// Retryable reports whether the vendor signalled a transient failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Retry is a fixed-delay, fixed-count retry policy. Attempts counts retries
// after the first try.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

func (r Retry) backoff(ctx context.Context) backoff.BackOff {
	attempts := r.Attempts
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Delay), uint64(attempts)),
		ctx,
	)
}

// Do runs op under the policy. Errors wrapped by Permanent stop retrying.
func (r Retry) Do(ctx context.Context, op func() error) error {
	return backoff.Retry(op, r.backoff(ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Client sends JSON requests to one vendor API.
type Client struct {
	Vendor string
	Doer   Doer
	Header http.Header
	Retry  Retry
}

// JSON sends in (when non-nil) as the JSON body and decodes a 2xx response
// into out (when non-nil). Transient failures are retried.
func (c Client) JSON(ctx context.Context, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.Vendor, err)
		}
		payload = b
	}

	body, err := c.send(ctx, method, url, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Vendor, err)
	}
	return nil
}

func (c Client) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	doer := c.Doer
	if doer == nil {
		doer = &http.Client{Timeout: 60 * time.Second}
	}

	var body []byte
	err := c.Retry.Do(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return Permanent(fmt.Errorf("%s: build request: %w", c.Vendor, err))
		}
		for k, vs := range c.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := doer.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Permanent(ctx.Err())
			}
			return fmt.Errorf("%s: %w", c.Vendor, err)
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return fmt.Errorf("%s: read response: %w", c.Vendor, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &StatusError{Vendor: c.Vendor, StatusCode: resp.StatusCode, Body: string(b)}
			if serr.Retryable() {
				return serr
			}
			return Permanent(serr)
		}
		body = b
		return nil
	})
	return body, err
}

// Classify attaches a transport kind to a vendor error: retryable statuses
// become unavailable, other statuses and transport failures upstream.
func Classify(err error, reason string) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Unavailable(err, reason)
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		if serr.Retryable() {
			return errs.Unavailable(err, reason)
		}
		if serr.StatusCode == http.StatusNotFound {
			return errs.NotFound(err, reason)
		}
		return errs.Upstream(err, reason)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errs.Upstream(err, reason)
}

// Truncate shortens s to at most n bytes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
