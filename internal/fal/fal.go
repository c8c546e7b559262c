// Package fal is a client for the fal.ai queue API used for image and video
// generation jobs.
package fal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensuperagent/superagent/internal/httpx"
)

// QueueURL is the default queue endpoint.
const QueueURL = "https://queue.fal.run"

// Job statuses reported by the queue.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusError      = "ERROR"
)

var (
	// ErrJobFailed is returned when the queue reports an ERROR status.
	ErrJobFailed = errors.New("fal job failed")
	// ErrTimeout is returned when a job does not complete in time.
	ErrTimeout = errors.New("fal job timed out")
)

// Job identifies a submitted request.
type Job struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// Status is a polled job status.
type Status struct {
	Status        string          `json:"status"`
	QueuePosition int             `json:"queue_position,omitempty"`
	Error         string          `json:"error,omitempty"`
	Logs          json.RawMessage `json:"logs,omitempty"`
}

// Client talks to the fal queue.
type Client struct {
	Key          string
	BaseURL      string
	Doer         httpx.Doer
	Retry        httpx.Retry
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (c Client) api() httpx.Client {
	return httpx.Client{
		Vendor: "fal",
		Doer:   c.Doer,
		Header: http.Header{"Authorization": {"Key " + c.Key}},
		Retry:  c.Retry,
	}
}

func (c Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return QueueURL
}

// Submit enqueues input for model.
func (c Client) Submit(ctx context.Context, model string, input any) (Job, error) {
	var job Job
	if err := c.api().JSON(ctx, http.MethodPost, c.base()+"/"+strings.Trim(model, "/"), input, &job); err != nil {
		return job, err
	}
	if job.RequestID == "" {
		return job, errors.New("fal: queue returned no request id")
	}
	if job.StatusURL == "" {
		job.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.base(), modelApp(model), job.RequestID)
	}
	if job.ResponseURL == "" {
		job.ResponseURL = fmt.Sprintf("%s/%s/requests/%s", c.base(), modelApp(model), job.RequestID)
	}
	return job, nil
}

// Status polls the job once.
func (c Client) Status(ctx context.Context, job Job) (Status, error) {
	var st Status
	err := c.api().JSON(ctx, http.MethodGet, job.StatusURL, nil, &st)
	return st, err
}

// Result fetches the output of a completed job into out.
func (c Client) Result(ctx context.Context, job Job, out any) error {
	return c.api().JSON(ctx, http.MethodGet, job.ResponseURL, nil, out)
}

// Wait polls job at a fixed interval until it completes, fails or the poll
// timeout elapses.
func (c Client) Wait(ctx context.Context, job Job) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := c.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, job)
		switch {
		case ctx.Err() != nil:
			return c.waitErr(ctx, job)
		case err != nil:
			return err
		case st.Status == StatusCompleted:
			return nil
		case st.Status == StatusError:
			if st.Error != "" {
				return fmt.Errorf("%w: %s", ErrJobFailed, st.Error)
			}
			return ErrJobFailed
		}

		select {
		case <-ctx.Done():
			return c.waitErr(ctx, job)
		case <-ticker.C:
		}
	}
}

func (c Client) waitErr(ctx context.Context, job Job) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: request %s", ErrTimeout, job.RequestID)
	}
	return ctx.Err()
}

// Run submits input, waits for completion and decodes the result into out.
func (c Client) Run(ctx context.Context, model string, input, out any) (Job, error) {
	job, err := c.Submit(ctx, model, input)
	if err != nil {
		return job, err
	}
	if err := c.Wait(ctx, job); err != nil {
		return job, err
	}
	return job, c.Result(ctx, job, out)
}

// modelApp returns the owner/app prefix of a model id, which is what the
// queue's request endpoints are keyed by.
func modelApp(model string) string {
	parts := strings.Split(strings.Trim(model, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// File is a generated media file.
type File struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ImageOutput is the output shape of fal image models.
type ImageOutput struct {
	Images []File `json:"images"`
	Seed   int64  `json:"seed,omitempty"`
}

// VideoOutput is the output shape of fal video models.
type VideoOutput struct {
	Video File `json:"video"`
}
