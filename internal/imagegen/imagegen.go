// Package imagegen generates images through OpenAI, Gemini or fal.ai.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fal"
	"github.com/opensuperagent/superagent/internal/httpx"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderFal    = "fal"
)

// ErrVisibilityCheck is reported when Gemini rejects a prompt with its
// transient "Visibility check" failure.
var ErrVisibilityCheck = errors.New("gemini visibility check failed")

// ErrNoImage is returned when a provider answered without any image.
var ErrNoImage = errors.New("no image returned")

// ErrEmptyPrompt is returned for blank prompts.
var ErrEmptyPrompt = errors.New("prompt is required")

// ErrUnknownProvider is returned when the requested provider is not
// configured.
var ErrUnknownProvider = errors.New("image provider is not configured")

// Request is an image generation request.
type Request struct {
	Prompt string `json:"prompt"`
	// Size is WIDTHxHEIGHT, e.g. 1024x1024.
	Size string `json:"size,omitempty"`
	N    int    `json:"n,omitempty"`
}

// Image is one generated image; exactly one of URL and B64 is set.
type Image struct {
	URL      string `json:"url,omitempty"`
	B64      string `json:"b64,omitempty"`
	MIMEType string `json:"mimeType"`
}

// Result is the outcome of a generation.
type Result struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Images        []Image `json:"images"`
	RevisedPrompt string  `json:"revisedPrompt,omitempty"`
	Text          string  `json:"text,omitempty"`
}

// Generator generates images.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

func (r Request) validate() (Request, error) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" {
		return r, ErrEmptyPrompt
	}
	if r.N < 1 {
		r.N = 1
	}
	if r.N > 4 {
		r.N = 4
	}
	if r.Size == "" {
		r.Size = "1024x1024"
	}
	return r, nil
}

// IsRetryable reports whether err is a transient provider failure the
// caller should retry: Gemini visibility checks, fal queue timeouts, rate
// limits and unavailable upstreams.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fal.ErrTimeout) {
		return true
	}
	if errors.Is(err, ErrVisibilityCheck) || strings.Contains(err.Error(), "Visibility check") {
		return true
	}
	var serr *httpx.StatusError
	if errors.As(err, &serr) {
		return serr.Retryable()
	}
	if code, ok := apiErrorCode(err); ok {
		return slices.Contains([]int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable}, code)
	}
	return false
}

// Classify tags err for transport: bad requests are invalid, retryable
// failures unavailable, everything else an upstream failure.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrUnknownProvider):
		return errs.Invalid(err, "Invalid image request.")
	case IsRetryable(err):
		return errs.Unavailable(err, "Image generation is temporarily unavailable, please retry.")
	}
	return httpx.Classify(err, "Image generation failed.")
}

func apiErrorCode(err error) (int, bool) {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode, true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// Set dispatches to the configured generators by provider name.
type Set struct {
	Default    string
	Generators map[string]Generator
}

// Providers lists configured provider names.
func (s Set) Providers() []string {
	names := make([]string, 0, len(s.Generators))
	for name := range s.Generators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Generate runs req on provider, or on the default provider when empty.
func (s Set) Generate(ctx context.Context, provider string, req Request) (Result, error) {
	if provider == "" {
		provider = s.Default
	}
	if provider == "" {
		if names := s.Providers(); len(names) > 0 {
			provider = names[0]
		}
	}
	g, ok := s.Generators[provider]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, provider, strings.Join(s.Providers(), ", "))
	}
	return g.Generate(ctx, req)
}
