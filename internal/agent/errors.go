package agent

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"charm.land/fantasy"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
)

// StreamErrorAction describes how a failed stream start should be handled.
type StreamErrorAction struct {
	Retry         bool
	Prompt        string
	ModelOverride string
	Err           errs.Error
}

// ActionForStreamError decides whether a provider error should be retried,
// and if so with which prompt and model.
func (s *Service) ActionForStreamError(err error, mod config.Model, prompt string) StreamErrorAction {
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return s.actionForProviderError(providerErr, mod, prompt)
	}
	var e errs.Error
	if errors.As(err, &e) {
		return StreamErrorAction{Err: e}
	}
	return StreamErrorAction{
		Err: errs.Upstream(err, fmt.Sprintf("There was a problem with the %s API request.", mod.API)),
	}
}

func (s *Service) actionForProviderError(err *fantasy.ProviderError, mod config.Model, prompt string) StreamErrorAction {
	reason := func(fallback string) string {
		if r := fantasy.ErrorTitleForStatusCode(err.StatusCode); r != "" {
			return r
		}
		return fallback
	}

	switch err.StatusCode {
	case http.StatusNotFound:
		if mod.Fallback != "" {
			return StreamErrorAction{
				Retry:         true,
				Prompt:        prompt,
				ModelOverride: mod.Fallback,
				Err:           errs.Upstream(err, reason(fmt.Sprintf("%s API server error.", mod.API))),
			}
		}
		return StreamErrorAction{
			Err: errs.Invalid(err, fmt.Sprintf("Missing model '%s' for API '%s'.", mod.Name, mod.API)),
		}

	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			pe := errs.Invalid(err, "Maximum prompt size exceeded.")
			if s.cfg.NoLimit {
				return StreamErrorAction{Err: pe}
			}
			return StreamErrorAction{Retry: true, Prompt: cutPrompt(err.Error(), prompt), Err: pe}
		}
		return StreamErrorAction{Err: errs.Invalid(err, reason(fmt.Sprintf("%s API request error.", mod.API)))}

	case http.StatusUnauthorized, http.StatusForbidden:
		return StreamErrorAction{Err: errs.Upstream(err, fmt.Sprintf("%s rejected the API key.", mod.API))}
	}

	if err.IsRetryable() {
		return StreamErrorAction{
			Retry:  true,
			Prompt: prompt,
			Err:    errs.Unavailable(err, reason("Retryable API error.")),
		}
	}
	return StreamErrorAction{Err: errs.Upstream(err, reason(fmt.Sprintf("%s API request error.", mod.API)))}
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}

var tokenErrRe = regexp.MustCompile(`This model's maximum context length is (\d+) tokens. However, your messages resulted in (\d+) tokens`)

// cutPrompt shortens prompt by the number of tokens the provider reported
// as excess, estimating four characters per token.
func cutPrompt(msg, prompt string) string {
	found := tokenErrRe.FindStringSubmatch(msg)
	if len(found) != 3 { //nolint:mnd
		return prompt
	}

	maxt, _ := strconv.Atoi(found[1])
	current, _ := strconv.Atoi(found[2])
	if maxt > current {
		return prompt
	}

	reduceBy := 10 + (current-maxt)*4 //nolint:mnd
	if len(prompt) > reduceBy {
		return strings.ToValidUTF8(prompt[:len(prompt)-reduceBy], "")
	}
	return prompt
}
