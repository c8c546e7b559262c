package agent

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"charm.land/fantasy"
	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
)

var cutPromptTests = map[string]struct {
	msg      string
	prompt   string
	expected string
}{
	"bad error": {
		msg:      "nope",
		prompt:   "the prompt",
		expected: "the prompt",
	},
	"crazy error": {
		msg:      tokenErrMsg(10, 93),
		prompt:   "the prompt",
		expected: "the prompt",
	},
	"cut prompt": {
		msg:      tokenErrMsg(10, 3),
		prompt:   "this is a long prompt I have no idea if its really 10 tokens",
		expected: "this is a long prompt ",
	},
	"missmatch of token estimation vs api result": {
		msg:      tokenErrMsg(30000, 100),
		prompt:   "tell me a joke",
		expected: "tell me a joke",
	},
}

func tokenErrMsg(l, ml int) string {
	return fmt.Sprintf(
		`This model's maximum context length is %d tokens. However, your messages resulted in %d tokens`,
		ml,
		l,
	)
}

func TestCutPrompt(t *testing.T) {
	for name, tc := range cutPromptTests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, cutPrompt(tc.msg, tc.prompt))
		})
	}
}

func TestActionForStreamError(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, nil)
	mod := config.Model{Name: "gpt-4o", API: "openai", Fallback: "gpt-4o-mini"}

	t.Run("missing model falls back", func(t *testing.T) {
		act := s.ActionForStreamError(&fantasy.ProviderError{StatusCode: http.StatusNotFound}, mod, "hi")
		require.True(t, act.Retry)
		require.Equal(t, "gpt-4o-mini", act.ModelOverride)
		require.Equal(t, "hi", act.Prompt)
	})

	t.Run("missing model without fallback", func(t *testing.T) {
		act := s.ActionForStreamError(&fantasy.ProviderError{StatusCode: http.StatusNotFound}, config.Model{Name: "gpt-5", API: "openai"}, "hi")
		require.False(t, act.Retry)
		require.Equal(t, errs.KindInvalid, act.Err.Kind)
		require.Equal(t, "Missing model 'gpt-5' for API 'openai'.", act.Err.Reason)
	})

	t.Run("context length cuts the prompt", func(t *testing.T) {
		err := &fantasy.ProviderError{
			StatusCode: http.StatusBadRequest,
			Message:    "context_length_exceeded: " + tokenErrMsg(10, 3),
		}
		act := s.ActionForStreamError(err, mod, "this is a long prompt I have no idea if its really 10 tokens")
		require.True(t, act.Retry)
		require.Equal(t, "Maximum prompt size exceeded.", act.Err.Reason)
	})

	t.Run("rate limits are retried", func(t *testing.T) {
		act := s.ActionForStreamError(&fantasy.ProviderError{StatusCode: http.StatusTooManyRequests}, mod, "hi")
		require.True(t, act.Retry)
		require.Equal(t, errs.KindUnavailable, act.Err.Kind)
	})

	t.Run("bad keys are not retried", func(t *testing.T) {
		act := s.ActionForStreamError(&fantasy.ProviderError{StatusCode: http.StatusUnauthorized}, mod, "hi")
		require.False(t, act.Retry)
		require.Equal(t, "openai rejected the API key.", act.Err.Reason)
	})

	t.Run("other errors", func(t *testing.T) {
		act := s.ActionForStreamError(errors.New("connection reset"), mod, "hi")
		require.False(t, act.Retry)
		require.Equal(t, errs.KindUpstream, act.Err.Kind)
		require.Equal(t, "There was a problem with the openai API request.", act.Err.Reason)
	})
}
