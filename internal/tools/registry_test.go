package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/metrics"
)

func echoTool(name string) Tool {
	return Tool{
		Definition: mcp.NewTool(name, mcp.WithString("text")),
		Handler: typed(func(_ context.Context, in struct {
			Text string `json:"text"`
		}) (map[string]string, error) {
			if in.Text == "boom" {
				return nil, errors.New("exploded")
			}
			return map[string]string{"echo": in.Text}, nil
		}),
	}
}

func TestRegistryCall(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(WithMetrics(m))
	r.Register(echoTool("echo"))

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"hi"}`, out)

	out, err = r.Call(context.Background(), "echo", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":""}`, out)

	_, err = r.Call(context.Background(), "echo", json.RawMessage(`{"text":"boom"}`))
	require.EqualError(t, err, "echo: exploded")

	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP tool_calls_total Tool invocations by tool and outcome.
# TYPE tool_calls_total counter
tool_calls_total{outcome="error",tool="echo"} 1
tool_calls_total{outcome="ok",tool="echo"} 2
`), "tool_calls_total"))
}

func TestRegistryRejectsUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "nope", nil)
	require.ErrorIs(t, err, ErrUnknownTool)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRegistryRejectsInvalidArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	_, err := r.Call(context.Background(), "echo", json.RawMessage(`{"text":`))
	require.ErrorIs(t, err, ErrInvalidArguments)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))

	_, err = r.Call(context.Background(), "echo", json.RawMessage(`{"text":42}`))
	require.ErrorIs(t, err, ErrInvalidArguments)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry(WithTimeout(10 * time.Millisecond))
	r.Register(Tool{
		Definition: mcp.NewTool("slow"),
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	_, err := r.Call(context.Background(), "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefinitionsAndMatch(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"web_search", "browser_click", "browser_navigate", "format_citations"} {
		r.Register(echoTool(name))
	}

	require.Equal(t, []string{"browser_click", "browser_navigate", "format_citations", "web_search"}, r.Names())
	require.Equal(t, []string{"browser_click", "browser_navigate"}, r.Names("browser_*"))
	require.Equal(t, []string{"format_citations", "web_search"}, r.Names("web_search", "format_citations"))
	require.Len(t, r.Definitions("*"), 4)
	require.Empty(t, r.Definitions("github_*"))

	defs := ToProto(r.Definitions("web_search"))
	require.Len(t, defs, 1)
	require.Equal(t, "web_search", defs[0].Name)
	require.Contains(t, defs[0].Parameters, "text")
}

func TestCallerRestrictsTools(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("web_search"))
	r.Register(echoTool("browser_click"))

	call := r.Caller(context.Background(), "web_*")
	out, err := call("web_search", []byte(`{"text":"go"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"go"}`, out)

	_, err = call("browser_click", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestStringResultsAreVerbatim(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Definition: mcp.NewTool("plain"),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return "just text", nil
		},
	})
	out, err := r.Call(context.Background(), "plain", nil)
	require.NoError(t, err)
	require.Equal(t, "just text", out)
}
