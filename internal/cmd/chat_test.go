package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/datastream"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fantasybridge"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/stream"
)

type replyClient struct {
	mu       sync.Mutex
	reply    []string
	err      error
	requests []proto.Request
}

func (c *replyClient) Request(_ context.Context, req proto.Request) stream.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	chunks := make([]proto.Chunk, 0, len(c.reply)+1)
	for _, s := range c.reply {
		chunks = append(chunks, proto.Chunk{Content: s})
	}
	chunks = append(chunks, proto.Chunk{Finish: &proto.Finish{Reason: "stop", InputTokens: 1, OutputTokens: 1}})
	return &replyStream{chunks: chunks, err: c.err, messages: append([]proto.Message(nil), req.Messages...)}
}

func (c *replyClient) last() proto.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type replyStream struct {
	chunks   []proto.Chunk
	err      error
	pos      int
	text     strings.Builder
	messages []proto.Message
	failed   error
	done     bool
}

func (s *replyStream) Next() bool {
	if s.err != nil {
		s.failed = s.err
		return false
	}
	if s.pos < len(s.chunks) {
		s.text.WriteString(s.chunks[s.pos].Content)
		s.pos++
		return true
	}
	if !s.done {
		s.done = true
		s.messages = append(s.messages, proto.Message{Role: proto.RoleAssistant, Content: s.text.String()})
	}
	return false
}

func (s *replyStream) Current() (proto.Chunk, error)     { return s.chunks[s.pos-1], nil }
func (s *replyStream) Close() error                      { return nil }
func (s *replyStream) Err() error                        { return s.failed }
func (s *replyStream) Messages() []proto.Message         { return s.messages }
func (s *replyStream) CallTools() []proto.ToolCallStatus { return nil }
func (s *replyStream) DrainWarnings() []string           { return nil }

func testCLIConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SettingsPath = t.TempDir() + "/superagent.yml"
	cfg.CachePath = t.TempDir()
	cfg.API = "openai"
	cfg.Model = "gpt-4o"
	cfg.MaxRetries = 0
	cfg.LogLevel = "error"
	cfg.Quiet = true
	cfg.APIs = config.APIs{
		{
			Name:   "openai",
			APIKey: "sk-test",
			Models: map[string]config.Model{
				"gpt-4o":      {Aliases: []string{"4o"}},
				"gpt-4o-mini": {Aliases: []string{"mini"}},
			},
		},
	}
	cfg.Agents["writer"] = config.Agent{Description: "Writes.", Model: "mini"}
	return cfg
}

func testApp(t *testing.T, cfg *config.Config, client *replyClient) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, appOptions{
		clients:   func(fantasybridge.Config) (stream.Client, error) { return client, nil },
		logOutput: &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestRunChat(t *testing.T) {
	cfg := testCLIConfig(t)
	client := &replyClient{reply: []string{"Hello", " there"}}
	a := testApp(t, &cfg, client)

	var out, errOut bytes.Buffer
	require.NoError(t, runChat(context.Background(), a, chatOptions{}, "Say hello", &out, &errOut))
	require.Equal(t, "Hello there\n", out.String())
	require.Empty(t, errOut.String())

	list := a.history.DB.List()
	require.Len(t, list, 1)
	convo := list[0]
	require.Equal(t, "Say hello", convo.Title)
	require.Equal(t, "superagent", convo.Agent)
	require.Equal(t, "gpt-4o", convo.Model)
	require.Equal(t, 2, convo.Messages)

	t.Run("continue last", func(t *testing.T) {
		cfg.ContinueLast = true
		t.Cleanup(func() { cfg.ContinueLast = false })

		out.Reset()
		require.NoError(t, runChat(context.Background(), a, chatOptions{}, "And again", &out, &errOut))

		req := client.last()
		var roles []proto.Role
		for _, m := range req.Messages {
			if m.Role != proto.RoleSystem {
				roles = append(roles, m.Role)
			}
		}
		require.Equal(t, []proto.Role{proto.RoleUser, proto.RoleAssistant, proto.RoleUser}, roles)

		list := a.history.DB.List()
		require.Len(t, list, 1)
		require.Equal(t, convo.ID, list[0].ID)
		require.Equal(t, "Say hello", list[0].Title)
		require.Equal(t, 4, list[0].Messages)
	})

	t.Run("agent model", func(t *testing.T) {
		cfg.Agent = "writer"
		cfg.Model = ""
		t.Cleanup(func() { cfg.Agent, cfg.Model = "", "gpt-4o" })

		require.NoError(t, runChat(context.Background(), a, chatOptions{}, "Write", &out, &errOut))
		require.Equal(t, "gpt-4o-mini", client.last().Model)
	})

	t.Run("no cache", func(t *testing.T) {
		cfg.NoCache = true
		t.Cleanup(func() { cfg.NoCache = false })
		before := len(a.history.DB.List())

		require.NoError(t, runChat(context.Background(), a, chatOptions{}, "Forget me", &out, &errOut))
		require.Len(t, a.history.DB.List(), before)
	})
}

func TestRunChatErrors(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		cfg := testCLIConfig(t)
		a := testApp(t, &cfg, &replyClient{})
		err := runChat(context.Background(), a, chatOptions{}, "  ", &bytes.Buffer{}, &bytes.Buffer{})
		require.Error(t, err)
		require.Equal(t, "You haven't provided any prompt input.", errs.ReasonOf(err))
	})

	t.Run("stream failure is not saved", func(t *testing.T) {
		cfg := testCLIConfig(t)
		a := testApp(t, &cfg, &replyClient{err: errors.New("boom")})
		err := runChat(context.Background(), a, chatOptions{}, "hi", &bytes.Buffer{}, &bytes.Buffer{})
		require.Error(t, err)
		require.Empty(t, a.history.DB.List())
	})

	t.Run("unknown conversation", func(t *testing.T) {
		cfg := testCLIConfig(t)
		cfg.Continue = "does-not-exist"
		a := testApp(t, &cfg, &replyClient{reply: []string{"x"}})
		err := runChat(context.Background(), a, chatOptions{}, "hi", &bytes.Buffer{}, &bytes.Buffer{})
		require.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})
}

func TestTermSink(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newTermSink(&out, &errOut, false, false)
	require.NoError(t, s.StartStep("msg-1"))
	require.NoError(t, s.ToolCall("call-1", "web_search", []byte(`{"query": "go"}`)))
	require.NoError(t, s.ToolResult("call-1", `{"results": []}`))
	require.NoError(t, s.Text("Done."))
	require.NoError(t, s.FinishStep("stop", datastream.Usage{}, false))
	require.NoError(t, s.FinishMessage("stop", datastream.Usage{}))

	require.Equal(t, "Done.\n", out.String())
	require.Contains(t, errOut.String(), "web_search")
	require.Contains(t, errOut.String(), `{"query": "go"}`)
	require.Contains(t, errOut.String(), `{"results": []}`)

	t.Run("quiet", func(t *testing.T) {
		var out, errOut bytes.Buffer
		s := newTermSink(&out, &errOut, true, false)
		require.NoError(t, s.ToolCall("call-1", "web_search", nil))
		require.NoError(t, s.ToolResult("call-1", "ok"))
		require.Empty(t, errOut.String())
	})

	t.Run("buffered", func(t *testing.T) {
		var out bytes.Buffer
		s := newTermSink(&out, &bytes.Buffer{}, true, true)
		require.NoError(t, s.Text("# Title"))
		require.NoError(t, s.FinishMessage("stop", datastream.Usage{}))
		require.Empty(t, out.String())
		require.NoError(t, s.flush(80))
		require.Contains(t, out.String(), "Title")
	})
}

func TestJoinPrompt(t *testing.T) {
	require.Equal(t, "summarize", joinPrompt("summarize", "  "))
	require.Equal(t, "file body", joinPrompt("", "file body\n"))
	require.Equal(t, "summarize\n\nfile body", joinPrompt("summarize", "file body\n"))
	require.Equal(t, "abc…", truncate("abcdef", 4))
	require.Equal(t, "a b", truncate("a\n  b", 10))
}
