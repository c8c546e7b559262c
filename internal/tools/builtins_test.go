package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/browserbase"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fal"
	"github.com/opensuperagent/superagent/internal/ghub"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/imagegen"
	"github.com/opensuperagent/superagent/internal/websearch"
)

type fakeSearcher struct {
	got websearch.Query
	err error
}

func (f *fakeSearcher) Search(_ context.Context, q websearch.Query) ([]websearch.Result, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return []websearch.Result{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}}, nil
}

type stubImages struct{ err error }

func (s stubImages) Generate(_ context.Context, req imagegen.Request) (imagegen.Result, error) {
	if s.err != nil {
		return imagegen.Result{}, s.err
	}
	return imagegen.Result{Provider: "stub", Images: []imagegen.Image{{URL: "https://img/" + req.Prompt, MIMEType: "image/png"}}}, nil
}

func call(t *testing.T, r *Registry, name, args string) (string, error) {
	t.Helper()
	return r.Call(context.Background(), name, json.RawMessage(args))
}

func TestRegisterBuiltinsWithoutVendors(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})
	require.Equal(t, []string{"create_presentation", "format_citations"}, r.Names())

	def, _ := r.Get("create_presentation")
	require.NotContains(t, def.Definition.InputSchema.Properties, "exportToGoogleSlides")
}

func TestWebSearch(t *testing.T) {
	s := &fakeSearcher{}
	r := NewRegistry()
	RegisterBuiltins(r, Deps{Search: s})

	out, err := call(t, r, "web_search", `{"query":"golang","k":3,"sites":["go.dev"],"recencyDays":7}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"query":"golang","results":[{"title":"Go","url":"https://go.dev","snippet":"The Go language"}]}`, out)
	require.Equal(t, websearch.Query{Text: "golang", K: 3, Sites: []string{"go.dev"}, RecencyDays: 7}, s.got)

	s.err = websearch.ErrEmptyQuery
	_, err = call(t, r, "web_search", `{"query":" "}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))

	s.err = fmt.Errorf("search: %w", &httpx.StatusError{Vendor: "serper", StatusCode: http.StatusTooManyRequests})
	_, err = call(t, r, "web_search", `{"query":"go"}`)
	require.Equal(t, errs.KindUnavailable, errs.KindOf(err))
}

func TestGenerateImage(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{Images: &imagegen.Set{Generators: map[string]imagegen.Generator{
		"stub":  stubImages{},
		"flaky": stubImages{err: imagegen.ErrVisibilityCheck},
	}}})

	def, _ := r.Get("generate_image")
	require.Equal(t, []string{"flaky", "stub"}, def.Definition.InputSchema.Properties["provider"].(map[string]any)["enum"])

	out, err := call(t, r, "generate_image", `{"prompt":"cat","provider":"stub"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"provider":"stub","model":"","images":[{"url":"https://img/cat","mimeType":"image/png"}]}`, out)

	_, err = call(t, r, "generate_image", `{"prompt":"cat","provider":"flaky"}`)
	require.Equal(t, errs.KindUnavailable, errs.KindOf(err))

	_, err = call(t, r, "generate_image", `{"prompt":"cat","provider":"dalle"}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestGenerateVideo(t *testing.T) {
	const model = "fal-ai/kling-video/v2/master/text-to-video"
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+model, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, map[string]any{"prompt": "waves", "duration": "5"}, in)
		_, _ = w.Write([]byte(`{"request_id":"req-9"}`))
	})
	mux.HandleFunc("GET /fal-ai/kling-video/requests/req-9/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
	})
	mux.HandleFunc("GET /fal-ai/kling-video/requests/req-9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"video":{"url":"https://cdn/v.mp4","content_type":"video/mp4"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	r := NewRegistry()
	c := &fal.Client{Key: "k", BaseURL: srv.URL, Doer: srv.Client(), PollInterval: time.Millisecond, PollTimeout: time.Second}
	RegisterBuiltins(r, Deps{Fal: c, VideoModel: model})

	out, err := call(t, r, "generate_video", `{"prompt":"waves","duration":"5"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"videoUrl":"https://cdn/v.mp4","contentType":"video/mp4","model":"`+model+`","requestId":"req-9"}`, out)

	_, err = call(t, r, "generate_video", `{"prompt":""}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

type fakeSessions struct {
	mu       sync.Mutex
	released []string
	status   string
}

func (f *fakeSessions) CreateSession(_ context.Context, req browserbase.CreateRequest) (browserbase.Session, error) {
	return browserbase.Session{ID: "sess-1", Status: "RUNNING", Region: req.Region, ConnectURL: "wss://connect/sess-1"}, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (browserbase.Session, error) {
	if id != "sess-1" {
		return browserbase.Session{}, &httpx.StatusError{Vendor: "browserbase", StatusCode: http.StatusNotFound}
	}
	status := f.status
	if status == "" {
		status = "RUNNING"
	}
	return browserbase.Session{ID: id, Status: status, ConnectURL: "wss://connect/" + id}, nil
}

func (f *fakeSessions) DebugURLs(_ context.Context, id string) (browserbase.DebugURLs, error) {
	return browserbase.DebugURLs{DebuggerURL: "https://debug/" + id, DebuggerFullscreenURL: "https://debug/" + id + "/full"}, nil
}

func (f *fakeSessions) Release(_ context.Context, id string) (browserbase.Session, error) {
	f.mu.Lock()
	f.released = append(f.released, id)
	f.mu.Unlock()
	return browserbase.Session{ID: id, Status: "COMPLETED"}, nil
}

type fakePage struct {
	connectURL string
	actions    []string
}

func (p *fakePage) Navigate(_ context.Context, url string) (browserbase.PageInfo, error) {
	p.actions = append(p.actions, "navigate "+url)
	return browserbase.PageInfo{URL: url, Title: "Example"}, nil
}

func (p *fakePage) Extract(_ context.Context, selector string, _ int) (browserbase.PageInfo, string, error) {
	p.actions = append(p.actions, "extract "+selector)
	return browserbase.PageInfo{URL: "https://example.com"}, "Example Domain", nil
}

func (p *fakePage) Screenshot(context.Context, int) ([]byte, error) {
	return []byte("jpeg"), nil
}

func (p *fakePage) Click(_ context.Context, selector string) (browserbase.PageInfo, error) {
	p.actions = append(p.actions, "click "+selector)
	return browserbase.PageInfo{}, nil
}

func (p *fakePage) Type(_ context.Context, selector, text string, submit bool) (browserbase.PageInfo, error) {
	p.actions = append(p.actions, "type "+selector+" "+text)
	return browserbase.PageInfo{}, nil
}

type fakePages struct {
	pages map[string]*fakePage
}

func (f *fakePages) Page(id, connectURL string) (Page, error) {
	if p, ok := f.pages[id]; ok {
		return p, nil
	}
	p := &fakePage{connectURL: connectURL}
	f.pages[id] = p
	return p, nil
}

func (f *fakePages) Has(id string) bool {
	_, ok := f.pages[id]
	return ok
}

func (f *fakePages) Close(id string) {
	delete(f.pages, id)
}

func TestBrowserTools(t *testing.T) {
	sessions := &fakeSessions{}
	pages := &fakePages{pages: map[string]*fakePage{}}
	r := NewRegistry()
	RegisterBuiltins(r, Deps{Browser: sessions, Pages: pages})
	require.Equal(t, []string{
		"browser_click", "browser_extract", "browser_navigate", "browser_screenshot",
		"browser_session_close", "browser_session_create", "browser_type",
	}, r.Names("browser_*"))

	out, err := call(t, r, "browser_session_create", `{"region":"eu-central-1"}`)
	require.NoError(t, err)
	var view SessionView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, "sess-1", view.ID)
	require.Equal(t, "eu-central-1", view.Region)
	require.Equal(t, "https://debug/sess-1", view.DebuggerURL)

	out, err = call(t, r, "browser_navigate", `{"sessionId":"sess-1","url":"https://example.com"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://example.com","title":"Example"}`, out)
	require.Equal(t, "wss://connect/sess-1", pages.pages["sess-1"].connectURL)

	out, err = call(t, r, "browser_extract", `{"sessionId":"sess-1"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://example.com","title":"","text":"Example Domain"}`, out)

	out, err = call(t, r, "browser_screenshot", `{"sessionId":"sess-1"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mimeType":"image/jpeg","b64":"anBlZw=="}`, out)

	out, err = call(t, r, "browser_screenshot", `{"sessionId":"sess-1","quality":100}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mimeType":"image/png","b64":"anBlZw=="}`, out)

	_, err = call(t, r, "browser_click", `{"sessionId":"sess-1","selector":"a"}`)
	require.NoError(t, err)
	_, err = call(t, r, "browser_type", `{"sessionId":"sess-1","selector":"input","text":"go","submit":true}`)
	require.NoError(t, err)
	require.Equal(t, []string{"navigate https://example.com", "extract body", "click a", "type input go"}, pages.pages["sess-1"].actions)

	_, err = call(t, r, "browser_session_close", `{"sessionId":"sess-1"}`)
	require.NoError(t, err)
	require.Equal(t, []string{"sess-1"}, sessions.released)
	require.False(t, pages.Has("sess-1"))
}

func TestBrowserToolErrors(t *testing.T) {
	sessions := &fakeSessions{}
	r := NewRegistry()
	RegisterBuiltins(r, Deps{Browser: sessions, Pages: &fakePages{pages: map[string]*fakePage{}}})

	_, err := call(t, r, "browser_navigate", `{"url":"https://example.com"}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))

	_, err = call(t, r, "browser_navigate", `{"sessionId":"ghost","url":"https://example.com"}`)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	sessions.status = "TIMED_OUT"
	_, err = call(t, r, "browser_extract", `{"sessionId":"sess-1"}`)
	require.ErrorContains(t, err, "session is TIMED_OUT")
}

func TestGitHubTools(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/repositories", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_count":1,"items":[{"full_name":"acme/agent","html_url":"https://github.com/acme/agent","stargazers_count":5}]}`))
	})
	mux.HandleFunc("GET /repos/acme/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh, err := ghub.New("token", srv.URL, srv.Client())
	require.NoError(t, err)
	r := NewRegistry()
	RegisterBuiltins(r, Deps{GitHub: gh})
	require.Equal(t, []string{"github_create_issue", "github_get_repo", "github_search_repos"}, r.Names("github_*"))

	out, err := call(t, r, "github_search_repos", `{"query":"agent"}`)
	require.NoError(t, err)
	var res searchReposResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 1, res.Total)
	require.Equal(t, "acme/agent", res.Repos[0].FullName)

	_, err = call(t, r, "github_get_repo", `{"owner":"acme","repo":"missing"}`)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = call(t, r, "github_create_issue", `{"owner":"acme","repo":"agent","title":""}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestFormatCitations(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})

	out, err := call(t, r, "format_citations", `{"sources":[
		{"title":"Go","url":"https://go.dev/?utm_source=x","published":"2024-05-01"},
		{"title":"Go again","url":"https://go.dev/"}
	]}`)
	require.NoError(t, err)
	var res citationsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.References, 1)
	require.Equal(t, "[1] Go. go.dev, 2024-05-01. <https://go.dev/>", res.References[0].Text)
	require.Equal(t, "**Sources**\n\n- [1] Go. go.dev, 2024-05-01. <https://go.dev/>\n", res.Markdown)

	_, err = call(t, r, "format_citations", `{"sources":[]}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestCreatePresentation(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})

	out, err := call(t, r, "create_presentation", `{"title":"Q3","slides":[{"title":"Intro","bullets":["a","b"]}]}`)
	require.NoError(t, err)
	var preview map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	require.Equal(t, "Q3", preview["title"])
	require.EqualValues(t, 1, preview["slideCount"])
	require.NotContains(t, preview, "exportUrl")

	_, err = call(t, r, "create_presentation", `{"title":"Q3","slides":[]}`)
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestMCPServerServesRegistry(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})
	r.Register(Tool{
		Definition: mcp.NewTool("broken"),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("no luck")
		},
	})

	ctx := context.Background()
	cli, err := client.NewInProcessClient(NewMCPServer(r, "test"))
	require.NoError(t, err)
	require.NoError(t, cli.Start(ctx))
	t.Cleanup(func() { _ = cli.Close() })
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	_, err = cli.Initialize(ctx, initReq)
	require.NoError(t, err)

	list, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 3)

	req := mcp.CallToolRequest{}
	req.Params.Name = "format_citations"
	req.Params.Arguments = map[string]any{"sources": []any{map[string]any{"title": "Go", "url": "https://go.dev"}}}
	res, err := cli.CallTool(ctx, req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].(mcp.TextContent).Text, `"number":1`)

	req.Params.Name = "broken"
	req.Params.Arguments = nil
	res, err = cli.CallTool(ctx, req)
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, res.Content[0].(mcp.TextContent).Text, "no luck")
}
