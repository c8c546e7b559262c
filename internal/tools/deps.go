package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/opensuperagent/superagent/internal/browserbase"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/fal"
	"github.com/opensuperagent/superagent/internal/ghub"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/imagegen"
	"github.com/opensuperagent/superagent/internal/websearch"
	"github.com/opensuperagent/superagent/internal/workspace"
)

// Page is a remote browser page.
type Page interface {
	Navigate(ctx context.Context, url string) (browserbase.PageInfo, error)
	Extract(ctx context.Context, selector string, max int) (browserbase.PageInfo, string, error)
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	Click(ctx context.Context, selector string) (browserbase.PageInfo, error)
	Type(ctx context.Context, selector, text string, submit bool) (browserbase.PageInfo, error)
}

// Pages hands out one Page per browser session.
type Pages interface {
	Page(sessionID, connectURL string) (Page, error)
	Has(sessionID string) bool
	Close(sessionID string)
}

// Sessions manages hosted browser sessions.
type Sessions interface {
	CreateSession(ctx context.Context, req browserbase.CreateRequest) (browserbase.Session, error)
	GetSession(ctx context.Context, id string) (browserbase.Session, error)
	DebugURLs(ctx context.Context, id string) (browserbase.DebugURLs, error)
	Release(ctx context.Context, id string) (browserbase.Session, error)
}

type remotePages struct{ *browserbase.Pages }

func (p remotePages) Page(sessionID, connectURL string) (Page, error) {
	pg, err := p.Get(sessionID, connectURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// RemotePages adapts browserbase.Pages.
func RemotePages(p *browserbase.Pages) Pages {
	return remotePages{p}
}

// Deps are the vendor clients behind the built-in tools. A nil field
// leaves its tools unregistered.
type Deps struct {
	Search websearch.Searcher
	Images *imagegen.Set

	Fal        *fal.Client
	VideoModel string

	Browser Sessions
	Pages   Pages

	GitHub    *ghub.Client
	Workspace *workspace.Client
}

// Close releases open browser pages.
func (d Deps) Close() {
	if rp, ok := d.Pages.(remotePages); ok {
		rp.CloseAll()
	}
}

// NewDeps builds the vendor clients configured in s.
func NewDeps(ctx context.Context, s config.ToolSettings, hc *http.Client, pageTimeout time.Duration) (Deps, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	retry := httpx.Retry{Attempts: s.VendorRetries, Delay: s.VendorRetryDelay}

	var d Deps
	switch provider := strings.ToLower(s.SearchProvider); provider {
	case "brave":
		if s.BraveAPIKey != "" {
			d.Search = websearch.Brave{APIKey: s.BraveAPIKey, Doer: hc, Retry: retry}
		}
	case "", "serper":
		switch {
		case s.SerperAPIKey != "":
			d.Search = websearch.Serper{APIKey: s.SerperAPIKey, Doer: hc, Retry: retry}
		case provider == "" && s.BraveAPIKey != "":
			d.Search = websearch.Brave{APIKey: s.BraveAPIKey, Doer: hc, Retry: retry}
		}
	default:
		return d, fmt.Errorf("unknown search provider %q", s.SearchProvider)
	}

	if s.FalKey != "" {
		d.Fal = &fal.Client{
			Key:          s.FalKey,
			Doer:         hc,
			Retry:        retry,
			PollInterval: s.PollInterval,
			PollTimeout:  s.PollTimeout,
		}
		d.VideoModel = s.FalVideoModel
	}

	images := &imagegen.Set{Default: s.ImageProvider, Generators: map[string]imagegen.Generator{}}
	if s.OpenAIAPIKey != "" {
		images.Generators[imagegen.ProviderOpenAI] = imagegen.OpenAI{APIKey: s.OpenAIAPIKey, Model: s.OpenAIImageModel, HTTPClient: hc, Retry: retry}
	}
	if s.GeminiAPIKey != "" {
		g, err := imagegen.NewGemini(ctx, s.GeminiAPIKey, s.GeminiImageModel, "", hc)
		if err != nil {
			return d, err
		}
		images.Generators[imagegen.ProviderGemini] = g
	}
	if d.Fal != nil {
		images.Generators[imagegen.ProviderFal] = imagegen.Fal{Client: *d.Fal, Model: s.FalImageModel}
	}
	if len(images.Generators) > 0 {
		d.Images = images
	}

	if s.BrowserbaseAPIKey != "" {
		d.Browser = browserbase.Client{APIKey: s.BrowserbaseAPIKey, ProjectID: s.BrowserbaseProjectID, Doer: hc, Retry: retry}
		d.Pages = RemotePages(browserbase.NewPages(pageTimeout))
	}

	if s.GitHubToken != "" {
		gh, err := ghub.New(s.GitHubToken, "", hc)
		if err != nil {
			return d, err
		}
		d.GitHub = gh
	}

	if s.GoogleCredentialsFile != "" {
		ws, err := workspace.New(ctx, option.WithCredentialsFile(s.GoogleCredentialsFile))
		if err != nil {
			return d, fmt.Errorf("google workspace: %w", err)
		}
		ws.ShareWith = splitList(s.GoogleShareWith)
		d.Workspace = ws
	}
	return d, nil
}

// RegisterBuiltins registers every tool whose dependency is present. The
// citation and presentation tools need nothing and are always registered.
func RegisterBuiltins(r *Registry, d Deps) {
	r.Register(formatCitations())
	r.Register(createPresentation(d.Workspace))
	if d.Search != nil {
		r.Register(webSearch(d.Search))
	}
	if d.Images != nil {
		r.Register(generateImage(d.Images))
	}
	if d.Fal != nil && d.VideoModel != "" {
		r.Register(generateVideo(*d.Fal, d.VideoModel))
	}
	if d.Browser != nil && d.Pages != nil {
		for _, t := range browserTools(d.Browser, d.Pages) {
			r.Register(t)
		}
	}
	if d.GitHub != nil {
		for _, t := range githubTools(d.GitHub) {
			r.Register(t)
		}
	}
	if d.Workspace != nil {
		r.Register(gdocsCreate(d.Workspace))
		r.Register(gslidesCreate(d.Workspace))
	}
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
}
