package tools

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/browserbase"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/httpx"
)

const (
	defaultExtractChars = 4000
	defaultShotQuality  = 60
)

type sessionArgs struct {
	SessionID string `json:"sessionId"`
}

type createSessionArgs struct {
	Region    string `json:"region"`
	KeepAlive bool   `json:"keepAlive"`
	Timeout   int    `json:"timeout"`
}

// SessionView is a session as shown to the model and the UI.
type SessionView struct {
	browserbase.Session
	DebuggerURL           string `json:"debuggerUrl,omitempty"`
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl,omitempty"`
}

type navigateArgs struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type extractArgs struct {
	SessionID string `json:"sessionId"`
	Selector  string `json:"selector"`
	MaxChars  int    `json:"maxChars"`
}

type extractResult struct {
	browserbase.PageInfo
	Text string `json:"text"`
}

type screenshotArgs struct {
	SessionID string `json:"sessionId"`
	Quality   int    `json:"quality"`
}

type screenshotResult struct {
	MIMEType string `json:"mimeType"`
	B64      string `json:"b64"`
}

type clickArgs struct {
	SessionID string `json:"sessionId"`
	Selector  string `json:"selector"`
}

type typeArgs struct {
	SessionID string `json:"sessionId"`
	Selector  string `json:"selector"`
	Text      string `json:"text"`
	Submit    bool   `json:"submit"`
}

type browser struct {
	sessions Sessions
	pages    Pages
}

// page returns the page of a session, looking up its connect URL on first
// use.
func (b browser) page(ctx context.Context, id string) (Page, error) {
	if id == "" {
		return nil, errs.Invalid(browserbase.ErrMissingID, "sessionId is required.")
	}
	if b.pages.Has(id) {
		return b.pages.Page(id, "")
	}
	s, err := b.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, httpx.Classify(err, "Could not look up the browser session.")
	}
	if s.Status != "" && s.Status != "RUNNING" {
		return nil, errs.Invalid(errors.New("session is "+s.Status), "The browser session is no longer running.")
	}
	return b.pages.Page(id, s.ConnectURL)
}

// View fetches the session and its live-view URLs. Missing debug URLs are
// not an error.
func View(ctx context.Context, sessions Sessions, s browserbase.Session) SessionView {
	v := SessionView{Session: s}
	if urls, err := sessions.DebugURLs(ctx, s.ID); err == nil {
		v.DebuggerURL = urls.DebuggerURL
		v.DebuggerFullscreenURL = urls.DebuggerFullscreenURL
	}
	return v
}

func browserTools(sessions Sessions, pages Pages) []Tool {
	b := browser{sessions: sessions, pages: pages}
	sessionID := mcp.WithString("sessionId", mcp.Required(), mcp.Description("Browser session id from browser_session_create"))

	return []Tool{
		{
			Definition: mcp.NewTool("browser_session_create",
				mcp.WithDescription("Start a hosted browser session. Returns its id and a live view URL."),
				mcp.WithString("region", mcp.Enum("us-west-2", "us-east-1", "eu-central-1", "ap-southeast-1")),
				mcp.WithBoolean("keepAlive", mcp.Description("Keep the session after disconnecting")),
				mcp.WithNumber("timeout", mcp.Description("Session lifetime in seconds"), mcp.Min(60), mcp.Max(21600)),
			),
			Handler: typed(func(ctx context.Context, in createSessionArgs) (SessionView, error) {
				s, err := sessions.CreateSession(ctx, browserbase.CreateRequest(in))
				if err != nil {
					return SessionView{}, httpx.Classify(err, "Could not start a browser session.")
				}
				return View(ctx, sessions, s), nil
			}),
		},
		{
			Definition: mcp.NewTool("browser_navigate",
				mcp.WithDescription("Open a URL in the browser session."),
				sessionID,
				mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL")),
			),
			Handler: typed(func(ctx context.Context, in navigateArgs) (browserbase.PageInfo, error) {
				if in.URL == "" {
					return browserbase.PageInfo{}, errs.Invalid(errors.New("url is required"), "A URL is required.")
				}
				p, err := b.page(ctx, in.SessionID)
				if err != nil {
					return browserbase.PageInfo{}, err
				}
				return p.Navigate(ctx, in.URL)
			}),
		},
		{
			Definition: mcp.NewTool("browser_extract",
				mcp.WithDescription("Read the visible text of the current page or of the element matching a CSS selector."),
				sessionID,
				mcp.WithString("selector", mcp.Description("CSS selector"), mcp.DefaultString("body")),
				mcp.WithNumber("maxChars", mcp.Min(100), mcp.Max(50000), mcp.DefaultNumber(defaultExtractChars)),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: typed(func(ctx context.Context, in extractArgs) (extractResult, error) {
				p, err := b.page(ctx, in.SessionID)
				if err != nil {
					return extractResult{}, err
				}
				if in.Selector == "" {
					in.Selector = "body"
				}
				if in.MaxChars <= 0 {
					in.MaxChars = defaultExtractChars
				}
				info, text, err := p.Extract(ctx, in.Selector, in.MaxChars)
				return extractResult{PageInfo: info, Text: text}, err
			}),
		},
		{
			Definition: mcp.NewTool("browser_screenshot",
				mcp.WithDescription("Capture the page as a JPEG, or as a PNG at quality 100."),
				sessionID,
				mcp.WithNumber("quality", mcp.Min(10), mcp.Max(100), mcp.DefaultNumber(defaultShotQuality)),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: typed(func(ctx context.Context, in screenshotArgs) (screenshotResult, error) {
				p, err := b.page(ctx, in.SessionID)
				if err != nil {
					return screenshotResult{}, err
				}
				if in.Quality <= 0 || in.Quality > 100 {
					in.Quality = defaultShotQuality
				}
				shot, err := p.Screenshot(ctx, in.Quality)
				if err != nil {
					return screenshotResult{}, err
				}
				return screenshotResult{
					MIMEType: browserbase.ScreenshotMIMEType(in.Quality),
					B64:      base64.StdEncoding.EncodeToString(shot),
				}, nil
			}),
		},
		{
			Definition: mcp.NewTool("browser_click",
				mcp.WithDescription("Click the element matching a CSS selector."),
				sessionID,
				mcp.WithString("selector", mcp.Required()),
			),
			Handler: typed(func(ctx context.Context, in clickArgs) (browserbase.PageInfo, error) {
				p, err := b.page(ctx, in.SessionID)
				if err != nil {
					return browserbase.PageInfo{}, err
				}
				return p.Click(ctx, in.Selector)
			}),
		},
		{
			Definition: mcp.NewTool("browser_type",
				mcp.WithDescription("Type text into the element matching a CSS selector."),
				sessionID,
				mcp.WithString("selector", mcp.Required()),
				mcp.WithString("text", mcp.Required()),
				mcp.WithBoolean("submit", mcp.Description("Press Enter afterwards")),
			),
			Handler: typed(func(ctx context.Context, in typeArgs) (browserbase.PageInfo, error) {
				p, err := b.page(ctx, in.SessionID)
				if err != nil {
					return browserbase.PageInfo{}, err
				}
				return p.Type(ctx, in.Selector, in.Text, in.Submit)
			}),
		},
		{
			Definition: mcp.NewTool("browser_session_close",
				mcp.WithDescription("End a browser session."),
				sessionID,
			),
			Handler: typed(func(ctx context.Context, in sessionArgs) (browserbase.Session, error) {
				if in.SessionID == "" {
					return browserbase.Session{}, errs.Invalid(browserbase.ErrMissingID, "sessionId is required.")
				}
				pages.Close(in.SessionID)
				s, err := sessions.Release(ctx, in.SessionID)
				return s, httpx.Classify(err, "Could not close the browser session.")
			}),
		},
	}
}
