package browserbase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// PageInfo describes the current page.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Page drives the page of one remote browser session over CDP.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	// open makes the first CDP run, which binds the connection to ctx.
	open func(ctx context.Context) error
	// release drops the page from its Pages after a failed connect.
	release func()

	mu        sync.Mutex
	connected bool
	connErr   error
}

func newPage(connectURL string, timeout time.Duration) *Page {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), connectURL, chromedp.NoModifyURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	return &Page{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		timeout: timeout,
		open:    func(ctx context.Context) error { return chromedp.Run(ctx) },
	}
}

// connect opens the CDP connection once. The dial runs on the page's own
// long-lived context and is abandoned when the page timeout passes or ctx
// ends; a failed page is torn down and released so the next Get redials.
func (p *Page) connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	if p.connErr != nil {
		return p.connErr
	}

	done := make(chan error, 1)
	go func() { done <- p.open(p.ctx) }()
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
		if err != nil {
			err = fmt.Errorf("browser connect: %w", err)
		}
	case <-timer.C:
		err = fmt.Errorf("browser connect: timed out after %s", p.timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		p.connected = true
		return nil
	}

	p.connErr = err
	p.cancel()
	if p.release != nil {
		p.release()
	}
	return err
}

// run executes actions on the page, bounded by the page timeout and by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := p.connect(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}

// Navigate opens url and returns the resulting page.
func (p *Page) Navigate(ctx context.Context, url string) (PageInfo, error) {
	if strings.TrimSpace(url) == "" {
		return PageInfo{}, errors.New("url is required")
	}
	var info PageInfo
	err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
	)
	return info, err
}

// Extract returns the visible text of the first element matching selector,
// or of the body when selector is empty. Text is clipped to max runes when
// max is positive.
func (p *Page) Extract(ctx context.Context, selector string, max int) (PageInfo, string, error) {
	if selector == "" {
		selector = "body"
	}
	var (
		info PageInfo
		text string
	)
	err := p.run(ctx,
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
		chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible),
	)
	text = strings.TrimSpace(text)
	if r := []rune(text); max > 0 && len(r) > max {
		text = string(r[:max])
	}
	return info, text, err
}

// DefaultScreenshotQuality is used for out of range qualities.
const DefaultScreenshotQuality = 90

func screenshotQuality(quality int) int {
	if quality <= 0 || quality > 100 {
		return DefaultScreenshotQuality
	}
	return quality
}

// ScreenshotMIMEType is the format Screenshot produces for quality: PNG at
// 100, JPEG below.
func ScreenshotMIMEType(quality int) string {
	if screenshotQuality(quality) == 100 {
		return "image/png"
	}
	return "image/jpeg"
}

// Screenshot captures the page as PNG or, when quality is below 100, JPEG.
func (p *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality(quality)))
	return buf, err
}

// Click clicks the first visible element matching selector.
func (p *Page) Click(ctx context.Context, selector string) (PageInfo, error) {
	if strings.TrimSpace(selector) == "" {
		return PageInfo{}, errors.New("selector is required")
	}
	var info PageInfo
	err := p.run(ctx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(250*time.Millisecond),
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
	)
	return info, err
}

// Type types text into the element matching selector and optionally submits
// its form.
func (p *Page) Type(ctx context.Context, selector, text string, submit bool) (PageInfo, error) {
	if strings.TrimSpace(selector) == "" {
		return PageInfo{}, errors.New("selector is required")
	}
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
	if submit {
		actions = append(actions, chromedp.Submit(selector, chromedp.ByQuery), chromedp.Sleep(500*time.Millisecond))
	}
	var info PageInfo
	actions = append(actions, chromedp.Location(&info.URL), chromedp.Title(&info.Title))
	err := p.run(ctx, actions...)
	return info, err
}

// Close ends the CDP connection; the remote session keeps running.
func (p *Page) Close() {
	p.cancel()
}

// Pages keeps one Page per session so navigation state survives between
// tool calls.
type Pages struct {
	// Timeout bounds each page action.
	Timeout time.Duration

	mu    sync.Mutex
	pages map[string]*Page
	dial  func(connectURL string, timeout time.Duration) *Page
}

// NewPages returns an empty page set.
func NewPages(timeout time.Duration) *Pages {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Pages{Timeout: timeout, pages: map[string]*Page{}, dial: newPage}
}

// Get returns the page for sessionID, connecting on first use.
func (ps *Pages) Get(sessionID, connectURL string) (*Page, error) {
	if sessionID == "" {
		return nil, ErrMissingID
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.pages[sessionID]; ok {
		return p, nil
	}
	if connectURL == "" {
		return nil, fmt.Errorf("session %s has no connect url", sessionID)
	}
	p := ps.dial(connectURL, ps.Timeout)
	p.release = func() { ps.drop(sessionID, p) }
	ps.pages[sessionID] = p
	return p, nil
}

// drop forgets p if it is still the page held for sessionID.
func (ps *Pages) drop(sessionID string, p *Page) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.pages[sessionID] == p {
		delete(ps.pages, sessionID)
	}
}

// Has reports whether a page is open for sessionID.
func (ps *Pages) Has(sessionID string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.pages[sessionID]
	return ok
}

// Close disconnects from sessionID, if connected.
func (ps *Pages) Close(sessionID string) {
	ps.mu.Lock()
	p, ok := ps.pages[sessionID]
	delete(ps.pages, sessionID)
	ps.mu.Unlock()
	if ok {
		p.Close()
	}
}

// CloseAll disconnects every page.
func (ps *Pages) CloseAll() {
	ps.mu.Lock()
	pages := ps.pages
	ps.pages = map[string]*Page{}
	ps.mu.Unlock()
	for _, p := range pages {
		p.Close()
	}
}
