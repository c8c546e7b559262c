// Package websearch holds thin Brave and Serper search clients.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opensuperagent/superagent/internal/httpx"
)

// Default endpoints.
const (
	BraveURL  = "https://api.search.brave.com/res/v1/web/search"
	SerperURL = "https://google.serper.dev/search"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("empty query")

// Query is a web search request.
type Query struct {
	Text string
	// K is the number of results, clamped to [1,25] with 10 as default.
	K int
	// Sites restricts results to these domains.
	Sites []string
	// RecencyDays keeps only results newer than this many days.
	RecencyDays int
}

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

func (q Query) normalize() (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if q.K < 1 || q.K > 25 {
		q.K = 10
	}
	return q, nil
}

// Brave queries the Brave Search API.
type Brave struct {
	APIKey  string
	BaseURL string
	Doer    httpx.Doer
	Retry   httpx.Retry
}

// Search implements Searcher.
func (b Brave) Search(ctx context.Context, q Query) ([]Result, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	text := q.Text
	if len(q.Sites) > 0 {
		sites := make([]string, 0, len(q.Sites))
		for _, s := range q.Sites {
			sites = append(sites, "site:"+s)
		}
		text += " (" + strings.Join(sites, " OR ") + ")"
	}
	params := url.Values{}
	params.Set("q", text)
	params.Set("count", strconv.Itoa(q.K))
	if q.RecencyDays > 0 {
		params.Set("freshness", braveFreshness(q.RecencyDays))
	}

	base := b.BaseURL
	if base == "" {
		base = BraveURL
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	c := httpx.Client{
		Vendor: "brave",
		Doer:   b.Doer,
		Header: http.Header{"X-Subscription-Token": {b.APIKey}},
		Retry:  b.Retry,
	}
	if err := c.JSON(ctx, http.MethodGet, base+"?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		if len(out) == q.K {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}

// Serper queries the Serper Google Search API.
type Serper struct {
	APIKey  string
	BaseURL string
	Doer    httpx.Doer
	Retry   httpx.Retry
}

// Search implements Searcher.
func (s Serper) Search(ctx context.Context, q Query) ([]Result, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	payload := map[string]any{"q": q.Text, "num": q.K}
	if len(q.Sites) > 0 {
		payload["site"] = strings.Join(q.Sites, " OR ")
	}
	if q.RecencyDays > 0 {
		payload["tbs"] = recencyToTBS(q.RecencyDays)
	}

	base := s.BaseURL
	if base == "" {
		base = SerperURL
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	c := httpx.Client{
		Vendor: "serper",
		Doer:   s.Doer,
		Header: http.Header{"X-API-KEY": {s.APIKey}},
		Retry:  s.Retry,
	}
	if err := c.JSON(ctx, http.MethodPost, base, payload, &raw); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		if len(out) == q.K {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

func braveFreshness(days int) string {
	switch {
	case days <= 1:
		return "pd"
	case days <= 7:
		return "pw"
	case days <= 31:
		return "pm"
	default:
		return "py"
	}
}

func recencyToTBS(days int) string {
	switch {
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
