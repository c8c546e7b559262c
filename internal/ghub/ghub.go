// Package ghub wraps the GitHub API calls exposed as agent tools.
package ghub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// Repo is the reshaped repository payload returned to the model.
type Repo struct {
	FullName    string   `json:"fullName"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url"`
	Language    string   `json:"language,omitempty"`
	Stars       int      `json:"stars"`
	Forks       int      `json:"forks"`
	OpenIssues  int      `json:"openIssues"`
	Topics      []string `json:"topics,omitempty"`
	License     string   `json:"license,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Readme      string   `json:"readme,omitempty"`
}

// Issue is a created issue.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// Client is a thin GitHub client.
type Client struct {
	gh *github.Client
	// MaxReadme clips README content.
	MaxReadme int
}

// New returns a client authenticated with token. A non-empty baseURL points
// it at another API endpoint.
func New(token, baseURL string, hc *http.Client) (*Client, error) {
	gh := github.NewClient(hc)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, MaxReadme: 8000}, nil
}

// SearchRepos searches repositories. sort is one of stars, forks, updated
// or empty for best match.
func (c *Client) SearchRepos(ctx context.Context, query, sort string, limit int) ([]Repo, int, error) {
	if strings.TrimSpace(query) == "" {
		return nil, 0, errors.New("query is required")
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	res, _, err := c.gh.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        sort,
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("github search: %w", err)
	}
	repos := make([]Repo, 0, len(res.Repositories))
	for _, r := range res.Repositories {
		repos = append(repos, toRepo(r))
	}
	return repos, res.GetTotal(), nil
}

// GetRepo returns a repository with its README.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (Repo, error) {
	if owner == "" || name == "" {
		return Repo{}, errors.New("owner and repo are required")
	}
	r, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return Repo{}, fmt.Errorf("github repo: %w", err)
	}
	repo := toRepo(r)

	readme, resp, err := c.gh.Repositories.GetReadme(ctx, owner, name, nil)
	switch {
	case err == nil:
		content, cerr := readme.GetContent()
		if cerr == nil {
			repo.Readme = clip(content, c.MaxReadme)
		}
	case resp != nil && resp.StatusCode == http.StatusNotFound:
	default:
		return repo, fmt.Errorf("github readme: %w", err)
	}
	return repo, nil
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, owner, name, title, body string, labels []string) (Issue, error) {
	if owner == "" || name == "" {
		return Issue{}, errors.New("owner and repo are required")
	}
	if strings.TrimSpace(title) == "" {
		return Issue{}, errors.New("title is required")
	}
	req := &github.IssueRequest{Title: github.String(title)}
	if body != "" {
		req.Body = github.String(body)
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	iss, _, err := c.gh.Issues.Create(ctx, owner, name, req)
	if err != nil {
		return Issue{}, fmt.Errorf("github issue: %w", err)
	}
	return Issue{
		Number: iss.GetNumber(),
		URL:    iss.GetHTMLURL(),
		Title:  iss.GetTitle(),
		State:  iss.GetState(),
	}, nil
}

// StatusCode extracts the HTTP status of a GitHub API error, or 0.
func StatusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	var arl *github.AbuseRateLimitError
	if errors.As(err, &arl) {
		return http.StatusTooManyRequests
	}
	return 0
}

func toRepo(r *github.Repository) Repo {
	repo := Repo{
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		URL:         r.GetHTMLURL(),
		Language:    r.GetLanguage(),
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		OpenIssues:  r.GetOpenIssuesCount(),
		Topics:      r.Topics,
	}
	if l := r.GetLicense(); l != nil {
		repo.License = l.GetSPDXID()
	}
	if !r.GetUpdatedAt().IsZero() {
		repo.UpdatedAt = r.GetUpdatedAt().Format("2006-01-02")
	}
	return repo
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "\n…"
}
