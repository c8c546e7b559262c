package tools

import (
	"context"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/ghub"
)

type searchReposArgs struct {
	Query string `json:"query"`
	Sort  string `json:"sort"`
	Limit int    `json:"limit"`
}

type searchReposResult struct {
	Total int         `json:"total"`
	Repos []ghub.Repo `json:"repos"`
}

type repoArgs struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type createIssueArgs struct {
	Owner  string   `json:"owner"`
	Repo   string   `json:"repo"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// githubError maps GitHub API failures onto error kinds.
func githubError(err error, reason string) error {
	if err == nil {
		return nil
	}
	switch code := ghub.StatusCode(err); {
	case code == 0:
		if strings.Contains(err.Error(), "required") {
			return errs.Invalid(err, reason)
		}
		return errs.Upstream(err, reason)
	case code == http.StatusNotFound:
		return errs.NotFound(err, reason)
	case code == http.StatusTooManyRequests || code >= 500:
		return errs.Unavailable(err, reason)
	case code == http.StatusUnprocessableEntity:
		return errs.Invalid(err, reason)
	default:
		return errs.Upstream(err, reason)
	}
}

func githubTools(gh *ghub.Client) []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("github_search_repos",
				mcp.WithDescription("Search GitHub repositories using GitHub search syntax, e.g. \"language:go stars:>1000 http router\"."),
				mcp.WithString("query", mcp.Required()),
				mcp.WithString("sort", mcp.Enum("stars", "forks", "updated")),
				mcp.WithNumber("limit", mcp.Min(1), mcp.Max(50), mcp.DefaultNumber(10)),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: typed(func(ctx context.Context, in searchReposArgs) (searchReposResult, error) {
				repos, total, err := gh.SearchRepos(ctx, in.Query, in.Sort, in.Limit)
				if err != nil {
					return searchReposResult{}, githubError(err, "GitHub search failed.")
				}
				return searchReposResult{Total: total, Repos: repos}, nil
			}),
		},
		{
			Definition: mcp.NewTool("github_get_repo",
				mcp.WithDescription("Get a GitHub repository with its README."),
				mcp.WithString("owner", mcp.Required()),
				mcp.WithString("repo", mcp.Required()),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: typed(func(ctx context.Context, in repoArgs) (ghub.Repo, error) {
				repo, err := gh.GetRepo(ctx, in.Owner, in.Repo)
				return repo, githubError(err, "Could not fetch the repository.")
			}),
		},
		{
			Definition: mcp.NewTool("github_create_issue",
				mcp.WithDescription("Open an issue on a GitHub repository."),
				mcp.WithString("owner", mcp.Required()),
				mcp.WithString("repo", mcp.Required()),
				mcp.WithString("title", mcp.Required()),
				mcp.WithString("body", mcp.Description("Markdown body")),
				mcp.WithArray("labels", mcp.WithStringItems()),
			),
			Handler: typed(func(ctx context.Context, in createIssueArgs) (ghub.Issue, error) {
				iss, err := gh.CreateIssue(ctx, in.Owner, in.Repo, in.Title, in.Body, in.Labels)
				return iss, githubError(err, "Could not create the issue.")
			}),
		},
	}
}
