package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/websearch"
)

type webSearchArgs struct {
	Query       string   `json:"query"`
	K           int      `json:"k"`
	Sites       []string `json:"sites"`
	RecencyDays int      `json:"recencyDays"`
}

type webSearchResult struct {
	Query   string             `json:"query"`
	Results []websearch.Result `json:"results"`
}

func webSearch(s websearch.Searcher) Tool {
	return Tool{
		Definition: mcp.NewTool("web_search",
			mcp.WithDescription("Search the web. Returns titles, URLs and snippets; cite the URLs you use."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("k", mcp.Description("Number of results"), mcp.Min(1), mcp.Max(25), mcp.DefaultNumber(10)),
			mcp.WithArray("sites", mcp.Description("Only return results from these domains"), mcp.WithStringItems()),
			mcp.WithNumber("recencyDays", mcp.Description("Only return results from the last N days"), mcp.Min(0)),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
		),
		Handler: typed(func(ctx context.Context, in webSearchArgs) (webSearchResult, error) {
			results, err := s.Search(ctx, websearch.Query{Text: in.Query, K: in.K, Sites: in.Sites, RecencyDays: in.RecencyDays})
			if err != nil {
				if errors.Is(err, websearch.ErrEmptyQuery) {
					return webSearchResult{}, errs.Invalid(err, "A search query is required.")
				}
				return webSearchResult{}, httpx.Classify(err, "Web search failed.")
			}
			if results == nil {
				results = []websearch.Result{}
			}
			return webSearchResult{Query: in.Query, Results: results}, nil
		}),
	}
}
