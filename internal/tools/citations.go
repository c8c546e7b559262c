package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/citation"
	"github.com/opensuperagent/superagent/internal/errs"
)

type sourceArgs struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Published string `json:"published"`
}

type citationsArgs struct {
	Sources    []sourceArgs `json:"sources"`
	MaxSnippet int          `json:"maxSnippet"`
}

type citationsResult struct {
	References []citation.Reference `json:"references"`
	Markdown   string               `json:"markdown"`
}

var publishedLayouts = []string{time.RFC3339, time.DateOnly, "2006-01", "January 2, 2006", "Jan 2, 2006"}

func parsePublished(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatCitations() Tool {
	return Tool{
		Definition: mcp.NewTool("format_citations",
			mcp.WithDescription("Deduplicate and number sources, and render a reference list to append to the answer."),
			mcp.WithArray("sources", mcp.Required(), mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":     map[string]any{"type": "string"},
					"url":       map[string]any{"type": "string"},
					"snippet":   map[string]any{"type": "string"},
					"published": map[string]any{"type": "string", "description": "Publication date, e.g. 2024-05-01"},
				},
				"required": []string{"url"},
			})),
			mcp.WithNumber("maxSnippet", mcp.Description("Truncate snippets to this many characters; 0 omits them"), mcp.Min(0)),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		Handler: typed(func(_ context.Context, in citationsArgs) (citationsResult, error) {
			if len(in.Sources) == 0 {
				return citationsResult{}, errs.Invalid(errors.New("no sources"), "At least one source is required.")
			}
			sources := make([]citation.Source, 0, len(in.Sources))
			for _, s := range in.Sources {
				sources = append(sources, citation.Source{
					Title:     s.Title,
					URL:       s.URL,
					Snippet:   s.Snippet,
					Published: parsePublished(s.Published),
				})
			}
			refs := citation.Number(sources, citation.Options{MaxSnippet: in.MaxSnippet})
			return citationsResult{References: refs, Markdown: citation.Render(refs)}, nil
		}),
	}
}
