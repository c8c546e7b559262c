package tools

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/api/googleapi"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/presentation"
	"github.com/opensuperagent/superagent/internal/workspace"
)

type gdocsArgs struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	ShareWith []string `json:"shareWith"`
}

type gslidesArgs struct {
	presentation.Outline
	ShareWith []string `json:"shareWith"`
}

type presentationArgs struct {
	presentation.Outline
	ExportToGoogleSlides bool     `json:"exportToGoogleSlides"`
	ShareWith            []string `json:"shareWith"`
}

var slideSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":    map[string]any{"type": "string"},
		"subtitle": map[string]any{"type": "string"},
		"bullets":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"notes":    map[string]any{"type": "string", "description": "Speaker notes"},
		"layout": map[string]any{
			"type": "string",
			"enum": []string{presentation.LayoutTitle, presentation.LayoutTitleAndBody, presentation.LayoutSection, presentation.LayoutImage},
		},
		"imageUrl": map[string]any{"type": "string"},
	},
	"required": []string{"title"},
}

func googleError(err error, reason string) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if strings.Contains(err.Error(), "required") {
			return errs.Invalid(err, reason)
		}
		return errs.Upstream(err, reason)
	}
	switch {
	case gerr.Code == http.StatusNotFound:
		return errs.NotFound(err, reason)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
		return errs.Unavailable(err, reason)
	}
	return errs.Upstream(err, reason)
}

func gdocsCreate(ws *workspace.Client) Tool {
	return Tool{
		Definition: mcp.NewTool("gdocs_create",
			mcp.WithDescription("Create a Google Doc and return its link."),
			mcp.WithString("title", mcp.Required()),
			mcp.WithString("content", mcp.Description("Plain text body")),
			mcp.WithArray("shareWith", mcp.Description("Email addresses to share with"), mcp.WithStringItems()),
		),
		Handler: typed(func(ctx context.Context, in gdocsArgs) (workspace.File, error) {
			f, err := ws.CreateDocument(ctx, in.Title, in.Content, in.ShareWith)
			return f, googleError(err, "Could not create the Google Doc.")
		}),
	}
}

func gslidesCreate(ws *workspace.Client) Tool {
	return Tool{
		Definition: mcp.NewTool("gslides_create",
			mcp.WithDescription("Create a Google Slides deck from a slide outline and return its link."),
			mcp.WithString("title", mcp.Required()),
			mcp.WithArray("slides", mcp.Required(), mcp.Items(slideSchema), mcp.MaxItems(presentation.MaxSlides)),
			mcp.WithArray("shareWith", mcp.WithStringItems()),
		),
		Handler: typed(func(ctx context.Context, in gslidesArgs) (workspace.File, error) {
			o, err := presentation.Normalize(in.Outline)
			if err != nil {
				return workspace.File{}, errs.Invalid(err, "Invalid slide outline.")
			}
			f, err := ws.CreateDeck(ctx, o, in.ShareWith)
			return f, googleError(err, "Could not create the Google Slides deck.")
		}),
	}
}

// createPresentation validates an outline and returns the preview the UI
// renders. With a workspace client it can also export to Google Slides.
func createPresentation(ws *workspace.Client) Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Build a slide presentation. Returns a preview with one entry per slide."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("theme", mcp.Description("Visual theme name")),
		mcp.WithArray("slides", mcp.Required(), mcp.Items(slideSchema), mcp.MaxItems(presentation.MaxSlides)),
	}
	if ws != nil {
		opts = append(opts,
			mcp.WithBoolean("exportToGoogleSlides", mcp.Description("Also create a Google Slides deck")),
			mcp.WithArray("shareWith", mcp.WithStringItems()),
		)
	}
	return Tool{
		Definition: mcp.NewTool("create_presentation", opts...),
		Handler: typed(func(ctx context.Context, in presentationArgs) (presentation.Preview, error) {
			o, err := presentation.Normalize(in.Outline)
			if err != nil {
				return presentation.Preview{}, errs.Invalid(err, "Invalid slide outline.")
			}
			var exportURL string
			if in.ExportToGoogleSlides && ws != nil {
				f, err := ws.CreateDeck(ctx, o, in.ShareWith)
				if err != nil {
					return presentation.Preview{}, googleError(err, "Could not export to Google Slides.")
				}
				exportURL = f.URL
			}
			return presentation.NewPreview(o, exportURL), nil
		}),
	}
}
