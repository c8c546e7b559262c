// Package workspace creates Google Docs documents and Google Slides decks
// and shares them through Drive.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"

	"github.com/opensuperagent/superagent/internal/presentation"
)

// File is a created Google Workspace file.
type File struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	SharedTo []string `json:"sharedTo,omitempty"`
}

// Client groups the Docs, Slides and Drive services.
type Client struct {
	docs   *docs.Service
	slides *slides.Service
	drive  *drive.Service
	// ShareWith is shared on every created file in addition to per-call
	// recipients.
	ShareWith []string
}

// New builds the services. opts typically carry credentials
// (option.WithCredentialsFile) or, in tests, an endpoint and HTTP client.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	d, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}
	s, err := slides.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("slides service: %w", err)
	}
	dr, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{docs: d, slides: s, drive: dr}, nil
}

// CreateDocument creates a document holding content as plain paragraphs.
func (c *Client) CreateDocument(ctx context.Context, title, content string, shareWith []string) (File, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return File{}, errors.New("document title is required")
	}
	doc, err := c.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return File{}, fmt.Errorf("create document: %w", err)
	}

	if content != "" {
		req := &docs.BatchUpdateDocumentRequest{Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     content,
			},
		}}}
		if _, err := c.docs.Documents.BatchUpdate(doc.DocumentId, req).Context(ctx).Do(); err != nil {
			return File{}, fmt.Errorf("write document: %w", err)
		}
	}

	f := File{
		ID:    doc.DocumentId,
		Title: doc.Title,
		URL:   "https://docs.google.com/document/d/" + doc.DocumentId + "/edit",
	}
	return c.share(ctx, f, shareWith)
}

// CreateDeck creates a presentation from a normalized outline.
func (c *Client) CreateDeck(ctx context.Context, o presentation.Outline, shareWith []string) (File, error) {
	deck, err := c.slides.Presentations.Create(&slides.Presentation{Title: o.Title}).Context(ctx).Do()
	if err != nil {
		return File{}, fmt.Errorf("create presentation: %w", err)
	}

	if reqs := deckRequests(o); len(reqs) > 0 {
		_, err := c.slides.Presentations.BatchUpdate(deck.PresentationId, &slides.BatchUpdatePresentationRequest{
			Requests: reqs,
		}).Context(ctx).Do()
		if err != nil {
			return File{}, fmt.Errorf("fill presentation: %w", err)
		}
	}

	f := File{
		ID:    deck.PresentationId,
		Title: deck.Title,
		URL:   "https://docs.google.com/presentation/d/" + deck.PresentationId + "/edit",
	}
	return c.share(ctx, f, shareWith)
}

func deckRequests(o presentation.Outline) []*slides.Request {
	var reqs []*slides.Request
	for i, s := range o.Slides {
		slideID := fmt.Sprintf("slide_%02d", i+1)
		titleID := slideID + "_title"
		bodyID := slideID + "_body"

		layout, bodyType := "TITLE_AND_BODY", "BODY"
		switch s.Layout {
		case presentation.LayoutTitle:
			layout, bodyType = "TITLE", "SUBTITLE"
		case presentation.LayoutSection:
			layout, bodyType = "SECTION_HEADER", ""
		case presentation.LayoutImage:
			layout, bodyType = "TITLE_ONLY", ""
		}

		mappings := []*slides.LayoutPlaceholderIdMapping{{
			LayoutPlaceholder: &slides.Placeholder{Type: "TITLE"},
			ObjectId:          titleID,
		}}
		if bodyType != "" {
			mappings = append(mappings, &slides.LayoutPlaceholderIdMapping{
				LayoutPlaceholder: &slides.Placeholder{Type: bodyType},
				ObjectId:          bodyID,
			})
		}
		reqs = append(reqs,
			&slides.Request{CreateSlide: &slides.CreateSlideRequest{
				ObjectId:              slideID,
				InsertionIndex:        int64(i),
				SlideLayoutReference:  &slides.LayoutReference{PredefinedLayout: layout},
				PlaceholderIdMappings: mappings,
			}},
			&slides.Request{InsertText: &slides.InsertTextRequest{ObjectId: titleID, Text: s.Title}},
		)

		body := strings.Join(s.Bullets, "\n")
		if s.Layout == presentation.LayoutTitle {
			body = s.Subtitle
		}
		if bodyType != "" && body != "" {
			reqs = append(reqs, &slides.Request{InsertText: &slides.InsertTextRequest{ObjectId: bodyID, Text: body}})
		}
		if s.Layout == presentation.LayoutImage && s.ImageURL != "" {
			reqs = append(reqs, &slides.Request{CreateImage: &slides.CreateImageRequest{
				Url: s.ImageURL,
				ElementProperties: &slides.PageElementProperties{
					PageObjectId: slideID,
				},
			}})
		}
	}
	// the blank first slide of a new presentation
	if len(reqs) > 0 {
		reqs = append(reqs, &slides.Request{DeleteObject: &slides.DeleteObjectRequest{ObjectId: "p"}})
	}
	return reqs
}

func (c *Client) share(ctx context.Context, f File, extra []string) (File, error) {
	seen := map[string]struct{}{}
	for _, email := range append(append([]string{}, c.ShareWith...), extra...) {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		_, err := c.drive.Permissions.Create(f.ID, &drive.Permission{
			Type:         "user",
			Role:         "writer",
			EmailAddress: email,
		}).SendNotificationEmail(false).Context(ctx).Do()
		if err != nil {
			return f, fmt.Errorf("share %s with %s: %w", f.ID, email, err)
		}
		f.SharedTo = append(f.SharedTo, email)
	}
	return f, nil
}
