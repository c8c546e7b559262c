// Package presentation validates slide outlines produced by agents and
// renders the preview payload consumed by the chat UI.
package presentation

import (
	"errors"
	"fmt"
	"strings"
)

// Limits applied to outlines.
const (
	MaxSlides  = 30
	MaxBullets = 8
)

// Layouts understood by the preview and by Google Slides export.
const (
	LayoutTitle        = "title"
	LayoutTitleAndBody = "title-and-body"
	LayoutSection      = "section"
	LayoutImage        = "image"
)

// Slide is one slide of an outline.
type Slide struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Bullets  []string `json:"bullets,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Layout   string   `json:"layout,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// Outline is a whole deck.
type Outline struct {
	Title  string  `json:"title"`
	Theme  string  `json:"theme,omitempty"`
	Slides []Slide `json:"slides"`
}

// Preview is what the UI renders.
type Preview struct {
	Outline
	SlideCount int    `json:"slideCount"`
	ExportURL  string `json:"exportUrl,omitempty"`
	Markdown   string `json:"markdown"`
}

// Normalize trims fields, fills default layouts and validates the outline.
func Normalize(o Outline) (Outline, error) {
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" {
		return o, errors.New("presentation title is required")
	}
	if len(o.Slides) == 0 {
		return o, errors.New("presentation needs at least one slide")
	}
	if len(o.Slides) > MaxSlides {
		return o, fmt.Errorf("presentation has %d slides, max is %d", len(o.Slides), MaxSlides)
	}

	out := make([]Slide, 0, len(o.Slides))
	for i, s := range o.Slides {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			return o, fmt.Errorf("slide %d: title is required", i+1)
		}
		bullets := s.Bullets[:0:0]
		for _, b := range s.Bullets {
			if b = strings.TrimSpace(b); b != "" {
				bullets = append(bullets, b)
			}
		}
		if len(bullets) > MaxBullets {
			return o, fmt.Errorf("slide %d: %d bullets, max is %d", i+1, len(bullets), MaxBullets)
		}
		s.Bullets = bullets

		switch s.Layout {
		case "":
			switch {
			case i == 0:
				s.Layout = LayoutTitle
			case s.ImageURL != "":
				s.Layout = LayoutImage
			case len(s.Bullets) == 0:
				s.Layout = LayoutSection
			default:
				s.Layout = LayoutTitleAndBody
			}
		case LayoutTitle, LayoutTitleAndBody, LayoutSection, LayoutImage:
		default:
			return o, fmt.Errorf("slide %d: unknown layout %q", i+1, s.Layout)
		}
		out = append(out, s)
	}
	o.Slides = out
	return o, nil
}

// NewPreview builds the preview of a normalized outline.
func NewPreview(o Outline, exportURL string) Preview {
	return Preview{
		Outline:    o,
		SlideCount: len(o.Slides),
		ExportURL:  exportURL,
		Markdown:   Markdown(o),
	}
}

// Markdown renders the outline as markdown, one section per slide.
func Markdown(o Outline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", o.Title)
	for i, s := range o.Slides {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, s.Title)
		if s.Subtitle != "" {
			fmt.Fprintf(&b, "_%s_\n", s.Subtitle)
		}
		for _, bullet := range s.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		if s.ImageURL != "" {
			fmt.Fprintf(&b, "![](%s)\n", s.ImageURL)
		}
	}
	return b.String()
}
