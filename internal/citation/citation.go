// Package citation numbers, de-duplicates and renders the sources an agent
// cites in its answers.
package citation

import (
	"fmt"
	"strings"
	"time"
)

// Source is a single referenced document.
type Source struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet,omitempty"`
	Published time.Time `json:"published,omitempty"`
}

// Reference is a numbered, rendered source.
type Reference struct {
	Number int    `json:"number"`
	Source Source `json:"source"`
	Domain string `json:"domain"`
	Text   string `json:"text"`
}

// Options control rendering.
type Options struct {
	// MaxSnippet truncates snippets; zero omits them.
	MaxSnippet int
}

// Dedupe drops sources whose canonical URL was already seen, keeping the
// first occurrence. Sources with unparseable URLs are kept as-is.
func Dedupe(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		key, err := CanonicalURL(s.URL)
		if err != nil {
			key = strings.TrimSpace(s.URL)
		} else {
			s.URL = key
		}
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// Number de-duplicates sources and assigns 1-based reference numbers.
func Number(sources []Source, opts Options) []Reference {
	deduped := Dedupe(sources)
	refs := make([]Reference, 0, len(deduped))
	for i, s := range deduped {
		r := Reference{Number: i + 1, Source: s, Domain: Domain(s.URL)}
		r.Text = Format(r, opts)
		refs = append(refs, r)
	}
	return refs
}

// Format renders a reference as:
//
//	[n] Title. domain, 2006-01-02. "snippet" <url>
func Format(r Reference, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] ", r.Number)

	title := strings.TrimSpace(r.Source.Title)
	if title == "" {
		title = r.Domain
	}
	if title == "" {
		title = "Untitled"
	}
	b.WriteString(strings.TrimSuffix(title, "."))
	b.WriteString(".")

	var meta []string
	if r.Domain != "" {
		meta = append(meta, r.Domain)
	}
	if !r.Source.Published.IsZero() {
		meta = append(meta, r.Source.Published.Format(time.DateOnly))
	}
	if len(meta) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(meta, ", "))
		b.WriteString(".")
	}

	if snippet := clip(strings.Join(strings.Fields(r.Source.Snippet), " "), opts.MaxSnippet); snippet != "" {
		fmt.Fprintf(&b, " %q", snippet)
	}
	if r.Source.URL != "" {
		fmt.Fprintf(&b, " <%s>", r.Source.URL)
	}
	return b.String()
}

// Render joins references into a markdown list under a heading.
func Render(refs []Reference) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**Sources**\n\n")
	for _, r := range refs {
		b.WriteString("- ")
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func clip(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
