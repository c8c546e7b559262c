package citation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	for in, want := range map[string]string{
		"HTTPS://Example.com:443/a/../b/?utm_source=x&z=2&a=1#frag": "https://example.com/b/?a=1&z=2",
		"example.com":                   "https://example.com/",
		"//example.com/x":               "https://example.com/x",
		"http://example.com:80/docs":    "http://example.com/docs",
		"http://example.com:8080/docs":  "http://example.com:8080/docs",
		"https://go.dev/doc?fbclid=abc": "https://go.dev/doc",
		"https://go.dev/search?q=b&q=a": "https://go.dev/search?q=a&q=b",
	} {
		t.Run(in, func(t *testing.T) {
			got, err := CanonicalURL(in)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}

	_, err := CanonicalURL("  ")
	require.EqualError(t, err, "empty url")
}

func TestNumber(t *testing.T) {
	published := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	refs := Number([]Source{
		{Title: "Go 1.22 release notes.", URL: "https://www.go.dev/doc/go1.22?utm_medium=feed", Published: published, Snippet: "Go 1.22   brings\nrange over int"},
		{Title: "Duplicate", URL: "https://www.go.dev/doc/go1.22"},
		{URL: "https://pkg.go.dev/slices"},
	}, Options{MaxSnippet: 14})

	require.Len(t, refs, 2)
	require.Equal(t, 1, refs[0].Number)
	require.Equal(t, "go.dev", refs[0].Domain)
	require.Equal(t, `[1] Go 1.22 release notes. go.dev, 2024-03-09. "Go 1.22 brings…" <https://www.go.dev/doc/go1.22>`, refs[0].Text)
	require.Equal(t, `[2] pkg.go.dev. pkg.go.dev. <https://pkg.go.dev/slices>`, refs[1].Text)

	require.Equal(t, "**Sources**\n\n- "+refs[0].Text+"\n- "+refs[1].Text+"\n", Render(refs))
	require.Empty(t, Render(nil))
}
