package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
)

const markdownTabWidth = 4

func init() {
	// Chroma error tokens otherwise render with a red background.
	glamourstyles.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamourstyles.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
}

// RenderMarkdownForTTY renders markdown for terminal output, wrapping at
// wordWrap columns.
func RenderMarkdownForTTY(input string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("new markdown renderer: %w", err)
	}

	out, err := r.Render(input)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth))
	return out + "\n", nil
}

// MaybeRenderMarkdown renders input when tty is set and returns it
// unchanged otherwise or when rendering fails.
func MaybeRenderMarkdown(input string, wordWrap int, tty bool) string {
	if !tty {
		return input
	}
	out, err := RenderMarkdownForTTY(input, wordWrap)
	if err != nil {
		return input
	}
	return out
}
