package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const maxRemoteInstructionBytes = 2 * 1024 * 1024

// LoadMsg resolves an agent instruction.
//
// Supported inputs:
//   - raw strings
//   - http(s) URLs
//   - file:// paths
//
// For markdown files loaded via file://, YAML frontmatter is stripped.
func LoadMsg(msg string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return LoadMsgContext(ctx, msg)
}

// LoadMsgContext is LoadMsg bounded by ctx.
func LoadMsgContext(ctx context.Context, msg string) (string, error) {
	if strings.HasPrefix(msg, "https://") || strings.HasPrefix(msg, "http://") {
		return fetchInstruction(ctx, msg)
	}

	if path, ok := strings.CutPrefix(msg, "file://"); ok {
		bts, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read instruction file: %w", err)
		}
		content := string(bts)
		if strings.EqualFold(filepath.Ext(path), ".md") {
			return StripYAMLFrontmatter(content)
		}
		return content, nil
	}

	return msg, nil
}

// Resolve loads every instruction of the agent in order.
func (a Agent) Resolve(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(a.Instructions))
	for _, in := range a.Instructions {
		msg, err := LoadMsgContext(ctx, in)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func fetchInstruction(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch instruction: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch instruction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bts, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("fetch instruction: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bts)))
	}
	bts, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteInstructionBytes))
	if err != nil {
		return "", fmt.Errorf("read instruction: %w", err)
	}
	if len(bts) >= maxRemoteInstructionBytes {
		return "", fmt.Errorf("read instruction: response too large (>%d bytes)", maxRemoteInstructionBytes)
	}
	return string(bts), nil
}

// StripYAMLFrontmatter removes YAML frontmatter from markdown content.
func StripYAMLFrontmatter(content string) (string, error) {
	lines := strings.Split(content, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return content, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", fmt.Errorf("invalid markdown frontmatter: missing closing delimiter")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &parsed); err != nil {
		return "", fmt.Errorf("invalid markdown frontmatter: %w", err)
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\r\n"), nil
}
