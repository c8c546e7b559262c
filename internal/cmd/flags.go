package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/duration"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opensuperagent/superagent/internal/present"
	"github.com/opensuperagent/superagent/internal/storage"
)

var helpText = map[string]string{
	"api":           "OpenAI compatible REST API (openai, anthropic, google, ollama, etc.)",
	"model":         "Default model (gpt-4o, claude-sonnet-4, etc.)",
	"agent":         "Agent to run the conversation with",
	"title":         "Title for the saved conversation",
	"continue":      "Continue from a conversation by ID or title",
	"continue-last": "Continue the last conversation",
	"no-cache":      "Don't save the conversation",
	"quiet":         "Quiet mode (hide tool activity and save notices)",
	"format":        "Render the reply as markdown when writing to a terminal",
	"editor":        "Edit the prompt in your $EDITOR",
	"word-wrap":     "Wrap formatted output at specific width",
	"max-retries":   "Maximum number of times to retry API calls",
	"max-steps":     "Maximum number of model steps per turn",
	"tools":         "Tool name patterns to offer instead of the agent's",
	"listen":        "Address to listen on",
	"log-level":     "Log level (debug, info, warn, error)",
	"log-format":    "Log format (text, json, logfmt)",
	"older-than":    "Delete conversations not updated within this duration; e.g. 24h, 7d",
	"mcp-disable":   "Disable specific MCP servers",
}

func flagDesc(name string) string {
	return present.StdoutStyles().FlagDesc.Render(helpText[name])
}

func registerConversationCompletion(cmd *cobra.Command, flag string, cachePath func() string) {
	_ = cmd.RegisterFlagCompletionFunc(flag, func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return conversationCompletions(cachePath(), toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

func conversationCompletions(cachePath, toComplete string) []string {
	if cachePath == "" {
		return nil
	}
	db, err := storage.Open(cachePath)
	if err != nil {
		return nil
	}
	defer db.Close() //nolint:errcheck
	return db.Completions(toComplete)
}

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	s := err.Error()
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		ps := strings.Split(s, "-")
		switch len(ps) {
		case 2: //nolint:mnd
			flag = "-" + ps[len(ps)-1]
		case 3: //nolint:mnd
			flag = "--" + ps[len(ps)-1]
		}
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimPrefix(s, "unknown flag: ")
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		re := regexp.MustCompile(`unknown shorthand flag: '.*' in (-\w)`)
		if parts := re.FindStringSubmatch(s); len(parts) > 1 {
			flag = parts[1]
		}
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		re := regexp.MustCompile(`invalid argument ".*" for "(.*)" flag: .*`)
		if parts := re.FindStringSubmatch(s); len(parts) > 1 {
			flag = parts[1]
		}
	default:
		reason = s
	}
	return flagParseError{
		err:    err,
		reason: reason,
		flag:   flag,
	}
}

type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string        { return f.err.Error() }
func (f flagParseError) ReasonFormat() string { return f.reason }
func (f flagParseError) Flag() string         { return f.flag }

// durationFlag is a time.Duration flag that also accepts days and weeks.
type durationFlag time.Duration

var _ pflag.Value = (*durationFlag)(nil)

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	*d = durationFlag(v)
	//nolint: wrapcheck
	return err
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}
