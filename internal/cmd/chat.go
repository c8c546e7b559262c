package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/datastream"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/storage"
)

type chatOptions struct {
	format     bool
	openEditor bool
}

func newChatCmd(rt *runtime) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Run one chat turn and stream the reply",
		Long: "Run one chat turn with an agent and stream the reply to stdout. " +
			"Tool activity is reported on stderr. Piped stdin is appended to the prompt.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			prompt, err := readPrompt(args, opts.openEditor)
			if err != nil {
				return err
			}
			a, err := rt.app(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, opts, prompt, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	initChatFlags(cmd, rt, &opts)
	return cmd
}

func initChatFlags(cmd *cobra.Command, rt *runtime, opts *chatOptions) {
	cfg := &rt.cfg
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, flagDesc("model"))
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, flagDesc("api"))
	flags.StringVarP(&cfg.Agent, "agent", "A", cfg.Agent, flagDesc("agent"))
	flags.StringVarP(&cfg.Title, "title", "t", cfg.Title, flagDesc("title"))
	flags.StringVarP(&cfg.Continue, "continue", "c", "", flagDesc("continue"))
	flags.BoolVarP(&cfg.ContinueLast, "continue-last", "C", false, flagDesc("continue-last"))
	flags.BoolVar(&cfg.NoCache, "no-cache", cfg.NoCache, flagDesc("no-cache"))
	flags.BoolVarP(&opts.format, "format", "f", false, flagDesc("format"))
	flags.BoolVarP(&opts.openEditor, "editor", "e", false, flagDesc("editor"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, flagDesc("word-wrap"))
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, flagDesc("max-retries"))
	flags.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, flagDesc("max-steps"))
	flags.StringArrayVar(&cfg.MCPDisable, "mcp-disable", cfg.MCPDisable, flagDesc("mcp-disable"))
	flags.SortFlags = false

	registerConversationCompletion(cmd, "continue", func() string { return cfg.CachePath })
	_ = cmd.RegisterFlagCompletionFunc("agent", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return agentNames(cfg, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	cmd.MarkFlagsMutuallyExclusive("continue", "continue-last")
}

func runChat(ctx context.Context, a *app, opts chatOptions, prompt string, out, errOut io.Writer) error {
	if strings.TrimSpace(prompt) == "" {
		return errs.Error{
			Reason: "You haven't provided any prompt input.",
			Err: errs.UserErrorf(
				"You can give your prompt as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render("superagent chat [prompt]"),
			),
		}
	}

	pl, err := planConversation(a.cfg, a.history.DB)
	if err != nil {
		return err
	}
	var history []proto.Message
	if pl.ReadID != "" {
		_, history, err = a.history.Load(pl.ReadID)
		if err != nil {
			return errs.Wrap(err, "There was a problem reading the conversation from cache.")
		}
	}

	sink := newTermSink(out, errOut, a.cfg.Quiet, opts.format && present.IsTerminal(out))
	res, err := a.agent.Run(ctx, agent.Turn{
		Agent:    pl.Agent,
		API:      pl.API,
		Model:    pl.Model,
		Messages: append(history, proto.Message{Role: proto.RoleUser, Content: prompt}),
	}, sink)
	if err != nil {
		return err
	}
	if err := sink.flush(a.cfg.WordWrap); err != nil {
		return err
	}

	if a.cfg.NoCache {
		if !a.cfg.Quiet {
			fmt.Fprintf(
				errOut,
				"\nConversation was not saved because %s or %s is set.\n",
				present.StderrStyles().InlineCode.Render("--no-cache"),
				present.StderrStyles().InlineCode.Render("SUPERAGENT_NO_CACHE"),
			)
		}
		return nil
	}
	convo, err := a.history.Record(pl.WriteID, pl.Title, storage.Conversation{
		Agent: res.Agent,
		API:   res.API,
		Model: res.Model,
	}, res.Messages)
	if err != nil {
		return errs.Wrap(err, fmt.Sprintf(
			"There was a problem writing %s to the cache. Use %s to disable it.",
			storage.ShortID(pl.WriteID),
			present.StderrStyles().InlineCode.Render("--no-cache"),
		))
	}
	if !a.cfg.Quiet {
		fmt.Fprintln(
			errOut,
			"\nConversation saved:",
			present.StderrStyles().InlineCode.Render(storage.ShortID(convo.ID)),
			present.StderrStyles().Comment.Render(convo.Title),
		)
	}
	return nil
}

// termSink writes reply text to out and tool activity to errOut. When
// buffering, text is held back and rendered as markdown by flush.
type termSink struct {
	out, errOut io.Writer
	quiet       bool
	buffer      bool
	text        strings.Builder
	tools       map[string]string
	wroteText   bool
}

var _ agent.Sink = (*termSink)(nil)

func newTermSink(out, errOut io.Writer, quiet, buffer bool) *termSink {
	return &termSink{out: out, errOut: errOut, quiet: quiet, buffer: buffer, tools: map[string]string{}}
}

func (s *termSink) StartStep(string) error { return nil }
func (s *termSink) Reasoning(string) error { return nil }

func (s *termSink) Text(delta string) error {
	s.wroteText = true
	if s.buffer {
		s.text.WriteString(delta)
		return nil
	}
	_, err := io.WriteString(s.out, delta)
	return err
}

func (s *termSink) ToolCall(id, name string, args []byte) error {
	s.tools[id] = name
	if s.quiet {
		return nil
	}
	styles := present.StderrStyles()
	_, err := fmt.Fprintf(s.errOut, "%s %s\n", styles.ToolName.Render("→ "+name), styles.Comment.Render(truncate(string(args), 120)))
	return err
}

func (s *termSink) ToolResult(id, result string) error {
	if s.quiet {
		return nil
	}
	styles := present.StderrStyles()
	_, err := fmt.Fprintf(s.errOut, "%s %s\n", styles.ToolName.Render("← "+s.tools[id]), styles.ToolResult.Render(truncate(result, 120)))
	return err
}

func (s *termSink) FinishStep(string, datastream.Usage, bool) error { return nil }

func (s *termSink) FinishMessage(string, datastream.Usage) error {
	if s.buffer || !s.wroteText {
		return nil
	}
	_, err := io.WriteString(s.out, "\n")
	return err
}

func (s *termSink) flush(wordWrap int) error {
	if !s.buffer {
		return nil
	}
	_, err := io.WriteString(s.out, present.MaybeRenderMarkdown(s.text.String(), wordWrap, true))
	return err
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// readPrompt joins args with piped stdin, or asks the editor for a prompt
// when there is neither and openEditor is set.
func readPrompt(args []string, openEditor bool) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	in, err := readStdin()
	if err != nil {
		return "", errs.Wrap(err, "Unable to read stdin.")
	}
	prompt = joinPrompt(prompt, in)
	if prompt == "" && openEditor && present.IsInputTTY() {
		return promptFromEditor()
	}
	return prompt, nil
}

func joinPrompt(prompt, stdin string) string {
	stdin = strings.TrimSpace(stdin)
	switch {
	case stdin == "":
		return prompt
	case prompt == "":
		return stdin
	default:
		return prompt + "\n\n" + stdin
	}
}

func promptFromEditor() (string, error) {
	f, err := os.CreateTemp("", "prompt-*.md")
	if err != nil {
		return "", errs.Wrap(err, "Could not create a temporary file.")
	}
	_ = f.Close()
	defer func() { _ = os.Remove(f.Name()) }()

	c, err := editor.Cmd(appName(), f.Name())
	if err != nil {
		return "", errs.Wrap(err, "Could not open your editor.")
	}
	c.Stdin = os.Stdin
	c.Stderr = os.Stderr
	c.Stdout = os.Stdout
	if err := c.Run(); err != nil {
		return "", errs.Wrap(err, "Could not open your editor.")
	}
	prompt, err := os.ReadFile(f.Name())
	if err != nil {
		return "", errs.Wrap(err, "Could not read the prompt file.")
	}
	if strings.TrimSpace(string(prompt)) == "" {
		return "", errs.Wrap(errors.New("empty prompt"), "The editor returned an empty prompt.")
	}
	return string(prompt), nil
}

func agentNames(cfg *config.Config, prefix string) []string {
	return sortedKeys(cfg.Agents, prefix)
}
