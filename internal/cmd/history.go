package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"conversations"},
		Short:   "Manage saved conversations",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

// withHistory opens the conversation history for the duration of fn.
func withHistory(rt *runtime, fn func(h *storage.History) error) error {
	if rt.cfgErr != nil {
		return rt.cfgErr
	}
	h, err := storage.OpenHistory(rt.cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Could not open the conversation history.")
	}
	defer h.Close() //nolint:errcheck
	return fn(h)
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	var raw bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(rt, func(h *storage.History) error {
				return listConversations(cmd.OutOrStdout(), cmd.ErrOrStderr(), h, raw)
			})
		},
	}
	listCmd.Flags().BoolVarP(&raw, "raw", "r", false, "Print the list instead of picking from it")
	return listCmd
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var raw bool
	showCmd := &cobra.Command{
		Use:   "show [id-or-title]",
		Short: "Show a saved conversation; the latest one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drainStdin()
			var in string
			if len(args) == 1 {
				in = args[0]
			}
			return withHistory(rt, func(h *storage.History) error {
				out := cmd.OutOrStdout()
				return showConversation(out, h, in, rt.cfg.WordWrap, !raw && present.IsTerminal(out))
			})
		},
	}
	showCmd.Flags().BoolVarP(&raw, "raw", "r", false, "Print markdown without rendering it")
	showCmd.ValidArgsFunction = func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return conversationCompletions(rt.cfg.CachePath, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-title> [more...]",
		Short: "Delete saved conversations",
		Args:  cobra.MinimumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return conversationCompletions(rt.cfg.CachePath, toComplete), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(rt, func(h *storage.History) error {
				return deleteConversations(cmd.ErrOrStderr(), &rt.cfg, h, args)
			})
		},
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversations older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errs.Invalid(errs.UserErrorf("missing --older-than"), "Could not delete old conversations.")
			}
			return withHistory(rt, func(h *storage.History) error {
				return pruneConversations(cmd.OutOrStdout(), cmd.ErrOrStderr(), &rt.cfg, h, olderThan)
			})
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", flagDesc("older-than"))
	return pruneCmd
}

func listConversations(out, errOut io.Writer, h *storage.History, raw bool) error {
	conversations := h.DB.List()
	if len(conversations) == 0 {
		_, _ = fmt.Fprintln(errOut, "No conversations found.")
		return nil
	}
	if !raw && present.IsInputTTY() && present.IsTerminal(out) {
		selectFromList(out, conversations)
		return nil
	}
	printList(out, conversations)
	return nil
}

func showConversation(out io.Writer, h *storage.History, in string, wordWrap int, tty bool) error {
	var (
		found storage.Conversation
		err   error
	)
	if in == "" {
		found, err = h.DB.Latest()
	} else {
		found, err = h.DB.Find(in)
	}
	if err != nil {
		return findError(err)
	}
	_, msgs, err := h.Load(found.ID)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}
	_, err = io.WriteString(out, present.MaybeRenderMarkdown(proto.Conversation(msgs), wordWrap, tty))
	return err //nolint:wrapcheck
}

func deleteConversations(errOut io.Writer, cfg *config.Config, h *storage.History, targets []string) error {
	for _, target := range targets {
		convo, err := h.DB.Find(target)
		if err != nil {
			return findError(err)
		}
		if err := h.Remove(convo.ID); err != nil {
			return errs.Wrap(err, "Couldn't delete the conversation.")
		}
		if !cfg.Quiet {
			_, _ = fmt.Fprintln(errOut, "Conversation deleted:", storage.ShortID(convo.ID))
		}
	}
	return nil
}

func pruneConversations(out, errOut io.Writer, cfg *config.Config, h *storage.History, olderThan time.Duration) error {
	conversations := h.DB.ListOlderThan(olderThan)
	if len(conversations) == 0 {
		if !cfg.Quiet {
			_, _ = fmt.Fprintln(errOut, "No conversations found.")
		}
		return nil
	}

	if !cfg.Quiet {
		printList(out, conversations)

		if !present.IsTerminal(out) || !present.IsInputTTY() {
			_, _ = fmt.Fprintln(errOut)
			//nolint:wrapcheck
			return errs.UserErrorf(
				"To delete the conversations above, run: %s",
				strings.Join(append(os.Args, "--quiet"), " "),
			)
		}
		var confirm bool
		if err := huh.Run(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete conversations older than %s?", olderThan)).
				Description(fmt.Sprintf("This will delete all the %d conversations listed above.", len(conversations))).
				Value(&confirm),
		); err != nil {
			return errs.Wrap(err, "Couldn't delete old conversations.")
		}
		if !confirm {
			//nolint:wrapcheck
			return errs.UserErrorf("Aborted by user")
		}
	}

	for _, c := range conversations {
		if err := h.Remove(c.ID); err != nil {
			return errs.Wrap(err, "Couldn't delete old conversations.")
		}
		if !cfg.Quiet {
			_, _ = fmt.Fprintln(errOut, "Conversation deleted:", storage.ShortID(c.ID))
		}
	}
	return nil
}

func findError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNoMatches):
		return errs.NotFound(err, "Could not find the conversation.")
	case errors.Is(err, storage.ErrManyMatches):
		return errs.Invalid(err, "More than one conversation matches, use a longer ID.")
	default:
		return errs.Wrap(err, "Could not find the conversation.")
	}
}

func makeOptions(conversations []storage.Conversation) []huh.Option[string] {
	styles := present.StdoutStyles()
	opts := make([]huh.Option[string], 0, len(conversations))
	for _, c := range conversations {
		timea := styles.Timeago.Render(timeago.Of(c.UpdatedAt))
		left := styles.ShortID.Render(storage.ShortID(c.ID))
		right := styles.ConversationList.Render(c.Title, timea)
		if c.Model != "" {
			right += styles.Comment.Render(c.Model)
		}
		if c.API != "" {
			right += styles.Comment.Render(" (" + c.API + ")")
		}
		opts = append(opts, huh.NewOption(left+" "+right, c.ID))
	}
	return opts
}

func selectFromList(out io.Writer, conversations []storage.Conversation) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conversations").
				Value(&selected).
				Options(makeOptions(conversations)...),
		),
	).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.PrintConfirmation(out, "COPIED", selected)

	styles := present.StdoutStyles()
	_, _ = fmt.Fprintln(out, styles.Comment.Render("You can use this conversation ID with the following commands:"))
	name := appName()
	for _, s := range []string{
		name + " history show " + selected,
		name + " chat --continue " + selected,
		name + " history delete " + selected,
	} {
		_, _ = fmt.Fprintf(out, "  %s\n", styles.InlineCode.Render(s))
	}
}

func printList(out io.Writer, conversations []storage.Conversation) {
	styles := present.StdoutStyles()
	for _, c := range conversations {
		_, _ = fmt.Fprintf(
			out,
			"%s\t%s\t%s\n",
			styles.ShortID.Render(storage.ShortID(c.ID)),
			c.Title,
			styles.Timeago.Render(timeago.Of(c.UpdatedAt)),
		)
	}
}
