package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
)

func newModelsCmd(rt *runtime) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List and select models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listModels(cmd, rt)
		},
	}

	modelsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listModels(cmd, rt)
		},
	})

	var api string
	setCmd := &cobra.Command{
		Use:   "set [model]",
		Short: "Select the default model",
		Long:  "Select the model used when a request names none. Without a model name, pick one interactively.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			a, err := rt.app(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				if !present.IsInputTTY() {
					return errs.Invalid(errs.UserErrorf("missing model name"), "Missing model name.")
				}
				if api, name, err = askModel(a.cfg); err != nil {
					return err
				}
			}
			sel, err := a.agent.SetModel(cmd.Context(), api, name)
			if err != nil {
				return err
			}
			present.PrintConfirmation(cmd.OutOrStdout(), "selected", fmt.Sprintf("%s (%s)", sel.Model, sel.API))
			if a.cfg.ModelStore == config.ModelStoreMemory && !a.cfg.Quiet {
				fmt.Fprintf(
					cmd.ErrOrStderr(),
					"\n%s\n",
					present.StderrStyles().Comment.Render("The model store is in memory, so this selection ends with this command. Set model-store to redis to share it with the server."),
				)
			}
			return nil
		},
	}
	setCmd.Flags().StringVarP(&api, "api", "a", "", flagDesc("api"))
	_ = setCmd.RegisterFlagCompletionFunc("api", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(rt.cfg.APIs))
		for _, a := range rt.cfg.APIs {
			names = append(names, a.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	modelsCmd.AddCommand(setCmd)

	return modelsCmd
}

func listModels(cmd *cobra.Command, rt *runtime) error {
	if rt.cfgErr != nil {
		return rt.cfgErr
	}
	a, err := rt.app(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	sel, err := a.agent.Selection(cmd.Context())
	if err != nil {
		return err
	}
	printModels(cmd.OutOrStdout(), agent.Models(a.cfg, sel))
	return nil
}

func printModels(w io.Writer, models []agent.ModelInfo) {
	styles := present.StdoutStyles()
	for _, m := range models {
		line := m.Name
		if len(m.Aliases) > 0 {
			line += styles.Comment.Render(fmt.Sprintf(" %v", m.Aliases))
		}
		line += styles.Timeago.Render(" (" + m.API + ")")
		if m.Current {
			line += styles.Current.Render(" (current)")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// askModel lets the user pick an API and one of its models.
func askModel(cfg *config.Config) (string, string, error) {
	apis := make([]huh.Option[string], 0, len(cfg.APIs))
	opts := map[string][]huh.Option[string]{}
	for _, api := range cfg.APIs {
		apis = append(apis, huh.NewOption(api.Name, api.Name))
		for _, name := range sortedKeys(api.Models, "") {
			opts[api.Name] = append(opts[api.Name], huh.NewOption(name, name))
		}
	}
	if len(apis) == 0 {
		return "", "", errs.Invalid(errs.UserErrorf("no apis configured"), "There are no models to choose from.")
	}

	api, model := cfg.API, cfg.Model
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the API:").
				Options(apis...).
				Value(&api),
			huh.NewSelect[string]().
				TitleFunc(func() string {
					return fmt.Sprintf("Choose the model for '%s':", api)
				}, &api).
				OptionsFunc(func() []huh.Option[string] {
					return opts[api]
				}, &api).
				Value(&model),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", "", errs.Wrap(err, "User canceled.")
	}
	if err != nil {
		return "", "", errs.Wrap(err, "Prompt failed.")
	}
	return api, model, nil
}

func newAgentsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			printAgents(cmd.OutOrStdout(), &rt.cfg)
			return nil
		},
	}
}

func printAgents(w io.Writer, cfg *config.Config) {
	styles := present.StdoutStyles()
	for _, name := range agentNames(cfg, "") {
		line := name
		if name == cfg.DefaultAgent {
			line += styles.Current.Render(" (default)")
		}
		if desc := cfg.Agents[name].Description; desc != "" {
			line += styles.Comment.Render(" " + desc)
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
