package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Settings stay editable when they fail to parse.
			return editSettings(cmd.ErrOrStderr(), &rt.cfg)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open settings in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return editSettings(cmd.ErrOrStderr(), &rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return resetSettings(cmd.ErrOrStderr(), &rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:       "dirs [config|cache]",
		Short:     "Print config and cache directories",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "cache"},
		RunE: func(cmd *cobra.Command, args []string) error {
			printDirs(cmd.OutOrStdout(), &rt.cfg, args)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			present.PrintConfirmation(cmd.OutOrStdout(), "ok", rt.cfg.SettingsPath)
			return nil
		},
	})

	return configCmd
}

func editSettings(errOut io.Writer, cfg *config.Config) error {
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return err //nolint:wrapcheck
	}

	c, err := editor.Cmd(appName(), cfg.SettingsPath)
	if err != nil {
		return errs.Wrap(err, "Could not edit your settings file.")
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Wrap(err, fmt.Sprintf(
			"Missing %s.",
			present.StderrStyles().InlineCode.Render("$EDITOR"),
		))
	}

	if !cfg.Quiet {
		_, _ = fmt.Fprintln(errOut, "Wrote config file to:", cfg.SettingsPath)
	}
	return nil
}

// resetSettings moves the settings file to a .bak file and writes the
// defaults in its place.
func resetSettings(errOut io.Writer, cfg *config.Config) error {
	backup := cfg.SettingsPath + ".bak"
	if _, err := os.Stat(cfg.SettingsPath); err != nil {
		return errs.Wrap(err, "Couldn't read config file.")
	}
	if err := os.Rename(cfg.SettingsPath, backup); err != nil {
		return errs.Wrap(err, "Couldn't backup config file.")
	}
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return errs.Wrap(err, "Couldn't write new config file.")
	}

	if !cfg.Quiet {
		_, _ = fmt.Fprintln(errOut, "\nSettings restored to defaults!")
		_, _ = fmt.Fprintf(
			errOut,
			"\n  %s %s\n\n",
			present.StderrStyles().Comment.Render("Your old settings have been saved to:"),
			present.StderrStyles().Link.Render(backup),
		)
	}
	return nil
}

func printDirs(w io.Writer, cfg *config.Config, args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			_, _ = fmt.Fprintln(w, filepath.Dir(cfg.SettingsPath))
			return
		case "cache":
			_, _ = fmt.Fprintln(w, cfg.CachePath)
			return
		}
	}

	_, _ = fmt.Fprintf(w, "Configuration: %s\n", filepath.Dir(cfg.SettingsPath))
	//nolint:mnd
	_, _ = fmt.Fprintf(w, "%*sCache: %s\n", 8, " ", cfg.CachePath)
}
