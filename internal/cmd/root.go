package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error

	// clients replaces the LLM client factory in tests.
	clients agent.ClientFactory
}

// app builds the services for a command. CLI commands other than serve
// only log warnings unless a log level was asked for.
func (rt *runtime) app(ctx context.Context, withMCP bool) (*app, error) {
	return newApp(ctx, &rt.cfg, appOptions{withMCP: withMCP, clients: rt.clients})
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}
	return newRootCmd(rt)
}

func newRootCmd(rt *runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "superagent",
		Short:         "Chat backend that routes conversations to LLMs and vendor tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			cobra.OnFinalize(stop)
			cmd.SetContext(ctx)
			if !cmd.Flags().Changed("log-level") && cmd.Name() != "serve" && rt.cfg.LogLevel == "info" {
				rt.cfg.LogLevel = "warn"
			}
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&rt.cfg.Quiet, "quiet", "q", rt.cfg.Quiet, flagDesc("quiet"))
	flags.StringVar(&rt.cfg.LogLevel, "log-level", rt.cfg.LogLevel, flagDesc("log-level"))
	flags.StringVar(&rt.cfg.LogFormat, "log-format", rt.cfg.LogFormat, flagDesc("log-format"))

	rootCmd.AddCommand(
		newServeCmd(rt),
		newChatCmd(rt),
		newModelsCmd(rt),
		newAgentsCmd(rt),
		newToolsCmd(rt),
		newMCPCmd(rt),
		newHistoryCmd(rt),
		newConfigCmd(rt),
		newManCmd(rootCmd),
	)
	rootCmd.InitDefaultCompletionCmd()
	return rootCmd
}

func appName() string {
	return filepath.Base(os.Args[0])
}

func sortedKeys[V any](m map[string]V, prefix string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
