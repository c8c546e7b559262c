package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			a, err := rt.app(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.cfg, server.Options{
				Agent:   a.agent,
				Tools:   a.registry,
				Images:  a.deps.Images,
				Browser: a.deps.Browser,
				Pages:   a.deps.Pages,
				History: a.history,
				Metrics: a.metrics,
				Logger:  a.logger,
			})
			a.logger.Info("serving",
				"addr", a.cfg.Listen,
				"tools", len(a.registry.Names()),
				"agents", len(a.cfg.Agents),
				"model_store", a.cfg.ModelStore,
			)
			return srv.Run(cmd.Context(), a.cfg.Listen)
		},
	}
	cmd.Flags().StringVarP(&rt.cfg.Listen, "listen", "l", rt.cfg.Listen, flagDesc("listen"))
	cmd.Flags().StringSliceVar(&rt.cfg.CORSOrigins, "cors-origin", rt.cfg.CORSOrigins, "Allowed CORS origins")
	cmd.Flags().IntVar(&rt.cfg.RateLimit, "rate-limit", rt.cfg.RateLimit, "Requests per minute per client; 0 disables")
	return cmd
}
