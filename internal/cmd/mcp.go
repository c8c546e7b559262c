package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	mmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	imcp "github.com/opensuperagent/superagent/internal/mcp"
	"github.com/opensuperagent/superagent/internal/present"
	"github.com/opensuperagent/superagent/internal/tools"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			mcpList(cmd.OutOrStdout(), &rt.cfg)
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List tools from enabled MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.MCPTimeout)
			defer cancel()
			return mcpListTools(ctx, cmd.OutOrStdout(), imcp.New(&rt.cfg, nil))
		},
	})

	var patterns []string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			// stdout carries the protocol, so logs must not go there.
			a, err := newApp(cmd.Context(), &rt.cfg, appOptions{clients: rt.clients, logOutput: os.Stderr})
			if err != nil {
				return err
			}
			defer a.Close()
			s := tools.NewMCPServer(a.registry, rt.build.Version, patterns...)
			a.logger.Info("serving tools over stdio", "tools", len(a.registry.Names(patterns...)))
			return tools.ServeStdio(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	serveCmd.Flags().StringSliceVar(&patterns, "tools", nil, flagDesc("tools"))
	mcpCmd.AddCommand(serveCmd)

	return mcpCmd
}

func mcpList(w io.Writer, cfg *config.Config) {
	svc := imcp.New(cfg, nil)
	names := slices.Sorted(maps.Keys(cfg.MCPServers))
	for _, name := range names {
		s := name
		if svc.IsEnabled(name) {
			s += present.StdoutStyles().Timeago.Render(" (enabled)")
		}
		_, _ = fmt.Fprintln(w, s)
	}
}

func mcpListTools(ctx context.Context, w io.Writer, svc *imcp.Service) error {
	servers, err := svc.Tools(ctx)
	if err != nil {
		return errs.Unavailable(err, "Could not list MCP tools.")
	}
	for _, sname := range slices.Sorted(maps.Keys(servers)) {
		list := servers[sname]
		slices.SortFunc(list, func(a, b mmcp.Tool) int { return cmp.Compare(a.Name, b.Name) })
		for _, tool := range list {
			_, _ = fmt.Fprint(w, present.StdoutStyles().Timeago.Render(sname+" > "))
			_, _ = fmt.Fprintln(w, tool.Name)
		}
	}
	return nil
}
