package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/present"
	"github.com/opensuperagent/superagent/internal/tools"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List and call tools",
	}

	var withMCP bool
	listCmd := &cobra.Command{
		Use:   "list [pattern...]",
		Short: "List registered tools",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			a, err := rt.app(cmd.Context(), withMCP)
			if err != nil {
				return err
			}
			defer a.Close()
			printTools(cmd.OutOrStdout(), a.registry, args...)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&withMCP, "mcp", false, "Include tools from enabled MCP servers")
	toolsCmd.AddCommand(listCmd)

	toolsCmd.AddCommand(&cobra.Command{
		Use:   "call <name> [json | key=value...]",
		Short: "Call a tool directly",
		Long: "Call a tool with JSON arguments, or with key=value pairs that are sent as strings. " +
			"Arguments are read from stdin when none are given.",
		Example: `superagent tools call web_search '{"query":"go 1.25 release notes"}'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			input, err := toolInput(args[1:])
			if err != nil {
				return err
			}
			a, err := rt.app(cmd.Context(), isMCPTool(&rt.cfg, args[0]))
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.registry.Call(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			return writeToolOutput(cmd.OutOrStdout(), out)
		},
	})

	return toolsCmd
}

// isMCPTool reports whether name is bridged from a configured MCP server.
func isMCPTool(cfg *config.Config, name string) bool {
	for server := range cfg.MCPServers {
		if strings.HasPrefix(name, server+"_") {
			return true
		}
	}
	return false
}

func printTools(w io.Writer, r *tools.Registry, patterns ...string) {
	styles := present.StdoutStyles()
	for _, def := range r.Definitions(patterns...) {
		desc, _, _ := strings.Cut(def.Description, "\n")
		_, _ = fmt.Fprintf(w, "%s %s\n", styles.ToolName.Render(def.Name), styles.Comment.Render(desc))
	}
}

// toolInput builds the JSON arguments of a tool call from the command line
// or from stdin.
func toolInput(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		in, err := readStdin()
		if err != nil {
			return nil, errs.Wrap(err, "Unable to read stdin.")
		}
		in = strings.TrimSpace(in)
		if in == "" {
			return json.RawMessage("{}"), nil
		}
		args = []string{in}
	}
	if len(args) == 1 && json.Valid([]byte(args[0])) {
		return json.RawMessage(args[0]), nil
	}

	// key=value pairs, possibly quoted as a single shell-style argument.
	if len(args) == 1 {
		words, err := shellwords.Parse(args[0])
		if err != nil {
			return nil, errs.Invalid(err, "Could not parse the tool arguments.")
		}
		args = words
	}
	obj := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errs.Invalid(errs.UserErrorf("expected key=value, got %q", arg), "Invalid tool arguments.")
		}
		obj[k] = v
	}
	bts, err := json.Marshal(obj)
	if err != nil {
		return nil, errs.Wrap(err, "Invalid tool arguments.")
	}
	return bts, nil
}

func writeToolOutput(w io.Writer, out string) error {
	if json.Valid([]byte(out)) {
		var b bytes.Buffer
		if err := json.Indent(&b, []byte(out), "", "  "); err == nil {
			out = b.String()
		}
	}
	_, err := fmt.Fprintln(w, out)
	return err //nolint:wrapcheck
}
