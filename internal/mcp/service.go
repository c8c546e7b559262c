// Package mcp connects to the MCP servers named in the settings and bridges
// their tools into the tool registry as "<server>_<tool>".
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/logging"
	"github.com/opensuperagent/superagent/internal/tools"
)

// Service lists and calls the tools of the configured MCP servers.
type Service struct {
	cfg    *config.Config
	logger *log.Logger
	dial   func(ctx context.Context, server config.MCPServerConfig) (*client.Client, error)
}

// New creates a new MCP service.
func New(cfg *config.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{cfg: cfg, logger: logger}
	s.dial = s.connect
	return s
}

// IsEnabled reports whether the named MCP server is enabled.
func (s *Service) IsEnabled(name string) bool {
	return !slices.Contains(s.cfg.MCPDisable, "*") &&
		!slices.Contains(s.cfg.MCPDisable, name)
}

// EnabledServers iterates enabled MCP servers in stable order.
func (s *Service) EnabledServers() iter.Seq2[string, config.MCPServerConfig] {
	return func(yield func(string, config.MCPServerConfig) bool) {
		names := slices.Collect(maps.Keys(s.cfg.MCPServers))
		slices.Sort(names)
		for _, name := range names {
			if !s.IsEnabled(name) {
				continue
			}
			if !yield(name, s.cfg.MCPServers[name]) {
				return
			}
		}
	}
}

// Tools returns the tools of every enabled server, keyed by server name.
func (s *Service) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	var mu sync.Mutex
	var g errgroup.Group
	result := map[string][]mcp.Tool{}
	for name, server := range s.EnabledServers() {
		g.Go(func() error {
			list, err := s.toolsFor(ctx, name, server)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = list
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}

// Register adds the tools of every enabled server to r. Servers that fail
// to list their tools are logged and skipped. It returns the number of
// tools registered.
func (s *Service) Register(ctx context.Context, r *tools.Registry) int {
	var n int
	for name, server := range s.EnabledServers() {
		list, err := s.toolsFor(ctx, name, server)
		if err != nil {
			s.logger.Warn("skipping mcp server", "server", name, "err", err)
			continue
		}
		for _, t := range list {
			def := t
			def.Name = name + "_" + t.Name
			def.Description = fmt.Sprintf("[%s] %s", name, t.Description)
			r.Register(tools.Tool{
				Definition: def,
				Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
					return s.CallTool(ctx, def.Name, args)
				},
			})
			n++
		}
		s.logger.Info("mcp server ready", "server", name, "tools", len(list))
	}
	return n
}

// CallTool executes a tool call against the configured server.
// fullName must be of the form: <server>_<tool>.
func (s *Service) CallTool(ctx context.Context, fullName string, data []byte) (string, error) {
	sname, tool, ok := strings.Cut(fullName, "_")
	if !ok {
		return "", fmt.Errorf("mcp: invalid tool name: %q", fullName)
	}
	server, ok := s.cfg.MCPServers[sname]
	if !ok {
		return "", fmt.Errorf("mcp: invalid server name: %q", sname)
	}
	if !s.IsEnabled(sname) {
		return "", fmt.Errorf("mcp: server is disabled: %q", sname)
	}

	var args map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			return "", errs.Invalid(fmt.Errorf("mcp: %w: %s", err, string(data)), "Tool arguments must be a JSON object.")
		}
	}

	cli, err := s.dial(ctx, server)
	if err != nil {
		return "", errs.Unavailable(fmt.Errorf("mcp %s: %w", sname, err), "The MCP server is not reachable.")
	}
	defer cli.Close() //nolint:errcheck

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		return "", errs.Upstream(fmt.Errorf("mcp %s: %w", sname, err), "The MCP tool call failed.")
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}

	if result.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

func (s *Service) timeout() time.Duration {
	if s.cfg.MCPTimeout > 0 {
		return s.cfg.MCPTimeout
	}
	return 15 * time.Second
}

func (s *Service) toolsFor(ctx context.Context, name string, server config.MCPServerConfig) ([]mcp.Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	cli, err := s.dial(ctx, server)
	if err == nil {
		defer cli.Close() //nolint:errcheck
		var res *mcp.ListToolsResult
		if res, err = cli.ListTools(ctx, mcp.ListToolsRequest{}); err == nil {
			return res.Tools, nil
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timeout while listing tools for %q: make sure the server command is correct and any container it needs is running", name)
	}
	return nil, errs.Wrap(fmt.Errorf("could not setup %s: %w", name, err), "Could not list tools")
}

func (s *Service) connect(ctx context.Context, server config.MCPServerConfig) (*client.Client, error) {
	var cli *client.Client
	var err error

	switch server.Type {
	case "", "stdio":
		env := server.Env
		if !s.cfg.MCPNoInheritEnv {
			env = append(os.Environ(), server.Env...)
		}
		cli, err = client.NewStdioMCPClient(server.Command, env, server.Args...)
	case "sse":
		cli, err = client.NewSSEMCPClient(server.URL)
	case "http":
		cli, err = client.NewStreamableHttpClient(server.URL)
	default:
		return nil, fmt.Errorf("unsupported MCP server type: %q, supported types are: stdio, sse, http", server.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return start(ctx, cli)
}

// start starts and initializes cli, closing it on failure.
func start(ctx context.Context, cli *client.Client) (*client.Client, error) {
	if err := cli.Start(ctx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "superagent"}
	if _, err := cli.Initialize(ctx, req); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return cli, nil
}
