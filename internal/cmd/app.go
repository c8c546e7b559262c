package cmd

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fantasybridge"
	"github.com/opensuperagent/superagent/internal/logging"
	"github.com/opensuperagent/superagent/internal/mcp"
	"github.com/opensuperagent/superagent/internal/metrics"
	"github.com/opensuperagent/superagent/internal/modelstate"
	"github.com/opensuperagent/superagent/internal/storage"
	"github.com/opensuperagent/superagent/internal/tools"
)

// app is everything a command needs to run turns and tools.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	registry *tools.Registry
	deps     tools.Deps
	mcp      *mcp.Service
	store    modelstate.Store
	agent    *agent.Service
	history  *storage.History
}

type appOptions struct {
	// withMCP bridges the tools of the enabled MCP servers.
	withMCP bool
	// clients overrides how LLM clients are built.
	clients agent.ClientFactory
	// logOutput defaults to stderr.
	logOutput io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.logOutput == nil {
		opts.logOutput = os.Stderr
	}
	logger, err := logging.New(opts.logOutput, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, errs.Invalid(err, "Invalid logging settings.")
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.registry = tools.NewRegistry(
		tools.WithLogger(logger),
		tools.WithMetrics(a.metrics),
		tools.WithTimeout(cfg.ToolTimeout),
	)

	hc, err := httpClient(cfg)
	if err != nil {
		return nil, err
	}
	a.deps, err = tools.NewDeps(ctx, cfg.Tools, hc, cfg.ToolTimeout)
	if err != nil {
		return nil, errs.Invalid(err, "Could not set up the built-in tools.")
	}
	tools.RegisterBuiltins(a.registry, a.deps)

	a.mcp = mcp.New(cfg, logger)
	if opts.withMCP {
		n := a.mcp.Register(ctx, a.registry)
		logger.Debug("mcp tools registered", "count", n)
	}

	a.store, err = modelstate.New(ctx, *cfg)
	if err != nil {
		a.Close()
		return nil, errs.Unavailable(err, "Could not open the model store.")
	}

	agentOpts := []agent.Option{
		agent.WithModelStore(a.store),
		agent.WithLogger(logger),
		agent.WithMetrics(a.metrics),
	}
	if opts.clients != nil {
		agentOpts = append(agentOpts, agent.WithClientFactory(opts.clients))
	}
	a.agent = agent.New(cfg, a.registry, agentOpts...)

	a.history, err = storage.OpenHistory(cfg.CachePath)
	if err != nil {
		a.Close()
		return nil, errs.Wrap(err, "Could not open the conversation history.")
	}
	return a, nil
}

// Close releases browser pages, the model store and the history index.
func (a *app) Close() {
	a.deps.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close model store", "err", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history", "err", err)
		}
	}
}

// httpClient returns the client used for vendor calls, honoring the
// http-proxy setting.
func httpClient(cfg *config.Config) (*http.Client, error) {
	var pc fantasybridge.Config
	if err := agent.ApplyProxyConfig(cfg.HTTPProxy, &pc); err != nil {
		return nil, err
	}
	if pc.HTTPClient == nil {
		return http.DefaultClient, nil
	}
	return pc.HTTPClient, nil
}
