// Package tools holds the registry of tools the model may call: the
// built-in vendor tools and any tools bridged in from MCP servers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/logging"
	"github.com/opensuperagent/superagent/internal/metrics"
	"github.com/opensuperagent/superagent/internal/proto"
)

var (
	// ErrUnknownTool is returned when calling an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments do not decode.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Handler runs a tool. The result is sent to the model as JSON, or verbatim
// when it is a string.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a callable tool.
type Tool struct {
	Definition mcp.Tool
	Handler    Handler
}

// Registry is a concurrency-safe set of tools keyed by name.
type Registry struct {
	// Timeout bounds each call; zero means no limit beyond ctx.
	Timeout time.Duration

	mu      sync.RWMutex
	tools   map[string]Tool
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger logs every call.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records every call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTimeout sets Registry.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.Timeout = d }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: map[string]Tool{}, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if t.Definition.Name == "" || t.Handler == nil {
		panic("tools: register needs a name and a handler")
	}
	r.mu.Lock()
	r.tools[t.Definition.Name] = t
	r.mu.Unlock()
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted names of the tools matching patterns; no
// patterns means every tool.
func (r *Registry) Names(patterns ...string) []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if len(patterns) == 0 || Match(patterns, name) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Definitions returns the sorted definitions of the tools matching
// patterns; no patterns means every tool.
func (r *Registry) Definitions(patterns ...string) []mcp.Tool {
	names := r.Names(patterns...)
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]mcp.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Definition)
		}
	}
	return defs
}

// Call runs tool name with args and returns its result as text.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", errs.NotFound(fmt.Errorf("%w: %s", ErrUnknownTool, name), fmt.Sprintf("Tool %q does not exist.", name))
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return "", errs.Invalid(fmt.Errorf("%w: %s: not valid JSON", ErrInvalidArguments, name), "Tool arguments must be a JSON object.")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := t.Handler(ctx, args)
	elapsed := time.Since(start)
	r.metrics.ObserveTool(name, err, elapsed)

	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "duration", elapsed, "err", err)
		return "", fmt.Errorf("%s: %w", name, err)
	}
	r.logger.Info("tool call", "tool", name, "duration", elapsed)

	if s, ok := out.(string); ok {
		return s, nil
	}
	bts, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%s: encode result: %w", name, err)
	}
	return string(bts), nil
}

// Caller binds Call to ctx, restricted to the tools matching patterns.
func (r *Registry) Caller(ctx context.Context, patterns ...string) proto.ToolCaller {
	return func(name string, args []byte) (string, error) {
		if len(patterns) > 0 && !Match(patterns, name) {
			return "", fmt.Errorf("%w: %s is not enabled for this agent", ErrUnknownTool, name)
		}
		return r.Call(ctx, name, args)
	}
}

// Match reports whether name matches any of the glob patterns, e.g. "*" or
// "browser_*".
func Match(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ToProto converts definitions to the provider-agnostic form.
func ToProto(defs []mcp.Tool) []proto.ToolDefinition {
	out := make([]proto.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		params := d.InputSchema.Properties
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, proto.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
			Required:    d.InputSchema.Required,
		})
	}
	return out
}

// decode unmarshals tool arguments into T.
func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return v, nil
}

// typed adapts a handler taking decoded arguments.
func typed[T any, R any](fn func(context.Context, T) (R, error)) Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		in, err := decode[T](args)
		if err != nil {
			return nil, errs.Invalid(err, "Tool arguments do not match the schema.")
		}
		return fn(ctx, in)
	}
}
