package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"github.com/charmbracelet/log"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fantasybridge"
	"github.com/opensuperagent/superagent/internal/logging"
	"github.com/opensuperagent/superagent/internal/metrics"
	"github.com/opensuperagent/superagent/internal/modelstate"
	"github.com/opensuperagent/superagent/internal/stream"
	"github.com/opensuperagent/superagent/internal/tools"
)

// ClientFactory creates the stream client for a resolved provider.
type ClientFactory func(fantasybridge.Config) (stream.Client, error)

// Service is the core orchestration layer for chat turns. It is shared by
// the HTTP API and the headless CLI.
type Service struct {
	cfg       *config.Config
	tools     *tools.Registry
	models    modelstate.Store
	logger    *log.Logger
	metrics   *metrics.Metrics
	newClient ClientFactory
}

// Option configures a Service.
type Option func(*Service)

// WithModelStore makes the service honour set-model selections.
func WithModelStore(store modelstate.Store) Option {
	return func(s *Service) { s.models = store }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records stream outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClientFactory replaces the fantasy-backed client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Service) { s.newClient = f }
}

// New creates an agent service. registry may be nil, in which case no tools
// are offered to the model.
func New(cfg *config.Config, registry *tools.Registry, opts ...Option) *Service {
	s := &Service{cfg: cfg, tools: registry, newClient: NewFantasyClient}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Selection returns the model chat turns use when the request names none.
func (s *Service) Selection(ctx context.Context) (modelstate.Selection, error) {
	if s.models != nil {
		sel, ok, err := s.models.Get(ctx)
		if err != nil {
			return modelstate.Selection{}, errs.Unavailable(err, "Could not read the selected model.")
		}
		if ok {
			return sel, nil
		}
	}
	if api, mod, err := ResolveModel(s.cfg, s.cfg.API, s.cfg.Model); err == nil {
		return modelstate.Selection{API: api.Name, Model: mod.Name}, nil
	}
	return modelstate.Selection{API: s.cfg.API, Model: s.cfg.Model}, nil
}

// SetModel validates and stores a new selection.
func (s *Service) SetModel(ctx context.Context, api, name string) (modelstate.Selection, error) {
	if strings.TrimSpace(name) == "" {
		return modelstate.Selection{}, errs.Invalid(errs.UserErrorf("modelName is required"), "Missing model name.")
	}
	resolved, mod, err := ResolveModel(s.cfg, api, name)
	if err != nil {
		return modelstate.Selection{}, err
	}
	if s.models == nil {
		return modelstate.Selection{}, errs.Error{Reason: "Model selection is not available."}
	}
	sel := modelstate.Selection{API: resolved.Name, Model: mod.Name, UpdatedAt: time.Now().UTC()}
	if err := s.models.Set(ctx, sel); err != nil {
		return modelstate.Selection{}, errs.Unavailable(err, "Could not store the selected model.")
	}
	s.logger.Info("model selected", "api", sel.API, "model", sel.Model)
	return sel, nil
}

// ResolveModel finds name, or one of its aliases, among the configured APIs.
// An empty api searches every API in settings order.
func ResolveModel(cfg *config.Config, api, name string) (config.API, config.Model, error) {
	matched := false
	for _, a := range cfg.APIs {
		if api != "" && a.Name != api {
			continue
		}
		matched = true
		for key, mod := range a.Models {
			if key == name || slices.Contains(mod.Aliases, name) {
				mod.Name = key
				mod.API = a.Name
				return a, mod, nil
			}
		}
		if api != "" {
			available := make([]string, 0, len(a.Models))
			for key := range a.Models {
				available = append(available, key)
			}
			slices.Sort(available)
			return config.API{}, config.Model{}, errs.Invalid(
				errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				fmt.Sprintf("The API endpoint %s does not contain the model %s", api, name),
			)
		}
	}

	if api != "" && !matched {
		return config.API{}, config.Model{}, errs.Invalid(
			errs.UserErrorf("Configure it under apis in the settings file: superagent config edit"),
			fmt.Sprintf("The API endpoint %s is not configured.", api),
		)
	}
	return config.API{}, config.Model{}, errs.Invalid(
		errs.UserErrorf("Please name the API endpoint or configure the model in the settings: superagent config edit"),
		fmt.Sprintf("Model %s is not in the settings file.", name),
	)
}

type keySource struct {
	env    string
	docs   string
	reason string
}

var keySources = map[string]keySource{
	fantasybridge.APIOpenRouter: {"OPENROUTER_API_KEY", "https://openrouter.ai/keys", "OpenRouter authentication failed"},
	fantasybridge.APIVercel:     {"VERCEL_API_KEY", "https://vercel.com/dashboard/tokens", "Vercel AI Gateway authentication failed"},
	fantasybridge.APIAzure:      {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	fantasybridge.APIAzureAD:    {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	fantasybridge.APIAnthropic:  {"ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys", "Anthropic authentication failed"},
	fantasybridge.APIGoogle:     {"GOOGLE_GENERATIVE_AI_API_KEY", "https://aistudio.google.com/app/apikey", "Google authentication failed"},
	fantasybridge.APIXAI:        {"XAI_API_KEY", "https://console.x.ai", "xAI authentication failed"},
	fantasybridge.APIOpenAI:     {"OPENAI_API_KEY", "https://platform.openai.com/account/api-keys", "OpenAI authentication failed"},
}

// ProviderConfig builds the bridge configuration for a resolved model,
// looking up its API key.
func ProviderConfig(ctx context.Context, cfg *config.Config, api config.API, mod config.Model) (fantasybridge.Config, error) {
	pc := fantasybridge.Config{API: mod.API, BaseURL: api.BaseURL}

	switch mod.API {
	case fantasybridge.APIBedrock:
		key, err := optionalKey(ctx, api)
		if err != nil {
			return pc, errs.Wrap(err, "Bedrock authentication failed")
		}
		pc.APIKey = key
	case "ollama":
		if pc.BaseURL == "" {
			pc.BaseURL = "http://localhost:11434/v1"
		}
	default:
		src, ok := keySources[mod.API]
		if !ok {
			src = keySources[fantasybridge.APIOpenAI]
		}
		key, err := ensureKey(ctx, api, src.env, src.docs)
		if err != nil {
			return pc, errs.Wrap(err, src.reason)
		}
		pc.APIKey = key
	}

	if mod.API == fantasybridge.APIAzureAD {
		pc.API = fantasybridge.APIAzure
	}
	if mod.API == fantasybridge.APIGoogle {
		pc.ThinkingBudget = mod.ThinkingBudget
	}
	if err := ApplyProxyConfig(cfg.HTTPProxy, &pc); err != nil {
		return pc, err
	}
	return pc, nil
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Invalid(err, "There was an error parsing your proxy URL.")
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Wrap(fmt.Errorf("default transport is not *http.Transport"), "Could not configure proxy.")
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

// NewFantasyClient creates the fantasy bridge client.
func NewFantasyClient(cfg fantasybridge.Config) (stream.Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing fantasy provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update the settings file through superagent config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the operator.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}
