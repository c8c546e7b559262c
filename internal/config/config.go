package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensuperagent/superagent/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// DefaultAgent is the agent used when a request does not name one.
const DefaultAgent = "superagent"

// Model stores.
const (
	ModelStoreMemory = "memory"
	ModelStoreRedis  = "redis"
)

// Model represents the LLM model used in the API call.
type Model struct {
	Name           string
	API            string
	MaxChars       int64    `yaml:"max-input-chars"`
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs is a type alias to allow custom YAML decoding.
type APIs []API

// UnmarshalYAML implements sorted API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// Agent is a named bundle of instructions, model and tool allow-list.
type Agent struct {
	Description  string   `yaml:"description" json:"description"`
	Model        string   `yaml:"model" json:"model,omitempty"`
	Instructions []string `yaml:"instructions" json:"-"`
	Tools        []string `yaml:"tools" json:"tools"`
	MaxSteps     int      `yaml:"max-steps" json:"maxSteps,omitempty"`
}

// ToolSettings holds vendor credentials and defaults for built-in tools.
//
// The env names are the vendors' conventional variable names and are read
// without the SUPERAGENT_ prefix.
type ToolSettings struct {
	SearchProvider string `yaml:"search-provider" env:"SEARCH_PROVIDER"`
	BraveAPIKey    string `yaml:"brave-api-key" env:"BRAVE_API_KEY"`
	SerperAPIKey   string `yaml:"serper-api-key" env:"SERPER_API_KEY"`

	OpenAIAPIKey     string `yaml:"openai-api-key" env:"OPENAI_API_KEY"`
	OpenAIImageModel string `yaml:"openai-image-model" env:"OPENAI_IMAGE_MODEL"`
	GeminiAPIKey     string `yaml:"gemini-api-key" env:"GOOGLE_GENERATIVE_AI_API_KEY"`
	GeminiImageModel string `yaml:"gemini-image-model" env:"GEMINI_IMAGE_MODEL"`
	ImageProvider    string `yaml:"image-provider" env:"IMAGE_PROVIDER"`

	FalKey        string        `yaml:"fal-key" env:"FAL_KEY"`
	FalImageModel string        `yaml:"fal-image-model" env:"FAL_IMAGE_MODEL"`
	FalVideoModel string        `yaml:"fal-video-model" env:"FAL_VIDEO_MODEL"`
	PollInterval  time.Duration `yaml:"poll-interval" env:"POLL_INTERVAL"`
	PollTimeout   time.Duration `yaml:"poll-timeout" env:"POLL_TIMEOUT"`

	BrowserbaseAPIKey    string `yaml:"browserbase-api-key" env:"BROWSERBASE_API_KEY"`
	BrowserbaseProjectID string `yaml:"browserbase-project-id" env:"BROWSERBASE_PROJECT_ID"`

	GitHubToken string `yaml:"github-token" env:"GITHUB_TOKEN"`

	GoogleCredentialsFile string `yaml:"google-credentials-file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	GoogleShareWith       string `yaml:"google-share-with" env:"GOOGLE_SHARE_WITH"`

	VendorRetries    int           `yaml:"vendor-retries"`
	VendorRetryDelay time.Duration `yaml:"vendor-retry-delay"`
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API                 string   `yaml:"default-api" env:"API"`
	Model               string   `yaml:"default-model" env:"MODEL"`
	MaxTokens           int64    `yaml:"max-tokens" env:"MAX_TOKENS"`
	MaxCompletionTokens int64    `yaml:"max-completion-tokens" env:"MAX_COMPLETION_TOKENS"`
	MaxInputChars       int64    `yaml:"max-input-chars" env:"MAX_INPUT_CHARS"`
	Temperature         float64  `yaml:"temp" env:"TEMP"`
	Stop                []string `yaml:"stop" env:"STOP"`
	TopP                float64  `yaml:"topp" env:"TOPP"`
	TopK                int64    `yaml:"topk" env:"TOPK"`
	NoLimit             bool     `yaml:"no-limit" env:"NO_LIMIT"`
	User                string   `yaml:"user" env:"USER_ID"`
	HTTPProxy           string   `yaml:"http-proxy" env:"HTTP_PROXY"`
	APIs                APIs     `yaml:"apis"`

	MaxRetries int           `yaml:"max-retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry-delay" env:"RETRY_DELAY"`
	MaxSteps   int           `yaml:"max-steps" env:"MAX_STEPS"`

	DefaultAgent string           `yaml:"default-agent" env:"DEFAULT_AGENT"`
	Agents       map[string]Agent `yaml:"agents"`

	CachePath string `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache   bool   `yaml:"no-cache" env:"NO_CACHE"`
	WordWrap  int    `yaml:"word-wrap" env:"WORD_WRAP"`
	Quiet     bool   `yaml:"quiet" env:"QUIET"`

	Listen      string        `yaml:"listen" env:"LISTEN"`
	CORSOrigins []string      `yaml:"cors-origins" env:"CORS_ORIGINS"`
	RateLimit   int           `yaml:"rate-limit" env:"RATE_LIMIT"`
	RateBurst   int           `yaml:"rate-burst" env:"RATE_BURST"`
	ToolTimeout time.Duration `yaml:"tool-timeout" env:"TOOL_TIMEOUT"`
	LogLevel    string        `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat   string        `yaml:"log-format" env:"LOG_FORMAT"`

	ModelStore string `yaml:"model-store" env:"MODEL_STORE"`
	RedisURL   string `yaml:"redis-url" env:"REDIS_URL"`

	Tools ToolSettings `yaml:"tools"`

	MCPServers      map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable      []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout      time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv bool                       `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	SettingsPath string
	Agent        string
	Title        string
	Continue     string
	ContinueLast bool
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// DefaultPath returns the default settings file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return filepath.Join(home, ".config", "superagent", "superagent.yml"), nil
}

// LoadDotEnv loads .env files from the working directory. Variables already
// present in the environment win, and missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errs.Error{Err: err, Reason: fmt.Sprintf("Could not load %s.", f)}
		}
	}
	return nil
}

// Ensure loads settings from disk and environment and applies defaults.
//
// An empty path selects DefaultPath. The settings file is created from the
// embedded template if it does not exist.
func Ensure(path string) (Config, error) {
	var c Config
	if path == "" {
		sp, err := DefaultPath()
		if err != nil {
			return c, err
		}
		path = sp
	}
	c.SettingsPath = path

	if dirErr := os.MkdirAll(filepath.Dir(path), 0o700); dirErr != nil {
		return c, errs.Error{Err: dirErr, Reason: "Could not create config directory."}
	}
	if err := WriteConfigFile(path); err != nil {
		return c, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := Parse(content, &c); err != nil {
		return c, err
	}

	if c.CachePath == "" {
		c.CachePath = filepath.Join(filepath.Dir(path), "history")
	}
	if err := os.MkdirAll(filepath.Join(c.CachePath, "conversations"), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create cache directory."}
	}

	return c, nil
}

// Parse decodes YAML settings into c, overlays the environment and applies
// defaults.
func Parse(content []byte, c *Config) error {
	if err := yaml.Unmarshal(content, c); err != nil {
		return errs.Error{Err: err, Reason: "Could not parse settings file."}
	}
	if err := env.ParseWithOptions(&c.Settings, env.Options{Prefix: "SUPERAGENT_"}); err != nil {
		return errs.Error{Err: err, Reason: "Could not parse environment into settings."}
	}
	if err := env.Parse(&c.Tools); err != nil {
		return errs.Error{Err: err, Reason: "Could not parse tool credentials from environment."}
	}
	applyDefaults(c)
	return nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MCPTimeout == 0 {
		c.MCPTimeout = d.MCPTimeout
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = d.RateBurst
	}
	if c.ModelStore == "" {
		c.ModelStore = d.ModelStore
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = d.DefaultAgent
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.WordWrap == 0 {
		c.WordWrap = d.WordWrap
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = d.CORSOrigins
	}
	if c.Agents == nil {
		c.Agents = map[string]Agent{}
	}
	if _, ok := c.Agents[c.DefaultAgent]; !ok {
		c.Agents[c.DefaultAgent] = d.Agents[DefaultAgent]
	}

	t := &c.Tools
	if t.SearchProvider == "" {
		t.SearchProvider = d.Tools.SearchProvider
	}
	if t.OpenAIImageModel == "" {
		t.OpenAIImageModel = d.Tools.OpenAIImageModel
	}
	if t.GeminiImageModel == "" {
		t.GeminiImageModel = d.Tools.GeminiImageModel
	}
	if t.FalImageModel == "" {
		t.FalImageModel = d.Tools.FalImageModel
	}
	if t.FalVideoModel == "" {
		t.FalVideoModel = d.Tools.FalVideoModel
	}
	if t.PollInterval == 0 {
		t.PollInterval = d.Tools.PollInterval
	}
	if t.PollTimeout == 0 {
		t.PollTimeout = d.Tools.PollTimeout
	}
	if t.VendorRetries == 0 {
		t.VendorRetries = d.Tools.VendorRetries
	}
	if t.VendorRetryDelay == 0 {
		t.VendorRetryDelay = d.Tools.VendorRetryDelay
	}
}

// Validate reports settings that would make the server misbehave.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errs.Invalid(errs.UserErrorf("listen address is empty"), "Invalid settings.")
	}
	if c.MaxRetries < 0 {
		return errs.Invalid(errs.UserErrorf("max-retries must not be negative"), "Invalid settings.")
	}
	if c.MaxSteps < 1 {
		return errs.Invalid(errs.UserErrorf("max-steps must be at least 1"), "Invalid settings.")
	}
	if !slices.Contains([]string{ModelStoreMemory, ModelStoreRedis}, c.ModelStore) {
		return errs.Invalid(errs.UserErrorf("model-store must be %q or %q, got %q", ModelStoreMemory, ModelStoreRedis, c.ModelStore), "Invalid settings.")
	}
	if c.ModelStore == ModelStoreRedis && c.RedisURL == "" {
		return errs.Invalid(errs.UserErrorf("redis-url is required when model-store is redis"), "Invalid settings.")
	}
	if _, ok := c.Agents[c.DefaultAgent]; !ok {
		return errs.Invalid(errs.UserErrorf("default agent %q is not configured", c.DefaultAgent), "Invalid settings.")
	}
	return nil
}

// AgentNamed returns the named agent, falling back to the default agent when
// name is empty.
func (c Config) AgentNamed(name string) (string, Agent, error) {
	if name == "" {
		name = c.DefaultAgent
	}
	a, ok := c.Agents[name]
	if !ok {
		return "", Agent{}, errs.Invalid(errs.UserErrorf("agent %q does not exist", name), "Unknown agent.")
	}
	if a.MaxSteps == 0 {
		a.MaxSteps = c.MaxSteps
	}
	return name, a, nil
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			Listen:       ":3001",
			CORSOrigins:  []string{"*"},
			RateLimit:    120,
			RateBurst:    20,
			MaxRetries:   2,
			RetryDelay:   time.Second,
			MaxSteps:     8,
			MCPTimeout:   15 * time.Second,
			ToolTimeout:  2 * time.Minute,
			ModelStore:   ModelStoreMemory,
			DefaultAgent: DefaultAgent,
			LogLevel:     "info",
			LogFormat:    "text",
			WordWrap:     80,
			Agents: map[string]Agent{
				DefaultAgent: {
					Description: "General purpose assistant with research, media and browser tools.",
					Instructions: []string{
						"You are SuperAgent, a capable assistant. Use tools when they help answer the user. " +
							"Cite sources from web searches with numbered references.",
					},
					Tools: []string{"*"},
				},
			},
			Tools: ToolSettings{
				SearchProvider:   "serper",
				OpenAIImageModel: "gpt-image-1",
				GeminiImageModel: "gemini-2.0-flash-preview-image-generation",
				FalImageModel:    "fal-ai/flux/schnell",
				FalVideoModel:    "fal-ai/kling-video/v2/master/text-to-video",
				PollInterval:     2 * time.Second,
				PollTimeout:      5 * time.Minute,
				VendorRetries:    2,
				VendorRetryDelay: time.Second,
			},
		},
	}
}
