package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesSettingsFromTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "superagent", "superagent.yml")

	cfg, err := Ensure(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, path, cfg.SettingsPath)

	require.Equal(t, ":3001", cfg.Listen)
	require.Equal(t, 8, cfg.MaxSteps)
	require.Equal(t, 2, cfg.MaxRetries)
	require.Equal(t, time.Second, cfg.RetryDelay)
	require.Equal(t, ModelStoreMemory, cfg.ModelStore)
	require.Equal(t, "openai", cfg.API)
	require.Equal(t, "gpt-4o", cfg.Model)
	require.Equal(t, 2*time.Second, cfg.Tools.PollInterval)
	require.Equal(t, 5*time.Minute, cfg.Tools.PollTimeout)
	require.Contains(t, cfg.Agents, "researcher")
	require.Equal(t, []string{"web_search", "format_citations"}, cfg.Agents["researcher"].Tools)

	var names []string
	for _, api := range cfg.APIs {
		names = append(names, api.Name)
	}
	require.Equal(t, []string{"openai", "anthropic", "google", "xai"}, names)
	require.Equal(t, "gpt-4o-mini", cfg.APIs[0].Models["gpt-4o"].Fallback)

	require.DirExists(t, filepath.Join(cfg.CachePath, "conversations"))
	require.NoError(t, cfg.Validate())
}

func TestEnsureKeepsExistingSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "superagent.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\nmax-steps: 3\n"), 0o600))

	cfg, err := Ensure(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Listen)
	require.Equal(t, 3, cfg.MaxSteps)
	require.Equal(t, 120, cfg.RateLimit)
	require.Contains(t, cfg.Agents, DefaultAgent)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("SUPERAGENT_LISTEN", ":4000")
	t.Setenv("SUPERAGENT_MODEL_STORE", "redis")
	t.Setenv("SUPERAGENT_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SUPERAGENT_RETRY_DELAY", "250ms")
	t.Setenv("FAL_KEY", "fal-secret")
	t.Setenv("BROWSERBASE_PROJECT_ID", "proj")

	var cfg Config
	require.NoError(t, Parse([]byte("listen: \":1\"\n"), &cfg))
	require.Equal(t, ":4000", cfg.Listen)
	require.Equal(t, ModelStoreRedis, cfg.ModelStore)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, "fal-secret", cfg.Tools.FalKey)
	require.Equal(t, "proj", cfg.Tools.BrowserbaseProjectID)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		applyDefaults(&c)
		return c
	}

	for name, tc := range map[string]struct {
		mutate func(*Config)
		errMsg string
	}{
		"empty listen":       {func(c *Config) { c.Listen = "" }, "listen address is empty"},
		"negative retries":   {func(c *Config) { c.MaxRetries = -1 }, "max-retries must not be negative"},
		"zero steps":         {func(c *Config) { c.MaxSteps = 0 }, "max-steps must be at least 1"},
		"bad store":          {func(c *Config) { c.ModelStore = "disk" }, `model-store must be "memory" or "redis", got "disk"`},
		"redis without url":  {func(c *Config) { c.ModelStore = ModelStoreRedis }, "redis-url is required when model-store is redis"},
		"missing default ag": {func(c *Config) { c.DefaultAgent = "ghost" }, `default agent "ghost" is not configured`},
	} {
		t.Run(name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			require.EqualError(t, c.Validate(), tc.errMsg)
		})
	}
}

func TestAgentNamed(t *testing.T) {
	var c Config
	c.Agents = map[string]Agent{"browser": {Tools: []string{"browser_*"}, MaxSteps: 20}}
	applyDefaults(&c)

	name, a, err := c.AgentNamed("")
	require.NoError(t, err)
	require.Equal(t, DefaultAgent, name)
	require.Equal(t, 8, a.MaxSteps)

	_, a, err = c.AgentNamed("browser")
	require.NoError(t, err)
	require.Equal(t, 20, a.MaxSteps)

	_, _, err = c.AgentNamed("nope")
	require.EqualError(t, err, `agent "nope" does not exist`)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("SUPERAGENT_TEST_DOTENV=local\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte("SUPERAGENT_TEST_DOTENV=shared\nSUPERAGENT_TEST_DOTENV_ONLY=shared\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SUPERAGENT_TEST_DOTENV")
		_ = os.Unsetenv("SUPERAGENT_TEST_DOTENV_ONLY")
	})

	require.NoError(t, LoadDotEnv(local, shared, filepath.Join(dir, "missing")))
	require.Equal(t, "local", os.Getenv("SUPERAGENT_TEST_DOTENV"))
	require.Equal(t, "shared", os.Getenv("SUPERAGENT_TEST_DOTENV_ONLY"))
}
