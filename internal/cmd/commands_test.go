package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fantasybridge"
	"github.com/opensuperagent/superagent/internal/stream"
	"github.com/opensuperagent/superagent/internal/tools"
)

func execute(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	if rt.clients == nil {
		rt.clients = func(fantasybridge.Config) (stream.Client, error) { return &replyClient{}, nil }
	}
	root := newRootCmd(rt)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAgentsCmd(t *testing.T) {
	out, err := execute(t, &runtime{cfg: testCLIConfig(t)}, "agents")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "superagent (default)"))
	require.Equal(t, "writer Writes.", lines[1])
}

func TestModelsCmd(t *testing.T) {
	rt := &runtime{cfg: testCLIConfig(t)}
	out, err := execute(t, rt, "models")
	require.NoError(t, err)
	require.Contains(t, out, "gpt-4o ")
	require.Contains(t, out, "gpt-4o-mini [mini] (openai)")

	out, err = execute(t, rt, "models", "set", "mini")
	require.NoError(t, err)
	require.Contains(t, out, "gpt-4o-mini")

	_, err = execute(t, rt, "models", "set", "nope")
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestConfigDirsCmd(t *testing.T) {
	cfg := testCLIConfig(t)
	out, err := execute(t, &runtime{cfg: cfg}, "config", "dirs", "cache")
	require.NoError(t, err)
	require.Equal(t, cfg.CachePath+"\n", out)

	_, err = execute(t, &runtime{cfg: cfg}, "config", "dirs", "elsewhere")
	require.Error(t, err)
}

func TestConfigCheckCmd(t *testing.T) {
	cfg := testCLIConfig(t)
	out, err := execute(t, &runtime{cfg: cfg}, "config", "check")
	require.NoError(t, err)
	require.Contains(t, out, cfg.SettingsPath)

	cfg.MaxSteps = 0
	_, err = execute(t, &runtime{cfg: cfg}, "config", "check")
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))

	_, err = execute(t, &runtime{cfg: testCLIConfig(t), cfgErr: errors.New("broken yaml")}, "config", "check")
	require.EqualError(t, err, "broken yaml")
}

func TestToolsCmd(t *testing.T) {
	rt := &runtime{cfg: testCLIConfig(t)}

	out, err := execute(t, rt, "tools", "list")
	require.NoError(t, err)
	require.Contains(t, out, "create_presentation")
	require.Contains(t, out, "format_citations")
	require.NotContains(t, out, "web_search")

	out, err = execute(t, rt, "tools", "list", "format_*")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)

	out, err = execute(t, rt, "tools", "call", "format_citations", `{"sources":[{"url":"https://go.dev","title":"Go"}]}`)
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(out)))
	require.Contains(t, out, "\n  \"")
	require.Contains(t, out, "go.dev")

	_, err = execute(t, rt, "tools", "call", "nope", "{}")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
	require.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestToolInput(t *testing.T) {
	for name, tc := range map[string]struct {
		args []string
		want string
	}{
		"json":          {[]string{`{"query":"go"}`}, `{"query":"go"}`},
		"pairs":         {[]string{"query=go", "count=3"}, `{"count":"3","query":"go"}`},
		"quoted pairs":  {[]string{`query="go generics" count=3`}, `{"count":"3","query":"go generics"}`},
		"value with eq": {[]string{"filter=a=b"}, `{"filter":"a=b"}`},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := toolInput(tc.args)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(got))
		})
	}

	_, err := toolInput([]string{"query"})
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
	_, err = toolInput([]string{"=go"})
	require.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestMCPCmds(t *testing.T) {
	cfg := testCLIConfig(t)
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"files": {Command: "files-mcp"},
		"notes": {Command: "notes-mcp"},
	}
	cfg.MCPDisable = []string{"notes"}

	require.True(t, isMCPTool(&cfg, "files_read"))
	require.False(t, isMCPTool(&cfg, "format_citations"))

	out, err := execute(t, &runtime{cfg: cfg}, "mcp", "list")
	require.NoError(t, err)
	require.Equal(t, "files (enabled)\nnotes\n", out)
}

func TestConfigResetCmd(t *testing.T) {
	cfg := testCLIConfig(t)
	require.NoError(t, config.WriteConfigFile(cfg.SettingsPath))
	require.NoError(t, os.WriteFile(cfg.SettingsPath, []byte("listen: :9999\n"), 0o600))

	_, err := execute(t, &runtime{cfg: cfg}, "config", "reset")
	require.NoError(t, err)

	bak, err := os.ReadFile(cfg.SettingsPath + ".bak")
	require.NoError(t, err)
	require.Equal(t, "listen: :9999\n", string(bak))

	fresh, err := os.ReadFile(cfg.SettingsPath)
	require.NoError(t, err)
	require.NotEqual(t, string(bak), string(fresh))
}

func TestPrintError(t *testing.T) {
	t.Run("reason and details", func(t *testing.T) {
		var b bytes.Buffer
		printError(&b, errs.Error{Reason: "Could not find the conversation.", Err: errors.New("no matches")})
		require.Contains(t, b.String(), "ERROR")
		require.Contains(t, b.String(), "Could not find the conversation.")
		require.Contains(t, b.String(), "no matches")
	})

	t.Run("reason only", func(t *testing.T) {
		var b bytes.Buffer
		printError(&b, errs.Error{Reason: "Nothing to do."})
		require.Contains(t, b.String(), "Nothing to do.")
	})

	t.Run("flag", func(t *testing.T) {
		var b bytes.Buffer
		printError(&b, newFlagParseError(errors.New("unknown flag: --nope")))
		require.Contains(t, b.String(), "--nope")
		require.Contains(t, b.String(), "is missing")
	})

	t.Run("plain", func(t *testing.T) {
		var b bytes.Buffer
		printError(&b, errors.New("boom"))
		require.Contains(t, b.String(), "boom")
	})
}
