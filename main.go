// Package main provides the superagent server and CLI.
package main

import (
	"os"

	"github.com/opensuperagent/superagent/internal/cmd"
	"github.com/opensuperagent/superagent/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
	//nolint: gochecknoglobals
	Date = ""
)

func main() {
	cfgErr := config.LoadDotEnv()
	cfg, err := config.Ensure(os.Getenv("SUPERAGENT_CONFIG"))
	if cfgErr == nil {
		cfgErr = err
	}
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA, Date: Date}, cfg, cfgErr)
}
