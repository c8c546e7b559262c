package cmd

import (
	"context"
	"os"

	"github.com/opensuperagent/superagent/internal/config"
)

// Execute wires commands and runs Cobra. It exits with status 1 on error.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		// exhaust stdin so a pipeline's writer does not block
		drainStdin()
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
