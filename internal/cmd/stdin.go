package cmd

import (
	"io"
	"os"

	"github.com/opensuperagent/superagent/internal/present"
)

// maxStdin bounds how much piped input is read into a prompt.
const maxStdin = 4 << 20

func readStdin() (string, error) {
	if present.IsInputTTY() {
		return "", nil
	}
	bts, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdin))
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return string(bts), nil
}

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}
