package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/opensuperagent/superagent/internal/storage"
)

// BuildInfo is injected by the build pipeline and completed from the VCS
// stamp Go embeds in the binary.
type BuildInfo struct {
	Version   string
	CommitSHA string
	Date      string
}

func versionTemplate(b BuildInfo) string {
	v := "{{.Name}} {{.Version}}"
	if sha := storage.ShortID(b.CommitSHA); sha != "" {
		v += " (" + sha + ")"
	}
	if b.Date != "" {
		v += " built " + b.Date
	}
	v += fmt.Sprintf(" %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
	return v
}

func normalizeBuildInfo(b BuildInfo) BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "unknown"
		}
		return b
	}

	if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}

	vcs := map[string]string{}
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	if b.CommitSHA == "" {
		b.CommitSHA = vcs["vcs.revision"]
	}
	if b.Date == "" {
		b.Date = vcs["vcs.time"]
	}

	if b.Version == "" {
		b.Version = "dev"
		if rev := vcs["vcs.revision"]; rev != "" {
			b.Version += "-" + storage.ShortID(rev)
		}
		if vcs["vcs.modified"] == "true" {
			b.Version += "-dirty"
		}
	}
	return b
}
