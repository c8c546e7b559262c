package agent

import (
	"cmp"
	"slices"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/modelstate"
)

// ModelInfo describes a configured model.
type ModelInfo struct {
	API      string   `json:"api"`
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
	Current  bool     `json:"current"`
}

// Models lists the configured models in settings order of their API and
// by name within an API, marking the current selection.
func Models(cfg *config.Config, current modelstate.Selection) []ModelInfo {
	var out []ModelInfo
	for _, api := range cfg.APIs {
		start := len(out)
		for name, mod := range api.Models {
			out = append(out, ModelInfo{
				API:      api.Name,
				Name:     name,
				Aliases:  mod.Aliases,
				Fallback: mod.Fallback,
				Current:  api.Name == current.API && name == current.Model,
			})
		}
		slices.SortFunc(out[start:], func(a, b ModelInfo) int { return cmp.Compare(a.Name, b.Name) })
	}
	return out
}
