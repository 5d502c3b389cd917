// Package assets embeds the files Nova writes to ~/.nova on first run.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed defaults/*.yaml
var defaults embed.FS

var (
	// DefaultConfigYAML is written to ~/.nova/config.yaml when it is missing.
	DefaultConfigYAML = mustRead("defaults/config.yaml")
	// DefaultRulesYAML is written to ~/.nova/guardrail.yaml when it is missing.
	DefaultRulesYAML = mustRead("defaults/guardrail.yaml")
)

func mustRead(name string) []byte {
	data, err := fs.ReadFile(defaults, name)
	if err != nil {
		panic(err)
	}
	return data
}
