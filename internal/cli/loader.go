package cli

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/quarry/internal/schema"
)

// LoadSchema loads a schema file, dispatching on extension: .cue files
// go through the CUE loader, everything else through the YAML loader.
func LoadSchema(path string) (*schema.Registry, error) {
	switch filepath.Ext(path) {
	case ".cue":
		return schema.LoadCUE(path)
	case ".yaml", ".yml":
		return schema.LoadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported schema file %q: want .cue, .yaml or .yml", path)
	}
}
