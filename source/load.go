package source

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a sources file.
type File struct {
	Sources []SourceConfig `yaml:"sources"`
}

// Load reads and compiles a sources file.
func Load(path string) ([]*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return Parse(data)
}

// Parse compiles every entry of a YAML sources document.
// One malformed entry fails the whole document.
func Parse(data []byte) ([]*Source, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("%w: no sources defined", ErrInvalidConfig)
	}

	sources := make([]*Source, 0, len(file.Sources))
	seen := make(map[string]bool, len(file.Sources))
	for i, cfg := range file.Sources {
		src, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		if seen[src.Name()] {
			return nil, fmt.Errorf("%w: duplicate source name %q", ErrInvalidConfig, src.Name())
		}
		seen[src.Name()] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// Select returns the named sources in the given order, or all of them when names is empty.
func Select(sources []*Source, names ...string) ([]*Source, error) {
	if len(names) == 0 {
		return sources, nil
	}
	byName := make(map[string]*Source, len(sources))
	for _, s := range sources {
		byName[s.Name()] = s
	}
	selected := make([]*Source, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
