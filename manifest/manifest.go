// Package manifest handles pyc.toml tool configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/minipy/pyc/marshal"
)

// FileName is the manifest file name looked for in a project directory.
const FileName = "pyc.toml"

// Manifest represents a pyc.toml configuration.
type Manifest struct {
	Codec CodecConfig `toml:"codec"`
	Cache CacheConfig `toml:"cache"`
	Dump  DumpConfig  `toml:"dump"`

	// Dir is the directory containing the pyc.toml file (set at load time).
	Dir string `toml:"-"`
}

// CodecConfig configures decode policy.
type CodecConfig struct {
	MaxDepth int `toml:"max-depth"`
}

// CacheConfig configures the compile cache.
type CacheConfig struct {
	Path string `toml:"path"`
}

// DumpConfig configures dump tool defaults.
type DumpConfig struct {
	Format string `toml:"format"` // "text" or "cbor"
}

// Default returns the configuration used when no manifest file exists.
func Default() *Manifest {
	return &Manifest{
		Codec: CodecConfig{MaxDepth: marshal.DefaultMaxDepth},
		Cache: CacheConfig{Path: ".pyc-cache.db"},
		Dump:  DumpConfig{Format: "text"},
	}
}

// Load parses a pyc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	def := Default()
	if m.Codec.MaxDepth <= 0 {
		m.Codec.MaxDepth = def.Codec.MaxDepth
	}
	if m.Cache.Path == "" {
		m.Cache.Path = def.Cache.Path
	}
	if m.Dump.Format == "" {
		m.Dump.Format = def.Dump.Format
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a pyc.toml file, then loads
// and returns the manifest. Returns the defaults if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// CachePath returns the cache database path resolved against the manifest
// directory.
func (m *Manifest) CachePath() string {
	if m.Dir == "" || filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
