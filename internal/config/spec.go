package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// Spec is the optional YAML sync spec. Fields left out of the file keep the
// values loaded from the environment.
//
//	concurrency: 2
//	tables: ["CVE"]
//	skip_tables: []
//	skip_dependent_tables: false
type Spec struct {
	Concurrency         int      `yaml:"concurrency"`
	Tables              []string `yaml:"tables"`
	SkipTables          []string `yaml:"skip_tables"`
	SkipDependentTables *bool    `yaml:"skip_dependent_tables"`
}

// LoadSpec reads and parses a spec file. Unknown fields are rejected.
// An empty file is a valid, empty spec.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse spec file %s: %w", path, err)
	}

	if spec.Concurrency < 0 {
		return nil, fmt.Errorf("spec file %s: concurrency must be non-negative", path)
	}
	return &spec, nil
}

// Apply overrides the sync settings present in spec.
func (c *SyncConfig) Apply(spec *Spec) {
	if spec == nil {
		return
	}
	if spec.Concurrency > 0 {
		c.Concurrency = spec.Concurrency
	}
	if spec.Tables != nil {
		c.Tables = spec.Tables
	}
	if spec.SkipTables != nil {
		c.SkipTables = spec.SkipTables
	}
	if spec.SkipDependentTables != nil {
		c.SkipDependentTables = *spec.SkipDependentTables
	}
}

// Options returns the table selection as core sync options.
func (c *SyncConfig) Options() core.SyncOptions {
	return core.SyncOptions{
		Tables:              c.Tables,
		SkipTables:          c.SkipTables,
		SkipDependentTables: c.SkipDependentTables,
		Concurrency:         c.Concurrency,
	}
}

// LoadWithSpec loads the environment configuration and, when SYNC_SPEC_FILE
// is set, applies the spec file on top of it.
func LoadWithSpec() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.Sync.SpecFile == "" {
		return cfg, nil
	}

	spec, err := LoadSpec(cfg.Sync.SpecFile)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Sync.Apply(spec)
	return cfg, nil
}
