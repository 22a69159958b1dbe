package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTokenName     = "Mock DOT Token"
	DefaultTokenSymbol   = "mDOT"
	DefaultInitialSupply = "200"
	DefaultVotingWindow  = "72h"
)

// Config is the runtime configuration: token metadata, the genesis mint and
// the governance policy.
type Config struct {
	Token      Token      `toml:"token"`
	Genesis    Genesis    `toml:"genesis"`
	Governance Governance `toml:"governance"`
}

// Default returns a configuration populated with the MockDOT defaults. The
// genesis owner is left empty and must be supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load decodes the TOML file at path, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML from raw without touching the filesystem.
func Parse(raw string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.Decode(raw, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config has unknown key %q", undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Token.Name) == "" {
		c.Token.Name = DefaultTokenName
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		c.Token.Symbol = DefaultTokenSymbol
	}
	if strings.TrimSpace(c.Genesis.InitialSupply) == "" {
		c.Genesis.InitialSupply = DefaultInitialSupply
	}
	if strings.TrimSpace(c.Governance.VotingWindow) == "" {
		c.Governance.VotingWindow = DefaultVotingWindow
	}
	if strings.TrimSpace(c.Governance.MinimumParticipation) == "" {
		c.Governance.MinimumParticipation = "0"
	}
	if strings.TrimSpace(c.Governance.WeightPolicy) == "" {
		c.Governance.WeightPolicy = "balance"
	}
	if c.Genesis.Allocations == nil {
		c.Genesis.Allocations = []Allocation{}
	}
}
