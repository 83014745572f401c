package config

import (
	"fmt"

	"github.com/creasty/defaults"
)

// DefaultConfig returns a Config with default values and no mappings.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.MustSet(cfg)
	return cfg
}

// applyDefaults fills every zero field that carries a default tag,
// including the elements of connector, source and entry lists.
func applyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to set default values: %w", err)
	}
	for i := range cfg.Entries {
		for j := range cfg.Entries[i].Sources {
			if err := defaults.Set(&cfg.Entries[i].Sources[j]); err != nil {
				return fmt.Errorf("failed to set default values: %w", err)
			}
		}
	}
	return nil
}
