// Package config provides configuration validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/logging"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateLogConfig(&config.Logging)...)
	errs = append(errs, validateEngineConfig(&config.Engine)...)
	errs = append(errs, validateCacheConfig(&config.Cache)...)
	errs = append(errs, validateChangesConfig(&config.Changes)...)
	errs = append(errs, validateConnectors(config)...)
	errs = append(errs, validateSources(config)...)
	errs = append(errs, validateEntries(config)...)

	return errs
}

// Validate combines the errors of ValidateConfig into one.
func Validate(config *Config) error {
	return multierr.Combine(ValidateConfig(config)...)
}

// validateLogConfig validates logging configuration.
func validateLogConfig(config *logging.Config) []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if config.Level != "" && !validLevels[strings.ToLower(config.Level)] {
		errs = append(errs, invalid("logging.level", "must be debug, info, warn, or error"))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if config.Format != "" && !validFormats[strings.ToLower(config.Format)] {
		errs = append(errs, invalid("logging.format", "must be text or json"))
	}

	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, invalid("logging.output", "must be stdout, stderr, or an absolute file path"))
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, invalid("logging.output", "directory %s does not exist", dir))
		}
	}

	return errs
}

func validateEngineConfig(config *EngineConfig) []error {
	var errs []error
	if config.Workers <= 0 {
		errs = append(errs, invalid("engine.workers", "must be positive"))
	}
	if config.BatchSize <= 0 {
		errs = append(errs, invalid("engine.batchSize", "must be positive"))
	}
	if config.LockTimeout <= 0 {
		errs = append(errs, invalid("engine.lockTimeout", "must be positive"))
	}
	return errs
}

func validateCacheConfig(config *CacheConfig) []error {
	var errs []error
	switch config.Type {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if config.Redis.URL == "" {
			errs = append(errs, invalid("cache.redis.url", "is required for the redis cache"))
		}
	default:
		errs = append(errs, invalid("cache.type", "must be memory, redis, or none"))
	}
	if config.Size < 0 {
		errs = append(errs, invalid("cache.size", "cannot be negative"))
	}
	if config.TTL < 0 {
		errs = append(errs, invalid("cache.ttl", "cannot be negative"))
	}
	return errs
}

func validateChangesConfig(config *ChangesConfig) []error {
	var errs []error
	if config.Replay <= 0 {
		errs = append(errs, invalid("changes.replay", "must be positive"))
	}
	if config.Buffer <= 0 {
		errs = append(errs, invalid("changes.buffer", "must be positive"))
	}
	return errs
}

func validateConnectors(config *Config) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, c := range config.Connectors {
		field := fmt.Sprintf("connectors[%d]", i)
		if c.Name == "" {
			errs = append(errs, invalid(field+".name", "is required"))
		} else if seen[c.Name] {
			errs = append(errs, invalid(field+".name", "duplicate connector %q", c.Name))
		}
		seen[c.Name] = true

		switch c.Type {
		case ConnectorMemory:
		case ConnectorSQLite:
			if c.DSN == "" {
				errs = append(errs, invalid(field+".dsn", "is required for sqlite connectors"))
			}
		case ConnectorLDAP:
			if c.URL == "" {
				errs = append(errs, invalid(field+".url", "is required for ldap connectors"))
			}
			if c.BindDN != "" {
				if _, err := data.ParseDN(c.BindDN); err != nil {
					errs = append(errs, invalid(field+".bindDN", "%v", err))
				}
			}
		default:
			errs = append(errs, invalid(field+".type", "must be memory, sqlite, or ldap"))
		}

		if len(c.Seed) > 0 && c.Type != ConnectorMemory {
			errs = append(errs, invalid(field+".seed", "only memory connectors can be seeded"))
		}
		if len(c.Init) > 0 && c.Type != ConnectorSQLite {
			errs = append(errs, invalid(field+".init", "only sqlite connectors run init statements"))
		}
	}
	return errs
}

func validateSources(config *Config) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, s := range config.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errs = append(errs, invalid(field+".name", "is required"))
		} else if seen[s.Name] {
			errs = append(errs, invalid(field+".name", "duplicate source %q", s.Name))
		}
		seen[s.Name] = true

		if config.Connector(s.Connector) == nil {
			errs = append(errs, invalid(field+".connector", "unknown connector %q", s.Connector))
		}
		if len(s.Fields) == 0 {
			errs = append(errs, invalid(field+".fields", "at least one field is required"))
		}
		for j, f := range s.Fields {
			if f.Name == "" {
				errs = append(errs, invalid(fmt.Sprintf("%s.fields[%d].name", field, j), "is required"))
			}
		}
	}
	return errs
}

func validateEntries(config *Config) []error {
	var errs []error
	ids := make(map[string]bool)
	sources := make(map[string]bool)
	for _, s := range config.Sources {
		sources[s.Name] = true
	}
	for _, e := range config.Entries {
		if e.ID != "" {
			ids[e.ID] = true
		}
	}

	seen := make(map[string]bool)
	for i, e := range config.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if e.ID == "" {
			errs = append(errs, invalid(field+".id", "is required"))
		} else if seen[e.ID] {
			errs = append(errs, invalid(field+".id", "duplicate entry mapping %q", e.ID))
		}
		seen[e.ID] = true

		switch {
		case e.Parent != "" && e.ParentDN != "":
			errs = append(errs, invalid(field, "parent and parentDN are exclusive"))
		case e.Parent != "" && !ids[e.Parent]:
			errs = append(errs, invalid(field+".parent", "unknown entry mapping %q", e.Parent))
		case e.ParentDN != "":
			if _, err := data.ParseDN(e.ParentDN); err != nil {
				errs = append(errs, invalid(field+".parentDN", "%v", err))
			}
		}

		rdn := false
		for j, a := range e.Attributes {
			if a.Name == "" {
				errs = append(errs, invalid(fmt.Sprintf("%s.attributes[%d].name", field, j), "is required"))
			}
			rdn = rdn || a.RDN
		}
		if !rdn {
			errs = append(errs, invalid(field+".attributes", "at least one rdn attribute is required"))
		}

		for j, s := range e.Sources {
			sfield := fmt.Sprintf("%s.sources[%d]", field, j)
			if !sources[s.Source] {
				errs = append(errs, invalid(sfield+".source", "unknown source %q", s.Source))
			}
			if s.Filter != "" {
				if _, err := filter.Parse(s.Filter); err != nil {
					errs = append(errs, invalid(sfield+".filter", "%v", err))
				}
			}
		}

		for j, expr := range e.Relationships {
			if _, err := mapping.ParseRelationship(expr); err != nil {
				errs = append(errs, invalid(fmt.Sprintf("%s.relationships[%d]", field, j), "%v", err))
			}
		}
	}
	return errs
}
