// Package config provides YAML parsing of the engine configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Parser errors.
var (
	ErrInvalidYAML       = errors.New("invalid YAML format")
	ErrFileNotFound      = errors.New("configuration file not found")
	ErrMissingConfigFile = errors.New("config file path is required")
	ErrMissingOnChange   = errors.New("onChange callback is required")
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig reads the file at path and hands it to ParseConfig.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	case err != nil:
		return nil, err
	}
	return ParseConfig(raw)
}

// ParseConfig parses configuration from YAML data. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*Config, error) {
	data = substituteEnvVars(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	var set explicitSettings
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	set.restore(cfg)
	return cfg, nil
}

// explicitSettings records the tuning numbers present in the document.
// Defaults only fill zero fields, so a written zero would otherwise be
// replaced by its default and escape validation.
type explicitSettings struct {
	Engine struct {
		Workers     *int           `yaml:"workers"`
		BatchSize   *int           `yaml:"batchSize"`
		LockTimeout *time.Duration `yaml:"lockTimeout"`
	} `yaml:"engine"`
	Cache struct {
		Size *int           `yaml:"size"`
		TTL  *time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Changes struct {
		Replay *int `yaml:"replay"`
		Buffer *int `yaml:"buffer"`
	} `yaml:"changes"`
}

func (s *explicitSettings) restore(cfg *Config) {
	setInt(&cfg.Engine.Workers, s.Engine.Workers)
	setInt(&cfg.Engine.BatchSize, s.Engine.BatchSize)
	setDuration(&cfg.Engine.LockTimeout, s.Engine.LockTimeout)
	setInt(&cfg.Cache.Size, s.Cache.Size)
	setDuration(&cfg.Cache.TTL, s.Cache.TTL)
	setInt(&cfg.Changes.Replay, s.Changes.Replay)
	setInt(&cfg.Changes.Buffer, s.Changes.Buffer)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

// substituteEnvVars expands ${VAR} and ${VAR:-fallback}. The fallback is
// used when VAR is unset or empty.
func substituteEnvVars(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name, fallback, hasFallback := strings.Cut(string(ref[2:len(ref)-1]), ":-")
		if val, ok := os.LookupEnv(name); ok && (val != "" || !hasFallback) {
			return []byte(val)
		}
		return []byte(fallback)
	})
}
