package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/vdx/internal/logging"
)

// Config holds the complete directory configuration.
type Config struct {
	Logging    logging.Config    `yaml:"logging"`
	Engine     EngineConfig      `yaml:"engine"`
	Cache      CacheConfig       `yaml:"cache"`
	Changes    ChangesConfig     `yaml:"changes"`
	Connectors []ConnectorConfig `yaml:"connectors"`
	Sources    []SourceConfig    `yaml:"sources"`
	Entries    []EntryConfig     `yaml:"entries"`
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	Workers     int           `yaml:"workers" default:"4"`
	BatchSize   int           `yaml:"batchSize" default:"100"`
	LockTimeout time.Duration `yaml:"lockTimeout" default:"5s"`
}

// Cache types.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// CacheConfig selects the entry and filter caches.
type CacheConfig struct {
	Type  string        `yaml:"type" default:"memory"`
	Size  int           `yaml:"size" default:"1000"`
	TTL   time.Duration `yaml:"ttl" default:"5m"`
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the Redis server used by the redis cache type.
type RedisConfig struct {
	URL    string `yaml:"url" default:"redis://localhost:6379"`
	Prefix string `yaml:"prefix" default:"vdx"`
}

// ChangesConfig sizes the change event broker.
type ChangesConfig struct {
	Replay int `yaml:"replay" default:"256"`
	Buffer int `yaml:"buffer" default:"64"`
}

// Connector types.
const (
	ConnectorMemory = "memory"
	ConnectorSQLite = "sqlite"
	ConnectorLDAP   = "ldap"
)

// ConnectorConfig declares one backend connection.
type ConnectorConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type" default:"memory"`

	// DSN is the database of a sqlite connector.
	DSN string `yaml:"dsn"`
	// Init statements run once after a sqlite connector is opened.
	Init []string `yaml:"init"`

	// URL, BindDN and Password configure an ldap connector.
	URL      string `yaml:"url"`
	BindDN   string `yaml:"bindDN"`
	Password string `yaml:"password"`

	// Seed holds the initial rows of a memory connector, per source.
	Seed map[string][]map[string]Values `yaml:"seed"`
}

// SourceConfig declares a physical source.
type SourceConfig struct {
	Name      string            `yaml:"name"`
	Connector string            `yaml:"connector"`
	Params    map[string]string `yaml:"params"`
	Fields    []FieldConfig     `yaml:"fields"`
}

// FieldConfig declares one field of a source.
type FieldConfig struct {
	Name       string `yaml:"name"`
	PrimaryKey bool   `yaml:"primaryKey"`
}

// ExpressionConfig is the YAML form of a mapping expression.
type ExpressionConfig struct {
	Constant string `yaml:"constant"`
	Variable string `yaml:"variable"`
	Script   string `yaml:"script"`
	Foreach  string `yaml:"foreach"`
	Var      string `yaml:"var"`
}

// EntryConfig declares an entry mapping. Root mappings set ParentDN, the
// others name their parent mapping.
type EntryConfig struct {
	ID            string              `yaml:"id"`
	Parent        string              `yaml:"parent"`
	ParentDN      string              `yaml:"parentDN"`
	ObjectClasses []string            `yaml:"objectClasses"`
	Attributes    []AttributeConfig   `yaml:"attributes"`
	Sources       []EntrySourceConfig `yaml:"sources"`
	Relationships []string            `yaml:"relationships"`
}

// AttributeConfig declares an entry attribute.
type AttributeConfig struct {
	Name             string `yaml:"name"`
	RDN              bool   `yaml:"rdn"`
	ExpressionConfig `yaml:",inline"`
}

// EntrySourceConfig binds an entry mapping to a source under an alias.
// Alias defaults to the source name.
type EntrySourceConfig struct {
	Alias  string               `yaml:"alias"`
	Source string               `yaml:"source"`
	Fields []FieldMappingConfig `yaml:"fields"`
	Filter string               `yaml:"filter"`

	IncludeOnAdd    *bool `yaml:"includeOnAdd" default:"true"`
	IncludeOnModify *bool `yaml:"includeOnModify" default:"true"`
	IncludeOnModRdn *bool `yaml:"includeOnModRdn" default:"true"`
	Required        *bool `yaml:"required" default:"true"`
	ReadOnly        bool  `yaml:"readOnly"`
}

// FieldMappingConfig computes one source field.
type FieldMappingConfig struct {
	Name             string `yaml:"name"`
	PrimaryKey       bool   `yaml:"primaryKey"`
	ExpressionConfig `yaml:",inline"`
}

// Values is a list of strings that may be written as a single scalar.
type Values []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Values{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*v = list
		return nil
	}
	return fmt.Errorf("line %d: expected a scalar or a sequence", node.Line)
}

// Connector returns the connector with the given name.
func (c *Config) Connector(name string) *ConnectorConfig {
	for i := range c.Connectors {
		if c.Connectors[i].Name == name {
			return &c.Connectors[i]
		}
	}
	return nil
}

const masked = "********"

// Redacted returns a copy of c with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Connectors = make([]ConnectorConfig, len(c.Connectors))
	for i, cc := range c.Connectors {
		if cc.Password != "" {
			cc.Password = masked
		}
		out.Connectors[i] = cc
	}
	return &out
}
