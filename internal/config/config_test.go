package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/cache"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/engine"
	"github.com/KilimcininKorOglu/vdx/internal/logging"
)

const directoryYAML = `
logging:
  level: debug
engine:
  workers: 2
  lockTimeout: 2s
connectors:
  - name: mem
    type: memory
    seed:
      users:
        - {id: 1, name: alice}
        - {id: 2, name: bob}
      emails:
        - {user_id: 1, email: [alice@x.com]}
sources:
  - name: users
    connector: mem
    fields:
      - {name: id, primaryKey: true}
      - {name: name}
  - name: emails
    connector: mem
    fields:
      - {name: user_id, primaryKey: true}
      - {name: email, primaryKey: true}
entries:
  - id: users-ou
    parentDN: "dc=example,dc=com"
    objectClasses: [organizationalUnit]
    attributes:
      - {name: ou, rdn: true, constant: users}
  - id: user
    parent: users-ou
    objectClasses: [person]
    attributes:
      - {name: id, rdn: true, variable: users.id}
      - {name: name, variable: users.name}
      - {name: email, variable: mails.email}
    sources:
      - source: users
        fields:
          - {name: id, variable: id}
          - {name: name, variable: name}
      - alias: mails
        source: emails
        required: false
        filter: "(email=*)"
        fields:
          - {name: email, variable: email}
    relationships:
      - users.id = mails.user_id
`

func parse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 100, cfg.Engine.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Engine.LockTimeout)
	assert.Equal(t, CacheMemory, cfg.Cache.Type)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.Redis.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 256, cfg.Changes.Replay)
	assert.Empty(t, ValidateConfig(cfg))
}

func TestParseConfig(t *testing.T) {
	cfg := parse(t, directoryYAML)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, 100, cfg.Engine.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Engine.LockTimeout)

	require.Len(t, cfg.Connectors, 1)
	mem := cfg.Connector("mem")
	require.NotNil(t, mem)
	assert.Equal(t, Values{"1"}, mem.Seed["users"][0]["id"])
	assert.Equal(t, Values{"alice@x.com"}, mem.Seed["emails"][0]["email"])

	require.Len(t, cfg.Entries, 2)
	user := cfg.Entries[1]
	assert.Equal(t, "users-ou", user.Parent)
	assert.Equal(t, "users.id", user.Attributes[0].Variable)
	assert.True(t, user.Attributes[0].RDN)

	require.Len(t, user.Sources, 2)
	assert.True(t, *user.Sources[0].Required)
	assert.True(t, *user.Sources[0].IncludeOnAdd)
	assert.False(t, *user.Sources[1].Required)
	assert.True(t, *user.Sources[1].IncludeOnModify)

	assert.Empty(t, ValidateConfig(cfg))
}

func TestParseConfigKeepsWrittenZeros(t *testing.T) {
	cfg := parse(t, "engine:\n  workers: 0\n  lockTimeout: 0s\ncache:\n  size: 0\n  ttl: 0s\nchanges:\n  buffer: 0\n")

	assert.Zero(t, cfg.Engine.Workers)
	assert.Equal(t, 100, cfg.Engine.BatchSize)
	assert.Zero(t, cfg.Engine.LockTimeout)
	assert.Zero(t, cfg.Cache.Size)
	assert.Zero(t, cfg.Cache.TTL)
	assert.Equal(t, 256, cfg.Changes.Replay)
	assert.Zero(t, cfg.Changes.Buffer)

	err := Validate(cfg)
	assert.ErrorContains(t, err, "engine.workers")
	assert.ErrorContains(t, err, "engine.lockTimeout")
	assert.ErrorContains(t, err, "changes.buffer")
	assert.NotContains(t, err.Error(), "cache.")
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "engine:\n  threads: 4\n"},
		{"wrong type", "engine:\n  workers: many\n"},
		{"bad seed value", "connectors:\n  - name: m\n    seed:\n      users:\n        - {id: {a: 1}}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidYAML)
		})
	}
}

func TestParseEmptyConfig(t *testing.T) {
	cfg := parse(t, "")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("VDX_TEST_DSN", "file:hr.db")
	t.Setenv("VDX_TEST_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "dsn: ${VDX_TEST_DSN}", "dsn: file:hr.db"},
		{"default unused", "dsn: ${VDX_TEST_DSN:-other}", "dsn: file:hr.db"},
		{"default used", "dsn: ${VDX_TEST_UNSET:-file::memory:}", "dsn: file::memory:"},
		{"empty uses default", "dsn: ${VDX_TEST_EMPTY:-x}", "dsn: x"},
		{"unset", "dsn: '${VDX_TEST_UNSET}'", "dsn: ''"},
		{"no pattern", "dsn: $HOME", "dsn: $HOME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(substituteEnvVars([]byte(tt.input))))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	t.Setenv("VDX_TEST_LEVEL", "warn")
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: ${VDX_TEST_LEVEL}\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log output", func(c *Config) { c.Logging.Output = "relative.log" }, "logging.output"},
		{"workers", func(c *Config) { c.Engine.Workers = 0 }, "engine.workers"},
		{"replay", func(c *Config) { c.Changes.Replay = 0 }, "changes.replay"},
		{"cache type", func(c *Config) { c.Cache.Type = "disk" }, "cache.type"},
		{"redis url", func(c *Config) { c.Cache.Type = CacheRedis; c.Cache.Redis.URL = "" }, "cache.redis.url"},
		{"duplicate connector", func(c *Config) { c.Connectors = append(c.Connectors, c.Connectors[0]) }, "connectors[1].name"},
		{"connector type", func(c *Config) { c.Connectors[0].Type = "mongo" }, "connectors[0].type"},
		{"sqlite dsn", func(c *Config) { c.Connectors[0].Type = ConnectorSQLite }, "connectors[0].dsn"},
		{"seeded sqlite", func(c *Config) {
			c.Connectors[0].Type = ConnectorSQLite
			c.Connectors[0].DSN = "file::memory:"
		}, "connectors[0].seed"},
		{"ldap url", func(c *Config) { c.Connectors[0].Type = ConnectorLDAP; c.Connectors[0].Seed = nil }, "connectors[0].url"},
		{"unknown connector", func(c *Config) { c.Sources[0].Connector = "hr" }, "sources[0].connector"},
		{"no fields", func(c *Config) { c.Sources[1].Fields = nil }, "sources[1].fields"},
		{"duplicate entry", func(c *Config) { c.Entries[1].ID = "users-ou" }, "entries[1].id"},
		{"unknown parent", func(c *Config) { c.Entries[1].Parent = "groups" }, "entries[1].parent"},
		{"parent and parentDN", func(c *Config) { c.Entries[1].ParentDN = "dc=example,dc=com" }, "entries[1]"},
		{"bad parentDN", func(c *Config) { c.Entries[0].ParentDN = "example" }, "entries[0].parentDN"},
		{"no rdn", func(c *Config) { c.Entries[0].Attributes[0].RDN = false }, "entries[0].attributes"},
		{"unknown source", func(c *Config) { c.Entries[1].Sources[0].Source = "groups" }, "entries[1].sources[0].source"},
		{"bad filter", func(c *Config) { c.Entries[1].Sources[1].Filter = "(email=" }, "entries[1].sources[1].filter"},
		{"bad relationship", func(c *Config) { c.Entries[1].Relationships[0] = "users.id" }, "entries[1].relationships[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t, directoryYAML)
			tt.mutate(cfg)

			errs := ValidateConfig(cfg)
			require.NotEmpty(t, errs)
			var fields []string
			for _, err := range errs {
				var ve ValidationError
				require.ErrorAs(t, err, &ve)
				fields = append(fields, ve.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestToRegistry(t *testing.T) {
	reg, err := ToRegistry(parse(t, directoryYAML))
	require.NoError(t, err)

	user := reg.Entry("user")
	require.NotNil(t, user)
	assert.Equal(t, "users-ou", user.Parent().ID)
	require.Len(t, user.Sources, 2)

	mails := user.Source("mails")
	require.NotNil(t, mails)
	assert.Equal(t, "emails", mails.Source)
	assert.False(t, mails.Required)
	assert.True(t, mails.IncludeOnAdd)
	assert.Equal(t, "(email=*)", mails.Filter.String())
	assert.Equal(t, []string{"user_id", "email"}, mails.Definition().PrimaryKeys())

	require.Len(t, user.Relationships, 1)
	assert.True(t, user.Relationships[0].References("mails"))

	assert.True(t, reg.Entry("users-ou").IsStatic())
	assert.Equal(t, []string{"mem"}, reg.Connectors())

	ems := reg.MappingsFor("id=1,ou=users,dc=example,dc=com")
	require.Len(t, ems, 1)
	assert.Equal(t, "user", ems[0].ID)
}

func TestToRegistryErrors(t *testing.T) {
	cfg := parse(t, directoryYAML)
	cfg.Entries[1].Sources[1].Filter = "(email="
	cfg.Entries[1].Relationships = append(cfg.Entries[1].Relationships, "nonsense")

	_, err := ToRegistry(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter")
	assert.Contains(t, err.Error(), "entry user")
}

func TestRedacted(t *testing.T) {
	cfg := parse(t, directoryYAML)
	cfg.Connectors[0].Password = "secret"

	out := cfg.Redacted()
	assert.Equal(t, "********", out.Connectors[0].Password)
	assert.Equal(t, "secret", cfg.Connectors[0].Password)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, parse(t, directoryYAML), logging.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close(ctx)) }()

	res, err := rt.Engine.Search(ctx, &engine.SearchRequest{
		BaseDN: "ou=users,dc=example,dc=com",
		Scope:  directory.ScopeOneLevel,
	})
	require.NoError(t, err)
	entries, err := res.All()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entry, err := rt.Engine.Find(ctx, "id=1,ou=users,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@x.com"}, entry.GetAttribute("email"))
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := parse(t, directoryYAML)
	cfg.Engine.Workers = -1

	_, err := Open(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.workers")
}

func TestOpenConnectorsSQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connectors = []ConnectorConfig{{
		Name: "hr",
		Type: ConnectorSQLite,
		DSN:  "file::memory:",
		Init: []string{
			"CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)",
			"INSERT INTO users VALUES ('1', 'alice')",
		},
	}}

	set, err := OpenConnectors(context.Background(), cfg)
	require.NoError(t, err)
	defer set.Close()
	assert.Equal(t, []string{"hr"}, set.Names())

	cfg.Connectors[0].Init = []string{"NOT SQL"}
	_, err = OpenConnectors(context.Background(), cfg)
	assert.ErrorContains(t, err, "connector hr")
}

func TestOpenCaches(t *testing.T) {
	tests := []struct {
		name      string
		cacheType string
		check     func(t *testing.T, entries cache.EntryCache, filters cache.FilterCache)
	}{
		{"none", CacheNone, func(t *testing.T, entries cache.EntryCache, filters cache.FilterCache) {
			assert.IsType(t, cache.Nop{}, entries)
			assert.IsType(t, cache.NopFilter{}, filters)
		}},
		{"memory", CacheMemory, func(t *testing.T, entries cache.EntryCache, filters cache.FilterCache) {
			assert.IsType(t, &cache.MemoryEntryCache{}, entries)
			assert.IsType(t, &cache.MemoryFilterCache{}, filters)
		}},
		{"redis", CacheRedis, func(t *testing.T, entries cache.EntryCache, _ cache.FilterCache) {
			ctx := context.Background()
			require.NoError(t, entries.Put(ctx, directory.NewEntry("id=1,dc=example,dc=com")))
			_, ok, err := entries.Get(ctx, "id=1,dc=example,dc=com")
			require.NoError(t, err)
			assert.True(t, ok)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Cache.Type = tt.cacheType
			if tt.cacheType == CacheRedis {
				cfg.Cache.Redis.URL = "redis://" + miniredis.RunT(t).Addr()
			}

			entries, filters, rc, err := OpenCaches(cfg)
			require.NoError(t, err)
			if rc != nil {
				defer rc.Close()
			}
			tt.check(t, entries, filters)
		})
	}
}
