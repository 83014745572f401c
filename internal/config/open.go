package config

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/cache"
	rediscache "github.com/KilimcininKorOglu/vdx/internal/cache/redis"
	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/connector/ldapconn"
	"github.com/KilimcininKorOglu/vdx/internal/connector/memory"
	"github.com/KilimcininKorOglu/vdx/internal/connector/sqldb"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/engine"
	"github.com/KilimcininKorOglu/vdx/internal/lock"
	"github.com/KilimcininKorOglu/vdx/internal/logging"
)

// Runtime is an engine opened from a configuration together with the
// resources the engine does not own.
type Runtime struct {
	Engine  *engine.Engine
	Changes *changes.Broker
	redis   *rediscache.Cache
}

// Open validates cfg and starts an engine over the connectors, caches
// and change broker it declares.
func Open(ctx context.Context, cfg *Config, log logging.Logger) (*Runtime, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	reg, err := ToRegistry(cfg)
	if err != nil {
		return nil, err
	}

	conns, err := OpenConnectors(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Changes: changes.NewBroker(cfg.Changes.Replay, cfg.Changes.Buffer)}
	entries, filters, rc, err := OpenCaches(cfg)
	if err != nil {
		rt.Changes.Close()
		return nil, multierr.Append(err, conns.Close())
	}
	rt.redis = rc

	rt.Engine, err = engine.New(engine.Options{
		Registry:   reg,
		Connectors: conns,
		Entries:    entries,
		Filters:    filters,
		Locks:      lock.NewManager(cfg.Engine.LockTimeout),
		Changes:    rt.Changes,
		Logger:     log,
		Workers:    cfg.Engine.Workers,
		BatchSize:  cfg.Engine.BatchSize,
	})
	if err != nil {
		err = multierr.Append(err, conns.Close())
		return nil, multierr.Append(err, rt.release())
	}
	rt.Engine.Start()
	return rt, nil
}

// Close stops the engine and releases the caches and the broker.
func (rt *Runtime) Close(ctx context.Context) error {
	err := rt.Engine.Close(ctx)
	return multierr.Append(err, rt.release())
}

func (rt *Runtime) release() error {
	rt.Changes.Close()
	if rt.redis != nil {
		return rt.redis.Close()
	}
	return nil
}

// OpenConnectors opens every declared connector. Connectors already
// opened are closed when a later one fails.
func OpenConnectors(ctx context.Context, cfg *Config) (*connector.Set, error) {
	set := connector.NewSet()
	for _, cc := range cfg.Connectors {
		c, err := openConnector(ctx, cc)
		if err != nil {
			err = fmt.Errorf("connector %s: %w", cc.Name, err)
			return nil, multierr.Append(err, set.Close())
		}
		set.Register(cc.Name, c)
	}
	return set, nil
}

func openConnector(ctx context.Context, cc ConnectorConfig) (connector.Connector, error) {
	switch cc.Type {
	case ConnectorMemory:
		c := memory.New()
		for source, rows := range cc.Seed {
			for _, row := range rows {
				c.Seed(source, seedRow(row))
			}
		}
		return c, nil

	case ConnectorSQLite:
		c, err := sqldb.Open(ctx, sqldb.DriverSQLite, cc.DSN)
		if err != nil {
			return nil, err
		}
		for _, stmt := range cc.Init {
			if _, err := c.DB().ExecContext(ctx, stmt); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("init statement failed: %w", err)
			}
		}
		return c, nil

	case ConnectorLDAP:
		return ldapconn.Dial(ldapconn.Options{URL: cc.URL, BindDN: cc.BindDN, Password: cc.Password})
	}
	return nil, fmt.Errorf("unknown connector type %q", cc.Type)
}

func seedRow(row map[string]Values) *data.AttributeValues {
	m := make(map[string][]string, len(row))
	for k, v := range row {
		m[k] = v
	}
	return data.FromMap(m)
}

// OpenCaches creates the entry and filter caches. The redis cache is
// returned so the caller can close it.
func OpenCaches(cfg *Config) (cache.EntryCache, cache.FilterCache, *rediscache.Cache, error) {
	c := cfg.Cache
	switch c.Type {
	case CacheNone:
		return cache.Nop{}, cache.NopFilter{}, nil, nil
	case CacheRedis:
		rc, err := rediscache.New(rediscache.Options{URL: c.Redis.URL, Prefix: c.Redis.Prefix, TTL: c.TTL})
		if err != nil {
			return nil, nil, nil, err
		}
		return rc.Entries(), rc.Filters(), rc, nil
	}
	return cache.NewMemoryEntryCache(c.Size, c.TTL), cache.NewMemoryFilterCache(c.Size, c.TTL), nil, nil
}
