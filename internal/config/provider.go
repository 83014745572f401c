package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// ErrKeyNotFound is returned when the etcd key holding the configuration
// does not exist.
var ErrKeyNotFound = errors.New("configuration key not found")

var (
	_ mapping.Provider = FileProvider{}
	_ mapping.Provider = (*EtcdProvider)(nil)
)

// FileProvider loads the registry from a YAML file.
type FileProvider struct {
	Path string
}

// Config reads the file.
func (p FileProvider) Config(context.Context) (*Config, error) {
	if p.Path == "" {
		return nil, ErrMissingConfigFile
	}
	return LoadConfig(p.Path)
}

// Load reads, validates and converts the file.
func (p FileProvider) Load(ctx context.Context) (*mapping.Registry, error) {
	cfg, err := p.Config(ctx)
	if err != nil {
		return nil, err
	}
	return registryOf(cfg)
}

func registryOf(cfg *Config) (*mapping.Registry, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return ToRegistry(cfg)
}

// KV is the part of the etcd client read by EtcdProvider.
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

// EtcdProvider loads the registry from a YAML document stored under one
// etcd key.
type EtcdProvider struct {
	KV  KV
	Key string

	client *clientv3.Client
}

// EtcdConfig configures NewEtcdProvider.
type EtcdConfig struct {
	Endpoints   []string
	Key         string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// NewEtcdProvider connects to an etcd cluster.
func NewEtcdProvider(cfg EtcdConfig) (*EtcdProvider, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("etcd key cannot be empty")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &EtcdProvider{KV: cli, Key: cfg.Key, client: cli}, nil
}

// Config fetches the key and parses the document it holds.
func (p *EtcdProvider) Config(ctx context.Context) (*Config, error) {
	resp, err := p.KV.Get(ctx, p.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from etcd: %w", p.Key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, p.Key)
	}
	return ParseConfig(resp.Kvs[0].Value)
}

// Load fetches, validates and converts the stored document.
func (p *EtcdProvider) Load(ctx context.Context) (*mapping.Registry, error) {
	cfg, err := p.Config(ctx)
	if err != nil {
		return nil, err
	}
	return registryOf(cfg)
}

// Close closes the client created by NewEtcdProvider.
func (p *EtcdProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
