package boltcluster

import (
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"
)

// TrustStrategy selects how the driver validates the server's certificate
// when EncryptionLevel is not EncryptionNone.
type TrustStrategy string

const (
	TrustAll      TrustStrategy = "all"
	TrustSystemCA TrustStrategy = "system-ca"
	TrustCustomCA TrustStrategy = "custom-ca"
)

// EncryptionLevel selects whether the driver requires, prefers, or
// refuses TLS on the connections it opens.
type EncryptionLevel string

const (
	EncryptionRequired EncryptionLevel = "required"
	EncryptionOptional EncryptionLevel = "optional"
	EncryptionNone      EncryptionLevel = "none"
)

// Config is an immutable value object describing how the driver connects
// and routes. Build one with NewConfig and a chain of Options; nothing
// about a Config changes after construction, so the same value can be
// shared freely across goroutines.
type Config struct {
	MaxConnectionPoolSize          int
	ConnectionAcquisitionTimeout   time.Duration
	RoutingTableTTLFloor           time.Duration
	InitialRouters                 []string
	AuthToken                      map[string]interface{}
	EncryptionLevel                EncryptionLevel
	TrustStrategy                  TrustStrategy
	CustomCACertPath               string
	ChunkSize                      int
	ConnectTimeout                 time.Duration
	MaxRoutingRetries               int
}

// Option mutates a Config under construction.
type Option func(*Config)

// defaultConfig mirrors the conservative defaults most bolt drivers ship
// with: a fairly large per-address pool, a one-minute acquisition
// timeout, and a one-minute routing-table TTL floor.
func defaultConfig() Config {
	return Config{
		MaxConnectionPoolSize:        500,
		ConnectionAcquisitionTimeout: 60 * time.Second,
		RoutingTableTTLFloor:         60 * time.Second,
		EncryptionLevel:              EncryptionOptional,
		TrustStrategy:                TrustSystemCA,
		ChunkSize:                    8192,
		ConnectTimeout:               5 * time.Second,
		MaxRoutingRetries:            3,
	}
}

// NewConfig builds a Config from the package defaults plus the given
// Options, applied in order.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithMaxConnectionPoolSize(n int) Option {
	return func(c *Config) { c.MaxConnectionPoolSize = n }
}

func WithConnectionAcquisitionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionAcquisitionTimeout = d }
}

func WithRoutingTableTTLFloor(d time.Duration) Option {
	return func(c *Config) { c.RoutingTableTTLFloor = d }
}

func WithInitialRouters(addrs ...string) Option {
	return func(c *Config) { c.InitialRouters = addrs }
}

func WithAuthToken(token map[string]interface{}) Option {
	return func(c *Config) { c.AuthToken = token }
}

// WithBasicAuth builds the conventional {scheme: basic, principal,
// credentials} auth token INIT expects.
func WithBasicAuth(username, password string) Option {
	return func(c *Config) {
		c.AuthToken = map[string]interface{}{
			"scheme":      "basic",
			"principal":   username,
			"credentials": password,
		}
	}
}

func WithEncryptionLevel(level EncryptionLevel) Option {
	return func(c *Config) { c.EncryptionLevel = level }
}

func WithTrustStrategy(strategy TrustStrategy) Option {
	return func(c *Config) { c.TrustStrategy = strategy }
}

func WithCustomCACertPath(path string) Option {
	return func(c *Config) { c.CustomCACertPath = path }
}

func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

func WithMaxRoutingRetries(n int) Option {
	return func(c *Config) { c.MaxRoutingRetries = n }
}

// yamlConfig mirrors Config's fields in their YAML-friendly shape; the
// durations in the file are milliseconds, matching the §6 config names.
type yamlConfig struct {
	MaxConnectionPoolSize        int               `yaml:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout int               `yaml:"connection_acquisition_timeout_ms"`
	RoutingTableTTLFloor         int               `yaml:"routing_table_ttl_floor_ms"`
	InitialRouters               []string          `yaml:"initial_routers"`
	AuthToken                    map[string]interface{} `yaml:"auth_token"`
	EncryptionLevel              string            `yaml:"encryption_level"`
	TrustStrategy                string            `yaml:"trust_strategy"`
	CustomCACertPath             string            `yaml:"custom_ca_cert_path"`
	ChunkSize                    int               `yaml:"chunk_size"`
	ConnectTimeoutMs             int               `yaml:"connect_timeout_ms"`
	MaxRoutingRetries            int               `yaml:"max_routing_retries"`
}

// LoadConfigFile reads a YAML config file, layering its values over the
// package defaults. A zero/absent field in the file keeps the default.
func LoadConfigFile(path string) (Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var parsed yamlConfig
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if parsed.MaxConnectionPoolSize != 0 {
		cfg.MaxConnectionPoolSize = parsed.MaxConnectionPoolSize
	}
	if parsed.ConnectionAcquisitionTimeout != 0 {
		cfg.ConnectionAcquisitionTimeout = time.Duration(parsed.ConnectionAcquisitionTimeout) * time.Millisecond
	}
	if parsed.RoutingTableTTLFloor != 0 {
		cfg.RoutingTableTTLFloor = time.Duration(parsed.RoutingTableTTLFloor) * time.Millisecond
	}
	if len(parsed.InitialRouters) > 0 {
		cfg.InitialRouters = parsed.InitialRouters
	}
	if parsed.AuthToken != nil {
		cfg.AuthToken = parsed.AuthToken
	}
	if parsed.EncryptionLevel != "" {
		cfg.EncryptionLevel = EncryptionLevel(parsed.EncryptionLevel)
	}
	if parsed.TrustStrategy != "" {
		cfg.TrustStrategy = TrustStrategy(parsed.TrustStrategy)
	}
	if parsed.CustomCACertPath != "" {
		cfg.CustomCACertPath = parsed.CustomCACertPath
	}
	if parsed.ChunkSize != 0 {
		cfg.ChunkSize = parsed.ChunkSize
	}
	if parsed.ConnectTimeoutMs != 0 {
		cfg.ConnectTimeout = time.Duration(parsed.ConnectTimeoutMs) * time.Millisecond
	}
	if parsed.MaxRoutingRetries != 0 {
		cfg.MaxRoutingRetries = parsed.MaxRoutingRetries
	}
	return cfg, nil
}
