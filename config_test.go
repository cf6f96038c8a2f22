package boltcluster

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 500, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 60*time.Second, cfg.ConnectionAcquisitionTimeout)
	assert.Equal(t, EncryptionOptional, cfg.EncryptionLevel)
	assert.Equal(t, TrustSystemCA, cfg.TrustStrategy)
	assert.Equal(t, 8192, cfg.ChunkSize)
}

func TestNewConfigOptionsOverrideDefaults(t *testing.T) {
	cfg := NewConfig(
		WithMaxConnectionPoolSize(10),
		WithConnectionAcquisitionTimeout(5*time.Second),
		WithRoutingTableTTLFloor(30*time.Second),
		WithInitialRouters("a:7687", "b:7687"),
		WithBasicAuth("neo4j", "secret"),
		WithEncryptionLevel(EncryptionRequired),
		WithTrustStrategy(TrustCustomCA),
		WithCustomCACertPath("/tmp/ca.pem"),
		WithChunkSize(4096),
		WithConnectTimeout(2*time.Second),
		WithMaxRoutingRetries(5),
	)

	assert.Equal(t, 10, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 5*time.Second, cfg.ConnectionAcquisitionTimeout)
	assert.Equal(t, 30*time.Second, cfg.RoutingTableTTLFloor)
	assert.Equal(t, []string{"a:7687", "b:7687"}, cfg.InitialRouters)
	assert.Equal(t, "basic", cfg.AuthToken["scheme"])
	assert.Equal(t, "neo4j", cfg.AuthToken["principal"])
	assert.Equal(t, "secret", cfg.AuthToken["credentials"])
	assert.Equal(t, EncryptionRequired, cfg.EncryptionLevel)
	assert.Equal(t, TrustCustomCA, cfg.TrustStrategy)
	assert.Equal(t, "/tmp/ca.pem", cfg.CustomCACertPath)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5, cfg.MaxRoutingRetries)
}

func TestLoadConfigFileLayersOverDefaults(t *testing.T) {
	const yamlBody = `
max_connection_pool_size: 42
routing_table_ttl_floor_ms: 15000
initial_routers:
  - "r1:7687"
  - "r2:7687"
encryption_level: required
trust_strategy: all
`
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(yamlBody)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadConfigFile(f.Name())
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 15*time.Second, cfg.RoutingTableTTLFloor)
	assert.Equal(t, []string{"r1:7687", "r2:7687"}, cfg.InitialRouters)
	assert.Equal(t, EncryptionLevel("required"), cfg.EncryptionLevel)
	assert.Equal(t, TrustStrategy("all"), cfg.TrustStrategy)

	// Fields absent from the file keep the package default.
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestLoadConfigFileMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}
