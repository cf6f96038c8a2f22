package boltcluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClusterConfig() Config {
	return NewConfig(WithMaxConnectionPoolSize(2), WithConnectionAcquisitionTimeout(time.Second))
}

func TestClusterConnectionPoolUpdateCreatesAndDisposesPools(t *testing.T) {
	addr1, err := ParseAddress(acceptingServer(t))
	require.NoError(t, err)
	addr2, err := ParseAddress(acceptingServer(t))
	require.NoError(t, err)

	pool := NewClusterConnectionPool(testClusterConfig())
	defer pool.Dispose()

	require.NoError(t, pool.Update([]Address{addr1, addr2}))
	assert.ElementsMatch(t, []Address{addr1, addr2}, pool.Addresses())

	require.NoError(t, pool.Update([]Address{addr2}))
	assert.Equal(t, []Address{addr2}, pool.Addresses())
}

func TestClusterConnectionPoolAcquireUnknownAddressFails(t *testing.T) {
	pool := NewClusterConnectionPool(testClusterConfig())
	defer pool.Dispose()

	addr, _ := ParseAddress("nowhere:7687")
	_, err := pool.Acquire(context.Background(), addr, Read, noopErrorHandler{})
	assert.Error(t, err)
}

func TestClusterConnectionPoolDisposeThenUpdateFails(t *testing.T) {
	pool := NewClusterConnectionPool(testClusterConfig())
	require.NoError(t, pool.Dispose())

	addr, _ := ParseAddress("nowhere:7687")
	err := pool.Update([]Address{addr})
	assert.Error(t, err)
	assert.Empty(t, pool.Addresses())
}

func TestClusterConnectionPoolPurgeRemovesSingleAddress(t *testing.T) {
	addr, err := ParseAddress(acceptingServer(t))
	require.NoError(t, err)

	pool := NewClusterConnectionPool(testClusterConfig())
	defer pool.Dispose()

	require.NoError(t, pool.Update([]Address{addr}))
	require.NoError(t, pool.Purge(addr))
	assert.Empty(t, pool.Addresses())
}

// noopErrorHandler satisfies ErrorHandler for tests that never expect it
// to be invoked.
type noopErrorHandler struct{}

func (noopErrorHandler) OnConnectionError(Address) error { return nil }
func (noopErrorHandler) OnWriteError(Address) error      { return nil }
