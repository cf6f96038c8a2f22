package boltcluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltcluster/driver/errors"
)

// newTestManager registers one pool per router address (an address from
// liveAddr is backed by a real accepting fake server, so Acquire on it
// succeeds; an unreachable one makes Acquire fail) and returns a manager
// whose initial table's routers ring is exactly those addresses.
func newTestManager(t *testing.T, routers []Address) *RoutingTableManager {
	t.Helper()
	pool := NewClusterConnectionPool(testClusterConfig())
	t.Cleanup(func() { pool.Dispose() })
	require.NoError(t, pool.Update(routers))

	initial := NewRoutingTable(routers, nil, nil, time.Hour)
	return NewRoutingTableManager(pool, initial)
}

func liveAddr(t *testing.T) Address {
	t.Helper()
	a, err := ParseAddress(acceptingServer(t))
	require.NoError(t, err)
	return a
}

func TestUpdateRoutingTableAcceptsReadersNoWritersAndSetsAbsenceFlag(t *testing.T) {
	r1 := liveAddr(t)
	manager := newTestManager(t, []Address{r1})

	reader := liveAddr(t)
	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		return NewRoutingTable([]Address{r1}, []Address{reader}, nil, time.Minute), nil
	}

	table, err := manager.UpdateRoutingTable(fetch)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Empty(t, table.Writers())
	assert.True(t, manager.isReadingInAbsenceOfWriter())
}

func TestUpdateRoutingTableDiscardsTableWithNoReaders(t *testing.T) {
	r1 := liveAddr(t)
	r2 := liveAddr(t)
	manager := newTestManager(t, []Address{r1, r2})

	reader := liveAddr(t)
	writer := liveAddr(t)
	calls := 0
	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		calls++
		if calls == 1 {
			return NewRoutingTable([]Address{r1}, nil, nil, time.Minute), nil
		}
		return NewRoutingTable([]Address{r1}, []Address{reader}, []Address{writer}, time.Minute), nil
	}

	table, err := manager.UpdateRoutingTable(fetch)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 2, calls, "a no-readers table must be discarded and the next router tried")
	assert.NotEmpty(t, table.Writers())
}

func TestUpdateRoutingTableRemovesRouterOnAcquireFailure(t *testing.T) {
	dead, err := ParseAddress("127.0.0.1:1")
	require.NoError(t, err)
	live := liveAddr(t)

	manager := newTestManager(t, []Address{dead, live})

	reader := liveAddr(t)
	writer := liveAddr(t)
	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		return NewRoutingTable([]Address{live}, []Address{reader}, []Address{writer}, time.Minute), nil
	}

	table, err := manager.UpdateRoutingTable(fetch)
	require.NoError(t, err)
	require.NotNil(t, table)

	snapshot := manager.CurrentTable()
	for _, a := range snapshot.All() {
		assert.NotEqual(t, dead, a, "a router that failed to acquire must be removed")
	}
}

func TestUpdateRoutingTablePropagatesServiceUnavailableWithoutRemovingRouter(t *testing.T) {
	r1 := liveAddr(t)
	manager := newTestManager(t, []Address{r1})

	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		return nil, errors.ServiceUnavailable("router refused the routing query")
	}

	table, err := manager.UpdateRoutingTable(fetch)
	assert.Nil(t, table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindServiceUnavailable))
	assert.Contains(t, manager.CurrentTable().Routers(), r1, "the router must not be removed")
}

func TestUpdateRoutingTableWithInitialUriFallbackUsesSeedsWhenRoutersExhausted(t *testing.T) {
	dead, err := ParseAddress("127.0.0.1:1")
	require.NoError(t, err)
	manager := newTestManager(t, []Address{dead})

	seed := liveAddr(t)
	// The seed's own pool must be registered for the fallback to succeed
	// borrowing a connection from it.
	require.NoError(t, manager.pool.Update([]Address{dead, seed}))

	reader := liveAddr(t)
	writer := liveAddr(t)
	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		return NewRoutingTable([]Address{seed}, []Address{reader}, []Address{writer}, time.Minute), nil
	}

	table, err := manager.UpdateRoutingTableWithInitialUriFallback([]Address{seed}, fetch)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.NotEmpty(t, table.Writers())
}

func TestUpdateRoutingTableWithInitialUriFallbackFailsServiceUnavailableWhenNothingWorks(t *testing.T) {
	dead, err := ParseAddress("127.0.0.1:1")
	require.NoError(t, err)
	manager := newTestManager(t, []Address{dead})
	require.NoError(t, manager.pool.Update([]Address{dead}))

	fetch := func(*ClusterConnection) (*RoutingTable, error) {
		t.Fatal("fetch should never be invoked when every router/seed is unreachable")
		return nil, nil
	}

	_, err = manager.UpdateRoutingTableWithInitialUriFallback([]Address{dead}, fetch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindServiceUnavailable))
}

func TestPrependRoutersRegistersAddressesWithPool(t *testing.T) {
	r1 := liveAddr(t)
	manager := newTestManager(t, []Address{r1})

	newRouter := liveAddr(t)
	manager.prependRouters([]Address{newRouter})

	assert.Contains(t, manager.pool.Addresses(), newRouter)
	assert.Contains(t, manager.CurrentTable().Routers(), newRouter)
}
