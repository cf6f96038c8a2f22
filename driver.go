package boltcluster

import (
	"context"
	"time"

	"github.com/boltcluster/driver/errors"
)

// Driver is the top-level handle an application holds: it owns the
// cluster-wide connection pool and the routing table manager, and hands
// out ClusterConnections through its LoadBalancer.
type Driver struct {
	pool    *ClusterConnectionPool
	manager *RoutingTableManager
	lb      *LoadBalancer
}

// Open parses cfg.InitialRouters as seed addresses, opens the
// cluster-wide connection pool against them, and returns a Driver whose
// routing table holds only the seeds as routers, with no readers or
// writers and a zero TTL, so it is stale until the first Acquire triggers
// a real refresh.
func Open(cfg Config) (*Driver, error) {
	if len(cfg.InitialRouters) == 0 {
		return nil, errors.Client("no initial routers configured")
	}

	seeds := make([]Address, 0, len(cfg.InitialRouters))
	for _, raw := range cfg.InitialRouters {
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, addr)
	}

	pool := NewClusterConnectionPool(cfg)
	if err := pool.Update(seeds); err != nil {
		return nil, err
	}

	initial := NewRoutingTable(seeds, nil, nil, 0)
	manager := NewRoutingTableManager(pool, initial)
	fetch := NewRoutingContextFetch(nil, int64(cfg.RoutingTableTTLFloor/time.Second))
	lb := NewLoadBalancer(manager, pool, seeds, fetch, cfg.MaxRoutingRetries)

	return &Driver{pool: pool, manager: manager, lb: lb}, nil
}

// Acquire hands back a ClusterConnection suitable for the given access
// mode, refreshing the routing table first if it has gone stale.
func (d *Driver) Acquire(ctx context.Context, mode AccessMode) (*ClusterConnection, error) {
	return d.lb.Acquire(ctx, mode)
}

// RoutingTable exposes the current routing table (the live table, not a
// copy), mainly useful for diagnostics (cmd/boltping prints it).
func (d *Driver) RoutingTable() *RoutingTable {
	return d.manager.CurrentTable()
}

// Close disposes every per-address connection pool.
func (d *Driver) Close() error {
	return d.pool.Dispose()
}
