package boltcluster

import (
	"context"

	"github.com/boltcluster/driver/errors"
)

// LoadBalancer is the entry point a session layer acquires connections
// through: it keeps the routing table fresh and hands back a
// ClusterConnection bound to the requested access mode.
type LoadBalancer struct {
	manager *RoutingTableManager
	pool    *ClusterConnectionPool
	seeds   []Address
	fetch   FetchFunc
	retries int
}

// NewLoadBalancer wires a manager and pool together with the seed
// addresses used for fallback and the fetch used to run the
// GetRoutingTable procedure.
func NewLoadBalancer(manager *RoutingTableManager, pool *ClusterConnectionPool, seeds []Address, fetch FetchFunc, maxRetries int) *LoadBalancer {
	return &LoadBalancer{manager: manager, pool: pool, seeds: seeds, fetch: fetch, retries: maxRetries}
}

// Acquire implements §4.9: refresh-if-stale, pick the next address in
// the requested ring, borrow a connection, and retry a bounded number of
// times if the borrow itself fails transiently.
func (lb *LoadBalancer) Acquire(ctx context.Context, mode AccessMode) (*ClusterConnection, error) {
	if err := lb.manager.EnsureFresh(mode, lb.seeds, lb.fetch); err != nil {
		return nil, err
	}

	attempts := lb.retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		table := lb.manager.CurrentTable()
		addr, ok := table.TryNext(mode)
		if !ok {
			if mode == Write && lb.manager.isReadingInAbsenceOfWriter() {
				return nil, errors.Client("Writes not supported in current topology")
			}
			return nil, errors.ServiceUnavailable("no %s server available in the current routing table", mode)
		}

		conn, err := lb.pool.Acquire(ctx, addr, mode, lb.manager.errorHandler())
		if err == nil {
			return conn, nil
		}

		lastErr = err
		lb.manager.removeAddress(addr)
	}

	return nil, errors.ServiceUnavailable("exhausted %d attempts acquiring a %s connection: %v", attempts, mode, lastErr)
}
