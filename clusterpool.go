package boltcluster

import (
	"context"
	"sync"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/log"
)

// ClusterConnectionPool holds one SocketConnectionPool per address known
// to the current routing table. Update and Dispose are serialized
// against each other under the same lock: an Update that runs after
// Dispose returns a ClientError without creating any pool, so no pool is
// ever created once Dispose has run.
type ClusterConnectionPool struct {
	cfg Config

	mu       sync.RWMutex
	pools    map[string]*SocketConnectionPool
	addrs    map[string]Address
	disposed bool
}

// NewClusterConnectionPool builds an empty pool set.
func NewClusterConnectionPool(cfg Config) *ClusterConnectionPool {
	return &ClusterConnectionPool{
		cfg:   cfg,
		pools: map[string]*SocketConnectionPool{},
		addrs: map[string]Address{},
	}
}

// Acquire borrows a Connection for addr and wraps it in a
// ClusterConnection bound to the given access mode and error handler.
func (c *ClusterConnectionPool) Acquire(ctx context.Context, addr Address, mode AccessMode, handler ErrorHandler) (*ClusterConnection, error) {
	c.mu.RLock()
	pool, ok := c.pools[addr.Key()]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.ServiceUnavailable("no connection pool registered for %s", addr)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return newClusterConnection(conn, addr, mode, pool, handler), nil
}

// Update reconciles the pool set against newAddresses: a pool is created
// for every address not already present, and every present pool whose
// address is no longer wanted is disposed and removed. The operation is
// atomic from the caller's viewpoint.
func (c *ClusterConnectionPool) Update(newAddresses []Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return errors.Client("cluster connection pool has been disposed")
	}

	wanted := make(map[string]Address, len(newAddresses))
	for _, a := range newAddresses {
		wanted[a.Key()] = a
	}

	for key, a := range wanted {
		if _, exists := c.pools[key]; !exists {
			c.pools[key] = NewSocketConnectionPool(a, c.cfg)
			c.addrs[key] = a
			log.Infof("opened connection pool for %s", a)
		}
	}

	for key, pool := range c.pools {
		if _, stillWanted := wanted[key]; !stillWanted {
			if err := pool.Dispose(); err != nil {
				log.Errorf("disposing pool for %s: %v", c.addrs[key], err)
			}
			delete(c.pools, key)
			delete(c.addrs, key)
			log.Infof("disposed connection pool for %s", key)
		}
	}
	return nil
}

// Purge disposes and removes a single address's pool - used when a
// connection fault indicates that address is no longer reachable.
func (c *ClusterConnectionPool) Purge(addr Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, ok := c.pools[addr.Key()]
	if !ok {
		return nil
	}
	delete(c.pools, addr.Key())
	delete(c.addrs, addr.Key())
	return pool.Dispose()
}

// Dispose tears down every pool. Any Update racing this call observes
// disposed=true under the same lock and fails without creating anything.
func (c *ClusterConnectionPool) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil
	}
	c.disposed = true

	var firstErr error
	for key, pool := range c.pools {
		if err := pool.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.pools, key)
		delete(c.addrs, key)
	}
	return firstErr
}

// Addresses returns the set of addresses currently pooled.
func (c *ClusterConnectionPool) Addresses() []Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Address, 0, len(c.addrs))
	for _, a := range c.addrs {
		out = append(out, a)
	}
	return out
}
