package boltcluster

import (
	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/structures"
)

// clusterErrorCodes are server FAILURE codes indicating the contacted
// server cannot serve the request in its current cluster role. The
// exhaustive list a real cluster can emit is server-defined and not
// fully enumerated by the source this was modeled on; these two are the
// ones its tests exercise.
var clusterErrorCodes = map[string]bool{
	"Neo.ClientError.Cluster.NotALeader":                  true,
	"Neo.ClientError.General.ForbiddenOnReadOnlyDatabase": true,
}

func isClusterError(code string) bool {
	return clusterErrorCodes[code]
}

// ErrorHandler reacts to faults a ClusterConnection observes, mutating
// pool/routing state as a side effect before the classified error is
// re-raised to the caller.
type ErrorHandler interface {
	// OnConnectionError purges the per-address pool and removes addr
	// from the routing table entirely.
	OnConnectionError(addr Address) error
	// OnWriteError removes addr from the writers ring only; its pool and
	// its standing as a reader/router are untouched.
	OnWriteError(addr Address) error
}

// ClusterConnection wraps a Connection, classifying faults it observes
// during send/receive into routing-aware actions before re-raising them.
type ClusterConnection struct {
	conn    *Connection
	addr    Address
	mode    AccessMode
	pool    *SocketConnectionPool
	handler ErrorHandler
}

func newClusterConnection(conn *Connection, addr Address, mode AccessMode, pool *SocketConnectionPool, handler ErrorHandler) *ClusterConnection {
	return &ClusterConnection{conn: conn, addr: addr, mode: mode, pool: pool, handler: handler}
}

// Send enqueues msg, wrapping consumer so a cluster-error FAILURE is
// classified before it ever reaches the caller.
func (c *ClusterConnection) Send(msg structures.MessageStructure, consumer ResponseConsumer) error {
	wrapped := &clusterFaultConsumer{inner: consumer, mode: c.mode, addr: c.addr, handler: c.handler}
	if err := c.conn.Send(msg, wrapped); err != nil {
		return c.classifyTransportFault(err)
	}
	return nil
}

// Sync flushes and drains the pending queue, classifying any fault that
// escapes as either a re-raised cluster-error classification (already
// shaped by clusterFaultConsumer) or a fresh connection-level fault.
func (c *ClusterConnection) Sync() error {
	if err := c.conn.Sync(); err != nil {
		return c.classifyTransportFault(err)
	}
	return nil
}

// classifyTransportFault distinguishes an error already classified by
// clusterFaultConsumer (SessionExpired, ClientError, and friends raised
// deliberately) from a raw I/O fault, which it escalates to
// OnConnectionError and rewrites as SessionExpired.
func (c *ClusterConnection) classifyTransportFault(err error) error {
	switch {
	case errors.Is(err, errors.KindSessionExpired),
		errors.Is(err, errors.KindClient),
		errors.Is(err, errors.KindProtocol),
		errors.Is(err, errors.KindAuthentication),
		errors.Is(err, errors.KindTransient):
		return err
	}

	if handlerErr := c.handler.OnConnectionError(c.addr); handlerErr != nil {
		return handlerErr
	}
	return errors.SessionExpired("connection to %s failed: %v", c.addr, err)
}

// AckFailure sends ACK_FAILURE on the wrapped connection.
func (c *ClusterConnection) AckFailure() error {
	if err := c.conn.AckFailure(); err != nil {
		return c.classifyTransportFault(err)
	}
	return nil
}

// Reset pipelines RESET on the wrapped connection.
func (c *ClusterConnection) Reset() error {
	if err := c.conn.Reset(); err != nil {
		return c.classifyTransportFault(err)
	}
	return nil
}

// Release returns the underlying connection to its per-address pool.
func (c *ClusterConnection) Release() error {
	return c.pool.Release(c.conn)
}

// Underlying exposes the wrapped Connection for callers that need direct
// Send/Sync access without cluster-error classification.
func (c *ClusterConnection) Underlying() *Connection {
	return c.conn
}

// clusterFaultConsumer classifies a FAILURE's error code before handing
// it to the caller's ResponseConsumer.
type clusterFaultConsumer struct {
	inner   ResponseConsumer
	mode    AccessMode
	addr    Address
	handler ErrorHandler
}

func (c *clusterFaultConsumer) OnRecord(values []interface{}) error {
	return c.inner.OnRecord(values)
}

func (c *clusterFaultConsumer) OnSuccess(metadata map[string]interface{}) error {
	return c.inner.OnSuccess(metadata)
}

func (c *clusterFaultConsumer) OnFailure(code, message string) error {
	if !isClusterError(code) {
		return c.inner.OnFailure(code, message)
	}

	if c.mode == Write {
		if err := c.handler.OnWriteError(c.addr); err != nil {
			return err
		}
		return errors.SessionExpired("server at %s no longer accepts writes", c.addr)
	}
	return errors.Client("write queries cannot be performed in READ access mode")
}

func (c *clusterFaultConsumer) OnIgnored() error {
	return c.inner.OnIgnored()
}
