package boltcluster

import (
	"context"
	"sync"

	commonspool "github.com/jolestar/go-commons-pool/v2"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/log"
)

// SocketConnectionPool bounds the number of live Connections to a single
// address. Acquire blocks up to the configured timeout once the pool is
// at capacity; Release returns a healthy connection to idle and destroys
// an unhealthy one; Dispose tears down every pooled connection and fails
// all further acquisitions.
type SocketConnectionPool struct {
	addr Address
	cfg  Config
	pool *commonspool.ObjectPool

	mu       sync.Mutex
	disposed bool
}

// connectionFactory adapts Connection's lifecycle to go-commons-pool's
// PooledObjectFactory contract.
type connectionFactory struct {
	addr Address
	cfg  Config
}

func (f *connectionFactory) MakeObject(ctx context.Context) (*commonspool.PooledObject, error) {
	conn, err := Dial(f.addr, f.cfg)
	if err != nil {
		return nil, err
	}
	return commonspool.NewPooledObject(conn), nil
}

func (f *connectionFactory) DestroyObject(ctx context.Context, object *commonspool.PooledObject) error {
	conn := object.Object.(*Connection)
	return conn.Close()
}

func (f *connectionFactory) ValidateObject(ctx context.Context, object *commonspool.PooledObject) bool {
	conn, ok := object.Object.(*Connection)
	return ok && conn.Healthy()
}

func (f *connectionFactory) ActivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}

func (f *connectionFactory) PassivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}

// NewSocketConnectionPool builds a bounded pool of connections to addr.
func NewSocketConnectionPool(addr Address, cfg Config) *SocketConnectionPool {
	poolCfg := commonspool.NewDefaultPoolConfig()
	poolCfg.MaxTotal = cfg.MaxConnectionPoolSize
	poolCfg.MaxIdle = cfg.MaxConnectionPoolSize
	poolCfg.TestOnBorrow = true
	poolCfg.TestOnReturn = false
	poolCfg.BlockWhenExhausted = true

	factory := &connectionFactory{addr: addr, cfg: cfg}
	p := commonspool.NewObjectPool(context.Background(), factory, poolCfg)

	return &SocketConnectionPool{addr: addr, cfg: cfg, pool: p}
}

// Acquire borrows an idle connection if one is available, else opens a
// new one up to the configured maximum; once at maximum it blocks up to
// the acquisition timeout before failing with a ClientError.
func (p *SocketConnectionPool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return nil, errors.Client("connection pool for %s has been disposed", p.addr)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionAcquisitionTimeout)
	defer cancel()

	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		return nil, errors.WrapKind(errors.KindClient, err, "acquiring connection to %s", p.addr)
	}
	conn, ok := obj.(*Connection)
	if !ok {
		return nil, errors.Protocol("pool for %s returned unexpected object type %T", p.addr, obj)
	}
	return conn, nil
}

// Release returns a healthy connection to idle; an unhealthy one is
// destroyed instead.
func (p *SocketConnectionPool) Release(conn *Connection) error {
	ctx := context.Background()
	if !conn.Healthy() {
		return p.pool.InvalidateObject(ctx, conn)
	}
	if err := p.pool.ReturnObject(ctx, conn); err != nil {
		log.Errorf("returning connection %s to pool for %s: %v", conn.ID, p.addr, err)
		return err
	}
	return nil
}

// Dispose destroys every pooled connection. Further Acquire calls fail
// immediately.
func (p *SocketConnectionPool) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	p.mu.Unlock()

	p.pool.Close(context.Background())
	return nil
}
