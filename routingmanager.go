package boltcluster

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/log"
	"github.com/boltcluster/driver/structures/messages"
)

// getRoutingTableProcedure is the Bolt-cluster system procedure every
// router answers; it returns one row shaped (ttl, servers), servers
// being a list of {role, addresses} maps.
const getRoutingTableProcedure = "CALL dbms.cluster.routing.getRoutingTable($context)"

// FetchFunc runs the GetRoutingTable procedure against an already
// acquired router connection and parses its single row into a
// RoutingTable.
type FetchFunc func(conn *ClusterConnection) (*RoutingTable, error)

// NewRoutingContextFetch builds the default FetchFunc, issuing
// getRoutingTableProcedure with routingContext as its parameter and
// parsing the conventional {ttl, servers} result row, grounded in the
// teacher's cluster-overview row-parsing style (routing.go's parseRow /
// convertInterfaceToStringArr).
func NewRoutingContextFetch(routingContext map[string]interface{}, ttlFloor int64) FetchFunc {
	return func(cc *ClusterConnection) (*RoutingTable, error) {
		rows, err := runOneRowQuery(cc, getRoutingTableProcedure, map[string]interface{}{"context": routingContext})
		if err != nil {
			return nil, err
		}
		if len(rows) != 1 || len(rows[0]) != 2 {
			return nil, errors.Protocol("GetRoutingTable returned %d rows, expected exactly 1 of shape (ttl, servers)", len(rows))
		}

		ttlSeconds, ok := toInt(rows[0][0])
		if !ok {
			return nil, errors.Protocol("GetRoutingTable ttl field is not an integer: %#v", rows[0][0])
		}
		if ttlSeconds < ttlFloor {
			ttlSeconds = ttlFloor
		}

		servers, ok := rows[0][1].([]interface{})
		if !ok {
			return nil, errors.Protocol("GetRoutingTable servers field is not a list: %#v", rows[0][1])
		}

		var routers, readers, writers []Address
		for _, raw := range servers {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				return nil, errors.Protocol("GetRoutingTable server entry is not a map: %#v", raw)
			}
			role, _ := entry["role"].(string)
			addrs, err := parseServerAddresses(entry["addresses"])
			if err != nil {
				return nil, err
			}
			switch role {
			case "ROUTE":
				routers = append(routers, addrs...)
			case "READ":
				readers = append(readers, addrs...)
			case "WRITE":
				writers = append(writers, addrs...)
			default:
				return nil, errors.Protocol("GetRoutingTable server entry has unrecognized role %q", role)
			}
		}

		return NewRoutingTable(routers, readers, writers, time.Duration(ttlSeconds)*time.Second), nil
	}
}

func parseServerAddresses(raw interface{}) ([]Address, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Protocol("GetRoutingTable addresses field is not a list: %#v", raw)
	}
	out := make([]Address, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Protocol("GetRoutingTable address entry is not a string: %#v", v)
		}
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// runOneRowQuery runs a RUN/PULL_ALL pair and returns every row
// accumulated before the PULL_ALL's own SUCCESS.
func runOneRowQuery(cc *ClusterConnection, statement string, params map[string]interface{}) ([][]interface{}, error) {
	var rows [][]interface{}
	runResult := &rowCollector{}
	if err := cc.Send(messages.NewRunMessage(statement, params), runResult); err != nil {
		return nil, err
	}
	pullResult := &rowCollector{rows: &rows}
	if err := cc.Send(messages.NewPullAllMessage(), pullResult); err != nil {
		return nil, err
	}
	if err := cc.Sync(); err != nil {
		return nil, err
	}
	if runResult.failure != nil {
		return nil, errors.Client("%s: %s", runResult.failure.code, runResult.failure.message)
	}
	if pullResult.failure != nil {
		return nil, errors.Client("%s: %s", pullResult.failure.code, pullResult.failure.message)
	}
	return rows, nil
}

type rowCollector struct {
	rows    *[][]interface{}
	failure *failureOutcome
}

func (r *rowCollector) OnRecord(values []interface{}) error {
	if r.rows != nil {
		*r.rows = append(*r.rows, values)
	}
	return nil
}
func (r *rowCollector) OnSuccess(map[string]interface{}) error { return nil }
func (r *rowCollector) OnFailure(code, message string) error {
	r.failure = &failureOutcome{code: code, message: message}
	return nil
}
func (r *rowCollector) OnIgnored() error { return nil }

func toInt(v interface{}) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

// RoutingTableManager owns the one live RoutingTable for a driver
// instance, refreshing it against the cluster's routers and folding
// observed faults back into routing/pool state.
type RoutingTableManager struct {
	mu                       sync.RWMutex
	table                    *RoutingTable
	readingInAbsenceOfWriter bool

	pool  *ClusterConnectionPool
	group singleflight.Group
}

// NewRoutingTableManager seeds the manager with an already-built initial
// RoutingTable (typically empty rings plus the configured initial
// routers, so the very first Acquire call finds it stale and triggers a
// real refresh).
func NewRoutingTableManager(pool *ClusterConnectionPool, initial *RoutingTable) *RoutingTableManager {
	return &RoutingTableManager{pool: pool, table: initial}
}

// CurrentTable returns the live table. Callers must not mutate it directly.
func (m *RoutingTableManager) CurrentTable() *RoutingTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}

func (m *RoutingTableManager) isReadingInAbsenceOfWriter() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readingInAbsenceOfWriter
}

func (m *RoutingTableManager) setTable(t *RoutingTable, absenceOfWriter bool) {
	m.mu.Lock()
	m.table = t
	m.readingInAbsenceOfWriter = absenceOfWriter
	m.mu.Unlock()
}

func (m *RoutingTableManager) removeAddress(addr Address) {
	m.mu.Lock()
	m.table.Remove(addr)
	m.mu.Unlock()
}

func (m *RoutingTableManager) removeWriter(addr Address) {
	m.mu.Lock()
	m.table.RemoveWriter(addr)
	m.mu.Unlock()
}

func (m *RoutingTableManager) prependRouters(addrs []Address) {
	m.mu.Lock()
	m.table.PrependRouters(addrs)
	snapshot := m.table.All()
	m.mu.Unlock()

	if err := m.pool.Update(snapshot); err != nil {
		log.Errorf("registering prepended routers with connection pool: %v", err)
	}
}

// errorHandler adapts this manager to ErrorHandler, used both for the
// manager's own router connections and for ordinary query connections
// acquired through the same ClusterConnectionPool.
func (m *RoutingTableManager) errorHandler() ErrorHandler {
	return routingErrorHandler{manager: m}
}

type routingErrorHandler struct {
	manager *RoutingTableManager
}

func (h routingErrorHandler) OnConnectionError(addr Address) error {
	if err := h.manager.pool.Purge(addr); err != nil {
		return err
	}
	h.manager.removeAddress(addr)
	return nil
}

func (h routingErrorHandler) OnWriteError(addr Address) error {
	h.manager.removeWriter(addr)
	return nil
}

// UpdateRoutingTable implements the router-iteration protocol of §4.8: it
// walks the current routers ring, borrowing a connection from each in
// turn, until one yields an acceptable table or the ring is exhausted.
func (m *RoutingTableManager) UpdateRoutingTable(fetch FetchFunc) (*RoutingTable, error) {
	table, _, err := m.updateRoutingTable(fetch)
	return table, err
}

func (m *RoutingTableManager) updateRoutingTable(fetch FetchFunc) (*RoutingTable, map[string]bool, error) {
	m.mu.RLock()
	routers := m.table.Routers()
	m.mu.RUnlock()

	tried := map[string]bool{}
	for _, router := range routers {
		tried[router.Key()] = true

		cc, err := m.pool.Acquire(context.Background(), router, Read, m.errorHandler())
		if err != nil {
			m.removeAddress(router)
			continue
		}

		newTable, fetchErr := fetch(cc)
		cc.Release()

		if fetchErr != nil {
			switch {
			case errors.Is(fetchErr, errors.KindServiceUnavailable),
				errors.Is(fetchErr, errors.KindProtocol),
				errors.Is(fetchErr, errors.KindAuthentication):
				return nil, tried, fetchErr
			default:
				m.removeAddress(router)
				continue
			}
		}

		if len(newTable.Readers()) == 0 {
			log.Infof("routing table from %s has no readers, trying next router", router)
			continue
		}

		if err := m.pool.Update(newTable.All()); err != nil {
			return nil, tried, err
		}

		if len(newTable.Writers()) == 0 {
			m.setTable(newTable, true)
			log.Infof("accepted routing table from %s with no writers", router)
			return newTable, tried, nil
		}

		m.setTable(newTable, false)
		return newTable, tried, nil
	}

	return nil, tried, nil
}

// UpdateRoutingTableWithInitialUriFallback implements §4.8's seed
// fallback: a driver reading in the absence of a writer reconsults the
// seeds first (the cluster may have just elected a new leader reachable
// only through a seed no longer in the routers ring); otherwise it tries
// the routers ring, then falls back to whichever seeds it hasn't tried.
func (m *RoutingTableManager) UpdateRoutingTableWithInitialUriFallback(seeds []Address, fetch FetchFunc) (*RoutingTable, error) {
	if m.isReadingInAbsenceOfWriter() {
		m.prependRouters(seeds)
		table, err := m.UpdateRoutingTable(fetch)
		if err != nil {
			return nil, err
		}
		if table != nil {
			return table, nil
		}
	}

	table, tried, err := m.updateRoutingTable(fetch)
	if err != nil {
		return nil, err
	}
	if table != nil {
		return table, nil
	}

	var untried []Address
	for _, seed := range seeds {
		if !tried[seed.Key()] {
			untried = append(untried, seed)
		}
	}
	if len(untried) > 0 {
		m.prependRouters(untried)
		table, err = m.UpdateRoutingTable(fetch)
		if err != nil {
			return nil, err
		}
		if table != nil {
			return table, nil
		}
	}

	return nil, errors.ServiceUnavailable("Failed to connect to any routing server")
}

// EnsureFresh is the LoadBalancer's step 1: if the live table is stale
// for mode, refresh it, folding concurrent callers into a single
// in-flight refresh via singleflight rather than racing each other.
func (m *RoutingTableManager) EnsureFresh(mode AccessMode, seeds []Address, fetch FetchFunc) error {
	m.mu.RLock()
	stale := m.table.IsStale(mode)
	m.mu.RUnlock()
	if !stale {
		return nil
	}

	_, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		m.mu.RLock()
		stillStale := m.table.IsStale(mode)
		m.mu.RUnlock()
		if !stillStale {
			return nil, nil
		}
		return m.UpdateRoutingTableWithInitialUriFallback(seeds, fetch)
	})
	return err
}

