package boltcluster

import "time"

// AccessMode selects which ring of a RoutingTable an operation draws
// from.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

func (m AccessMode) String() string {
	if m == Write {
		return "WRITE"
	}
	return "READ"
}

// ring is a round-robin address list. prepend skips addresses already
// present; newRing keeps the list it is given as it is, duplicates
// included.
type ring struct {
	addrs []Address
	next  int
}

func newRing(addrs []Address) ring {
	return ring{addrs: append([]Address(nil), addrs...)}
}

func (r *ring) tryNext() (Address, bool) {
	if len(r.addrs) == 0 {
		return Address{}, false
	}
	a := r.addrs[r.next%len(r.addrs)]
	r.next++
	return a, true
}

func (r *ring) remove(addr Address) {
	out := r.addrs[:0]
	for _, a := range r.addrs {
		if !a.Equal(addr) {
			out = append(out, a)
		}
	}
	r.addrs = out
	if r.next > len(r.addrs) {
		r.next = 0
	}
}

func (r *ring) contains(addr Address) bool {
	for _, a := range r.addrs {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

// prepend inserts addrs at the front, in the order given, skipping any
// already present. Existing entries already at the front keep their
// relative order behind the newly prepended ones.
func (r *ring) prepend(addrs []Address) {
	fresh := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if !r.contains(a) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return
	}
	r.addrs = append(fresh, r.addrs...)
	r.next = 0
}

// RoutingTable holds the three round-robin rings a cluster-aware driver
// routes through, plus the TTL governing when it must be refreshed.
type RoutingTable struct {
	routers ring
	readers ring
	writers ring

	created time.Time
	ttl     time.Duration
}

// NewRoutingTable builds a table from the three address lists returned
// by a GetRoutingTable procedure call.
func NewRoutingTable(routers, readers, writers []Address, ttl time.Duration) *RoutingTable {
	return &RoutingTable{
		routers: newRing(routers),
		readers: newRing(readers),
		writers: newRing(writers),
		created: now(),
		ttl:     ttl,
	}
}

// now is a seam so tests can control staleness without sleeping; it is
// never replaced with a frozen clock in production.
var now = time.Now

// TryNext advances the ring for mode and returns its next address. It
// returns false only when that ring is empty.
func (t *RoutingTable) TryNext(mode AccessMode) (Address, bool) {
	if mode == Write {
		return t.writers.tryNext()
	}
	return t.readers.tryNext()
}

// IsStale reports whether the table must be refreshed before mode can be
// served from it: the TTL has elapsed, the requested ring is empty, or
// (for Write) there are no writers at all.
func (t *RoutingTable) IsStale(mode AccessMode) bool {
	if now().After(t.created.Add(t.ttl)) || now().Equal(t.created.Add(t.ttl)) {
		return true
	}
	if mode == Write {
		return len(t.writers.addrs) == 0
	}
	return len(t.readers.addrs) == 0
}

// PrependRouters inserts each address of addrs at the head of the
// routers ring, in the order given, skipping addresses already present.
func (t *RoutingTable) PrependRouters(addrs []Address) {
	t.routers.prepend(addrs)
}

// Remove deletes addr from every ring.
func (t *RoutingTable) Remove(addr Address) {
	t.routers.remove(addr)
	t.readers.remove(addr)
	t.writers.remove(addr)
}

// RemoveWriter deletes addr only from the writers ring, used when a
// server reports it no longer accepts writes but otherwise remains a
// valid router/reader.
func (t *RoutingTable) RemoveWriter(addr Address) {
	t.writers.remove(addr)
}

// All returns the union of the three rings, each address listed once.
func (t *RoutingTable) All() []Address {
	seen := map[string]bool{}
	var out []Address
	for _, ring := range []ring{t.routers, t.readers, t.writers} {
		for _, a := range ring.addrs {
			if !seen[a.Key()] {
				seen[a.Key()] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Routers returns a snapshot of the routers ring's addresses.
func (t *RoutingTable) Routers() []Address {
	return append([]Address(nil), t.routers.addrs...)
}

// Readers returns a snapshot of the readers ring's addresses.
func (t *RoutingTable) Readers() []Address {
	return append([]Address(nil), t.readers.addrs...)
}

// Writers returns a snapshot of the writers ring's addresses.
func (t *RoutingTable) Writers() []Address {
	return append([]Address(nil), t.writers.addrs...)
}
