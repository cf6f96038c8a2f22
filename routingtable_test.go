package boltcluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(hostPorts ...string) []Address {
	out := make([]Address, len(hostPorts))
	for i, hp := range hostPorts {
		a, err := ParseAddress(hp)
		if err != nil {
			panic(err)
		}
		out[i] = a
	}
	return out
}

func withFrozenClock(t *testing.T, frozen time.Time) {
	t.Helper()
	orig := now
	now = func() time.Time { return frozen }
	t.Cleanup(func() { now = orig })
}

func TestTryNextRoundRobinsAndReportsEmptyRing(t *testing.T) {
	frozen := time.Now()
	withFrozenClock(t, frozen)

	table := NewRoutingTable(addrs("r1:7687"), addrs("a:7687", "b:7687"), nil, time.Minute)

	a1, ok := table.TryNext(Read)
	require.True(t, ok)
	a2, ok := table.TryNext(Read)
	require.True(t, ok)
	a3, ok := table.TryNext(Read)
	require.True(t, ok)

	assert.Equal(t, a1, a3, "round robin should wrap back to the first reader")
	assert.NotEqual(t, a1, a2)

	_, ok = table.TryNext(Write)
	assert.False(t, ok, "absent writer ring returns false")
}

func TestIsStaleOnTTLElapsed(t *testing.T) {
	frozen := time.Now()
	withFrozenClock(t, frozen)

	table := NewRoutingTable(addrs("r1:7687"), addrs("a:7687"), addrs("w:7687"), time.Minute)
	assert.False(t, table.IsStale(Read))

	now = func() time.Time { return frozen.Add(time.Minute) }
	assert.True(t, table.IsStale(Read), "stale once now == created+ttl")
}

func TestIsStaleOnEmptyRing(t *testing.T) {
	frozen := time.Now()
	withFrozenClock(t, frozen)

	table := NewRoutingTable(addrs("r1:7687"), nil, addrs("w:7687"), time.Hour)
	assert.True(t, table.IsStale(Read), "empty readers ring is always stale for Read")
	assert.False(t, table.IsStale(Write))
}

func TestIsStaleAbsentWriterOnlyAffectsWriteMode(t *testing.T) {
	frozen := time.Now()
	withFrozenClock(t, frozen)

	table := NewRoutingTable(addrs("r1:7687"), addrs("a:7687"), nil, time.Hour)
	assert.True(t, table.IsStale(Write), "no writers is always stale for Write")
	assert.False(t, table.IsStale(Read), "readers are present and TTL hasn't elapsed")
}

func TestPrependRoutersSkipsDuplicatesAndPreservesOrder(t *testing.T) {
	table := NewRoutingTable(addrs("r1:7687", "r2:7687"), nil, nil, time.Hour)
	table.PrependRouters(addrs("r0:7687", "r1:7687"))

	got := table.Routers()
	want := addrs("r0:7687", "r1:7687", "r2:7687")
	assert.Equal(t, want, got)
}

func TestRemoveDeletesFromEveryRing(t *testing.T) {
	shared := addrs("s:7687")[0]
	table := NewRoutingTable([]Address{shared}, []Address{shared}, []Address{shared}, time.Hour)

	table.Remove(shared)

	assert.Empty(t, table.Routers())
	assert.Empty(t, table.Readers())
	assert.Empty(t, table.Writers())
}

func TestRemoveWriterOnlyAffectsWriters(t *testing.T) {
	shared := addrs("s:7687")[0]
	table := NewRoutingTable([]Address{shared}, []Address{shared}, []Address{shared}, time.Hour)

	table.RemoveWriter(shared)

	assert.NotEmpty(t, table.Routers())
	assert.NotEmpty(t, table.Readers())
	assert.Empty(t, table.Writers())
}

func TestAllReturnsDeduplicatedUnion(t *testing.T) {
	shared := addrs("s:7687")[0]
	onlyReader := addrs("r:7687")[0]
	table := NewRoutingTable([]Address{shared}, []Address{shared, onlyReader}, []Address{shared}, time.Hour)

	all := table.All()
	assert.ElementsMatch(t, []Address{shared, onlyReader}, all)
}

func TestAddressEqualityIsCaseInsensitiveOnHostNoDNS(t *testing.T) {
	a, err := ParseAddress("Example.COM:7687")
	require.NoError(t, err)
	b, err := ParseAddress("example.com:7687")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	localhost, _ := ParseAddress("localhost:7687")
	loopback, _ := ParseAddress("127.0.0.1:7687")
	assert.False(t, localhost.Equal(loopback), "no DNS resolution is performed for equality")
}

func TestParseAddressStripsSchemes(t *testing.T) {
	a, err := ParseAddress("bolt+routing://host1:7687")
	require.NoError(t, err)
	assert.Equal(t, "host1", a.Host)
	assert.Equal(t, 7687, a.Port)

	b, err := ParseAddress("bolt://host2:7688")
	require.NoError(t, err)
	assert.Equal(t, "host2", b.Host)
	assert.Equal(t, 7688, b.Port)
}
