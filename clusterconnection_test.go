package boltcluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltcluster/driver/bolttest"
	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/structures/messages"
)

type trackingErrorHandler struct {
	connectionErrored []Address
	writeErrored      []Address
}

func (h *trackingErrorHandler) OnConnectionError(addr Address) error {
	h.connectionErrored = append(h.connectionErrored, addr)
	return nil
}
func (h *trackingErrorHandler) OnWriteError(addr Address) error {
	h.writeErrored = append(h.writeErrored, addr)
	return nil
}

func dialClusterConnection(t *testing.T, mode AccessMode, handler ErrorHandler) (*ClusterConnection, Address) {
	t.Helper()
	srv := bolttest.Start(t, func(conn *bolttest.Conn) {
		_, _, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(messages.NewSuccessMessage(nil)))

		sig, _, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.EqualValues(t, messages.RunMessageSignature, sig)
		require.NoError(t, conn.WriteMessage(messages.NewFailureMessage(map[string]interface{}{
			"code":    "Neo.ClientError.Cluster.NotALeader",
			"message": "not a leader",
		})))
	})
	addr, err := ParseAddress(srv.Addr)
	require.NoError(t, err)

	cfg := NewConfig(WithConnectTimeout(time.Second), WithBasicAuth("neo4j", "neo4j"), WithMaxConnectionPoolSize(1))
	pool := NewSocketConnectionPool(addr, cfg)
	t.Cleanup(func() { pool.Dispose() })

	raw, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	return newClusterConnection(raw, addr, mode, pool, handler), addr
}

func TestClusterErrorOnWriteModeRemovesWriterAndRaisesSessionExpired(t *testing.T) {
	handler := &trackingErrorHandler{}
	cc, addr := dialClusterConnection(t, Write, handler)

	consumer := &recordingResponseConsumer{}
	require.NoError(t, cc.Send(messages.NewRunMessage("CREATE ()", nil), consumer))
	err := cc.Sync()

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindSessionExpired))
	assert.Equal(t, []Address{addr}, handler.writeErrored)
	assert.Empty(t, handler.connectionErrored, "a cluster error must not purge the pool")
}

func TestClusterErrorOnReadModeRaisesClientError(t *testing.T) {
	handler := &trackingErrorHandler{}
	cc, _ := dialClusterConnection(t, Read, handler)

	consumer := &recordingResponseConsumer{}
	require.NoError(t, cc.Send(messages.NewRunMessage("CREATE ()", nil), consumer))
	err := cc.Sync()

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindClient))
	assert.Empty(t, handler.writeErrored)
	assert.Empty(t, handler.connectionErrored)
}

func TestTransportFaultTriggersOnConnectionErrorAndSessionExpired(t *testing.T) {
	addr, err := ParseAddress("127.0.0.1:1")
	require.NoError(t, err)

	handler := &trackingErrorHandler{}
	cc := &ClusterConnection{addr: addr, mode: Read, handler: handler}
	rawErr := errors.New("connection reset by peer")
	got := cc.classifyTransportFault(rawErr)

	require.Error(t, got)
	assert.True(t, errors.Is(got, errors.KindSessionExpired))
	assert.Equal(t, []Address{addr}, handler.connectionErrored)
}

func TestClassifyTransportFaultPassesThroughAlreadyClassifiedErrors(t *testing.T) {
	handler := &trackingErrorHandler{}
	cc := &ClusterConnection{handler: handler}

	original := errors.SessionExpired("already classified")
	got := cc.classifyTransportFault(original)

	assert.Same(t, original, got)
	assert.Empty(t, handler.connectionErrored, "an already-classified error must not be reclassified")
}
