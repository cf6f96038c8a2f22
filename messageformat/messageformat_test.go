package messageformat

import (
	"bytes"
	"testing"

	"github.com/boltcluster/driver/structures/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	success  map[string]interface{}
	records  [][]interface{}
	failCode string
	failMsg  string
	ignored  int
}

func (h *recordingHandler) HandleSuccessMessage(metadata map[string]interface{}) error {
	h.success = metadata
	return nil
}

func (h *recordingHandler) HandleRecordMessage(values []interface{}) error {
	h.records = append(h.records, values)
	return nil
}

func (h *recordingHandler) HandleFailureMessage(code, message string) error {
	h.failCode = code
	h.failMsg = message
	return nil
}

func (h *recordingHandler) HandleIgnoredMessage() error {
	h.ignored++
	return nil
}

func TestWriteReadRoundTripAllMessageTypes(t *testing.T) {
	var toServer, toClient bytes.Buffer
	f := New(&toServer, &toClient, 8192)

	require.NoError(t, f.Write(messages.NewInitMessage("test/1.0", nil)))
	require.NoError(t, f.Write(messages.NewRunMessage("RETURN 1", nil)))
	require.NoError(t, f.Write(messages.NewPullAllMessage()))
	require.NoError(t, f.Flush())

	server := New(&toClient, &toServer, 8192)
	require.NoError(t, server.Write(messages.NewSuccessMessage(map[string]interface{}{"server": "test"})))
	require.NoError(t, server.Write(messages.NewRecordMessage([]interface{}{int64(1), "a"})))
	require.NoError(t, server.Write(messages.NewFailureMessage(map[string]interface{}{
		"code":    "Neo.ClientError.Statement.SyntaxError",
		"message": "bad query",
	})))
	require.NoError(t, server.Write(messages.NewIgnoredMessage()))
	require.NoError(t, server.Flush())

	h := &recordingHandler{}
	require.NoError(t, f.Read(h))
	assert.Equal(t, map[string]interface{}{"server": "test"}, h.success)

	require.NoError(t, f.Read(h))
	require.Len(t, h.records, 1)
	assert.Equal(t, []interface{}{int64(1), "a"}, h.records[0])

	require.NoError(t, f.Read(h))
	assert.Equal(t, "Neo.ClientError.Statement.SyntaxError", h.failCode)
	assert.Equal(t, "bad query", h.failMsg)

	require.NoError(t, f.Read(h))
	assert.Equal(t, 1, h.ignored)
}

func TestReadRejectsUnrecognizedTopLevelSignature(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, &buf, 8192)

	// Write a client-to-server message (ACK_FAILURE), whose signature Read
	// does not accept at the top level.
	require.NoError(t, f.Write(messages.NewAckFailureMessage()))

	h := &recordingHandler{}
	err := f.Read(h)
	require.Error(t, err)
}

func TestBytesRejectedWhenAllowBytesDisabled(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, &buf, 8192)
	f.SetAllowBytes(false)

	err := f.Write(messages.NewRunMessage("RETURN $b", map[string]interface{}{"b": []byte{1, 2, 3}}))
	require.Error(t, err)
}
