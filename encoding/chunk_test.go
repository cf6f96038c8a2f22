package encoding

import (
	"bytes"
	"io"
	"testing"

	"github.com/boltcluster/driver/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedOutputSplitsOnSize(t *testing.T) {
	var buf bytes.Buffer
	out := NewChunkedOutput(&buf, 4)

	_, err := out.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, out.WriteMessageTail())

	want := []byte{
		0x00, 0x04, 1, 2, 3, 4,
		0x00, 0x02, 5, 6,
		0x00, 0x00,
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestChunkedOutputFlushEmitsPartialChunk(t *testing.T) {
	var buf bytes.Buffer
	out := NewChunkedOutput(&buf, 8192)

	_, err := out.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, out.Flush())

	want := []byte{0x00, 0x03, 1, 2, 3}
	assert.Equal(t, want, buf.Bytes())
}

func TestChunkRoundTripAcrossChunkSizes(t *testing.T) {
	payload := make([]byte, 20000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	for _, chunkSize := range []int{1, 2, 3, 7, 16, 8192, MaxChunkSize} {
		chunkSize := chunkSize
		t.Run("", func(t *testing.T) {
			var buf bytes.Buffer
			out := NewChunkedOutput(&buf, chunkSize)
			_, err := out.Write(payload)
			require.NoError(t, err)
			require.NoError(t, out.WriteMessageTail())

			in := NewChunkedInput(&buf)
			got := make([]byte, len(payload))
			n, err := io.ReadFull(in, got)
			require.NoError(t, err)
			assert.Equal(t, len(payload), n)
			assert.Equal(t, payload, got)

			_, err = in.Read(make([]byte, 1))
			assert.ErrorIs(t, err, io.EOF)
			require.NoError(t, in.ReadMessageTail())
		})
	}
}

func TestChunkedInputReadMessageTailDiscardsUnreadBytes(t *testing.T) {
	var buf bytes.Buffer
	out := NewChunkedOutput(&buf, 4)
	_, err := out.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, out.WriteMessageTail())

	in := NewChunkedInput(&buf)
	small := make([]byte, 2)
	n, err := in.Read(small)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, in.ReadMessageTail())
	assert.Equal(t, 0, buf.Len())
}

func TestChunkedInputReportsProtocolErrorOnTruncatedPayload(t *testing.T) {
	// A chunk header promising 10 bytes, but only 3 are ever written and
	// the stream ends there - no terminator, no remaining bytes.
	raw := []byte{0x00, 0x0A, 1, 2, 3}
	in := NewChunkedInput(bytes.NewReader(raw))

	_, err := in.Read(make([]byte, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProtocol))
}

func TestMultipleMessagesInSequence(t *testing.T) {
	var buf bytes.Buffer
	out := NewChunkedOutput(&buf, 8192)
	_, err := out.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, out.WriteMessageTail())
	_, err = out.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, out.WriteMessageTail())

	in := NewChunkedInput(&buf)
	first := make([]byte, 5)
	_, err = io.ReadFull(in, first)
	require.NoError(t, err)
	require.NoError(t, in.ReadMessageTail())
	assert.Equal(t, "hello", string(first))

	second := make([]byte, 5)
	_, err = io.ReadFull(in, second)
	require.NoError(t, err)
	require.NoError(t, in.ReadMessageTail())
	assert.Equal(t, "world", string(second))
}
