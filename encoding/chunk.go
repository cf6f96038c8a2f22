package encoding

import (
	"encoding/binary"
	"io"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/log"
)

// MaxChunkSize is the largest payload a single chunk may carry - the
// chunk header is a 16-bit length, so 65535 is the hard ceiling.
const MaxChunkSize = 65535

// DefaultChunkSize is the chunk payload size used when none (or an
// out-of-range one) is given; it is what the teacher driver defaulted
// boltConn.chunkSize to.
const DefaultChunkSize = 8192

// endMarker is the two-byte zero-length chunk that terminates a message.
var endMarker = [2]byte{0x00, 0x00}

// ChunkedOutput buffers outbound bytes and slices them into length-
// prefixed chunks no larger than its configured size, terminating each
// logical message with a zero-length chunk. It implements io.Writer so
// the packstream Packer can write through it without knowing about
// chunking at all.
type ChunkedOutput struct {
	w    io.Writer
	buf  []byte
	n    int
	size int
}

// NewChunkedOutput builds a ChunkedOutput with the given max chunk
// payload size; a size outside [1, MaxChunkSize] is replaced by
// DefaultChunkSize.
func NewChunkedOutput(w io.Writer, size int) *ChunkedOutput {
	if size <= 0 || size > MaxChunkSize {
		size = DefaultChunkSize
	}
	return &ChunkedOutput{w: w, buf: make([]byte, size), size: size}
}

// Write buffers p, emitting full chunks as the buffer fills. It never
// itself writes the terminator - callers end a message with
// WriteMessageTail.
func (o *ChunkedOutput) Write(p []byte) (n int, err error) {
	for n < len(p) {
		m := copy(o.buf[o.n:], p[n:])
		o.n += m
		n += m
		if o.n == o.size {
			if err = o.writeChunk(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (o *ChunkedOutput) writeChunk() error {
	if o.n == 0 {
		return nil
	}
	if err := binary.Write(o.w, binary.BigEndian, uint16(o.n)); err != nil {
		return errors.Wrap(err, "writing chunk header")
	}
	log.TraceHex("wrote chunk", o.buf[:o.n])
	if _, err := o.w.Write(o.buf[:o.n]); err != nil {
		return errors.Wrap(err, "writing chunk payload")
	}
	o.n = 0
	return nil
}

// WriteMessageTail finalizes any pending partial chunk, flushes it, and
// then writes the two-byte zero terminator that closes the current
// message boundary. It does not close the chunk stream itself - the next
// Write begins a fresh chunk for the next message.
func (o *ChunkedOutput) WriteMessageTail() error {
	if err := o.writeChunk(); err != nil {
		return err
	}
	if _, err := o.w.Write(endMarker[:]); err != nil {
		return errors.Wrap(err, "writing message terminator")
	}
	return nil
}

// Flush writes any pending chunk to the socket without terminating the
// message. Safe to call when nothing is buffered.
func (o *ChunkedOutput) Flush() error {
	return o.writeChunk()
}

// ChunkedInput reads a stream of length-prefixed chunks on demand,
// presenting the concatenated payload of the current message as a plain
// io.Reader. A read may span multiple chunks transparently.
type ChunkedInput struct {
	r         io.Reader
	remaining int  // bytes left in the chunk currently being consumed
	atTail    bool // true once a zero-length chunk header has been seen
}

// NewChunkedInput builds a ChunkedInput over r.
func NewChunkedInput(r io.Reader) *ChunkedInput {
	return &ChunkedInput{r: r}
}

// Read implements io.Reader, pulling new chunk headers as needed. Bytes
// read before the zero-length terminator are returned without an error;
// once the terminator has been consumed, Read returns 0, io.EOF until
// ReadMessageTail resets it for the next message.
func (in *ChunkedInput) Read(p []byte) (n int, err error) {
	for n < len(p) {
		if in.remaining == 0 {
			if in.atTail {
				return n, io.EOF
			}
			size, err := in.readChunkHeader()
			if err != nil {
				return n, err
			}
			if size == 0 {
				in.atTail = true
				if n > 0 {
					return n, nil
				}
				return n, io.EOF
			}
			in.remaining = size
		}
		toRead := len(p) - n
		if toRead > in.remaining {
			toRead = in.remaining
		}
		m, err := io.ReadFull(in.r, p[n:n+toRead])
		n += m
		in.remaining -= m
		if err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return n, errors.Protocol("chunk header promised %d more bytes than the socket delivered before EOF", in.remaining)
			}
			return n, errors.Wrap(err, "reading chunk payload")
		}
	}
	return n, nil
}

func (in *ChunkedInput) readChunkHeader() (int, error) {
	var header [2]byte
	if _, err := io.ReadFull(in.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return 0, errors.Protocol("connection closed mid chunk header")
		}
		return 0, errors.Wrap(err, "reading chunk header")
	}
	size := int(binary.BigEndian.Uint16(header[:]))
	log.Tracef("read chunk header: %d bytes", size)
	return size, nil
}

// ReadMessageTail consumes chunks (discarding any bytes the caller never
// read) until the zero-length terminator chunk is observed, then resets
// for the next message. It must not consume bytes past the terminator.
func (in *ChunkedInput) ReadMessageTail() error {
	var discard [4096]byte
	for {
		if in.remaining == 0 {
			if in.atTail {
				break
			}
			size, err := in.readChunkHeader()
			if err != nil {
				return err
			}
			if size == 0 {
				break
			}
			in.remaining = size
		}
		for in.remaining > 0 {
			toRead := in.remaining
			if toRead > len(discard) {
				toRead = len(discard)
			}
			m, err := io.ReadFull(in.r, discard[:toRead])
			in.remaining -= m
			if err != nil {
				if err == io.ErrUnexpectedEOF || err == io.EOF {
					return errors.Protocol("chunk header promised %d more bytes than the socket delivered before EOF", in.remaining)
				}
				return errors.Wrap(err, "discarding unread chunk payload")
			}
		}
	}
	in.atTail = false
	in.remaining = 0
	return nil
}
