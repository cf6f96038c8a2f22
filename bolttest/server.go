// Package bolttest provides a minimal in-process Bolt server for testing
// Connection and the cluster components against real socket I/O without
// a live Neo4j-compatible instance. It mirrors the role the teacher's
// own recorder.go played for its session-layer tests, adapted to drive
// raw sockets instead of replaying canned bytes.
package bolttest

import (
	"net"
	"testing"

	"github.com/boltcluster/driver/encoding"
	"github.com/boltcluster/driver/structures"
)

// Script handles one accepted connection's message stream after the
// handshake has completed; it reads/writes through conn.
type Script func(conn *Conn)

// Server is a listening fake Bolt endpoint; Addr is its "host:port".
type Server struct {
	Addr     string
	listener net.Listener
}

// Start accepts exactly one connection, performs the version-1
// handshake, then hands control to script to drive the rest of the
// exchange (typically: read INIT, answer SUCCESS, then read/answer
// whatever the test script needs).
func Start(t *testing.T, script Script) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("bolttest: listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &Server{Addr: ln.Addr().String(), listener: ln}

	go func() {
		netConn, err := ln.Accept()
		if err != nil {
			return
		}
		defer netConn.Close()

		if err := serverHandshake(netConn); err != nil {
			return
		}

		out := encoding.NewChunkedOutput(netConn, 8192)
		in := encoding.NewChunkedInput(netConn)
		packer := encoding.NewPacker(out)
		packer.AllowBytes = true
		unpack := encoding.NewUnpacker(in)
		unpack.AllowBytes = true

		script(&Conn{out: out, in: in, packer: packer, unpack: unpack})
	}()

	return srv
}

// Conn is the server-side half of one fake connection: plain PackStream
// over chunking, with no message-signature restriction in either
// direction, so a test can freely read client-to-server messages and
// write server-to-client ones.
type Conn struct {
	out    *encoding.ChunkedOutput
	in     *encoding.ChunkedInput
	packer *encoding.Packer
	unpack *encoding.Unpacker
}

// ReadMessage reads one struct-framed message and returns its signature
// and fields.
func (c *Conn) ReadMessage() (signature byte, fields []interface{}, err error) {
	size, sig, err := c.unpack.UnpackStructHeader()
	if err != nil {
		return 0, nil, err
	}
	fields = make([]interface{}, size)
	for i := 0; i < size; i++ {
		fields[i], err = c.unpack.Unpack()
		if err != nil {
			return 0, nil, err
		}
	}
	if err := c.in.ReadMessageTail(); err != nil {
		return 0, nil, err
	}
	return sig, fields, nil
}

// WriteMessage packs and flushes msg as a complete, terminated message.
func (c *Conn) WriteMessage(msg structures.MessageStructure) error {
	if err := c.packer.Pack(msg); err != nil {
		return err
	}
	if err := c.out.WriteMessageTail(); err != nil {
		return err
	}
	return c.out.Flush()
}
