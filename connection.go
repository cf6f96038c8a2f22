package boltcluster

import (
	"bufio"
	"encoding/binary"
	"net"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/log"
	"github.com/boltcluster/driver/messageformat"
	"github.com/boltcluster/driver/structures"
	"github.com/boltcluster/driver/structures/messages"
	"github.com/google/uuid"
)

var magicPreamble = [4]byte{0x60, 0x60, 0xB0, 0x17}

// protocolVersionsOffered is sent, in order, as the four proposed
// versions during the handshake. Unused slots are zero.
var protocolVersionsOffered = [4]uint32{1, 0, 0, 0}

// protocolVersionsWithBytes is the set of negotiated versions that
// support the Bytes PackStream type; anything below must disable it on
// both ends of the MessageFormat.
var protocolVersionsWithBytes = map[uint32]bool{1: true}

// ResponseConsumer receives the outcome of one request the caller
// enqueued with Connection.Send.
type ResponseConsumer interface {
	OnRecord(values []interface{}) error
	OnSuccess(metadata map[string]interface{}) error
	OnFailure(code, message string) error
	OnIgnored() error
}

// discardConsumer implements ResponseConsumer for requests the caller
// does not care to inspect (PULL_ALL/DISCARD_ALL's SUCCESS, ACK_FAILURE,
// RESET).
type discardConsumer struct{}

func (discardConsumer) OnRecord([]interface{}) error                { return nil }
func (discardConsumer) OnSuccess(map[string]interface{}) error      { return nil }
func (discardConsumer) OnFailure(code, message string) error        { return nil }
func (discardConsumer) OnIgnored() error                             { return nil }

type pendingRequest struct {
	consumer ResponseConsumer
}

// Connection is one Bolt TCP connection: handshake, INIT, and the
// chunked PackStream message stream on top. It is strictly serial - at
// most one outstanding send/receive exchange - and must not be shared
// across goroutines without external synchronization.
type Connection struct {
	ID   uuid.UUID
	Addr Address

	conn net.Conn
	mf   *messageformat.MessageFormat

	initialized bool
	failed      bool // a FAILURE is pending ACK_FAILURE
	pending     []pendingRequest
}

// Dial opens a TCP connection to addr, performs the version handshake,
// and sends INIT, blocking until the server's response arrives.
func Dial(addr Address, cfg Config) (*Connection, error) {
	tcpConn, err := net.DialTimeout("tcp", addr.String(), cfg.ConnectTimeout)
	if err != nil {
		return nil, errors.NewKind(errors.KindServiceUnavailable, "dialing %s: %v", addr, err)
	}

	c := &Connection{
		ID:   uuid.New(),
		Addr: addr,
		conn: tcpConn,
	}

	negotiated, err := c.handshake()
	if err != nil {
		tcpConn.Close()
		return nil, err
	}

	c.mf = messageformat.New(tcpConn, bufio.NewReader(tcpConn), cfg.ChunkSize)
	c.mf.SetAllowBytes(protocolVersionsWithBytes[negotiated])

	if err := c.init(cfg); err != nil {
		tcpConn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Connection) handshake() (uint32, error) {
	var out [20]byte
	copy(out[:4], magicPreamble[:])
	for i, v := range protocolVersionsOffered {
		binary.BigEndian.PutUint32(out[4+i*4:], v)
	}
	log.TraceHex("handshake proposal", out[:])
	if _, err := c.conn.Write(out[:]); err != nil {
		return 0, errors.WrapKind(errors.KindSecurity, err, "writing handshake preamble")
	}

	var reply [4]byte
	if _, err := ioReadFull(c.conn, reply[:]); err != nil {
		return 0, errors.WrapKind(errors.KindSecurity, err, "reading handshake reply")
	}
	negotiated := binary.BigEndian.Uint32(reply[:])
	if negotiated == 0 {
		return 0, errors.Security("server rejected every proposed protocol version")
	}
	log.Infof("negotiated bolt protocol version %d with %s", negotiated, c.Addr)
	return negotiated, nil
}

func ioReadFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Connection) init(cfg Config) error {
	msg := messages.NewInitMessage("boltcluster-driver/1.0", cfg.AuthToken)
	result := &singleResultConsumer{}
	if err := c.mf.Write(msg); err != nil {
		return err
	}
	if err := c.mf.Flush(); err != nil {
		return err
	}
	if err := c.mf.Read(result); err != nil {
		return err
	}
	if result.failure != nil {
		if isAuthCode(result.failure.code) {
			return errors.NewKind(errors.KindAuthentication, "%s", result.failure.message)
		}
		return errors.NewKind(errors.KindClient, "%s", result.failure.message)
	}
	c.initialized = true
	return nil
}

func isAuthCode(code string) bool {
	return code == "Neo.ClientError.Security.Unauthorized" ||
		code == "Neo.ClientError.Security.AuthenticationRateLimit" ||
		code == "Neo.ClientError.Security.CredentialsExpired"
}

// Healthy reports whether the connection is initialized and not
// currently in the failed-awaiting-ACK_FAILURE state.
func (c *Connection) Healthy() bool {
	return c.initialized && !c.failed
}

// Send writes msg to the socket and enqueues its paired ResponseConsumer.
// It does not read any response - Sync reads the responses for the whole
// queue.
func (c *Connection) Send(msg structures.MessageStructure, consumer ResponseConsumer) error {
	if err := c.mf.Write(msg); err != nil {
		return err
	}
	c.pending = append(c.pending, pendingRequest{consumer: consumer})
	return nil
}

// Sync flushes outbound buffers, then reads responses until the pending
// queue is empty. After a FAILURE the server answers every later request
// already sent with IGNORED, which Sync reads and hands to that request's
// consumer like any other response.
func (c *Connection) Sync() error {
	if err := c.mf.Flush(); err != nil {
		return err
	}
	for len(c.pending) > 0 {
		req := c.pending[0]
		c.pending = c.pending[1:]

		// Once a FAILURE has occurred, the server itself answers every
		// already-flushed request still in flight with IGNORED - we
		// just keep reading the wire honestly rather than simulate it.
		//
		// A response is RECORD* followed by exactly one SUCCESS/
		// FAILURE/IGNORED (RUN's is just that one message; PULL_ALL's
		// is preceded by a run of RECORDs) - keep reading until onDone
		// fires rather than guessing from the request type.
		done := false
		for !done {
			if err := c.mf.Read(&dispatchingConsumer{
				inner: req.consumer,
				onFailure: func() {
					c.failed = true
				},
				onDone: func() { done = true },
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// AckFailure sends ACK_FAILURE and blocks for its SUCCESS, clearing the
// failed state.
func (c *Connection) AckFailure() error {
	if err := c.Send(messages.NewAckFailureMessage(), discardConsumer{}); err != nil {
		return err
	}
	if err := c.Sync(); err != nil {
		return err
	}
	c.failed = false
	return nil
}

// Reset pipelines RESET; on success, any still-pending requests are
// discarded rather than dispatched as IGNORED.
func (c *Connection) Reset() error {
	if err := c.mf.Write(messages.NewResetMessage()); err != nil {
		return err
	}
	if err := c.mf.Flush(); err != nil {
		return err
	}
	result := &singleResultConsumer{}
	if err := c.mf.Read(result); err != nil {
		return err
	}
	c.pending = nil
	c.failed = false
	if result.failure != nil {
		return errors.NewKind(errors.KindProtocol, "RESET failed: %s", result.failure.message)
	}
	return nil
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// singleResultConsumer captures the outcome of a single SUCCESS/FAILURE
// exchange (INIT, RESET, ACK_FAILURE).
type singleResultConsumer struct {
	success map[string]interface{}
	failure *failureOutcome
}

type failureOutcome struct {
	code    string
	message string
}

func (s *singleResultConsumer) HandleSuccessMessage(metadata map[string]interface{}) error {
	s.success = metadata
	return nil
}
func (s *singleResultConsumer) HandleRecordMessage([]interface{}) error { return nil }
func (s *singleResultConsumer) HandleFailureMessage(code, message string) error {
	s.failure = &failureOutcome{code: code, message: message}
	return nil
}
func (s *singleResultConsumer) HandleIgnoredMessage() error { return nil }

// dispatchingConsumer adapts one Read call's message to a
// ResponseConsumer, flagging completion and whether a FAILURE was seen.
type dispatchingConsumer struct {
	inner     ResponseConsumer
	onFailure func()
	onDone    func()
}

func (d *dispatchingConsumer) HandleSuccessMessage(metadata map[string]interface{}) error {
	d.onDone()
	return d.inner.OnSuccess(metadata)
}
func (d *dispatchingConsumer) HandleRecordMessage(values []interface{}) error {
	return d.inner.OnRecord(values)
}
func (d *dispatchingConsumer) HandleFailureMessage(code, message string) error {
	d.onFailure()
	d.onDone()
	return d.inner.OnFailure(code, message)
}
func (d *dispatchingConsumer) HandleIgnoredMessage() error {
	d.onDone()
	return d.inner.OnIgnored()
}
