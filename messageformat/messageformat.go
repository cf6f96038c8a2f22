// Package messageformat implements Bolt MessageFormat v1: it maps the
// domain message structs in structures/messages onto PackStream struct
// values, framed by encoding's chunked input/output, and dispatches
// inbound server messages to a ResponseHandler.
package messageformat

import (
	"io"

	"github.com/boltcluster/driver/encoding"
	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/structures"
	"github.com/boltcluster/driver/structures/messages"
)

// ResponseHandler receives the decoded payload of one server message.
// Read calls exactly one of these methods per message.
type ResponseHandler interface {
	HandleSuccessMessage(metadata map[string]interface{}) error
	HandleRecordMessage(values []interface{}) error
	HandleFailureMessage(code, message string) error
	HandleIgnoredMessage() error
}

// MessageFormat writes and reads domain messages on top of PackStream,
// framed by chunking. A single MessageFormat owns both directions of one
// connection's wire stream.
type MessageFormat struct {
	out    *encoding.ChunkedOutput
	in     *encoding.ChunkedInput
	packer *encoding.Packer
	unpack *encoding.Unpacker
}

// New builds a MessageFormat writing chunks of at most chunkSize bytes to
// w and reading chunks from r.
func New(w io.Writer, r io.Reader, chunkSize int) *MessageFormat {
	out := encoding.NewChunkedOutput(w, chunkSize)
	in := encoding.NewChunkedInput(r)
	return &MessageFormat{
		out:    out,
		in:     in,
		packer: encoding.NewPacker(out),
		unpack: encoding.NewUnpacker(in),
	}
}

// SetAllowBytes toggles Bytes-value support on both directions. Protocol
// versions below the one that introduced Bytes must call this with false
// right after the handshake completes.
func (f *MessageFormat) SetAllowBytes(allow bool) {
	f.packer.AllowBytes = allow
	f.unpack.AllowBytes = allow
}

// Write encodes msg as a struct header plus its fields, then closes the
// message with the chunk terminator; the message's chunks and terminator
// are written to the underlying writer before Write returns.
func (f *MessageFormat) Write(msg structures.MessageStructure) error {
	if err := f.packer.Pack(msg); err != nil {
		return errors.Wrap(err, "packing message 0x%02x", msg.Signature())
	}
	return f.out.WriteMessageTail()
}

// Flush writes any buffered chunk without closing the message boundary.
func (f *MessageFormat) Flush() error {
	return f.out.Flush()
}

// Read reads one server message and dispatches it to handler, then
// consumes the remainder of the message's chunk stream.
func (f *MessageFormat) Read(handler ResponseHandler) error {
	size, signature, err := f.unpack.UnpackStructHeader()
	if err != nil {
		return err
	}

	switch signature {
	case messages.SuccessMessageSignature:
		if err := expectArity(signature, size, 1); err != nil {
			return err
		}
		metadata, err := f.unpackMetadata()
		if err != nil {
			return err
		}
		if err := f.in.ReadMessageTail(); err != nil {
			return err
		}
		return handler.HandleSuccessMessage(metadata)

	case messages.RecordMessageSignature:
		if err := expectArity(signature, size, 1); err != nil {
			return err
		}
		valuesRaw, err := f.unpack.Unpack()
		if err != nil {
			return err
		}
		values, ok := valuesRaw.([]interface{})
		if !ok {
			return errors.Protocol("RECORD field expected List, got %T", valuesRaw)
		}
		if err := f.in.ReadMessageTail(); err != nil {
			return err
		}
		return handler.HandleRecordMessage(values)

	case messages.FailureMessageSignature:
		if err := expectArity(signature, size, 1); err != nil {
			return err
		}
		metadata, err := f.unpackMetadata()
		if err != nil {
			return err
		}
		if err := f.in.ReadMessageTail(); err != nil {
			return err
		}
		fm := messages.NewFailureMessage(metadata)
		return handler.HandleFailureMessage(fm.Code(), fm.Message())

	case messages.IgnoredMessageSignature:
		if err := expectArity(signature, size, 0); err != nil {
			return err
		}
		if err := f.in.ReadMessageTail(); err != nil {
			return err
		}
		return handler.HandleIgnoredMessage()

	default:
		return errors.Protocol("unrecognized message signature at top level: 0x%02x", signature)
	}
}

func (f *MessageFormat) unpackMetadata() (map[string]interface{}, error) {
	raw, err := f.unpack.Unpack()
	if err != nil {
		return nil, err
	}
	metadata, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Protocol("message metadata field expected Map, got %T", raw)
	}
	return metadata, nil
}

func expectArity(signature byte, got, want int) error {
	if got != want {
		return errors.Protocol("message signature 0x%02x expects %d field(s), got %d", signature, want, got)
	}
	return nil
}
