// Package encoding implements the wire codec: PackStream's self-describing
// value encoding (Packer/Unpacker) layered under ChunkedOutput/ChunkedInput
// framing. Both halves attempt to support every builtin Go type that maps
// confidently onto a PackStream value; maps and lists are restricted to
// map[string]interface{} and []interface{}, matching the wire's own
// string-keyed-map/homogeneous-element-type-agnostic model.
package encoding

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/structures"
)

// Marker bytes for the PackStream type family, named the way the spec's
// domain model groups them.
const (
	NilMarker = 0xC0

	TrueMarker  = 0xC3
	FalseMarker = 0xC2

	Int8Marker  = 0xC8
	Int16Marker = 0xC9
	Int32Marker = 0xCA
	Int64Marker = 0xCB

	FloatMarker = 0xC1

	TinyStringMarker = 0x80
	String8Marker    = 0xD0
	String16Marker   = 0xD1
	String32Marker   = 0xD2

	TinyListMarker = 0x90
	List8Marker    = 0xD4
	List16Marker   = 0xD5
	List32Marker   = 0xD6

	TinyMapMarker = 0xA0
	Map8Marker    = 0xD8
	Map16Marker   = 0xD9
	Map32Marker   = 0xDA

	TinyStructMarker = 0xB0
	Struct8Marker    = 0xDC
	Struct16Marker   = 0xDD

	Bytes8Marker  = 0xCC
	Bytes16Marker = 0xCD
	Bytes32Marker = 0xCE

	tinyIntMax = 127
	tinyIntMin = -16
)

// PackType is a PeekNextType result: the shape of the next value on the
// wire, without committing to decoding it.
type PackType int

const (
	TypeNull PackType = iota
	TypeBoolean
	TypeInteger
	TypeFloat
	TypeString
	TypeBytes
	TypeList
	TypeMap
	TypeStruct
	TypeEOF
)

func (t PackType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeBytes:
		return "Bytes"
	case TypeList:
		return "List"
	case TypeMap:
		return "Map"
	case TypeStruct:
		return "Struct"
	default:
		return "EOF"
	}
}

// Packer packs Go values onto a wire writer using the narrowest encoding
// available for each value. Strings, lists, maps and structures defer
// their own field encoding back to Pack, so a Packer is reused across a
// whole message tree.
type Packer struct {
	w io.Writer
	// AllowBytes gates the Bytes value type. Protocol versions that lack
	// byte support (the byte-incompatibility flag from the message
	// format layer) set this false so a Bytes payload fails fast with a
	// ProtocolError instead of silently corrupting the stream.
	AllowBytes bool
}

// NewPacker builds a Packer writing to w.
func NewPacker(w io.Writer) *Packer {
	return &Packer{w: w, AllowBytes: true}
}

func (p *Packer) writeByte(b byte) error {
	_, err := p.w.Write([]byte{b})
	return err
}

func (p *Packer) writeBigEndian(v interface{}) error {
	return binary.Write(p.w, binary.BigEndian, v)
}

// Pack encodes val using the narrowest marker family that fits.
func (p *Packer) Pack(val interface{}) error {
	switch v := val.(type) {
	case nil:
		return p.writeByte(NilMarker)
	case bool:
		if v {
			return p.writeByte(TrueMarker)
		}
		return p.writeByte(FalseMarker)
	case int:
		return p.packInt(int64(v))
	case int8:
		return p.packInt(int64(v))
	case int16:
		return p.packInt(int64(v))
	case int32:
		return p.packInt(int64(v))
	case int64:
		return p.packInt(v)
	case uint:
		return p.packUint(uint64(v))
	case uint8:
		return p.packInt(int64(v))
	case uint16:
		return p.packInt(int64(v))
	case uint32:
		return p.packInt(int64(v))
	case uint64:
		return p.packUint(v)
	case float32:
		return p.packFloat(float64(v))
	case float64:
		return p.packFloat(v)
	case string:
		return p.packString(v)
	case []byte:
		return p.packBytes(v)
	case []interface{}:
		return p.packList(v)
	case map[string]interface{}:
		return p.packMap(v)
	case structures.MessageStructure:
		return p.packStruct(v)
	default:
		return errors.Protocol("unrecognized type for PackStream encoding: %T %+v", val, val)
	}
}

func (p *Packer) packUint(v uint64) error {
	if v > math.MaxInt64 {
		return errors.Protocol("integer too large to encode: %d exceeds int64 range", v)
	}
	return p.packInt(int64(v))
}

func (p *Packer) packInt(v int64) error {
	switch {
	case v >= tinyIntMin && v <= tinyIntMax:
		return p.writeBigEndian(int8(v))
	case v >= math.MinInt8 && v < tinyIntMin:
		if err := p.writeByte(Int8Marker); err != nil {
			return err
		}
		return p.writeBigEndian(int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		if err := p.writeByte(Int16Marker); err != nil {
			return err
		}
		return p.writeBigEndian(int16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		if err := p.writeByte(Int32Marker); err != nil {
			return err
		}
		return p.writeBigEndian(int32(v))
	default:
		if err := p.writeByte(Int64Marker); err != nil {
			return err
		}
		return p.writeBigEndian(v)
	}
}

func (p *Packer) packFloat(v float64) error {
	if err := p.writeByte(FloatMarker); err != nil {
		return err
	}
	return p.writeBigEndian(v)
}

func (p *Packer) packString(v string) error {
	b := []byte(v)
	if err := p.packLength(len(b), TinyStringMarker, String8Marker, String16Marker, String32Marker); err != nil {
		return err
	}
	_, err := p.w.Write(b)
	return err
}

func (p *Packer) packBytes(v []byte) error {
	if !p.AllowBytes {
		return errors.Protocol("negotiated protocol version does not support Bytes values")
	}
	length := len(v)
	switch {
	case length <= math.MaxUint8:
		if err := p.writeByte(Bytes8Marker); err != nil {
			return err
		}
		if err := p.writeBigEndian(uint8(length)); err != nil {
			return err
		}
	case length <= math.MaxUint16:
		if err := p.writeByte(Bytes16Marker); err != nil {
			return err
		}
		if err := p.writeBigEndian(uint16(length)); err != nil {
			return err
		}
	case length <= math.MaxUint32:
		if err := p.writeByte(Bytes32Marker); err != nil {
			return err
		}
		if err := p.writeBigEndian(uint32(length)); err != nil {
			return err
		}
	default:
		return errors.Protocol("byte array too long to encode: %d bytes", length)
	}
	_, err := p.w.Write(v)
	return err
}

func (p *Packer) packList(v []interface{}) error {
	if err := p.packLength(len(v), TinyListMarker, List8Marker, List16Marker, List32Marker); err != nil {
		return err
	}
	for _, item := range v {
		if err := p.Pack(item); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) packMap(v map[string]interface{}) error {
	if err := p.packLength(len(v), TinyMapMarker, Map8Marker, Map16Marker, Map32Marker); err != nil {
		return err
	}
	for k, val := range v {
		if err := p.packString(k); err != nil {
			return err
		}
		if err := p.Pack(val); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) packStruct(v structures.MessageStructure) error {
	fields := v.Fields()
	if err := p.packLength(len(fields), TinyStructMarker, Struct8Marker, Struct16Marker, 0); err != nil {
		return err
	}
	if err := p.writeByte(byte(v.Signature())); err != nil {
		return err
	}
	for _, field := range fields {
		if err := p.Pack(field); err != nil {
			return err
		}
	}
	return nil
}

// packLength writes the narrowest length-prefixed marker for the given
// size. marker32 may be 0 for families (structures) that have no 32-bit
// variant; such a family errors out above math.MaxUint16 elements.
func (p *Packer) packLength(n int, tiny, m8, m16, m32 byte) error {
	switch {
	case n <= 15:
		return p.writeByte(tiny + byte(n))
	case n <= math.MaxUint8:
		if err := p.writeByte(m8); err != nil {
			return err
		}
		return p.writeBigEndian(uint8(n))
	case n <= math.MaxUint16:
		if err := p.writeByte(m16); err != nil {
			return err
		}
		return p.writeBigEndian(uint16(n))
	case m32 != 0 && n <= math.MaxUint32:
		if err := p.writeByte(m32); err != nil {
			return err
		}
		return p.writeBigEndian(uint32(n))
	default:
		return errors.Protocol("length %d exceeds the encodable range for this marker family", n)
	}
}
