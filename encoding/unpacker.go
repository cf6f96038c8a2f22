package encoding

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/boltcluster/driver/errors"
	"github.com/boltcluster/driver/structures/graph"
)

// structFieldCounts is the validated arity for each domain struct
// signature a value-position struct may carry. Any other signature seen
// at value position is a ProtocolError - the four graph structs are the
// only structures legal inside a value tree; message structs only ever
// appear at the top of a Read, handled by the message format layer.
var structFieldCounts = map[byte]int{
	graph.NodeSignature:                3,
	graph.RelationshipSignature:        5,
	graph.UnboundRelationshipSignature: 3,
	graph.PathSignature:                3,
}

// Unpacker decodes PackStream values from a wire reader. It buffers
// internally (via bufio.Reader) so PeekNextType can inspect the next
// marker byte without consuming it.
type Unpacker struct {
	r          *bufio.Reader
	AllowBytes bool
}

// NewUnpacker builds an Unpacker reading from r.
func NewUnpacker(r io.Reader) *Unpacker {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Unpacker{r: br, AllowBytes: true}
}

// PeekNextType reports the shape of the next value without consuming any
// bytes.
func (u *Unpacker) PeekNextType() (PackType, error) {
	b, err := u.r.Peek(1)
	if err != nil {
		if err == io.EOF {
			return TypeEOF, io.EOF
		}
		return TypeEOF, errors.Wrap(err, "peeking next marker")
	}
	return markerType(b[0]), nil
}

// markerType classifies a marker byte into its PackType. Positive TINY_INT
// (0x00-0x7F) and negative TINY_INT (0xF0-0xFF) sit outside every other
// marker family's byte range, so they fall through to the default case.
func markerType(marker byte) PackType {
	switch {
	case marker == NilMarker:
		return TypeNull
	case marker == TrueMarker || marker == FalseMarker:
		return TypeBoolean
	case marker == Int8Marker || marker == Int16Marker || marker == Int32Marker || marker == Int64Marker:
		return TypeInteger
	case marker == FloatMarker:
		return TypeFloat
	case marker == Bytes8Marker || marker == Bytes16Marker || marker == Bytes32Marker:
		return TypeBytes
	case marker >= TinyStringMarker && marker < TinyListMarker:
		return TypeString
	case marker == String8Marker || marker == String16Marker || marker == String32Marker:
		return TypeString
	case marker >= TinyListMarker && marker < TinyMapMarker:
		return TypeList
	case marker == List8Marker || marker == List16Marker || marker == List32Marker:
		return TypeList
	case marker >= TinyMapMarker && marker < TinyStructMarker:
		return TypeMap
	case marker == Map8Marker || marker == Map16Marker || marker == Map32Marker:
		return TypeMap
	case marker >= TinyStructMarker && marker < Bytes8Marker:
		return TypeStruct
	case marker == Struct8Marker || marker == Struct16Marker:
		return TypeStruct
	default:
		return TypeInteger
	}
}

func (u *Unpacker) readByte() (byte, error) {
	b, err := u.r.ReadByte()
	if err != nil {
		return 0, errors.Wrap(err, "reading marker byte")
	}
	return b, nil
}

func (u *Unpacker) readBigEndian(v interface{}) error {
	if err := binary.Read(u.r, binary.BigEndian, v); err != nil {
		return errors.Wrap(err, "reading fixed-width field")
	}
	return nil
}

func (u *Unpacker) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(u.r, buf); err != nil {
		return nil, errors.Wrap(err, "reading %d bytes", n)
	}
	return buf, nil
}

// Unpack reads the next value as a generic interface{}, dispatching
// structs through the graph-struct decoder. Message structs are decoded
// by the message format layer, which calls UnpackStructHeader directly
// instead of going through Unpack.
func (u *Unpacker) Unpack() (interface{}, error) {
	marker, err := u.readByte()
	if err != nil {
		return nil, err
	}
	return u.unpackValue(marker)
}

func (u *Unpacker) unpackValue(marker byte) (interface{}, error) {
	switch {
	case marker == NilMarker:
		return nil, nil
	case marker == TrueMarker:
		return true, nil
	case marker == FalseMarker:
		return false, nil
	case marker == Int8Marker:
		var v int8
		err := u.readBigEndian(&v)
		return int64(v), err
	case marker == Int16Marker:
		var v int16
		err := u.readBigEndian(&v)
		return int64(v), err
	case marker == Int32Marker:
		var v int32
		err := u.readBigEndian(&v)
		return int64(v), err
	case marker == Int64Marker:
		var v int64
		err := u.readBigEndian(&v)
		return v, err
	case isTinyInt(marker):
		return int64(int8(marker)), nil
	case marker == FloatMarker:
		var v float64
		err := u.readBigEndian(&v)
		return v, err
	case marker == Bytes8Marker || marker == Bytes16Marker || marker == Bytes32Marker:
		return u.unpackBytesBody(marker)
	case marker >= TinyStringMarker && marker < TinyListMarker:
		return u.unpackStringBody(marker)
	case marker == String8Marker || marker == String16Marker || marker == String32Marker:
		return u.unpackStringBody(marker)
	case marker >= TinyListMarker && marker < TinyMapMarker:
		return u.unpackListBody(marker)
	case marker == List8Marker || marker == List16Marker || marker == List32Marker:
		return u.unpackListBody(marker)
	case marker >= TinyMapMarker && marker < TinyStructMarker:
		return u.unpackMapBody(marker)
	case marker == Map8Marker || marker == Map16Marker || marker == Map32Marker:
		return u.unpackMapBody(marker)
	case marker >= TinyStructMarker && marker < Bytes8Marker:
		return u.unpackStructBody(marker)
	case marker == Struct8Marker || marker == Struct16Marker:
		return u.unpackStructBody(marker)
	default:
		return nil, errors.Protocol("unrecognized PackStream marker byte: 0x%02x", marker)
	}
}

// isTinyInt reports whether marker is a TINY_INT: either a positive tiny
// int (0x00-0x7F, the byte value IS the int) or a negative tiny int
// (0xF0-0xFF, decoded by reinterpreting the byte as signed).
func isTinyInt(marker byte) bool {
	return marker <= tinyIntMax || marker >= 0xF0
}

func (u *Unpacker) lengthOf(marker, tiny, m8, m16, m32 byte) (int, error) {
	switch marker {
	case m8:
		var v uint8
		err := u.readBigEndian(&v)
		return int(v), err
	case m16:
		var v uint16
		err := u.readBigEndian(&v)
		return int(v), err
	case m32:
		var v uint32
		err := u.readBigEndian(&v)
		return int(v), err
	default:
		return int(marker - tiny), nil
	}
}

func (u *Unpacker) unpackStringBody(marker byte) (string, error) {
	n, err := u.lengthOf(marker, TinyStringMarker, String8Marker, String16Marker, String32Marker)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b, err := u.readN(n)
	return string(b), err
}

func (u *Unpacker) unpackBytesBody(marker byte) ([]byte, error) {
	if !u.AllowBytes {
		return nil, errors.Protocol("negotiated protocol version does not support Bytes values")
	}
	var n int
	var err error
	switch marker {
	case Bytes8Marker:
		var v uint8
		err = u.readBigEndian(&v)
		n = int(v)
	case Bytes16Marker:
		var v uint16
		err = u.readBigEndian(&v)
		n = int(v)
	default:
		var v uint32
		err = u.readBigEndian(&v)
		n = int(v)
	}
	if err != nil {
		return nil, err
	}
	return u.readN(n)
}

func (u *Unpacker) unpackListBody(marker byte) ([]interface{}, error) {
	n, err := u.lengthOf(marker, TinyListMarker, List8Marker, List16Marker, List32Marker)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i], err = u.Unpack()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (u *Unpacker) unpackMapBody(marker byte) (map[string]interface{}, error) {
	n, err := u.lengthOf(marker, TinyMapMarker, Map8Marker, Map16Marker, Map32Marker)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, n)
	for i := 0; i < n; i++ {
		keyVal, err := u.Unpack()
		if err != nil {
			return nil, err
		}
		key, ok := keyVal.(string)
		if !ok {
			return nil, errors.Protocol("map key must be a String, got %T", keyVal)
		}
		if _, dup := out[key]; dup {
			return nil, errors.Protocol("duplicate map key %q", key)
		}
		val, err := u.Unpack()
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// UnpackStructHeader reads a struct's field count and signature without
// decoding its fields - used by the message format layer, which knows
// the field shape for each message signature.
func (u *Unpacker) UnpackStructHeader() (size int, signature byte, err error) {
	marker, err := u.readByte()
	if err != nil {
		return 0, 0, err
	}
	size, err = u.lengthOf(marker, TinyStructMarker, Struct8Marker, Struct16Marker, 0)
	if err != nil {
		return 0, 0, err
	}
	signature, err = u.readByte()
	return size, signature, err
}

func (u *Unpacker) unpackStructBody(marker byte) (interface{}, error) {
	size, err := u.lengthOf(marker, TinyStructMarker, Struct8Marker, Struct16Marker, 0)
	if err != nil {
		return nil, err
	}
	signature, err := u.readByte()
	if err != nil {
		return nil, err
	}

	wantFields, known := structFieldCounts[signature]
	if !known {
		return nil, errors.Protocol("unrecognized struct signature at value position: 0x%02x", signature)
	}
	if size != wantFields {
		return nil, errors.Protocol("struct signature 0x%02x expects %d fields, got %d", signature, wantFields, size)
	}

	switch signature {
	case graph.NodeSignature:
		return u.unpackNode()
	case graph.RelationshipSignature:
		return u.unpackRelationship()
	case graph.UnboundRelationshipSignature:
		return u.unpackUnboundRelationship()
	case graph.PathSignature:
		return u.unpackPath()
	default:
		return nil, errors.Protocol("unrecognized struct signature at value position: 0x%02x", signature)
	}
}

func (u *Unpacker) unpackNode() (graph.Node, error) {
	id, err := u.expectInt()
	if err != nil {
		return graph.Node{}, err
	}
	labelsRaw, err := u.expectList()
	if err != nil {
		return graph.Node{}, err
	}
	labels, err := toStringSlice(labelsRaw)
	if err != nil {
		return graph.Node{}, err
	}
	props, err := u.expectMap()
	if err != nil {
		return graph.Node{}, err
	}
	return graph.Node{NodeIdentity: id, Labels: labels, Properties: props}, nil
}

func (u *Unpacker) unpackRelationship() (graph.Relationship, error) {
	id, err := u.expectInt()
	if err != nil {
		return graph.Relationship{}, err
	}
	start, err := u.expectInt()
	if err != nil {
		return graph.Relationship{}, err
	}
	end, err := u.expectInt()
	if err != nil {
		return graph.Relationship{}, err
	}
	typ, err := u.expectString()
	if err != nil {
		return graph.Relationship{}, err
	}
	props, err := u.expectMap()
	if err != nil {
		return graph.Relationship{}, err
	}
	return graph.Relationship{
		RelIdentity:       id,
		StartNodeIdentity: start,
		EndNodeIdentity:   end,
		Type:              typ,
		Properties:        props,
	}, nil
}

func (u *Unpacker) unpackUnboundRelationship() (graph.UnboundRelationship, error) {
	id, err := u.expectInt()
	if err != nil {
		return graph.UnboundRelationship{}, err
	}
	typ, err := u.expectString()
	if err != nil {
		return graph.UnboundRelationship{}, err
	}
	props, err := u.expectMap()
	if err != nil {
		return graph.UnboundRelationship{}, err
	}
	return graph.UnboundRelationship{RelIdentity: id, Type: typ, Properties: props}, nil
}

func (u *Unpacker) unpackPath() (graph.Path, error) {
	nodesRaw, err := u.expectList()
	if err != nil {
		return graph.Path{}, err
	}
	nodes := make([]graph.Node, len(nodesRaw))
	for i, v := range nodesRaw {
		n, ok := v.(graph.Node)
		if !ok {
			return graph.Path{}, errors.Protocol("path node arena entry %d is not a Node: %T", i, v)
		}
		nodes[i] = n
	}

	relsRaw, err := u.expectList()
	if err != nil {
		return graph.Path{}, err
	}
	rels := make([]graph.UnboundRelationship, len(relsRaw))
	for i, v := range relsRaw {
		r, ok := v.(graph.UnboundRelationship)
		if !ok {
			return graph.Path{}, errors.Protocol("path relationship arena entry %d is not an UnboundRelationship: %T", i, v)
		}
		rels[i] = r
	}

	seqRaw, err := u.expectList()
	if err != nil {
		return graph.Path{}, err
	}
	seq := make([]int64, len(seqRaw))
	for i, v := range seqRaw {
		n, err := toInt64(v)
		if err != nil {
			return graph.Path{}, errors.Wrap(err, "path sequence entry %d", i)
		}
		seq[i] = n
	}

	return graph.Path{Nodes: nodes, Relationships: rels, Sequence: seq}, nil
}

func (u *Unpacker) expectInt() (int64, error) {
	v, err := u.Unpack()
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

func (u *Unpacker) expectString() (string, error) {
	v, err := u.Unpack()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Protocol("expected String, got %T", v)
	}
	return s, nil
}

func (u *Unpacker) expectList() ([]interface{}, error) {
	v, err := u.Unpack()
	if err != nil {
		return nil, err
	}
	l, ok := v.([]interface{})
	if !ok {
		return nil, errors.Protocol("expected List, got %T", v)
	}
	return l, nil
}

func (u *Unpacker) expectMap() (map[string]interface{}, error) {
	v, err := u.Unpack()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Protocol("expected Map, got %T", v)
	}
	return m, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, errors.Protocol("expected Integer, got %T", v)
	}
}

func toStringSlice(v []interface{}) ([]string, error) {
	out := make([]string, len(v))
	for i, item := range v {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Protocol("expected String at index %d, got %T", i, item)
		}
		out[i] = s
	}
	return out, nil
}
