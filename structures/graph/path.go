package graph

const (
	// PathSignature is the signature byte for a Path object
	PathSignature = 0x50
)

// Path represents a traversal through the graph as two arenas - the
// unique nodes and unique relationships it touches - plus an interleaved
// index sequence describing the order they were visited in. This mirrors
// the wire format directly: the server already breaks node<->relationship
// cycles by interning both into flat arrays and referencing them by
// index, so the in-memory Path does the same instead of holding owning
// back-pointers between nodes and relationships.
//
// Sequence holds (relIndex, nodeIndex) pairs. relIndex is 1-based and its
// sign carries direction: a negative value means the relationship was
// traversed against its stored start->end orientation. nodeIndex is
// 0-based into Nodes, with Nodes[0] as the path's start node.
type Path struct {
	Nodes         []Node
	Relationships []UnboundRelationship
	Sequence      []int64
}

// Signature gets the signature byte for the struct
func (p Path) Signature() int {
	return PathSignature
}

// Fields gets the ordered field values to encode for the struct: the
// node arena, the relationship arena, and the interleaved sequence.
func (p Path) Fields() []interface{} {
	nodes := make([]interface{}, len(p.Nodes))
	for i, node := range p.Nodes {
		nodes[i] = node
	}
	relationships := make([]interface{}, len(p.Relationships))
	for i, relationship := range p.Relationships {
		relationships[i] = relationship
	}
	sequence := make([]interface{}, len(p.Sequence))
	for i, s := range p.Sequence {
		sequence[i] = s
	}
	return []interface{}{nodes, relationships, sequence}
}

// Length returns the number of relationship hops in the path.
func (p Path) Length() int {
	return len(p.Sequence) / 2
}

// RelationshipAt resolves the hop-th traversed relationship (0-based) and
// reports whether it was traversed against its stored start->end
// orientation.
func (p Path) RelationshipAt(hop int) (rel UnboundRelationship, reversed bool, ok bool) {
	idx := hop * 2
	if idx < 0 || idx >= len(p.Sequence) {
		return UnboundRelationship{}, false, false
	}
	relIndex := p.Sequence[idx]
	reversed = relIndex < 0
	if reversed {
		relIndex = -relIndex
	}
	arenaIndex := relIndex - 1
	if arenaIndex < 0 || int(arenaIndex) >= len(p.Relationships) {
		return UnboundRelationship{}, false, false
	}
	return p.Relationships[arenaIndex], reversed, true
}

// NodeAt resolves the node reached after the hop-th relationship.
// NodeAt(-1) (or any index before the first hop) reports false; the
// path's start node is Nodes[0].
func (p Path) NodeAt(hop int) (Node, bool) {
	idx := hop*2 + 1
	if idx < 0 || idx >= len(p.Sequence) {
		return Node{}, false
	}
	nodeIndex := p.Sequence[idx]
	if nodeIndex < 0 || int(nodeIndex) >= len(p.Nodes) {
		return Node{}, false
	}
	return p.Nodes[nodeIndex], true
}
