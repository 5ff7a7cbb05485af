package tree

// nilNode marks an absent parent or child reference in the arena.
const nilNode = int32(-1)

// node is a single slot in the tree's arena. A node is either a leaf, holding
// an owned copy of its point plus a point-mass count and the insertion
// sequence indices of the coincident points, or an internal node, holding a
// cut and the bounding box of its subtree. Children and parents are referenced
// by arena index only; there are no pointer cycles to keep alive.
type node struct {
	parent int32
	left   int32
	right  int32
	mass   int32

	// internal nodes
	cutDim   int32
	cutValue float64
	box      *BoundingBox

	// leaves
	point     []float64
	sequences []uint64
}

func (n *node) isLeaf() bool {
	return n.left == nilNode
}

// allocNode takes a slot from the free list or grows the arena.
func (t *Tree) allocNode() int32 {
	if k := len(t.free); k > 0 {
		idx := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[idx] = node{parent: nilNode, left: nilNode, right: nilNode}
		return idx
	}
	t.nodes = append(t.nodes, node{parent: nilNode, left: nilNode, right: nilNode})
	return int32(len(t.nodes) - 1)
}

// freeNode returns a slot to the reuse pool. The slot is cleared so the arena
// does not pin point slices past deletion.
func (t *Tree) freeNode(idx int32) {
	t.nodes[idx] = node{parent: nilNode, left: nilNode, right: nilNode}
	t.free = append(t.free, idx)
}

func (t *Tree) newLeaf(point []float64, seq uint64) int32 {
	idx := t.allocNode()
	n := &t.nodes[idx]
	n.mass = 1
	n.point = append([]float64(nil), point...)
	n.sequences = append(n.sequences, seq)
	return idx
}

// nodeBox returns the bounding box of a node, materializing the degenerate box
// for leaves.
func (t *Tree) nodeBox(idx int32) *BoundingBox {
	n := &t.nodes[idx]
	if n.isLeaf() {
		return NewBoundingBox(n.point)
	}
	return n.box
}
