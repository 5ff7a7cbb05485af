// Package tree implements a single random cut tree: a randomized
// space-partitioning binary tree over a bounded sample of points, supporting
// incremental insertion and deletion, displacement-based anomaly scoring,
// missing-value imputation, and directional attribution.
//
// Nodes live in an index-addressed arena; freed slots are recycled so memory
// stays bounded by the sample size regardless of stream length.
package tree

import (
	"golang.org/x/exp/rand"
)

// Tree is one member of a random cut forest. Mutations (Insert, Delete) must
// be serialized by the caller; Score, Impute and Attribute are read-only and
// safe to run concurrently with each other.
type Tree struct {
	nodes      []node
	free       []int32
	root       int32
	rng        *rand.Rand
	dimensions int
}

// New creates an empty tree for points of the given dimensionality. The seed
// fixes the sequence of random cut choices, making tree shape a deterministic
// function of the update history.
func New(dimensions int, seed uint64) *Tree {
	return &Tree{
		root:       nilNode,
		rng:        rand.New(rand.NewSource(seed)),
		dimensions: dimensions,
	}
}

// Dimensions returns the dimensionality of points in the tree.
func (t *Tree) Dimensions() int {
	return t.dimensions
}

// Mass returns the number of points currently in the tree, counting
// coincident duplicates.
func (t *Tree) Mass() int {
	if t.root == nilNode {
		return 0
	}
	return int(t.nodes[t.root].mass)
}

// NodeCount returns the number of live arena slots, for bookkeeping and leak
// checks.
func (t *Tree) NodeCount() int {
	return len(t.nodes) - len(t.free)
}

// Insert adds a point to the tree at a position determined by random cuts.
// Inserting a point coincident with an existing leaf increments that leaf's
// mass without restructuring.
func (t *Tree) Insert(point []float64, seq uint64) {
	if t.root == nilNode {
		t.root = t.newLeaf(point, seq)
		return
	}
	t.insertAt(t.root, point, seq)
}

func (t *Tree) insertAt(idx int32, point []float64, seq uint64) {
	if n := &t.nodes[idx]; n.isLeaf() {
		if pointsEqual(n.point, point) {
			n.mass++
			n.sequences = append(n.sequences, seq)
			return
		}
	}

	merged := t.nodeBox(idx).MergedWithPoint(point)

	// Try to separate the new point from the current subtree with a random
	// cut on the merged box. A cut can only separate when the point lies
	// outside the existing box.
	n := &t.nodes[idx]
	if n.isLeaf() || !n.box.Contains(point) {
		cutDim, cutValue := t.randomCut(merged)
		lo, hi := t.rangeOnDimension(idx, cutDim)
		if cutValue < lo || cutValue >= hi {
			t.spliceLeaf(idx, point, seq, merged, cutDim, cutValue, lo)
			return
		}
	}

	// Descend along the existing cut.
	n = &t.nodes[idx]
	next := n.left
	if point[n.cutDim] > n.cutValue {
		next = n.right
	}
	t.insertAt(next, point, seq)

	// Unwind: the subtree below gained a point.
	n = &t.nodes[idx]
	n.box = merged
	n.mass++
}

// randomCut draws a cut inside the box: a dimension chosen with probability
// proportional to its range, then a uniform value within that range.
func (t *Tree) randomCut(box *BoundingBox) (int32, float64) {
	breakpoint := t.rng.Float64() * box.RangeSum()
	for i := 0; i < box.Dimensions(); i++ {
		r := box.Range(i)
		if r > 0 && breakpoint <= r {
			cutValue := box.Min[i] + breakpoint
			if cutValue >= box.Max[i] {
				cutValue = box.Max[i] - epsilon(box.Max[i])
			}
			return int32(i), cutValue
		}
		breakpoint -= r
	}
	// Floating point slop pushed the breakpoint past the last positive range.
	for i := box.Dimensions() - 1; i >= 0; i-- {
		if box.Range(i) > 0 {
			return int32(i), box.Min[i]
		}
	}
	return 0, box.Min[0]
}

func epsilon(v float64) float64 {
	e := v * 1e-12
	if e <= 0 {
		e = 1e-12
	}
	return e
}

// rangeOnDimension returns the extent of the existing subtree at idx along
// one dimension.
func (t *Tree) rangeOnDimension(idx int32, dim int32) (float64, float64) {
	n := &t.nodes[idx]
	if n.isLeaf() {
		return n.point[dim], n.point[dim]
	}
	return n.box.Min[dim], n.box.Max[dim]
}

// spliceLeaf inserts a new internal node above idx with the new point as its
// sibling leaf. The side of the new leaf follows the cut: if the existing
// subtree lies entirely above the cut value it moves right.
func (t *Tree) spliceLeaf(idx int32, point []float64, seq uint64, merged *BoundingBox, cutDim int32, cutValue, lo float64) {
	parent := t.nodes[idx].parent
	oldMass := t.nodes[idx].mass

	leafIdx := t.newLeaf(point, seq)
	mergedIdx := t.allocNode()

	m := &t.nodes[mergedIdx]
	m.cutDim = cutDim
	m.cutValue = cutValue
	m.box = merged
	m.mass = oldMass + 1
	m.parent = parent
	if lo > cutValue {
		m.left, m.right = leafIdx, idx
	} else {
		m.left, m.right = idx, leafIdx
	}

	t.nodes[idx].parent = mergedIdx
	t.nodes[leafIdx].parent = mergedIdx

	if parent == nilNode {
		t.root = mergedIdx
		return
	}
	p := &t.nodes[parent]
	if p.left == idx {
		p.left = mergedIdx
	} else {
		p.right = mergedIdx
	}
}

// Delete removes one occurrence of the point from the tree. When the leaf's
// mass reaches zero the leaf and its parent are spliced out and the sibling
// promoted; ancestor boxes are shrunk back to tightness on the way up.
// Returns false if the point is not present.
func (t *Tree) Delete(point []float64, seq uint64) bool {
	if t.root == nilNode {
		return false
	}

	// Follow cuts down to the candidate leaf, remembering the path.
	path := make([]int32, 0, 32)
	idx := t.root
	for !t.nodes[idx].isLeaf() {
		path = append(path, idx)
		n := &t.nodes[idx]
		if point[n.cutDim] <= n.cutValue {
			idx = n.left
		} else {
			idx = n.right
		}
	}

	leaf := &t.nodes[idx]
	if !pointsEqual(leaf.point, point) {
		return false
	}

	if leaf.mass > 1 {
		leaf.mass--
		leaf.dropSequence(seq)
		for _, a := range path {
			t.nodes[a].mass--
		}
		return true
	}

	// Only node in the tree.
	if len(path) == 0 {
		t.freeNode(idx)
		t.root = nilNode
		return true
	}

	parentIdx := path[len(path)-1]
	parent := &t.nodes[parentIdx]
	sibling := parent.left
	if sibling == idx {
		sibling = parent.right
	}

	if grand := parent.parent; grand != nilNode {
		t.nodes[sibling].parent = grand
		g := &t.nodes[grand]
		if g.left == parentIdx {
			g.left = sibling
		} else {
			g.right = sibling
		}
	} else {
		t.root = sibling
		t.nodes[sibling].parent = nilNode
	}
	t.freeNode(idx)
	t.freeNode(parentIdx)

	// Shrink the remaining ancestors: boxes are rebuilt from children, masses
	// drop by one.
	for i := len(path) - 2; i >= 0; i-- {
		a := &t.nodes[path[i]]
		box := t.nodeBox(a.left).Copy()
		box.MergeBox(t.nodeBox(a.right))
		a.box = box
		a.mass--
	}
	return true
}

func (n *node) dropSequence(seq uint64) {
	for i, s := range n.sequences {
		if s == seq {
			n.sequences[i] = n.sequences[len(n.sequences)-1]
			n.sequences = n.sequences[:len(n.sequences)-1]
			return
		}
	}
	if len(n.sequences) > 0 {
		n.sequences = n.sequences[:len(n.sequences)-1]
	}
}

func pointsEqual(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
