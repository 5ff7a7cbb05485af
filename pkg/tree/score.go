package tree

import (
	"math"
)

// The displacement (codisp) statistic. A candidate point is scored by walking
// to the leaf its cuts would reach and unwinding toward the root, blending in
// at every level the probability that a random cut would have isolated the
// point from that node's bounding box. Points that the tree has seen score by
// depth and mass; points it has not score by depth alone.

func scoreSeen(depth int, mass int32) float64 {
	return 1.0 / (float64(depth) + math.Log2(1.0+float64(mass)))
}

func scoreUnseen(depth int) float64 {
	return 1.0 / (float64(depth) + 1.0)
}

// damp discounts the score of a point the tree holds many copies of.
func damp(leafMass int32, treeMass int) float64 {
	return 1.0 - float64(leafMass)/(2.0*float64(treeMass))
}

func normalize(score float64, treeMass int) float64 {
	return score * math.Log2(1.0+float64(treeMass))
}

// Score returns the anomaly score of the point against the current tree
// state. An empty tree scores 0. The tree is not modified.
func (t *Tree) Score(point []float64) float64 {
	if t.root == nilNode {
		return 0
	}

	path := t.descend(point)
	leafIdx := path[len(path)-1]
	leaf := &t.nodes[leafIdx]
	depth := len(path) - 1
	treeMass := t.Mass()

	var score float64
	converged := false
	if pointsEqual(leaf.point, point) {
		score = damp(leaf.mass, treeMass) * scoreSeen(depth, leaf.mass)
		converged = true
	} else {
		score = scoreUnseen(depth)
	}

	for i := len(path) - 2; i >= 0 && !converged; i-- {
		prob := separationProbability(point, t.nodes[path[i]].box)
		if prob <= 0 {
			break
		}
		score = prob*scoreUnseen(i) + (1.0-prob)*score
	}
	return normalize(score, treeMass)
}

// descend follows cuts from the root to a leaf, returning the full path
// including both endpoints.
func (t *Tree) descend(point []float64) []int32 {
	path := make([]int32, 0, 32)
	idx := t.root
	for {
		path = append(path, idx)
		n := &t.nodes[idx]
		if n.isLeaf() {
			return path
		}
		if point[n.cutDim] <= n.cutValue {
			idx = n.left
		} else {
			idx = n.right
		}
	}
}

// separationProbability is the probability that a random cut on the box grown
// to include the point falls in the grown margin, separating the point from
// the box. Zero when the point is inside the box.
func separationProbability(point []float64, box *BoundingBox) float64 {
	var newRangeSum, diffSum float64
	for i := range point {
		min, max := box.Min[i], box.Max[i]
		switch {
		case point[i] > max:
			newRangeSum += point[i] - min
			diffSum += point[i] - max
		case point[i] < min:
			newRangeSum += max - point[i]
			diffSum += min - point[i]
		default:
			newRangeSum += max - min
		}
	}
	if newRangeSum <= 0 {
		return 0
	}
	return diffSum / newRangeSum
}
