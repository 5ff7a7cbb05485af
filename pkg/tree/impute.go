package tree

import (
	"golang.org/x/exp/rand"
)

// imputeCandidate is one possible completion of a partially observed point,
// carried up the tree during an impute traversal.
type imputeCandidate struct {
	point     []float64
	score     float64
	converged bool
	rank      float64
}

// Impute fills the missing coordinates of the point with values drawn from
// the tree's sample, choosing completions that perturb the tree least. When
// the traversal reaches a cut on a missing dimension both branches are
// explored and the candidate with the lower adjusted score survives.
//
// centrality in [0,1] trades off score-driven selection (1) against a purely
// random draw among feasible leaves (0). seed fixes the random tiebreaks so
// the operation is reproducible; the tree itself is not modified.
//
// Returns the completed point and its normalized anomaly score.
func (t *Tree) Impute(point []float64, missing []int, centrality float64, seed uint64) ([]float64, float64) {
	if t.root == nilNode {
		return append([]float64(nil), point...), 0
	}
	rng := rand.New(rand.NewSource(seed))
	cand := t.imputeAt(t.root, 0, point, missing, centrality, rng)
	return cand.point, normalize(cand.score, t.Mass())
}

func (t *Tree) imputeAt(idx int32, depth int, point []float64, missing []int, centrality float64, rng *rand.Rand) imputeCandidate {
	n := &t.nodes[idx]
	if n.isLeaf() {
		completed := append([]float64(nil), point...)
		for _, d := range missing {
			completed[d] = n.point[d]
		}
		cand := imputeCandidate{point: completed, rank: rng.Float64()}
		if pointsEqual(completed, n.point) {
			cand.score = damp(n.mass, t.Mass()) * scoreSeen(depth, n.mass)
			cand.converged = true
		} else {
			cand.score = scoreUnseen(depth)
		}
		return cand
	}

	var cand imputeCandidate
	if containsDim(missing, n.cutDim) {
		left := t.imputeAt(n.left, depth+1, point, missing, centrality, rng)
		right := t.imputeAt(n.right, depth+1, point, missing, centrality, rng)
		converged := left.converged || right.converged
		if t.adjustedScore(left, centrality) <= t.adjustedScore(right, centrality) {
			cand = left
		} else {
			cand = right
		}
		cand.converged = converged
	} else {
		next := n.left
		if point[n.cutDim] > n.cutValue {
			next = n.right
		}
		cand = t.imputeAt(next, depth+1, point, missing, centrality, rng)
	}

	if !cand.converged {
		n = &t.nodes[idx]
		// The completed coordinates came from a leaf under this node, so they
		// lie inside its box and only the observed coordinates contribute.
		prob := separationProbability(cand.point, n.box)
		if prob <= 0 {
			cand.converged = true
		} else {
			cand.score = (1.0-prob)*cand.score + prob*scoreUnseen(depth)
		}
	}
	return cand
}

// adjustedScore blends the normalized anomaly score of a candidate with its
// random rank, weighted by centrality.
func (t *Tree) adjustedScore(c imputeCandidate, centrality float64) float64 {
	return centrality*normalize(c.score, t.Mass()) + (1.0-centrality)*c.rank
}

func containsDim(dims []int, d int32) bool {
	for _, v := range dims {
		if int32(v) == d {
			return true
		}
	}
	return false
}
