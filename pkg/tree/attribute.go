package tree

// Attribute decomposes the anomaly score of the point into a per-dimension
// directional DiVector whose total equals Score(point). The tree is not
// modified.
func (t *Tree) Attribute(point []float64) *DiVector {
	result := NewDiVector(t.dimensions)
	if t.root == nilNode {
		return result
	}

	path := t.descend(point)
	leafIdx := path[len(path)-1]
	leaf := &t.nodes[leafIdx]
	depth := len(path) - 1
	treeMass := t.Mass()

	var score float64
	converged := false
	hitDuplicate := false
	prob := NewDiVector(t.dimensions)

	if pointsEqual(leaf.point, point) {
		score = damp(leaf.mass, treeMass) * scoreSeen(depth, leaf.mass)
		hitDuplicate = true
	} else {
		score = scoreUnseen(depth)
		directionalProbability(point, NewBoundingBox(leaf.point), prob)
		result.AddScaled(prob, score)
	}

	for i := len(path) - 2; i >= 0 && !converged; i-- {
		total := directionalProbability(point, t.nodes[path[i]].box, prob)
		if total <= 0 {
			converged = true
			break
		}
		unseen := scoreUnseen(i)
		if !hitDuplicate {
			score = (1.0-total)*score + total*unseen
		}
		result.Scale(1.0 - total)
		result.AddScaled(prob, unseen)
	}

	result.Renormalize(normalize(score, treeMass))
	return result
}

// directionalProbability fills probs with the per-dimension, per-direction
// separation probabilities of the point against the box, returning their
// total. The total matches separationProbability for the same inputs.
func directionalProbability(point []float64, box *BoundingBox, probs *DiVector) float64 {
	var newRangeSum float64
	for i := range point {
		probs.Low[i] = 0
		probs.High[i] = 0
		min, max := box.Min[i], box.Max[i]
		switch {
		case point[i] > max:
			probs.High[i] = point[i] - max
			newRangeSum += point[i] - min
		case point[i] < min:
			probs.Low[i] = min - point[i]
			newRangeSum += max - point[i]
		default:
			newRangeSum += max - min
		}
	}
	if newRangeSum <= 0 {
		return 0
	}
	probs.Scale(1.0 / newRangeSum)
	return probs.Total()
}
