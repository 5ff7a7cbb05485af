// Package sampler implements the bounded, time-decayed weighted reservoir
// that feeds random cut trees. Each offered point draws a weight
// ln(-ln(U)) - seq*lambda; lower weights are better, so recency and luck both
// help a point stay resident. The reservoir is a binary max-heap on weight,
// giving O(log C) eviction of the current worst resident.
package sampler

import (
	"math"

	"golang.org/x/exp/rand"
)

// DefaultInitialAcceptFraction is the fill fraction below which every offer
// is accepted while the reservoir warms up.
const DefaultInitialAcceptFraction = 0.125

type entry struct {
	weight float64
	point  []float64
	seq    uint64
}

// Evicted describes a resident displaced by a newly accepted point.
type Evicted struct {
	Point  []float64
	Seq    uint64
	Weight float64
}

// Sampler is a weighted reservoir of bounded capacity. It is not safe for
// concurrent use; the owning tree serializes access.
type Sampler struct {
	capacity              int
	timeDecay             float64
	initialAcceptFraction float64
	rng                   *rand.Rand
	heap                  []entry
}

// New creates an empty sampler. timeDecay is the exponential decay rate
// lambda applied per sequence step; zero disables decay.
func New(capacity int, timeDecay float64, seed uint64) *Sampler {
	return &Sampler{
		capacity:              capacity,
		timeDecay:             timeDecay,
		initialAcceptFraction: DefaultInitialAcceptFraction,
		rng:                   rand.New(rand.NewSource(seed)),
		heap:                  make([]entry, 0, capacity),
	}
}

// Size returns the number of residents.
func (s *Sampler) Size() int {
	return len(s.heap)
}

// Capacity returns the maximum number of residents.
func (s *Sampler) Capacity() int {
	return s.capacity
}

// Points calls fn for every resident point. Iteration order is heap order,
// not insertion order.
func (s *Sampler) Points(fn func(point []float64, seq uint64)) {
	for i := range s.heap {
		fn(s.heap[i].point, s.heap[i].seq)
	}
}

// Offer proposes a point for residency at the given sequence index. Returns
// whether the point was accepted and, if acceptance displaced a resident, the
// evicted entry. The pool never exceeds its capacity.
func (s *Sampler) Offer(point []float64, seq uint64) (bool, *Evicted) {
	weight := s.computeWeight(seq)

	if len(s.heap) < s.capacity {
		fill := float64(len(s.heap)) / float64(s.capacity)
		if s.rng.Float64() < s.initialAcceptProbability(fill) {
			s.push(entry{weight: weight, point: clonePoint(point), seq: seq})
			return true, nil
		}
	}

	if len(s.heap) > 0 && weight < s.heap[0].weight {
		worst := s.popRoot()
		s.push(entry{weight: weight, point: clonePoint(point), seq: seq})
		return true, &Evicted{Point: worst.point, Seq: worst.seq, Weight: worst.weight}
	}
	return false, nil
}

func (s *Sampler) computeWeight(seq uint64) float64 {
	u := s.rng.Float64()
	for u <= 0 {
		u = s.rng.Float64()
	}
	return math.Log(-math.Log(u)) - float64(seq)*s.timeDecay
}

func (s *Sampler) initialAcceptProbability(fill float64) float64 {
	switch {
	case fill < s.initialAcceptFraction:
		return 1.0
	case s.initialAcceptFraction >= 1.0:
		return 0.0
	default:
		return 1.0 - (fill-s.initialAcceptFraction)/(1.0-s.initialAcceptFraction)
	}
}

func (s *Sampler) push(e entry) {
	s.heap = append(s.heap, e)
	i := len(s.heap) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if s.heap[parent].weight >= s.heap[i].weight {
			break
		}
		s.heap[parent], s.heap[i] = s.heap[i], s.heap[parent]
		i = parent
	}
}

func (s *Sampler) popRoot() entry {
	root := s.heap[0]
	last := len(s.heap) - 1
	s.heap[0] = s.heap[last]
	s.heap = s.heap[:last]

	i := 0
	for {
		largest := i
		if l := 2*i + 1; l < last && s.heap[l].weight > s.heap[largest].weight {
			largest = l
		}
		if r := 2*i + 2; r < last && s.heap[r].weight > s.heap[largest].weight {
			largest = r
		}
		if largest == i {
			break
		}
		s.heap[i], s.heap[largest] = s.heap[largest], s.heap[i]
		i = largest
	}
	return root
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
