// Package shingle rolls a stream of fixed-size observations into overlapping
// windows ("shingles") consumed by the forest. A shingle of size S over
// base-dimension d observations is one flattened point of dimension S*d, with
// the oldest block first.
package shingle

import "fmt"

// Buffer accumulates observations until a full shingle is available and then
// slides one block per push.
type Buffer struct {
	baseDimension int
	shingleSize   int
	window        []float64
	filled        int
}

// NewBuffer creates an empty buffer. baseDimension and shingleSize must both
// be positive.
func NewBuffer(baseDimension, shingleSize int) (*Buffer, error) {
	if baseDimension <= 0 || shingleSize <= 0 {
		return nil, fmt.Errorf("shingle: invalid geometry %dx%d", baseDimension, shingleSize)
	}
	return &Buffer{
		baseDimension: baseDimension,
		shingleSize:   shingleSize,
		window:        make([]float64, 0, baseDimension*shingleSize),
	}, nil
}

// BaseDimension returns the size of one observation block.
func (b *Buffer) BaseDimension() int {
	return b.baseDimension
}

// ShingleSize returns the number of blocks per shingle.
func (b *Buffer) ShingleSize() int {
	return b.shingleSize
}

// Ready reports whether a full shingle has been accumulated.
func (b *Buffer) Ready() bool {
	return b.filled >= b.shingleSize
}

// Push appends one observation block. Once the window is full it returns a
// copy of the current shingle and true; before that it returns nil and false.
func (b *Buffer) Push(block []float64) ([]float64, bool, error) {
	if len(block) != b.baseDimension {
		return nil, false, fmt.Errorf("shingle: block has %d values, want %d", len(block), b.baseDimension)
	}
	if b.filled < b.shingleSize {
		b.window = append(b.window, block...)
		b.filled++
	} else {
		copy(b.window, b.window[b.baseDimension:])
		copy(b.window[len(b.window)-b.baseDimension:], block)
	}
	if !b.Ready() {
		return nil, false, nil
	}
	out := make([]float64, len(b.window))
	copy(out, b.window)
	return out, true, nil
}

// Shift returns a new shingle advanced one step: the oldest block dropped and
// the given block appended. The input shingle is not modified.
func Shift(shingled, block []float64) []float64 {
	out := make([]float64, len(shingled))
	copy(out, shingled[len(block):])
	copy(out[len(shingled)-len(block):], block)
	return out
}
