package core

import "math"

// Vector is a fixed-dimension real vector. Engines own their live state vector;
// every Vector handed out of an engine is a snapshot copy.
type Vector []float64

// NewVector returns a zero vector of dimension d.
func NewVector(d int) Vector {
	return make(Vector, d)
}

// Dim returns the dimension of the vector.
func (v Vector) Dim() int {
	return len(v)
}

// Clone returns a deep copy of the vector. Cloning a nil vector returns nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Finite reports whether every component is neither NaN nor ±Inf.
// It returns the index of the first offending component otherwise.
func (v Vector) Finite() (int, bool) {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i, false
		}
	}
	return -1, true
}

// Equal reports whether both vectors have identical components, bit for bit.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(other[i]) {
			return false
		}
	}
	return true
}
