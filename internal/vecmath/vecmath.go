// Package vecmath provides validated arithmetic on core.Vector values.
// Operations never panic on dimension mismatch; they return an error instead.
package vecmath

import (
	"fmt"

	"github.com/leapstack-labs/glyphcore/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// ErrDimension is returned when two operands differ in length.
type ErrDimension struct {
	Left, Right int
}

func (e *ErrDimension) Error() string {
	return fmt.Sprintf("dimension mismatch: %d vs %d", e.Left, e.Right)
}

func same(a, b core.Vector) error {
	if len(a) != len(b) {
		return &ErrDimension{Left: len(a), Right: len(b)}
	}
	return nil
}

// Add returns a + b.
func Add(a, b core.Vector) (core.Vector, error) {
	if err := same(a, b); err != nil {
		return nil, err
	}
	return floats.AddTo(make(core.Vector, len(a)), a, b), nil
}

// Sub returns a - b.
func Sub(a, b core.Vector) (core.Vector, error) {
	if err := same(a, b); err != nil {
		return nil, err
	}
	return floats.SubTo(make(core.Vector, len(a)), a, b), nil
}

// Scale returns c * v.
func Scale(c float64, v core.Vector) core.Vector {
	return floats.ScaleTo(make(core.Vector, len(v)), c, v)
}

// AddScaledInPlace sets dst = dst + alpha*v.
func AddScaledInPlace(dst core.Vector, alpha float64, v core.Vector) error {
	if err := same(dst, v); err != nil {
		return err
	}
	floats.AddScaled(dst, alpha, v)
	return nil
}

// Norm returns the Euclidean norm of v.
func Norm(v core.Vector) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b core.Vector) (float64, error) {
	if err := same(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// SquaredDistance returns ||a - b||^2 without taking a square root.
func SquaredDistance(a, b core.Vector) (float64, error) {
	diff, err := Sub(a, b)
	if err != nil {
		return 0, err
	}
	return floats.Dot(diff, diff), nil
}

// RunningMean folds x into centroid, which already averages n-1 points,
// so that it averages n points: c += (x - c) / n.
func RunningMean(centroid, x core.Vector, n int) error {
	if err := same(centroid, x); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("running mean over %d points", n)
	}
	inv := 1 / float64(n)
	for i := range centroid {
		centroid[i] += (x[i] - centroid[i]) * inv
	}
	return nil
}

// CheckFinite returns a *core.NumericInstabilityError naming the first
// non-finite component of v.
func CheckFinite(step int, v core.Vector, reason string) error {
	if idx, ok := v.Finite(); !ok {
		return &core.NumericInstabilityError{Step: step, Index: idx, Value: v[idx], Reason: reason}
	}
	return nil
}
