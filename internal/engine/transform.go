package engine

import (
	"fmt"

	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// Transform is the deterministic part of the recursive update,
// A_{n+1} = f(A_n, s_n) before noise is added. Implementations must be
// contractions in the state argument: ||f(a, s) - f(b, s)|| <= Lipschitz() * ||a - b||.
type Transform interface {
	// Apply returns f(state, stimulus) as a new vector. It must not modify its inputs.
	Apply(state, stimulus core.Vector) (core.Vector, error)
	// Lipschitz returns an upper bound on the Lipschitz constant in the state argument.
	Lipschitz() float64
	// Dim returns the dimension the transform operates on, or 0 if it accepts any.
	Dim() int
}

// ScaledContraction is the default linear transform f(a, s) = L*a + s.
// Its fixed point under a constant stimulus s is s / (1 - L).
type ScaledContraction struct {
	Ratio float64
}

// Apply implements Transform.
func (c ScaledContraction) Apply(state, stimulus core.Vector) (core.Vector, error) {
	out := stimulus.Clone()
	if err := vecmath.AddScaledInPlace(out, c.Ratio, state); err != nil {
		return nil, err
	}
	return out, nil
}

// Lipschitz implements Transform.
func (c ScaledContraction) Lipschitz() float64 { return c.Ratio }

// Dim implements Transform.
func (c ScaledContraction) Dim() int { return 0 }

// MatrixContraction is the linear transform f(a, s) = M*a + s for a square
// matrix M. Its Lipschitz constant is the largest singular value of M.
type MatrixContraction struct {
	m        *mat.Dense
	spectral float64
}

// NewMatrixContraction wraps a square matrix and computes its spectral norm.
func NewMatrixContraction(m *mat.Dense) (*MatrixContraction, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("contraction matrix must be square, got %dx%d", r, c)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return nil, fmt.Errorf("failed to factorize contraction matrix")
	}
	values := svd.Values(nil)

	return &MatrixContraction{m: mat.DenseCopyOf(m), spectral: values[0]}, nil
}

// Apply implements Transform.
func (c *MatrixContraction) Apply(state, stimulus core.Vector) (core.Vector, error) {
	n := c.Dim()
	if len(state) != n || len(stimulus) != n {
		return nil, &vecmath.ErrDimension{Left: n, Right: len(state)}
	}

	var out mat.VecDense
	out.MulVec(c.m, mat.NewVecDense(n, state.Clone()))

	next := make(core.Vector, n)
	for i := range next {
		next[i] = out.AtVec(i) + stimulus[i]
	}
	return next, nil
}

// Lipschitz implements Transform.
func (c *MatrixContraction) Lipschitz() float64 { return c.spectral }

// Dim implements Transform.
func (c *MatrixContraction) Dim() int {
	r, _ := c.m.Dims()
	return r
}
