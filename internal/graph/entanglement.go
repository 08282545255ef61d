package graph

import (
	"math"

	"github.com/leapstack-labs/glyphcore/pkg/core"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// correlation is the Pearson correlation of two equally long tension traces,
// clamped to [-1, 1]. It is 0 when undefined: fewer than two samples or a
// constant trace.
func correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// entanglement builds the symmetric node x node matrix for ids. Connected
// pairs hold the correlation of their traces, unconnected pairs hold 0 and
// the diagonal is 1.
func entanglement(ids []string, traces map[string][]float64, topo *Topology) *core.EntanglementMatrix {
	n := len(ids)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !topo.Connected(ids[i], ids[j]) {
				continue
			}
			r := correlation(traces[ids[i]], traces[ids[j]])
			values[i][j] = r
			values[j][i] = r
		}
	}
	return &core.EntanglementMatrix{
		NodeIDs: append([]string(nil), ids...),
		Values:  values,
	}
}

// coherence is the share of tension variance explained by the leading
// singular vector of the column-centred round x node trace matrix: 1 when all
// nodes move in lockstep, near 1/n when they move independently, 0 when
// nothing varies.
func coherence(ids []string, traces map[string][]float64) float64 {
	if len(ids) == 0 {
		return 0
	}
	rounds := len(traces[ids[0]])
	if rounds < 2 {
		return 0
	}

	m := mat.NewDense(rounds, len(ids), nil)
	for j, id := range ids {
		trace := traces[id]
		mean := stat.Mean(trace, nil)
		for i, v := range trace {
			m.Set(i, j, v-mean)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	total := 0.0
	for _, s := range values {
		total += s * s
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return values[0] * values[0] / total
}
