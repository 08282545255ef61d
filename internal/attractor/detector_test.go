package attractor

import (
	"math/rand/v2"
	"testing"

	"github.com/leapstack-labs/glyphcore/internal/testutil"
	"github.com/leapstack-labs/glyphcore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T, radius float64, minSize, retire int) *Detector {
	t.Helper()
	return New(Config{
		MaxRadius:        radius,
		MinClusterSize:   minSize,
		RetirementPasses: retire,
		Logger:           testutil.NewTestLogger(t),
	})
}

// around returns n samples jittered by at most spread around center,
// numbered from firstStep.
func around(r *rand.Rand, center core.Vector, n int, spread float64, firstStep int) []core.TensionSample {
	out := make([]core.TensionSample, n)
	for i := range out {
		state := center.Clone()
		for j := range state {
			state[j] += spread * (2*r.Float64() - 1)
		}
		out[i] = core.TensionSample{Step: firstStep + i, State: state}
	}
	return out
}

func TestRecluster_SeparatesTwoClusters(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	d := newDetector(t, 1.0, 3, 3)

	var samples []core.TensionSample
	samples = append(samples, around(r, core.Vector{0, 0, 0, 0}, 10, 0.1, 1)...)
	samples = append(samples, around(r, core.Vector{5, 5, 5, 5}, 10, 0.1, 11)...)

	manifolds := d.Recluster(samples)
	require.Len(t, manifolds, 2)
	for _, m := range manifolds {
		assert.GreaterOrEqual(t, m.MemberCount, 3)
		assert.LessOrEqual(t, m.Radius, 1.0)
	}
	assert.Equal(t, 1, manifolds[0].ID)
	assert.Equal(t, 2, manifolds[1].ID)
	assert.InDelta(t, 0, manifolds[0].Centroid[0], 0.1)
	assert.InDelta(t, 5, manifolds[1].Centroid[0], 0.1)
	assert.Equal(t, 1, manifolds[0].FirstSeenStep)
	assert.Equal(t, 10, manifolds[0].LastUpdatedStep)
	assert.Equal(t, 11, manifolds[1].FirstSeenStep)
}

func TestRecluster_SingleTightCluster(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	d := newDetector(t, 1.0, 3, 3)

	manifolds := d.Recluster(around(r, core.Vector{2, -1, 0, 3}, 12, 0.05, 1))
	require.Len(t, manifolds, 1)
	assert.Equal(t, 12, manifolds[0].MemberCount)
}

func TestRecluster_DiscardsSmallClusters(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	d := newDetector(t, 1.0, 3, 3)

	samples := around(r, core.Vector{0, 0}, 5, 0.1, 1)
	samples = append(samples, core.TensionSample{Step: 6, State: core.Vector{9, 9}})
	samples = append(samples, core.TensionSample{Step: 7, State: core.Vector{9.1, 9}})

	manifolds := d.Recluster(samples)
	require.Len(t, manifolds, 1, "a two-member cluster stays provisional")
	assert.Equal(t, 5, manifolds[0].MemberCount)

	manifolds = d.Recluster(samples)
	assert.Len(t, manifolds, 1, "provisional clusters do not survive between passes")
}

func TestRecluster_EmptyInput(t *testing.T) {
	d := newDetector(t, 1.0, 3, 3)
	assert.Empty(t, d.Recluster(nil))
	assert.Equal(t, 1, d.Passes())
}

func TestRecluster_TieBreakPrefersLowerID(t *testing.T) {
	d := newDetector(t, 1.5, 3, 3)

	var seed []core.TensionSample
	for i := 0; i < 3; i++ {
		seed = append(seed, core.TensionSample{Step: i + 1, State: core.Vector{0}})
	}
	for i := 0; i < 3; i++ {
		seed = append(seed, core.TensionSample{Step: i + 4, State: core.Vector{2}})
	}
	require.Len(t, d.Recluster(seed), 2)

	manifolds := d.Recluster([]core.TensionSample{{Step: 7, State: core.Vector{1}}})
	require.Len(t, manifolds, 2)
	assert.Equal(t, 1, manifolds[0].MemberCount, "equidistant sample joins the lower id")
	assert.Equal(t, 0, manifolds[1].MemberCount)
	assert.Equal(t, core.Vector{1}, manifolds[0].Centroid)
	assert.Equal(t, 7, manifolds[0].LastUpdatedStep)
}

func TestRecluster_IDsStableAcrossPasses(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	d := newDetector(t, 1.0, 3, 3)

	samples := around(r, core.Vector{0, 0, 0, 0}, 6, 0.1, 1)
	samples = append(samples, around(r, core.Vector{5, 5, 5, 5}, 6, 0.1, 7)...)

	first := d.Recluster(samples)
	second := d.Recluster(samples)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].FirstSeenStep, second[i].FirstSeenStep)
	}
}

func TestRecluster_RetiresAfterConsecutiveEmptyPasses(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	d := newDetector(t, 1.0, 3, 2)

	require.Len(t, d.Recluster(around(r, core.Vector{0, 0}, 5, 0.1, 1)), 1)

	elsewhere := around(r, core.Vector{10, 10}, 2, 0.1, 6)
	manifolds := d.Recluster(elsewhere)
	require.Len(t, manifolds, 1, "one empty pass is within hysteresis")
	assert.Equal(t, 0, manifolds[0].MemberCount)

	assert.Empty(t, d.Recluster(elsewhere), "retired after two consecutive empty passes")
}

func TestRecluster_MembershipResetsHysteresis(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	d := newDetector(t, 1.0, 3, 2)
	home := around(r, core.Vector{0, 0}, 5, 0.1, 1)

	d.Recluster(home)
	d.Recluster(nil)
	d.Recluster(home)
	d.Recluster(nil)
	assert.Len(t, d.Manifolds(), 1, "a manifold that regained members starts its count over")
}

func TestRecluster_RadiusInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 14))
	const maxRadius = 0.75
	d := newDetector(t, maxRadius, 2, 3)

	for pass := 0; pass < 20; pass++ {
		var samples []core.TensionSample
		for i := 0; i < 40; i++ {
			samples = append(samples, core.TensionSample{
				Step:  pass*40 + i + 1,
				State: core.Vector{4 * r.Float64(), 4 * r.Float64()},
			})
		}
		for _, m := range d.Recluster(samples) {
			assert.LessOrEqual(t, m.Radius, maxRadius)
		}
	}
}

func TestManifolds_ReturnsCopies(t *testing.T) {
	r := rand.New(rand.NewPCG(15, 16))
	d := newDetector(t, 1.0, 3, 3)
	d.Recluster(around(r, core.Vector{1, 1}, 4, 0.1, 1))

	m := d.Manifolds()
	require.Len(t, m, 1)
	m[0].Centroid[0] = 100

	assert.NotEqual(t, 100.0, d.Manifolds()[0].Centroid[0])
}
