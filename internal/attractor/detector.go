// Package attractor clusters recent engine states into attractor manifolds.
//
// Each Recluster pass walks a history snapshot once. A state joins the nearest
// cluster whose centroid lies within max_attractor_radius (ties go to the lower
// id) or opens a provisional cluster. Clusters that reach min_cluster_size are
// promoted to manifolds; smaller provisional clusters are dropped at the end of
// the pass. Materialized manifolds seed the next pass so ids stay stable, and a
// manifold is retired only after it attracts no member for RetirementPasses
// consecutive passes. Manifolds are never merged or split.
package attractor

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// DefaultRetirementPasses is used when Config.RetirementPasses is zero.
const DefaultRetirementPasses = 3

// Config holds detector configuration.
type Config struct {
	// MaxRadius is max_attractor_radius.
	MaxRadius float64
	// MinClusterSize is min_cluster_size.
	MinClusterSize int
	// RetirementPasses is the number of consecutive empty passes after which
	// a manifold is retired.
	RetirementPasses int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Detector maintains the set of materialized manifolds for one engine.
// Recluster and Manifolds are safe for concurrent use.
type Detector struct {
	mu sync.Mutex

	maxRadius        float64
	minClusterSize   int
	retirementPasses int
	logger           *slog.Logger

	manifolds []*tracked
	nextID    int
	passes    int
}

// tracked is a materialized manifold plus its lifecycle bookkeeping.
type tracked struct {
	core.AttractorManifold
	emptyPasses int
}

// cluster accumulates one pass worth of members.
type cluster struct {
	anchor   *tracked // nil for provisional clusters
	centroid core.Vector
	members  []core.TensionSample
}

// New creates a detector.
func New(cfg Config) *Detector {
	passes := cfg.RetirementPasses
	if passes < 1 {
		passes = DefaultRetirementPasses
	}
	minSize := cfg.MinClusterSize
	if minSize < 1 {
		minSize = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{
		maxRadius:        cfg.MaxRadius,
		minClusterSize:   minSize,
		retirementPasses: passes,
		logger:           logger,
		nextID:           1,
	}
}

// Recluster runs one clustering pass over samples and returns the resulting
// manifolds ordered by id. Samples must be an immutable snapshot (for example
// history.Buffer.Snapshot), never the live buffer. Cost is O(n*m) for n
// samples and m clusters.
func (d *Detector) Recluster(samples []core.TensionSample) []core.AttractorManifold {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passes++

	// Anchors come first and are ordered by id, so a first-found tie-break
	// picks the lower id.
	clusters := make([]*cluster, 0, len(d.manifolds))
	for _, m := range d.manifolds {
		clusters = append(clusters, &cluster{anchor: m, centroid: m.Centroid.Clone()})
	}

	for _, s := range samples {
		best := -1
		bestDist := math.Inf(1)
		for i, c := range clusters {
			dist, err := vecmath.Distance(s.State, c.centroid)
			if err != nil {
				continue
			}
			if dist <= d.maxRadius && dist < bestDist {
				best, bestDist = i, dist
			}
		}

		if best < 0 {
			clusters = append(clusters, &cluster{centroid: s.State.Clone(), members: []core.TensionSample{s}})
			continue
		}
		c := clusters[best]
		c.members = append(c.members, s)
		if len(c.members) == 1 {
			// An anchor's first member of the pass replaces its old centroid.
			copy(c.centroid, s.State)
			continue
		}
		_ = vecmath.RunningMean(c.centroid, s.State, len(c.members))
	}

	kept := make([]*tracked, 0, len(clusters))
	for _, c := range clusters {
		members, radius := d.within(c)

		if c.anchor != nil {
			m := c.anchor
			if len(members) == 0 {
				m.emptyPasses++
				m.MemberCount = 0
				if m.emptyPasses >= d.retirementPasses {
					d.logger.Debug("attractor retired", "id", m.ID, "empty_passes", m.emptyPasses)
					continue
				}
				kept = append(kept, m)
				continue
			}
			m.emptyPasses = 0
			m.Centroid = c.centroid
			m.MemberCount = len(members)
			m.Radius = radius
			m.LastUpdatedStep = maxStep(members)
			kept = append(kept, m)
			continue
		}

		if len(members) < d.minClusterSize {
			continue
		}
		m := &tracked{AttractorManifold: core.AttractorManifold{
			ID:              d.nextID,
			Centroid:        c.centroid,
			MemberCount:     len(members),
			Radius:          radius,
			FirstSeenStep:   minStep(members),
			LastUpdatedStep: maxStep(members),
		}}
		d.nextID++
		kept = append(kept, m)
		d.logger.Debug("attractor materialized", "id", m.ID, "members", m.MemberCount, "radius", m.Radius)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	d.manifolds = kept
	return d.snapshotLocked()
}

// within keeps the members that lie inside the radius of the final centroid
// and returns them with their largest distance, so every manifold honours
// max_attractor_radius.
func (d *Detector) within(c *cluster) ([]core.TensionSample, float64) {
	var members []core.TensionSample
	radius := 0.0
	for _, s := range c.members {
		dist, err := vecmath.Distance(s.State, c.centroid)
		if err != nil || dist > d.maxRadius {
			continue
		}
		members = append(members, s)
		if dist > radius {
			radius = dist
		}
	}
	return members, radius
}

// Manifolds returns copies of the current manifolds ordered by id.
func (d *Detector) Manifolds() []core.AttractorManifold {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Passes returns the number of completed Recluster passes.
func (d *Detector) Passes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passes
}

func (d *Detector) snapshotLocked() []core.AttractorManifold {
	out := make([]core.AttractorManifold, len(d.manifolds))
	for i, m := range d.manifolds {
		out[i] = m.AttractorManifold.Clone()
	}
	return out
}

func minStep(samples []core.TensionSample) int {
	m := samples[0].Step
	for _, s := range samples[1:] {
		if s.Step < m {
			m = s.Step
		}
	}
	return m
}

func maxStep(samples []core.TensionSample) int {
	m := samples[0].Step
	for _, s := range samples[1:] {
		if s.Step > m {
			m = s.Step
		}
	}
	return m
}
