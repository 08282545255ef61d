// Package session runs the analysis pipeline around a single engine:
// update, periodic re-clustering, convergence check and glyph formation.
//
// A Session is an explicitly constructed value owned by its caller; there is
// no package-level engine. Numeric instability and insufficient history never
// escape Observe: they show up as degraded or absent fields in the snapshot.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/glyphcore/internal/attractor"
	"github.com/leapstack-labs/glyphcore/internal/convergence"
	"github.com/leapstack-labs/glyphcore/internal/engine"
	"github.com/leapstack-labs/glyphcore/internal/glyph"
	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// DefaultReclusterEvery is used when Config.ReclusterEvery is zero.
const DefaultReclusterEvery = 8

// GlyphSink receives every glyph a session forms, typically a persistence
// collaborator. Sink failures are logged and never interrupt the session.
type GlyphSink interface {
	SaveGlyph(ctx context.Context, g core.IdentityGlyph) error
}

// Config holds session configuration.
type Config struct {
	// Params are the engine options shared by every pipeline stage.
	Params core.EngineConfig
	// Seed, InitialState and Transform are passed to the engine.
	Seed         uint64
	InitialState core.Vector
	Transform    engine.Transform
	// ReclusterEvery runs the attractor detector every k committed steps.
	ReclusterEvery int
	// RetirementPasses is the attractor hysteresis, see attractor.Config.
	RetirementPasses int
	// GlyphPhase keeps coefficient phases in formed glyphs.
	GlyphPhase bool
	// GlyphSignal selects the glyph time series.
	GlyphSignal glyph.Signal
	// Sink is optional.
	Sink GlyphSink
	// Clock stamps samples. Defaults to time.Now.
	Clock func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Session owns one engine and its analysis pipeline.
type Session struct {
	engine         *engine.Engine
	detector       *attractor.Detector
	monitor        *convergence.Monitor
	encoder        *glyph.Encoder
	sink           GlyphSink
	reclusterEvery int
	logger         *slog.Logger

	mu           sync.Mutex
	converged    bool
	episodeStart int
	status       core.ConvergenceStatus
	glyphs       []core.IdentityGlyph
}

// New validates the configuration and builds the pipeline.
func New(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	eng, err := engine.New(engine.Config{
		Params:       cfg.Params,
		Transform:    cfg.Transform,
		InitialState: cfg.InitialState,
		Seed:         cfg.Seed,
		Clock:        cfg.Clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	enc, err := glyph.New(glyph.Config{
		Components: cfg.Params.GlyphComponents,
		Phase:      cfg.GlyphPhase,
		Signal:     cfg.GlyphSignal,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	every := cfg.ReclusterEvery
	if every < 0 {
		return nil, &core.ConfigurationError{Field: "recluster_every", Value: every, Reason: "must be >= 1"}
	}
	if every == 0 {
		every = DefaultReclusterEvery
	}

	return &Session{
		engine: eng,
		detector: attractor.New(attractor.Config{
			MaxRadius:        cfg.Params.MaxAttractorRadius,
			MinClusterSize:   cfg.Params.MinClusterSize,
			RetirementPasses: cfg.RetirementPasses,
			Logger:           logger,
		}),
		monitor:        convergence.New(cfg.Params),
		encoder:        enc,
		sink:           cfg.Sink,
		reclusterEvery: every,
		logger:         logger,
		episodeStart:   1,
	}, nil
}

// Observe feeds one stimulus through the engine and the analysis pipeline.
// It returns an error only for a stimulus of the wrong dimension.
func (s *Session) Observe(ctx context.Context, stimulus core.Vector) (core.ConsciousnessSnapshot, error) {
	sample, err := s.engine.Update(stimulus)
	if err != nil {
		var numErr *core.NumericInstabilityError
		if errors.As(err, &numErr) {
			return s.Degraded(), nil
		}
		return core.ConsciousnessSnapshot{}, err
	}
	return s.Absorb(ctx, sample), nil
}

// Absorb runs the analysis pipeline for a sample the engine has already
// committed. It is used directly by callers that drive the engine in two
// phases, such as a propagation graph.
func (s *Session) Absorb(ctx context.Context, sample core.TensionSample) core.ConsciousnessSnapshot {
	if sample.Step%s.reclusterEvery == 0 {
		s.Recluster()
	}

	status := s.check(sample.Step)

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := core.ConsciousnessSnapshot{
		Step:      sample.Step,
		Tension:   sample.Tension,
		StateNorm: vecmath.Norm(sample.State),
	}

	if status.IsConverged && !s.converged {
		// Materialize whatever the episode settled into before naming it.
		s.Recluster()
		status = s.check(sample.Step)
		if g, ok := s.formGlyph(ctx, status); ok {
			formed := g.Clone()
			snap.Glyph = &formed
		}
		s.episodeStart = sample.Step + 1
	}
	if !status.IsConverged && s.converged {
		s.logger.Debug("trajectory left convergence", "step", sample.Step, "window_mean_tension", status.WindowMeanTension)
	}

	s.converged = status.IsConverged
	s.status = status
	snap.IsConverged = status.IsConverged
	snap.MatchedAttractorID = status.MatchedAttractorID
	return snap
}

// Degraded returns the snapshot reported after a rejected update: the engine
// kept its last known-good state, so nothing moved and nothing converged.
func (s *Session) Degraded() core.ConsciousnessSnapshot {
	return core.ConsciousnessSnapshot{
		Step:      s.engine.Step(),
		StateNorm: vecmath.Norm(s.engine.State()),
		Degraded:  true,
	}
}

// check returns the convergence status, treating insufficient history as
// "not converged".
func (s *Session) check(step int) core.ConvergenceStatus {
	status, err := s.monitor.Check(s.engine.History(), s.detector.Manifolds())
	if err != nil {
		var histErr *core.EmptyHistoryError
		if !errors.As(err, &histErr) {
			s.logger.Warn("convergence check failed", "step", step, "error", err)
		}
		return core.ConvergenceStatus{Step: step}
	}
	return status
}

// formGlyph compresses the current episode. Callers hold s.mu.
func (s *Session) formGlyph(ctx context.Context, status core.ConvergenceStatus) (core.IdentityGlyph, bool) {
	segment := s.engine.History().Since(s.episodeStart)
	g, err := s.encoder.Form(segment, status.MatchedAttractorID)
	if err != nil {
		s.logger.Warn("glyph formation failed", "step", status.Step, "error", err)
		return core.IdentityGlyph{}, false
	}
	s.glyphs = append(s.glyphs, g)

	s.logger.Info("convergence episode compressed",
		"glyph_id", g.ID,
		"first_step", g.StepRange.First,
		"last_step", g.StepRange.Last,
		"attractor", attractorAttr(g.SourceAttractorID))

	if s.sink != nil {
		if err := s.sink.SaveGlyph(ctx, g); err != nil {
			s.logger.Warn("glyph sink failed", "glyph_id", g.ID, "error", err)
		}
	}
	return g, true
}

// Recluster runs one attractor pass over a snapshot of the history.
func (s *Session) Recluster() []core.AttractorManifold {
	return s.detector.Recluster(s.engine.History().Snapshot())
}

// ReclusterLoop re-clusters on a timer until ctx is done, for callers that
// prefer a wall-clock cadence over ReclusterEvery. It is safe to run
// alongside Observe. A non-positive interval yields a *core.ConfigurationError.
func (s *Session) ReclusterLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return &core.ConfigurationError{Field: "recluster_interval", Value: interval, Reason: "must be > 0"}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Recluster()
		}
	}
}

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Attractors returns the current attractor manifolds.
func (s *Session) Attractors() []core.AttractorManifold {
	return s.detector.Manifolds()
}

// Status returns the most recent convergence status.
func (s *Session) Status() core.ConvergenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Glyphs returns every glyph formed so far, oldest first.
func (s *Session) Glyphs() []core.IdentityGlyph {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.IdentityGlyph, len(s.glyphs))
	for i, g := range s.glyphs {
		out[i] = g.Clone()
	}
	return out
}

func attractorAttr(id *int) any {
	if id == nil {
		return "none"
	}
	return *id
}
