// Package engine provides the recursive state engine.
//
// An Engine owns one state vector and applies A_{n+1} = f(A_n, s_n) + e_n,
// where f is a contraction (see Transform) and e_n is bounded, zero-mean noise
// from a per-engine seeded generator. Every committed update appends a
// core.TensionSample, with tension ||A_{n+1} - A_n||^2, to the engine's own
// history buffer.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/leapstack-labs/glyphcore/internal/history"
	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// seedStream is the PCG stream selector mixed with every engine seed.
const seedStream = 0x9e3779b97f4a7c15

// Config holds engine configuration.
type Config struct {
	// Params are the validated engine options.
	Params core.EngineConfig
	// Transform is the recursive map. Defaults to ScaledContraction with
	// Params.ContractionRatio.
	Transform Transform
	// InitialState defaults to the zero vector.
	InitialState core.Vector
	// Seed makes the noise sequence reproducible per engine.
	Seed uint64
	// Clock stamps samples. Defaults to time.Now.
	Clock func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine is a recursive state engine. Its methods are safe for concurrent
// use, but updates are meant to be driven by a single caller.
type Engine struct {
	mu sync.RWMutex

	params     core.EngineConfig
	transform  Transform
	state      core.Vector
	step       int
	rng        rand.PCG
	noiseBound float64
	history    *history.Buffer
	recoveries int

	clock  func() time.Time
	logger *slog.Logger
}

// Proposal is a computed but uncommitted update. It is produced by Propose
// and applied by Commit.
type Proposal struct {
	base    int
	state   core.Vector
	tension float64
	rng     rand.PCG
}

// Step returns the step the proposal will have once committed.
func (p Proposal) Step() int { return p.base + 1 }

// Tension returns the tension the proposal will record.
func (p Proposal) Tension() float64 { return p.tension }

// State returns a copy of the proposed next state.
func (p Proposal) State() core.Vector { return p.state.Clone() }

// New validates the configuration and creates an engine.
// Construction fails with a *core.ConfigurationError when the options are out
// of range, when the transform's Lipschitz bound exceeds contraction_ratio, or
// when the initial state has the wrong dimension.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	transform := cfg.Transform
	if transform == nil {
		transform = ScaledContraction{Ratio: cfg.Params.ContractionRatio}
	}
	if l := transform.Lipschitz(); math.IsNaN(l) || l > cfg.Params.ContractionRatio {
		return nil, &core.ConfigurationError{
			Field:  "transform",
			Value:  l,
			Reason: fmt.Sprintf("Lipschitz bound exceeds contraction_ratio %v", cfg.Params.ContractionRatio),
		}
	}
	if d := transform.Dim(); d != 0 && d != cfg.Params.Dimension {
		return nil, &core.ConfigurationError{Field: "transform", Value: d, Reason: "transform dimension does not match engine dimension"}
	}

	state := core.NewVector(cfg.Params.Dimension)
	if cfg.InitialState != nil {
		if err := cfg.Params.CheckDimension("initial_state", cfg.InitialState); err != nil {
			return nil, err
		}
		if idx, ok := cfg.InitialState.Finite(); !ok {
			return nil, &core.ConfigurationError{Field: "initial_state", Value: cfg.InitialState[idx], Reason: "must be finite"}
		}
		state = cfg.InitialState.Clone()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		params:    cfg.Params,
		transform: transform,
		state:     state,
		rng:       *rand.NewPCG(cfg.Seed, cfg.Seed^seedStream),
		// Uniform noise on [-b, b] has variance b^2/3.
		noiseBound: math.Sqrt(3 * cfg.Params.NoiseVariance),
		history:    history.New(cfg.Params.HistorySize),
		clock:      clock,
		logger:     logger,
	}

	logger.Debug("engine initialized",
		"dimension", cfg.Params.Dimension,
		"contraction_ratio", cfg.Params.ContractionRatio,
		"lipschitz", transform.Lipschitz(),
		"seed", cfg.Seed)

	return e, nil
}

// Propose computes the next update without changing the engine.
//
// It fails with a *core.ConfigurationError when the stimulus has the wrong
// dimension and with a *core.NumericInstabilityError when the stimulus or the
// result contains non-finite values or the tension overflows.
func (e *Engine) Propose(stimulus core.Vector) (Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	next := e.step + 1
	if err := e.params.CheckDimension("stimulus", stimulus); err != nil {
		return Proposal{}, err
	}
	if err := vecmath.CheckFinite(next, stimulus, "non-finite stimulus"); err != nil {
		return Proposal{}, err
	}

	state, err := e.transform.Apply(e.state, stimulus)
	if err != nil {
		return Proposal{}, fmt.Errorf("apply transform: %w", err)
	}

	rng := e.rng
	if e.noiseBound > 0 {
		r := rand.New(&rng)
		for i := range state {
			state[i] += e.noiseBound * (2*r.Float64() - 1)
		}
	}

	if err := vecmath.CheckFinite(next, state, "non-finite state"); err != nil {
		return Proposal{}, err
	}
	tension, err := vecmath.SquaredDistance(state, e.state)
	if err != nil {
		return Proposal{}, err
	}
	if math.IsInf(tension, 0) || math.IsNaN(tension) {
		return Proposal{}, &core.NumericInstabilityError{Step: next, Index: -1, Value: tension, Reason: "tension overflow"}
	}

	return Proposal{base: e.step, state: state, tension: tension, rng: rng}, nil
}

// Commit applies a proposal, appends its sample to the history and returns it.
// A proposal computed before another commit is rejected as stale.
func (e *Engine) Commit(p Proposal) (core.TensionSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.state == nil {
		return core.TensionSample{}, errors.New("empty proposal")
	}
	if p.base != e.step {
		return core.TensionSample{}, fmt.Errorf("stale proposal: computed at step %d, engine at step %d", p.base, e.step)
	}

	e.state = p.state.Clone()
	e.rng = p.rng
	e.step++

	sample := core.TensionSample{
		Step:      e.step,
		Tension:   p.tension,
		State:     e.state.Clone(),
		Timestamp: e.clock(),
	}
	e.history.Push(sample)
	return sample, nil
}

// Update proposes and commits in one call.
//
// On a *core.NumericInstabilityError the engine keeps its last known-good
// state, records the recovery and returns the error; the caller may keep
// calling Update.
func (e *Engine) Update(stimulus core.Vector) (core.TensionSample, error) {
	p, err := e.Propose(stimulus)
	if err != nil {
		e.Recover(err)
		return core.TensionSample{}, err
	}
	return e.Commit(p)
}

// Recover records a rejected update. Non-numeric errors are ignored.
func (e *Engine) Recover(err error) {
	var numErr *core.NumericInstabilityError
	if !errors.As(err, &numErr) {
		return
	}

	e.mu.Lock()
	e.recoveries++
	recoveries := e.recoveries
	e.mu.Unlock()

	e.logger.Warn("numeric instability, keeping last known-good state",
		"step", numErr.Step,
		"index", numErr.Index,
		"value", numErr.Value,
		"reason", numErr.Reason,
		"recoveries", recoveries)
}

// State returns a copy of the current (last known-good) state.
func (e *Engine) State() core.Vector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Step returns the number of committed updates.
func (e *Engine) Step() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.step
}

// Recoveries returns how many updates were rejected as numerically unstable.
func (e *Engine) Recoveries() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.recoveries
}

// History returns the engine's tension history.
func (e *Engine) History() *history.Buffer {
	return e.history
}

// Params returns the engine options.
func (e *Engine) Params() core.EngineConfig {
	return e.params
}

// Transform returns the recursive map in use.
func (e *Engine) Transform() Transform {
	return e.transform
}
