// Package glyph compresses a stabilization episode into an identity glyph:
// the first glyph_components DFT coefficients of the episode's signal.
//
// Coefficients are normalised by the segment length, so each bin moves by at
// most max|Δx| when every input value moves by at most |Δx|. Similar episodes
// therefore yield glyphs at a bounded spectral distance.
package glyph

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/google/uuid"
	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Signal selects the time series a glyph is computed from.
type Signal string

const (
	// SignalTension uses the tension of each sample.
	SignalTension Signal = "tension"
	// SignalStateNorm uses the Euclidean norm of each sample's state.
	SignalStateNorm Signal = "state_norm"
)

// namespace scopes glyph ids derived with uuid.NewSHA1.
var namespace = uuid.MustParse("5b0e3f7c-9a41-4d2e-8c6f-1e2d3c4b5a69")

// Config holds encoder configuration.
type Config struct {
	// Components is glyph_components.
	Components int
	// Phase keeps the phase of every coefficient; otherwise glyphs are magnitude-only.
	Phase bool
	// Signal defaults to SignalTension.
	Signal Signal
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Encoder forms identity glyphs. It holds no mutable state and is safe for
// concurrent use.
type Encoder struct {
	components int
	phase      bool
	signal     Signal
	logger     *slog.Logger
}

// New creates an encoder.
func New(cfg Config) (*Encoder, error) {
	if cfg.Components < 1 {
		return nil, &core.ConfigurationError{Field: "glyph_components", Value: cfg.Components, Reason: "must be >= 1"}
	}
	signal := cfg.Signal
	switch signal {
	case "":
		signal = SignalTension
	case SignalTension, SignalStateNorm:
	default:
		return nil, &core.ConfigurationError{Field: "glyph_signal", Value: cfg.Signal, Reason: "must be tension or state_norm"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Encoder{components: cfg.Components, phase: cfg.Phase, signal: signal, logger: logger}, nil
}

// Form compresses segment into a glyph. The result depends only on the
// segment and sourceAttractorID, including its id. An empty segment yields a
// *core.EmptyHistoryError.
func (e *Encoder) Form(segment []core.TensionSample, sourceAttractorID *int) (core.IdentityGlyph, error) {
	if len(segment) == 0 {
		return core.IdentityGlyph{}, &core.EmptyHistoryError{Required: 1, Available: 0}
	}

	series := e.series(segment)
	coeffs, err := e.spectrum(series)
	if err != nil {
		return core.IdentityGlyph{}, err
	}

	g := core.IdentityGlyph{
		StepRange:            core.StepRange{First: segment[0].Step, Last: segment[len(segment)-1].Step},
		SpectralCoefficients: coeffs,
		HasPhase:             e.phase,
		FormationStep:        segment[len(segment)-1].Step,
	}
	if sourceAttractorID != nil {
		id := *sourceAttractorID
		g.SourceAttractorID = &id
	}
	g.ID = deriveID(g)

	e.logger.Debug("glyph formed", "id", g.ID, "first_step", g.StepRange.First, "last_step", g.StepRange.Last, "samples", len(segment))
	return g, nil
}

func (e *Encoder) series(segment []core.TensionSample) []float64 {
	if e.signal == SignalStateNorm {
		out := make([]float64, len(segment))
		for i, s := range segment {
			out[i] = vecmath.Norm(s.State)
		}
		return out
	}
	return core.Tensions(segment)
}

// spectrum returns the first Components coefficients of the DFT of series,
// zero-padding so that short series still produce enough bins.
func (e *Encoder) spectrum(series []float64) ([]core.SpectralCoefficient, error) {
	n := len(series)
	size := max(n, 2*(e.components-1), 1)
	padded := make([]float64, size)
	copy(padded, series)
	for i, x := range padded {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &core.NumericInstabilityError{Step: -1, Index: i, Value: x, Reason: "non-finite glyph signal"}
		}
	}

	bins := fourier.NewFFT(size).Coefficients(nil, padded)
	if len(bins) < e.components {
		return nil, fmt.Errorf("spectrum has %d bins, need %d", len(bins), e.components)
	}

	scale := complex(1/float64(n), 0)
	out := make([]core.SpectralCoefficient, e.components)
	for i := range out {
		c := bins[i] * scale
		out[i].Magnitude = cmplx.Abs(c)
		if e.phase {
			out[i].Phase = cmplx.Phase(c)
		}
	}
	return out, nil
}

func deriveID(g core.IdentityGlyph) string {
	buf := make([]byte, 0, 24+16*len(g.SpectralCoefficients))
	buf = binary.BigEndian.AppendUint64(buf, uint64(g.StepRange.First))
	buf = binary.BigEndian.AppendUint64(buf, uint64(g.StepRange.Last))
	source := int64(-1)
	if g.SourceAttractorID != nil {
		source = int64(*g.SourceAttractorID)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(source))
	for _, c := range g.SpectralCoefficients {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Magnitude))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Phase))
	}
	return uuid.NewSHA1(namespace, buf).String()
}

// Distance returns the spectral distance between two glyphs: the L2 distance
// between their complex coefficients when both carry phase, and between their
// magnitudes otherwise.
func Distance(a, b core.IdentityGlyph) (float64, error) {
	if len(a.SpectralCoefficients) != len(b.SpectralCoefficients) {
		return 0, fmt.Errorf("glyph sizes differ: %d vs %d", len(a.SpectralCoefficients), len(b.SpectralCoefficients))
	}

	withPhase := a.HasPhase && b.HasPhase
	sum := 0.0
	for i := range a.SpectralCoefficients {
		ca, cb := a.SpectralCoefficients[i], b.SpectralCoefficients[i]
		if withPhase {
			d := cmplx.Rect(ca.Magnitude, ca.Phase) - cmplx.Rect(cb.Magnitude, cb.Phase)
			sum += real(d)*real(d) + imag(d)*imag(d)
			continue
		}
		d := ca.Magnitude - cb.Magnitude
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
