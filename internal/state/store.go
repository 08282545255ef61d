// Package state persists identity glyphs in SQLite.
//
// It is the persistence collaborator of the engine pipeline: sessions hand
// it every glyph they form through the session.GlyphSink interface. Glyphs
// are content-addressed, so saving the same glyph twice keeps one row.
package state

import (
	"errors"
	"time"

	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// ErrNotFound is returned when a glyph id is not stored.
var ErrNotFound = errors.New("glyph not found")

// GlyphRecord is a stored glyph plus its provenance.
type GlyphRecord struct {
	core.IdentityGlyph `yaml:",inline"`
	// Source is the graph node that formed the glyph, empty for a lone session.
	Source    string    `json:"source" yaml:"source"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Match is a similarity search hit.
type Match struct {
	Record   GlyphRecord `json:"record" yaml:"record"`
	Distance float64     `json:"distance" yaml:"distance"`
}

// ListOptions filters ListGlyphs. Zero values mean no filter.
type ListOptions struct {
	Source string
	Limit  int
}
