package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// stimulusSource yields one stimulus per step and io.EOF when exhausted.
type stimulusSource interface {
	Next() (core.Vector, error)
}

// driftSource holds a random stimulus constant and redraws it every
// shiftEvery steps, so each plateau gives the engine a new fixed point to
// settle into. shiftEvery 0 never redraws.
type driftSource struct {
	dim        int
	amplitude  float64
	shiftEvery int
	rng        *rand.Rand
	current    core.Vector
	step       int
}

func newDriftSource(dim int, amplitude float64, shiftEvery int, seed uint64) *driftSource {
	return &driftSource{
		dim:        dim,
		amplitude:  amplitude,
		shiftEvery: shiftEvery,
		rng:        rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
	}
}

func (d *driftSource) Next() (core.Vector, error) {
	if d.current == nil || (d.shiftEvery > 0 && d.step%d.shiftEvery == 0) {
		d.current = core.NewVector(d.dim)
		for i := range d.current {
			d.current[i] = d.amplitude * (2*d.rng.Float64() - 1)
		}
	}
	d.step++
	return d.current.Clone(), nil
}

// jsonSource reads a stream of JSON number arrays, one stimulus each.
type jsonSource struct {
	dec  *json.Decoder
	dim  int
	read int
}

func newJSONSource(r io.Reader, dim int) *jsonSource {
	return &jsonSource{dec: json.NewDecoder(r), dim: dim}
}

func (j *jsonSource) Next() (core.Vector, error) {
	var v core.Vector
	if err := j.dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("stimulus %d: %w", j.read+1, err)
	}
	j.read++
	if len(v) != j.dim {
		return nil, &core.ConfigurationError{Field: "stimulus", Value: len(v), Reason: fmt.Sprintf("stimulus %d has wrong dimension, want %d", j.read, j.dim)}
	}
	return v, nil
}

// followReader reads a file another process keeps appending to, such as the
// output of an external stimulus encoder. At end of file it waits for the
// next write instead of returning io.EOF. It ends when ctx is done or the
// file is removed or renamed.
type followReader struct {
	ctx     context.Context
	f       *os.File
	watcher *fsnotify.Watcher
}

func newFollowReader(ctx context.Context, path string) (*followReader, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the user
	if err != nil {
		return nil, fmt.Errorf("failed to open stimulus file: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		_ = f.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &followReader{ctx: ctx, f: f, watcher: watcher}, nil
}

func (r *followReader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 || !errors.Is(err, io.EOF) {
			return n, err
		}

		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case event, ok := <-r.watcher.Events:
			if !ok || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return 0, io.EOF
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("watching stimulus file: %w", err)
		}
	}
}

func (r *followReader) Close() error {
	werr := r.watcher.Close()
	if err := r.f.Close(); err != nil {
		return err
	}
	return werr
}
