// Package history provides the bounded tension history owned by each engine.
//
// A Buffer is a fixed-capacity FIFO ring over core.TensionSample. Push is the
// only mutation; every read returns deep copies, so a snapshot taken by a
// background re-clustering pass never aliases the live ring.
package history

import (
	"sync"

	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// Buffer is a fixed-capacity ring of tension samples. It is safe for
// concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	samples []core.TensionSample
	start   int // index of the oldest sample
	count   int
}

// New creates an empty buffer holding at most capacity samples.
// A capacity below one is treated as one.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{samples: make([]core.TensionSample, capacity)}
}

// Push appends a sample, evicting the oldest one once the buffer is full.
// The buffer stores its own copy of the sample.
func (b *Buffer) Push(sample core.TensionSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sample = sample.Clone()
	capacity := len(b.samples)
	if b.count < capacity {
		b.samples[(b.start+b.count)%capacity] = sample
		b.count++
		return
	}
	b.samples[b.start] = sample
	b.start = (b.start + 1) % capacity
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.samples)
}

// Window returns the last n samples, oldest first. If fewer than n samples
// exist, all of them are returned.
func (b *Buffer) Window(n int) []core.TensionSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.windowLocked(n)
}

// WindowStrict returns the last n samples, or a *core.EmptyHistoryError when
// fewer than n exist.
func (b *Buffer) WindowStrict(n int) ([]core.TensionSample, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > b.count {
		return nil, &core.EmptyHistoryError{Required: n, Available: b.count}
	}
	return b.windowLocked(n), nil
}

// Snapshot returns a copy of every sample, oldest first.
func (b *Buffer) Snapshot() []core.TensionSample {
	return b.Window(b.Cap())
}

// Since returns every sample with Step >= step, oldest first.
func (b *Buffer) Since(step int) []core.TensionSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := b.windowLocked(b.count)
	for i, s := range all {
		if s.Step >= step {
			return all[i:]
		}
	}
	return nil
}

// Latest returns the newest sample.
func (b *Buffer) Latest() (core.TensionSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.count == 0 {
		return core.TensionSample{}, false
	}
	idx := (b.start + b.count - 1) % len(b.samples)
	return b.samples[idx].Clone(), true
}

func (b *Buffer) windowLocked(n int) []core.TensionSample {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]core.TensionSample, n)
	capacity := len(b.samples)
	first := b.start + b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.samples[(first+i)%capacity].Clone()
	}
	return out
}
