// SPDX-License-Identifier: MIT
package source

import (
	"sync"

	"spectrum/pkg/bitint"
)

// ringBuffer is a fixed-capacity sample buffer with one writer and two
// independent readers: the analysis path and the monitor (playback)
// path each keep their own cursor. Capacity is rounded up to a power
// of two so cursor arithmetic can mask instead of divide.
type ringBuffer struct {
	mu      sync.Mutex
	buf     []float64
	mask    int
	write   int
	read    int
	monitor int
}

func newRingBuffer(capacity int) *ringBuffer {
	capacity = bitint.NextPowerOfTwo(capacity)
	return &ringBuffer{
		buf:  make([]float64, capacity),
		mask: capacity - 1,
	}
}

// Write appends samples, overwriting the oldest data when full. It
// never blocks; readers that fall behind simply miss samples.
func (r *ringBuffer) Write(samples []float64) {
	r.mu.Lock()
	for _, s := range samples {
		r.buf[r.write] = s
		r.write = (r.write + 1) & r.mask
	}
	r.mu.Unlock()
}

func (r *ringBuffer) available(pos int) int {
	return (r.write - pos + len(r.buf)) & r.mask
}

func (r *ringBuffer) readFrom(pos *int, out []float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available(*pos) < len(out) {
		for i := range out {
			out[i] = 0
		}
		return false
	}
	for i := range out {
		out[i] = r.buf[*pos]
		*pos = (*pos + 1) & r.mask
	}
	return true
}

// ReadAnalysis fills out from the analysis cursor. On a short read the
// output is zeroed and false is returned; the cursor does not move.
func (r *ringBuffer) ReadAnalysis(out []float64) bool {
	return r.readFrom(&r.read, out)
}

// ReadMonitor fills out from the monitor cursor, with the same short
// read behavior as ReadAnalysis.
func (r *ringBuffer) ReadMonitor(out []float64) bool {
	return r.readFrom(&r.monitor, out)
}

// Reset discards all buffered samples and, if capacity differs from
// the current one, reallocates.
func (r *ringBuffer) Reset(capacity int) {
	capacity = bitint.NextPowerOfTwo(capacity)
	r.mu.Lock()
	if capacity != len(r.buf) {
		r.buf = make([]float64, capacity)
		r.mask = capacity - 1
	} else {
		for i := range r.buf {
			r.buf[i] = 0
		}
	}
	r.write, r.read, r.monitor = 0, 0, 0
	r.mu.Unlock()
}

// Cap returns the buffer capacity in samples.
func (r *ringBuffer) Cap() int {
	return len(r.buf)
}
