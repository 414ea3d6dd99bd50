// SPDX-License-Identifier: MIT

// Package source provides the engine's signal sources: synthesized
// noise and live device input, both exposing the same read surface to
// the analyzer.
package source

import "spectrum/internal/filter"

// Source is a stream of audio chunks feeding the analyzer.
//
// Read returns the next display-rate chunk; ReadAnalysis returns an
// FFT-sized chunk with the source's filter chain already applied.
// Neither blocks for long: a source with nothing ready hands back
// zeros. Live reports whether the samples come from a capture device,
// which is what decides if trigger and decay processing make sense.
type Source interface {
	Read() []float64
	ReadAnalysis() []float64
	Filters() *filter.Chain
	Running() bool
	Live() bool
	Close() error
}
