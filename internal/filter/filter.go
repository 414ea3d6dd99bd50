// SPDX-License-Identifier: MIT

// Package filter implements the engine's filter bank: IIR filters for
// time-domain processing and spectral mask filters for frequency-domain
// shaping. Every filter exposes both forms so the noise generator can
// apply a whole chain in a single FFT round trip.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"spectrum/internal/config"
)

// ErrUnknownType is returned by New for a kind outside the closed set.
var ErrUnknownType = errors.New("unknown filter type")

// Filter kind identifiers, used as the "type" value in serialized
// parameter maps.
const (
	KindBandpass  = "bandpass"
	KindLowpass   = "lowpass"
	KindHighpass  = "highpass"
	KindNotch     = "notch"
	KindGaussian  = "gaussian"
	KindParabolic = "parabolic"
	KindPlateau   = "plateau"
)

// Filter is one element of the bank. Process applies the filter in the
// time domain; EnsureMaskSize/Mask expose the frequency-domain form for
// callers that batch a chain into one FFT.
type Filter interface {
	Process(data []float64) []float64
	Name() string
	Parameters() map[string]any
	Update(params map[string]any)
	EnsureMaskSize(n int)
	Mask() []float64
	Amplitude() float64
}

// gain holds the shared dB-domain gain handling. The linear amplitude
// is cached so realtime paths never call Pow.
type gain struct {
	db  float64
	amp float64
}

// silenceDB is the floor below which gain means "off".
const silenceDB = -120.0

func (g *gain) setGainDB(db float64) {
	g.db = db
	if db <= silenceDB {
		g.amp = 0
		return
	}
	g.amp = math.Pow(10, db/20)
}

// setAmplitude accepts a linear amplitude and stores it as gain_db,
// keeping dB the single canonical form.
func (g *gain) setAmplitude(a float64) {
	if a <= 0 {
		g.setGainDB(silenceDB)
		return
	}
	g.setGainDB(20 * math.Log10(a))
}

func (g *gain) GainDB() float64    { return g.db }
func (g *gain) Amplitude() float64 { return g.amp }

// applyGainParams lets an explicit gain_db in a parameter map override
// the amplitude the constructor derived it from.
func (g *gain) applyGainParams(params map[string]any) {
	if v, ok := toFloat(params["gain_db"]); ok {
		g.setGainDB(v)
	}
}

// toFloat converts the numeric types that show up in deserialized
// parameter maps.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// fftFreqs returns the signed FFT bin frequencies in Hz for an n-point
// transform: ascending non-negative bins first, then the negative half.
func fftFreqs(n int, sampleRate float64) []float64 {
	freqs := make([]float64, n)
	split := (n + 1) / 2
	for k := 0; k < split; k++ {
		freqs[k] = float64(k) * sampleRate / float64(n)
	}
	for k := split; k < n; k++ {
		freqs[k] = float64(k-n) * sampleRate / float64(n)
	}
	return freqs
}

// mirrorMask reflects the non-negative-frequency half of a mask onto
// the negative half so the mask is symmetric and filtered signals stay
// real after the inverse transform.
func mirrorMask(mask []float64) {
	n := len(mask)
	mid := n / 2
	if n%2 == 0 {
		for j := 0; mid+j < n; j++ {
			mask[mid+j] = mask[mid-1-j]
		}
		return
	}
	for j := 0; mid+1+j < n; j++ {
		mask[mid+1+j] = mask[mid-1-j]
	}
}

// New builds a filter from its serialized parameter map. The map must
// carry a "type" key naming one of the seven kinds; missing numeric
// parameters fall back to the kind's defaults.
func New(cfg *config.AudioConfig, params map[string]any) (Filter, error) {
	kind, _ := params["type"].(string)

	get := func(key string, fallback float64) float64 {
		if v, ok := toFloat(params[key]); ok {
			return v
		}
		return fallback
	}

	amp := get("amplitude", 1.0)

	switch kind {
	case KindBandpass:
		f := NewBandpass(cfg, get("lowcut", 100), get("highcut", 1000), int(get("order", 4)), amp)
		f.applyGainParams(params)
		return f, nil
	case KindLowpass:
		f := NewLowpass(cfg, get("cutoff", 1000), int(get("order", 4)), amp)
		f.applyGainParams(params)
		return f, nil
	case KindHighpass:
		f := NewHighpass(cfg, get("cutoff", 100), int(get("order", 4)), amp)
		f.applyGainParams(params)
		return f, nil
	case KindNotch:
		f := NewNotch(cfg, get("freq", 50), get("q", 30), amp)
		f.applyGainParams(params)
		return f, nil
	case KindGaussian:
		f := NewGaussian(cfg, get("center_freq", 1000), get("width", 100), amp,
			get("skew", 0), get("kurtosis", 1))
		f.applyGainParams(params)
		return f, nil
	case KindParabolic:
		f := NewParabolic(cfg, get("center_freq", 1000), get("width", 100), amp,
			get("skew", 0), get("flatness", 1))
		f.applyGainParams(params)
		return f, nil
	case KindPlateau:
		f := NewPlateau(cfg, get("center_freq", 1000), get("width", 100),
			get("flat_width", 50), amp)
		f.applyGainParams(params)
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
}

// Chain is the shared, insertion-ordered filter container. One instance
// is aliased by the source, the noise generator and the processor, so
// every mutation happens under its lock.
type Chain struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a filter to the end of the chain.
func (c *Chain) Add(f Filter) {
	c.mu.Lock()
	c.filters = append(c.filters, f)
	c.mu.Unlock()
}

// Remove deletes the filter at index. Out-of-range indices are ignored.
func (c *Chain) Remove(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.filters) {
		return
	}
	c.filters = append(c.filters[:index], c.filters[index+1:]...)
}

// Update forwards a parameter map to the filter at index, dropping any
// "type" key so a filter's kind is fixed at creation. Out-of-range
// indices are ignored.
func (c *Chain) Update(index int, params map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.filters) {
		return
	}
	clean := make(map[string]any, len(params))
	for k, v := range params {
		if k == "type" {
			continue
		}
		clean[k] = v
	}
	c.filters[index].Update(clean)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Apply runs the chain as a time-domain cascade over a copy of data.
func (c *Chain) Apply(data []float64) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, len(data))
	copy(out, data)
	for _, f := range c.filters {
		out = f.Process(out)
	}
	return out
}

// ApplyMasks multiplies freq in place by every filter's mask and
// amplitude in order. The whole pass runs under the write lock: masks
// are rebuilt in place when the size changed, and parameter edits must
// not interleave with an in-flight application.
func (c *Chain) ApplyMasks(freq []complex128) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(freq)
	for _, f := range c.filters {
		f.EnsureMaskSize(n)
		mask := f.Mask()
		amp := f.Amplitude()
		for i := range freq {
			freq[i] *= complex(mask[i]*amp, 0)
		}
	}
}

// Snapshot returns the current filters in order. The slice is a copy;
// the filters themselves are shared.
func (c *Chain) Snapshot() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Filter, len(c.filters))
	copy(out, c.filters)
	return out
}

// Parameters returns the serialized form of every filter in order.
func (c *Chain) Parameters() []map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]map[string]any, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.Parameters()
	}
	return out
}

// Normalize scales signal so its peak magnitude equals target. An
// all-zero signal is returned unchanged.
func Normalize(signal []float64, target float64) []float64 {
	peak := 0.0
	for _, v := range signal {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	out := make([]float64, len(signal))
	if peak == 0 {
		copy(out, signal)
		return out
	}
	scale := target / peak
	for i, v := range signal {
		out[i] = v * scale
	}
	return out
}
