// SPDX-License-Identifier: MIT
package filter

import (
	"fmt"

	"spectrum/internal/config"
)

// iirCore is the shared state for the IIR kinds: designed coefficients,
// running filter state, and a cached magnitude-response mask for
// frequency-domain application.
type iirCore struct {
	gain
	cfg *config.AudioConfig

	state    *iirState
	mask     []float64
	lastSize int
}

// setCoefficients installs a fresh design, resetting filter state and
// invalidating the cached mask.
func (c *iirCore) setCoefficients(b, a []float64) {
	c.state = newIIRState(b, a)
	c.mask = nil
	c.lastSize = 0
}

// Process filters data through the IIR section and scales by the
// linear amplitude. Filter state carries over between calls.
func (c *iirCore) Process(data []float64) []float64 {
	out := make([]float64, len(data))
	c.state.process(data, out)
	if c.amp != 1 {
		for i := range out {
			out[i] *= c.amp
		}
	}
	return out
}

// EnsureMaskSize builds the magnitude-response mask for an n-point
// transform if the cached one does not fit. The response is sampled
// over the non-negative bins and reflected onto the negative half.
func (c *iirCore) EnsureMaskSize(n int) {
	if n == c.lastSize && c.mask != nil {
		return
	}
	var nfreqs int
	if n%2 == 0 {
		nfreqs = n/2 + 1
	} else {
		nfreqs = (n + 1) / 2
	}
	mags := freqz(c.state.b, c.state.a, nfreqs)

	mask := make([]float64, n)
	mid := n / 2
	copy(mask[:mid], mags[:nfreqs-1])
	if n%2 == 0 {
		for j := 0; j < nfreqs-1; j++ {
			mask[mid+j] = mags[nfreqs-2-j]
		}
	} else {
		mask[mid] = mags[nfreqs-1]
		for j := 0; j < nfreqs-1; j++ {
			mask[mid+1+j] = mags[nfreqs-2-j]
		}
	}
	c.mask = mask
	c.lastSize = n
}

// Mask returns the cached magnitude-response mask, or nil if none has
// been built yet.
func (c *iirCore) Mask() []float64 { return c.mask }

// Bandpass is a Butterworth bandpass filter.
type Bandpass struct {
	iirCore
	Lowcut  float64
	Highcut float64
	Order   int
}

// NewBandpass creates an order-n Butterworth bandpass between lowcut
// and highcut Hz. amplitude is a linear gain stored as gain_db.
func NewBandpass(cfg *config.AudioConfig, lowcut, highcut float64, order int, amplitude float64) *Bandpass {
	f := &Bandpass{Lowcut: lowcut, Highcut: highcut, Order: order}
	f.cfg = cfg
	f.setAmplitude(amplitude)
	f.rebuild()
	return f
}

func (f *Bandpass) rebuild() {
	high := f.Highcut
	if f.Lowcut == f.Highcut {
		// A zero-width band has no valid design; nudge it open.
		high += 0.1
	}
	b, a := butterworthBandpass(f.Order, f.Lowcut, high, float64(f.cfg.SampleRate))
	f.setCoefficients(b, a)
}

func (f *Bandpass) Name() string {
	return fmt.Sprintf("Bandpass %.0f-%.0f Hz", f.Lowcut, f.Highcut)
}

func (f *Bandpass) Parameters() map[string]any {
	return map[string]any{
		"type":    KindBandpass,
		"lowcut":  f.Lowcut,
		"highcut": f.Highcut,
		"order":   f.Order,
		"gain_db": f.db,
	}
}

func (f *Bandpass) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "lowcut":
			if v, ok := toFloat(value); ok {
				f.Lowcut = v
				changed = true
			}
		case "highcut":
			if v, ok := toFloat(value); ok {
				f.Highcut = v
				changed = true
			}
		case "order":
			if v, ok := toFloat(value); ok {
				f.Order = int(v)
				changed = true
			}
		case "gain_db":
			if v, ok := toFloat(value); ok {
				f.setGainDB(v)
			}
		case "amplitude":
			if v, ok := toFloat(value); ok {
				f.setAmplitude(v)
			}
		}
	}
	if changed {
		f.rebuild()
	}
}

// Lowpass is a Butterworth lowpass filter.
type Lowpass struct {
	iirCore
	Cutoff float64
	Order  int
}

// NewLowpass creates an order-n Butterworth lowpass at cutoff Hz.
func NewLowpass(cfg *config.AudioConfig, cutoff float64, order int, amplitude float64) *Lowpass {
	f := &Lowpass{Cutoff: cutoff, Order: order}
	f.cfg = cfg
	f.setAmplitude(amplitude)
	f.rebuild()
	return f
}

func (f *Lowpass) rebuild() {
	b, a := butterworthLowpass(f.Order, f.Cutoff, float64(f.cfg.SampleRate))
	f.setCoefficients(b, a)
}

func (f *Lowpass) Name() string {
	return fmt.Sprintf("Lowpass %.0f Hz", f.Cutoff)
}

func (f *Lowpass) Parameters() map[string]any {
	return map[string]any{
		"type":    KindLowpass,
		"cutoff":  f.Cutoff,
		"order":   f.Order,
		"gain_db": f.db,
	}
}

func (f *Lowpass) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "cutoff":
			if v, ok := toFloat(value); ok {
				f.Cutoff = v
				changed = true
			}
		case "order":
			if v, ok := toFloat(value); ok {
				f.Order = int(v)
				changed = true
			}
		case "gain_db":
			if v, ok := toFloat(value); ok {
				f.setGainDB(v)
			}
		case "amplitude":
			if v, ok := toFloat(value); ok {
				f.setAmplitude(v)
			}
		}
	}
	if changed {
		f.rebuild()
	}
}

// Highpass is a Butterworth highpass filter.
type Highpass struct {
	iirCore
	Cutoff float64
	Order  int
}

// NewHighpass creates an order-n Butterworth highpass at cutoff Hz.
func NewHighpass(cfg *config.AudioConfig, cutoff float64, order int, amplitude float64) *Highpass {
	f := &Highpass{Cutoff: cutoff, Order: order}
	f.cfg = cfg
	f.setAmplitude(amplitude)
	f.rebuild()
	return f
}

func (f *Highpass) rebuild() {
	b, a := butterworthHighpass(f.Order, f.Cutoff, float64(f.cfg.SampleRate))
	f.setCoefficients(b, a)
}

func (f *Highpass) Name() string {
	return fmt.Sprintf("Highpass %.0f Hz", f.Cutoff)
}

func (f *Highpass) Parameters() map[string]any {
	return map[string]any{
		"type":    KindHighpass,
		"cutoff":  f.Cutoff,
		"order":   f.Order,
		"gain_db": f.db,
	}
}

func (f *Highpass) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "cutoff":
			if v, ok := toFloat(value); ok {
				f.Cutoff = v
				changed = true
			}
		case "order":
			if v, ok := toFloat(value); ok {
				f.Order = int(v)
				changed = true
			}
		case "gain_db":
			if v, ok := toFloat(value); ok {
				f.setGainDB(v)
			}
		case "amplitude":
			if v, ok := toFloat(value); ok {
				f.setAmplitude(v)
			}
		}
	}
	if changed {
		f.rebuild()
	}
}

// Notch is a second-order notch (band-reject) biquad.
type Notch struct {
	iirCore
	Freq float64
	Q    float64
}

// NewNotch creates a notch at freq Hz with quality factor q.
func NewNotch(cfg *config.AudioConfig, freq, q, amplitude float64) *Notch {
	f := &Notch{Freq: freq, Q: q}
	f.cfg = cfg
	f.setAmplitude(amplitude)
	f.rebuild()
	return f
}

func (f *Notch) rebuild() {
	b, a := notchDesign(f.Freq, f.Q, float64(f.cfg.SampleRate))
	f.setCoefficients(b, a)
}

func (f *Notch) Name() string {
	return fmt.Sprintf("Notch %.0f Hz", f.Freq)
}

func (f *Notch) Parameters() map[string]any {
	return map[string]any{
		"type":    KindNotch,
		"freq":    f.Freq,
		"q":       f.Q,
		"gain_db": f.db,
	}
}

func (f *Notch) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "freq":
			if v, ok := toFloat(value); ok {
				f.Freq = v
				changed = true
			}
		case "q":
			if v, ok := toFloat(value); ok {
				f.Q = v
				changed = true
			}
		case "gain_db":
			if v, ok := toFloat(value); ok {
				f.setGainDB(v)
			}
		case "amplitude":
			if v, ok := toFloat(value); ok {
				f.setAmplitude(v)
			}
		}
	}
	if changed {
		f.rebuild()
	}
}
