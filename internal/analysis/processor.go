// SPDX-License-Identifier: MIT

// Package analysis turns source chunks into display-ready spectra:
// windowed FFT magnitudes in dB, with optional trigger capture and
// peak decay for live input.
package analysis

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"spectrum/internal/config"
	"spectrum/internal/filter"
	"spectrum/internal/log"
	"spectrum/internal/source"
)

// Trigger edge modes.
const (
	TriggerRising  = "rising"
	TriggerFalling = "falling"
	TriggerBoth    = "both"
)

// Trigger reset modes.
const (
	ResetHoldTime    = "hold_time"
	ResetNextTrigger = "next_trigger"
	ResetManual      = "manual"
)

// nonFiniteDB replaces NaN or infinite magnitudes in dB conversion.
const nonFiniteDB = -120.0

// Processor computes the spectrum of whatever its source produces.
// All state lives behind one lock; Process is called from the
// foreground loop only, setters from the control surface.
type Processor struct {
	mu    sync.Mutex
	cfg   *config.AudioConfig
	src   source.Source
	chain *filter.Chain

	win        []float64
	winRMSInv  float64
	winSize    int
	winName    string
	fft        *fourier.CmplxFFT
	timeBuf    []complex128
	freqBuf    []complex128

	triggerEnabled bool
	triggerMode    string
	resetMode      string
	holdTime       float64
	triggered      bool
	holdCounter    int
	peak           []float64
	prevMaxDB      float64

	decayEnabled bool
	decayRate    float64
	prev         []float64
}

// NewProcessor creates a processor with no source attached.
func NewProcessor(cfg *config.AudioConfig) *Processor {
	return &Processor{
		cfg:         cfg,
		triggerMode: TriggerRising,
		resetMode:   ResetHoldTime,
		holdTime:    1.0,
		decayRate:   0.5,
		prevMaxDB:   cfg.MinDB,
	}
}

// SetSource swaps the analyzed source, closing the previous one. The
// new source's filter chain becomes the processor's chain so the
// control surface edits the same filters the source applies.
func (p *Processor) SetSource(src source.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src != nil {
		if err := p.src.Close(); err != nil {
			log.Warnf("closing previous source: %v", err)
		}
	}
	p.src = src
	p.chain = nil
	if src != nil {
		p.chain = src.Filters()
	}
	p.resetStateLocked()
}

// Source returns the attached source, nil when none is set.
func (p *Processor) Source() source.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Filters returns the chain shared with the current source.
func (p *Processor) Filters() *filter.Chain {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain
}

func (p *Processor) resetStateLocked() {
	p.triggered = false
	p.holdCounter = 0
	p.peak = nil
	p.prev = nil
	p.prevMaxDB = p.cfg.MinDB
}

// ensureWindow rebuilds the analysis window when the FFT size or
// window type changed. The window's inverse RMS is cached so the
// amplitude correction is one multiply per sample.
func (p *Processor) ensureWindow(n int) {
	name := p.cfg.WindowType()
	if n == p.winSize && name == p.winName && p.win != nil {
		return
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	switch name {
	case "hamming":
		window.Hamming(w)
	case "blackman":
		window.Blackman(w)
	case "flattop":
		window.FlatTop(w)
	case "rectangular":
		// all ones
	default: // hanning
		window.Hann(w)
	}

	sumsq := 0.0
	for _, v := range w {
		sumsq += v * v
	}
	p.winRMSInv = 1.0
	if sumsq > 0 {
		p.winRMSInv = 1 / math.Sqrt(sumsq/float64(n))
	}
	p.win = w
	p.winSize = n
	p.winName = name

	if p.fft == nil || p.fft.Len() != n {
		p.fft = fourier.NewCmplxFFT(n)
		p.timeBuf = make([]complex128, n)
		p.freqBuf = make([]complex128, n)
	}
}

// Process reads one analysis chunk and returns the bin frequencies and
// the spectrum in dB, clipped to [MinDB, MaxDB]. A missing, stopped or
// empty source yields (nil, nil).
func (p *Processor) Process() (freqs, specDB []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil || !p.src.Running() {
		return nil, nil
	}
	data := p.src.ReadAnalysis()
	if len(data) == 0 {
		return nil, nil
	}

	n := p.cfg.FFTSize()
	p.ensureWindow(n)

	// Truncate or zero-pad the chunk to the FFT size, then window with
	// amplitude correction.
	for i := 0; i < n; i++ {
		v := 0.0
		if i < len(data) {
			v = data[i]
		}
		p.timeBuf[i] = complex(v*p.win[i]*p.winRMSInv, 0)
	}
	p.fft.Coefficients(p.freqBuf, p.timeBuf)

	nbins := n/2 + 1
	if n%2 != 0 {
		nbins = (n + 1) / 2
	}
	sr := float64(p.cfg.SampleRate)
	freqs = make([]float64, nbins)
	specDB = make([]float64, nbins)
	invN := 1 / float64(n)
	for k := 0; k < nbins; k++ {
		freqs[k] = float64(k) * sr * invN
		m := cmplx.Abs(p.freqBuf[k]) * invN
		if k > 0 {
			// Fold the negative-frequency half into the positive bins.
			m *= 2
		}
		if m < 1e-10 {
			m = 1e-10
		}
		db := 20 * math.Log10(m)
		if math.IsNaN(db) || math.IsInf(db, 0) {
			db = nonFiniteDB
		}
		specDB[k] = db
	}
	clip(specDB, p.cfg.MinDB, p.cfg.MaxDB)

	if p.src.Live() {
		specDB = p.applyTriggerLocked(specDB)
		specDB = p.applyDecayLocked(specDB)
	}
	return freqs, specDB
}

func clip(x []float64, lo, hi float64) {
	for i, v := range x {
		if v < lo {
			x[i] = lo
		} else if v > hi {
			x[i] = hi
		}
	}
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

// applyTriggerLocked runs edge detection against the trigger level and
// holds the peak spectrum while triggered.
func (p *Processor) applyTriggerLocked(spec []float64) []float64 {
	if !p.triggerEnabled {
		p.prevMaxDB = maxOf(spec)
		return spec
	}

	currentMax := maxOf(spec)
	level := p.cfg.TriggerLevel

	rising := p.prevMaxDB < level && currentMax >= level
	falling := p.prevMaxDB >= level && currentMax < level
	edge := false
	switch p.triggerMode {
	case TriggerRising:
		edge = rising
	case TriggerFalling:
		edge = falling
	case TriggerBoth:
		edge = rising || falling
	}
	p.prevMaxDB = currentMax

	if edge {
		switch p.resetMode {
		case ResetHoldTime:
			p.triggered = true
			frame := len(spec)
			if n := p.cfg.FFTSize(); n > 0 {
				frame = n
			}
			p.holdCounter = int(p.holdTime * float64(p.cfg.SampleRate) / float64(frame))
			p.peak = nil
		case ResetNextTrigger:
			// Each edge starts a fresh capture.
			p.triggered = true
			p.peak = nil
		case ResetManual:
			p.triggered = true
		}
	}

	if !p.triggered {
		return spec
	}

	if p.peak == nil || len(p.peak) != len(spec) {
		p.peak = make([]float64, len(spec))
		copy(p.peak, spec)
	} else {
		for i, v := range spec {
			if v > p.peak[i] {
				p.peak[i] = v
			}
		}
	}

	if p.resetMode == ResetHoldTime {
		p.holdCounter--
		if p.holdCounter <= 0 {
			p.triggered = false
			p.peak = nil
		}
	}

	if p.peak != nil {
		out := make([]float64, len(p.peak))
		copy(out, p.peak)
		return out
	}
	return spec
}

// applyDecayLocked lets bins fall gradually instead of snapping to the
// current frame. Held trigger output is left alone.
func (p *Processor) applyDecayLocked(spec []float64) []float64 {
	if !p.decayEnabled || (p.triggerEnabled && p.triggered) {
		p.prev = nil
		return spec
	}

	if p.prev != nil && len(p.prev) == len(spec) {
		step := p.decayRate * (p.cfg.MaxDB - p.cfg.MinDB) / 30
		for i, v := range spec {
			if prev := p.prev[i]; prev > v {
				decayed := prev - step
				if decayed < v {
					decayed = v
				}
				spec[i] = decayed
			}
		}
	}
	if p.prev == nil || len(p.prev) != len(spec) {
		p.prev = make([]float64, len(spec))
	}
	copy(p.prev, spec)
	return spec
}

// SetTriggerEnabled toggles trigger capture.
func (p *Processor) SetTriggerEnabled(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggerEnabled = on
	if !on {
		p.triggered = false
		p.peak = nil
	}
}

// SetTriggerMode selects the edge mode: rising, falling or both.
func (p *Processor) SetTriggerMode(mode string) {
	p.mu.Lock()
	p.triggerMode = mode
	p.mu.Unlock()
}

// SetTriggerResetMode selects how a held trigger releases.
func (p *Processor) SetTriggerResetMode(mode string) {
	p.mu.Lock()
	p.resetMode = mode
	p.triggered = false
	p.peak = nil
	p.mu.Unlock()
}

// SetHoldTime sets the hold duration in seconds for ResetHoldTime.
func (p *Processor) SetHoldTime(seconds float64) {
	p.mu.Lock()
	p.holdTime = seconds
	p.mu.Unlock()
}

// SetTriggerLevel sets the dB level edges are detected against.
func (p *Processor) SetTriggerLevel(db float64) {
	p.mu.Lock()
	p.cfg.TriggerLevel = db
	p.mu.Unlock()
}

// ManualTriggerReset releases a trigger held in ResetManual mode.
func (p *Processor) ManualTriggerReset() {
	p.mu.Lock()
	p.triggered = false
	p.peak = nil
	p.mu.Unlock()
}

// SetDecayEnabled toggles peak decay.
func (p *Processor) SetDecayEnabled(on bool) {
	p.mu.Lock()
	p.decayEnabled = on
	if !on {
		p.prev = nil
	}
	p.mu.Unlock()
}

// SetDecayRate sets the per-frame decay speed (0..1].
func (p *Processor) SetDecayRate(rate float64) {
	p.mu.Lock()
	p.decayRate = rate
	p.mu.Unlock()
}

// Triggered reports whether a trigger capture is currently held.
func (p *Processor) Triggered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.triggered
}

// Close shuts down the attached source.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		return nil
	}
	err := p.src.Close()
	p.src = nil
	p.chain = nil
	return err
}
