// SPDX-License-Identifier: MIT

// Package noise synthesizes white and spectrally-shaped noise for the
// engine's playback and export paths.
package noise

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"spectrum/internal/filter"
)

// Type selects the synthesis mode.
type Type int

const (
	// White is sample-by-sample random noise, optionally shaped by the
	// filter chain in the frequency domain.
	White Type = iota
	// Spectral builds the spectrum directly from parabolic components
	// and randomizes only the phase. The filter chain is not applied;
	// components keep whatever asymmetric shape they were given.
	Spectral
)

// ParseType maps the serialized source-type name to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "white":
		return White, nil
	case "spectral":
		return Spectral, nil
	}
	return White, fmt.Errorf("unknown noise type %q", s)
}

func (t Type) String() string {
	if t == Spectral {
		return "spectral"
	}
	return "white"
}

// RNG distribution names.
const (
	RNGUniform        = "uniform"
	RNGStandardNormal = "standard_normal"
)

// Parabola is one spectral component: an inverted-parabola magnitude
// bump centered at CenterFreq Hz.
type Parabola struct {
	CenterFreq float64
	Width      float64
	Amplitude  float64
}

// Generator produces noise buffers. It is safe for concurrent use; all
// synthesis happens under one lock so the RNG stream stays coherent.
type Generator struct {
	mu            sync.Mutex
	rng           *rand.Rand
	rngType       string
	chain         *filter.Chain
	parabolas     []Parabola
	baseAmplitude float64

	fft     *fourier.CmplxFFT
	fftSize int
}

// NewGenerator creates a generator sharing the given filter chain. The
// RNG is seeded from the clock; use SetSeed for reproducible output.
func NewGenerator(chain *filter.Chain, rngType string) *Generator {
	if chain == nil {
		chain = filter.NewChain()
	}
	return &Generator{
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		rngType:       rngType,
		chain:         chain,
		baseAmplitude: 1.0,
	}
}

// Chain returns the shared filter chain.
func (g *Generator) Chain() *filter.Chain { return g.chain }

// SetSeed reseeds the RNG for reproducible synthesis.
func (g *Generator) SetSeed(seed int64) {
	g.mu.Lock()
	g.rng = rand.New(rand.NewSource(seed))
	g.mu.Unlock()
}

// SetRNGType selects the sample distribution, RNGUniform or
// RNGStandardNormal.
func (g *Generator) SetRNGType(name string) {
	g.mu.Lock()
	g.rngType = name
	g.mu.Unlock()
}

// SetBaseAmplitude scales all generated buffers.
func (g *Generator) SetBaseAmplitude(a float64) {
	g.mu.Lock()
	g.baseAmplitude = a
	g.mu.Unlock()
}

// AddParabola appends a spectral component.
func (g *Generator) AddParabola(p Parabola) {
	g.mu.Lock()
	g.parabolas = append(g.parabolas, p)
	g.mu.Unlock()
}

// RemoveParabola deletes the component at index. Out-of-range indices
// are ignored.
func (g *Generator) RemoveParabola(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.parabolas) {
		return
	}
	g.parabolas = append(g.parabolas[:index], g.parabolas[index+1:]...)
}

// UpdateParabola replaces the component at index. Out-of-range indices
// are ignored.
func (g *Generator) UpdateParabola(index int, p Parabola) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.parabolas) {
		return
	}
	g.parabolas[index] = p
}

// Parabolas returns a copy of the current components.
func (g *Generator) Parabolas() []Parabola {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Parabola, len(g.parabolas))
	copy(out, g.parabolas)
	return out
}

// Generate synthesizes frames samples of the given kind at sampleRate.
func (g *Generator) Generate(frames int, sampleRate float64, kind Type) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if frames <= 0 {
		return nil
	}
	if kind == Spectral {
		return g.generateSpectral(frames, sampleRate)
	}
	return g.generateWhite(frames)
}

func (g *Generator) ensureFFT(n int) {
	if g.fft == nil || g.fftSize != n {
		g.fft = fourier.NewCmplxFFT(n)
		g.fftSize = n
	}
}

func (g *Generator) sample() float64 {
	if g.rngType == RNGStandardNormal {
		return g.rng.NormFloat64()
	}
	return 2*g.rng.Float64() - 1
}

// generateWhite draws raw noise and, when filters are present, shapes
// it with the whole chain in a single FFT round trip.
func (g *Generator) generateWhite(frames int) []float64 {
	data := make([]float64, frames)
	for i := range data {
		data[i] = g.sample()
	}

	if g.chain.Len() > 0 {
		g.ensureFFT(frames)
		tme := make([]complex128, frames)
		for i, v := range data {
			tme[i] = complex(v, 0)
		}
		freq := g.fft.Coefficients(make([]complex128, frames), tme)
		g.chain.ApplyMasks(freq)
		g.fft.Sequence(tme, freq)
		scale := 1 / float64(frames)
		for i := range data {
			data[i] = real(tme[i]) * scale
		}
	}

	if g.baseAmplitude != 1 {
		for i := range data {
			data[i] *= g.baseAmplitude
		}
	}
	return data
}

// generateSpectral builds the magnitude spectrum from the parabolic
// components, attaches conjugate-symmetric random phase, and inverse
// transforms. No components, or components that sum to nothing inside
// the band, yield silence.
func (g *Generator) generateSpectral(frames int, sampleRate float64) []float64 {
	out := make([]float64, frames)
	if len(g.parabolas) == 0 {
		return out
	}

	mag := g.componentSpectrum(frames, sampleRate)
	nonzero := false
	for _, m := range mag {
		if m != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		return out
	}

	phase := g.randomPhase(frames)
	freq := make([]complex128, frames)
	for k := range freq {
		s, c := math.Sincos(phase[k])
		freq[k] = complex(mag[k]*c, mag[k]*s)
	}

	g.ensureFFT(frames)
	tme := g.fft.Sequence(make([]complex128, frames), freq)
	scale := g.baseAmplitude / float64(frames)
	for i := range out {
		out[i] = real(tme[i]) * scale
	}
	return out
}

// componentSpectrum sums the parabolic bumps over the positive bins
// and mirrors them onto the negative half so the magnitudes are
// symmetric.
func (g *Generator) componentSpectrum(frames int, sampleRate float64) []float64 {
	mag := make([]float64, frames)
	half := frames / 2
	for _, p := range g.parabolas {
		if p.Width <= 0 || p.Amplitude == 0 {
			continue
		}
		for k := 0; k <= half && k < frames; k++ {
			f := float64(k) * sampleRate / float64(frames)
			d := math.Abs(f - p.CenterFreq)
			if d <= p.Width {
				r := d / p.Width
				mag[k] += p.Amplitude * (1 - r*r)
			}
		}
	}
	for k := 1; k < frames-k; k++ {
		mag[frames-k] = mag[k]
	}
	return mag
}

// randomPhase returns a conjugate-symmetric phase array. DC and the
// Nyquist bin must stay real, so their phase snaps to 0 or pi.
func (g *Generator) randomPhase(frames int) []float64 {
	phase := make([]float64, frames)
	half := frames / 2

	draw := func() float64 {
		if g.rngType == RNGStandardNormal {
			return math.Atan2(g.rng.NormFloat64(), g.rng.NormFloat64())
		}
		return 2 * math.Pi * g.rng.Float64()
	}

	for k := 0; k <= half && k < frames; k++ {
		phase[k] = draw()
	}
	quantize := func(p float64) float64 {
		if p > math.Pi {
			return math.Pi
		}
		return 0
	}
	phase[0] = quantize(phase[0])
	if frames%2 == 0 {
		phase[half] = quantize(phase[half])
	}
	for k := 1; k < frames-k; k++ {
		phase[frames-k] = -phase[k]
	}
	return phase
}
