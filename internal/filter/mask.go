// SPDX-License-Identifier: MIT
package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"spectrum/internal/config"
)

// maskCore is the shared machinery for the spectral mask kinds. The
// mask is built lazily for whatever transform size arrives and cached
// until the size or the curve parameters change. Process runs a full
// FFT, multiplies by mask and amplitude, and takes the real part of
// the inverse transform.
type maskCore struct {
	gain
	cfg *config.AudioConfig

	build    func(n int) []float64
	mask     []float64
	lastSize int
	fft      *fourier.CmplxFFT
	freq     []complex128
	time     []complex128
}

// EnsureMaskSize rebuilds the cached mask and transform plan for an
// n-point FFT if the cached ones do not fit.
func (m *maskCore) EnsureMaskSize(n int) {
	if n == m.lastSize && m.mask != nil {
		return
	}
	m.mask = m.build(n)
	m.lastSize = n
	if m.fft == nil || m.fft.Len() != n {
		m.fft = fourier.NewCmplxFFT(n)
		m.freq = make([]complex128, n)
		m.time = make([]complex128, n)
	}
}

// invalidate drops the cached mask after a parameter change.
func (m *maskCore) invalidate() {
	m.mask = nil
	m.lastSize = 0
}

// Mask returns the cached mask, or nil if none has been built yet.
func (m *maskCore) Mask() []float64 { return m.mask }

// Process applies the mask in the frequency domain.
func (m *maskCore) Process(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}
	m.EnsureMaskSize(len(data))

	for i, v := range data {
		m.time[i] = complex(v, 0)
	}
	m.fft.Coefficients(m.freq, m.time)
	for i := range m.freq {
		m.freq[i] *= complex(m.mask[i]*m.amp, 0)
	}
	m.fft.Sequence(m.time, m.freq)

	out := make([]float64, len(data))
	scale := 1 / float64(len(data))
	for i := range out {
		out[i] = real(m.time[i]) * scale
	}
	return out
}

// Gaussian is a skew-normal spectral bump: a Gaussian bell with
// optional skew (asymmetric tail) and kurtosis (peakedness) controls.
type Gaussian struct {
	maskCore
	CenterFreq float64
	Width      float64
	Skew       float64
	Kurtosis   float64
}

// NewGaussian creates a Gaussian mask filter centered at centerFreq Hz.
func NewGaussian(cfg *config.AudioConfig, centerFreq, width, amplitude, skew, kurtosis float64) *Gaussian {
	f := &Gaussian{CenterFreq: centerFreq, Width: width, Skew: skew, Kurtosis: kurtosis}
	f.cfg = cfg
	f.build = f.buildMask
	f.setAmplitude(amplitude)
	f.EnsureMaskSize(cfg.FFTSize())
	return f
}

func (f *Gaussian) buildMask(n int) []float64 {
	freqs := fftFreqs(n, float64(f.cfg.SampleRate))
	mask := make([]float64, n)
	for i, fr := range freqs {
		z := (fr - f.CenterFreq) / (f.Width + 1e-10)
		zk := math.Pow(z*z, f.Kurtosis)
		mask[i] = math.Exp(-zk/2) * (1 + math.Erf(f.Skew*z/math.Sqrt2))
	}
	mirrorMask(mask)
	return mask
}

func (f *Gaussian) Name() string {
	return fmt.Sprintf("Gaussian %.0f Hz", f.CenterFreq)
}

func (f *Gaussian) Parameters() map[string]any {
	return map[string]any{
		"type":        KindGaussian,
		"center_freq": f.CenterFreq,
		"width":       f.Width,
		"skew":        f.Skew,
		"kurtosis":    f.Kurtosis,
		"gain_db":     f.db,
	}
}

func (f *Gaussian) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "center_freq":
			if v, ok := toFloat(value); ok {
				f.CenterFreq = v
				changed = true
			}
		case "width":
			if v, ok := toFloat(value); ok {
				f.Width = v
				changed = true
			}
		case "skew":
			if v, ok := toFloat(value); ok {
				f.Skew = v
				changed = true
			}
		case "kurtosis":
			if v, ok := toFloat(value); ok {
				f.Kurtosis = v
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
		f.invalidate()
	}
}

// Parabolic is an inverted-parabola spectral bump, zero outside the
// band. Skew and flatness are stored for the serialized form but do
// not alter the curve.
type Parabolic struct {
	maskCore
	CenterFreq float64
	Width      float64
	Skew       float64
	Flatness   float64
}

// NewParabolic creates a parabolic mask filter centered at centerFreq Hz.
func NewParabolic(cfg *config.AudioConfig, centerFreq, width, amplitude, skew, flatness float64) *Parabolic {
	f := &Parabolic{CenterFreq: centerFreq, Width: width, Skew: skew, Flatness: flatness}
	f.cfg = cfg
	f.build = f.buildMask
	f.setAmplitude(amplitude)
	f.EnsureMaskSize(cfg.FFTSize())
	return f
}

func (f *Parabolic) buildMask(n int) []float64 {
	freqs := fftFreqs(n, float64(f.cfg.SampleRate))
	mask := make([]float64, n)
	for i, fr := range freqs {
		d := math.Abs(fr - f.CenterFreq)
		if d <= f.Width {
			r := d / f.Width
			mask[i] = 1 - r*r
		}
	}
	mirrorMask(mask)
	return mask
}

func (f *Parabolic) Name() string {
	return fmt.Sprintf("Parabolic %.0f Hz", f.CenterFreq)
}

func (f *Parabolic) Parameters() map[string]any {
	return map[string]any{
		"type":        KindParabolic,
		"center_freq": f.CenterFreq,
		"width":       f.Width,
		"skew":        f.Skew,
		"flatness":    f.Flatness,
		"gain_db":     f.db,
	}
}

func (f *Parabolic) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "center_freq":
			if v, ok := toFloat(value); ok {
				f.CenterFreq = v
				changed = true
			}
		case "width":
			if v, ok := toFloat(value); ok {
				f.Width = v
				changed = true
			}
		case "skew":
			if v, ok := toFloat(value); ok {
				f.Skew = v
				changed = true
			}
		case "flatness":
			if v, ok := toFloat(value); ok {
				f.Flatness = v
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
		f.invalidate()
	}
}

// Plateau is flat inside flat_width of the center and falls off with a
// raised-cosine edge out to width. Width is kept strictly wider than
// the flat region so the taper always has room.
type Plateau struct {
	maskCore
	CenterFreq float64
	Width      float64
	FlatWidth  float64
}

// NewPlateau creates a plateau mask filter centered at centerFreq Hz.
func NewPlateau(cfg *config.AudioConfig, centerFreq, width, flatWidth, amplitude float64) *Plateau {
	f := &Plateau{CenterFreq: centerFreq, Width: width, FlatWidth: flatWidth}
	f.clampWidth()
	f.cfg = cfg
	f.build = f.buildMask
	f.setAmplitude(amplitude)
	f.EnsureMaskSize(cfg.FFTSize())
	return f
}

func (f *Plateau) clampWidth() {
	if f.Width < f.FlatWidth+1 {
		f.Width = f.FlatWidth + 1
	}
}

func (f *Plateau) buildMask(n int) []float64 {
	freqs := fftFreqs(n, float64(f.cfg.SampleRate))
	mask := make([]float64, n)
	for i, fr := range freqs {
		d := math.Abs(fr - f.CenterFreq)
		switch {
		case d < f.FlatWidth:
			mask[i] = 1
		case d <= f.Width:
			mask[i] = 0.5 * (1 + math.Cos(math.Pi*(d-f.FlatWidth)/(f.Width-f.FlatWidth)))
		}
	}
	mirrorMask(mask)
	return mask
}

func (f *Plateau) Name() string {
	return fmt.Sprintf("Plateau %.0f Hz", f.CenterFreq)
}

func (f *Plateau) Parameters() map[string]any {
	return map[string]any{
		"type":        KindPlateau,
		"center_freq": f.CenterFreq,
		"width":       f.Width,
		"flat_width":  f.FlatWidth,
		"gain_db":     f.db,
	}
}

func (f *Plateau) Update(params map[string]any) {
	changed := false
	for key, value := range params {
		switch key {
		case "center_freq":
			if v, ok := toFloat(value); ok {
				f.CenterFreq = v
				changed = true
			}
		case "width":
			if v, ok := toFloat(value); ok {
				f.Width = v
				changed = true
			}
		case "flat_width":
			if v, ok := toFloat(value); ok {
				f.FlatWidth = v
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
		f.clampWidth()
		f.invalidate()
	}
}
