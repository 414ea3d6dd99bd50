// SPDX-License-Identifier: MIT
package filter

import (
	"math"
	"math/cmplx"
	"testing"
)

// responseAt evaluates |H| of b/a at freq Hz for the given sample rate.
func responseAt(b, a []float64, freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	re, im := 0.0, 0.0
	for j, c := range b {
		re += c * math.Cos(-w*float64(j))
		im += c * math.Sin(-w*float64(j))
	}
	dre, dim := 0.0, 0.0
	for j, c := range a {
		dre += c * math.Cos(-w*float64(j))
		dim += c * math.Sin(-w*float64(j))
	}
	num := math.Hypot(re, im)
	den := math.Hypot(dre, dim)
	return num / den
}

func TestButterworthLowpassResponse(t *testing.T) {
	t.Parallel()
	b, a := butterworthLowpass(4, 1000, 44100)

	if got := responseAt(b, a, 0, 44100); math.Abs(got-1) > 1e-6 {
		t.Errorf("DC gain = %v, want 1", got)
	}
	if got := responseAt(b, a, 1000, 44100); math.Abs(got-1/math.Sqrt2) > 0.01 {
		t.Errorf("cutoff gain = %v, want %v", got, 1/math.Sqrt2)
	}
	if got := responseAt(b, a, 10000, 44100); got > 1e-3 {
		t.Errorf("stopband gain = %v, want near zero", got)
	}
}

func TestButterworthHighpassResponse(t *testing.T) {
	t.Parallel()
	b, a := butterworthHighpass(4, 1000, 44100)

	if got := responseAt(b, a, 0, 44100); got > 1e-9 {
		t.Errorf("DC gain = %v, want 0", got)
	}
	if got := responseAt(b, a, 1000, 44100); math.Abs(got-1/math.Sqrt2) > 0.01 {
		t.Errorf("cutoff gain = %v, want %v", got, 1/math.Sqrt2)
	}
	if got := responseAt(b, a, 20000, 44100); math.Abs(got-1) > 0.01 {
		t.Errorf("passband gain = %v, want 1", got)
	}
}

func TestButterworthBandpassResponse(t *testing.T) {
	t.Parallel()
	b, a := butterworthBandpass(4, 500, 2000, 44100)

	center := math.Sqrt(500.0 * 2000.0)
	if got := responseAt(b, a, center, 44100); math.Abs(got-1) > 0.01 {
		t.Errorf("center gain = %v, want 1", got)
	}
	if got := responseAt(b, a, 50, 44100); got > 1e-3 {
		t.Errorf("low stopband gain = %v, want near zero", got)
	}
	if got := responseAt(b, a, 15000, 44100); got > 1e-3 {
		t.Errorf("high stopband gain = %v, want near zero", got)
	}
}

func TestNotchResponse(t *testing.T) {
	t.Parallel()
	b, a := notchDesign(1000, 30, 44100)

	if got := responseAt(b, a, 1000, 44100); got > 1e-6 {
		t.Errorf("notch gain = %v, want 0", got)
	}
	if got := responseAt(b, a, 100, 44100); math.Abs(got-1) > 0.05 {
		t.Errorf("passband gain = %v, want 1", got)
	}
}

// Filtering a signal in two chunks must match filtering it in one: the
// state carried between calls joins the chunks seamlessly.
func TestIIRStateContinuity(t *testing.T) {
	t.Parallel()
	b, a := butterworthLowpass(4, 2000, 44100)

	signal := make([]float64, 512)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 44100)
	}

	whole := newIIRState(b, a)
	wantOut := make([]float64, len(signal))
	whole.process(signal, wantOut)

	split := newIIRState(b, a)
	gotOut := make([]float64, len(signal))
	split.process(signal[:200], gotOut[:200])
	split.process(signal[200:], gotOut[200:])

	for i := range wantOut {
		if math.Abs(wantOut[i]-gotOut[i]) > 1e-12 {
			t.Fatalf("sample %d: chunked %v != whole %v", i, gotOut[i], wantOut[i])
		}
	}
}

func TestFreqzMatchesDirectEvaluation(t *testing.T) {
	t.Parallel()
	b, a := butterworthLowpass(2, 1000, 44100)

	const nfreqs = 64
	mags := freqz(b, a, nfreqs)
	for k := 0; k < nfreqs; k++ {
		freq := float64(k) / float64(nfreqs) * 22050
		want := responseAt(b, a, freq, 44100)
		if math.Abs(mags[k]-want) > 1e-9 {
			t.Fatalf("bin %d: freqz %v != direct %v", k, mags[k], want)
		}
	}
}

func TestPoly(t *testing.T) {
	t.Parallel()
	// (x-1)(x-2) = x^2 - 3x + 2
	c := poly([]complex128{1, 2})
	want := []float64{1, -3, 2}
	for i, w := range want {
		if math.Abs(real(c[i])-w) > 1e-12 || math.Abs(imag(c[i])) > 1e-12 {
			t.Errorf("coefficient %d = %v, want %v", i, c[i], w)
		}
	}
}

func TestDesignsAreStable(t *testing.T) {
	t.Parallel()
	designs := []struct {
		name string
		mk   func() ([]float64, []float64)
	}{
		{"lowpass", func() ([]float64, []float64) { return butterworthLowpass(4, 1000, 44100) }},
		{"highpass", func() ([]float64, []float64) { return butterworthHighpass(4, 100, 44100) }},
		{"bandpass", func() ([]float64, []float64) { return butterworthBandpass(4, 500, 2000, 44100) }},
		{"notch", func() ([]float64, []float64) { return notchDesign(1000, 30, 44100) }},
	}

	for _, d := range designs {
		d := d
		t.Run(d.name, func(t *testing.T) {
			t.Parallel()
			b, a := d.mk()
			st := newIIRState(b, a)

			// A full second of unit sine through an unstable filter blows
			// up to Inf; a stable one stays near unity.
			in := make([]float64, 44100)
			for i := range in {
				in[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 44100)
			}
			out := make([]float64, len(in))
			st.process(in, out)

			for i, v := range out {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("sample %d is not finite: %v", i, v)
				}
				if math.Abs(v) > 10 {
					t.Fatalf("sample %d = %v, output diverging", i, v)
				}
			}
		})
	}
}

func TestPrototypePolesInLeftHalfPlane(t *testing.T) {
	t.Parallel()
	for _, order := range []int{1, 2, 3, 4, 7, 8} {
		for i, p := range prototypePoles(order) {
			if real(p) >= 0 {
				t.Errorf("order %d pole %d = %v, want Re < 0", order, i, p)
			}
			if d := cmplx.Abs(p) - 1; math.Abs(d) > 1e-12 {
				t.Errorf("order %d pole %d off the unit circle by %v", order, i, d)
			}
		}
	}
}
