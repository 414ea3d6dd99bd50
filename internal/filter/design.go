// SPDX-License-Identifier: MIT
package filter

import (
	"math"
	"math/cmplx"
)

// IIR design helpers: Butterworth filters are designed in zero-pole-gain
// form from the analog prototype, frequency-transformed, and mapped to
// the digital domain with the bilinear transform. Cutoffs are prewarped
// so the digital response lands on the requested frequencies.

// prototypePoles returns the poles of the order-n analog Butterworth
// lowpass prototype, evenly spaced on the left half of the unit circle.
func prototypePoles(n int) []complex128 {
	p := make([]complex128, n)
	for k := 1; k <= n; k++ {
		// theta spans (pi/2, 3pi/2), placing every pole at Re < 0.
		theta := math.Pi * float64(2*k+n-1) / float64(2*n)
		p[k-1] = cmplx.Exp(complex(0, theta))
	}
	return p
}

// prewarp maps a cutoff in Hz to the warped analog frequency for a
// bilinear transform using the fs=2 convention.
func prewarp(freq, sampleRate float64) float64 {
	wn := freq / (sampleRate / 2)
	return 4 * math.Tan(math.Pi*wn/2)
}

// poly expands a set of roots into monic polynomial coefficients in
// descending powers.
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, ci := range c {
			next[i] += ci
			next[i+1] -= ci * r
		}
		c = next
	}
	return c
}

// bilinearZPK maps analog zeros/poles/gain to the z-domain. Missing
// zeros (relative degree) map to z=-1.
func bilinearZPK(z, p []complex128, k complex128) (zd, pd []complex128, kd complex128) {
	const fs2 = 4.0 // 2*fs with fs=2

	num := complex(1, 0)
	den := complex(1, 0)

	zd = make([]complex128, 0, len(p))
	for _, zi := range z {
		zd = append(zd, (fs2+zi)/(fs2-zi))
		num *= fs2 - zi
	}
	pd = make([]complex128, len(p))
	for i, pi := range p {
		pd[i] = (fs2 + pi) / (fs2 - pi)
		den *= fs2 - pi
	}
	for i := len(z); i < len(p); i++ {
		zd = append(zd, -1)
	}
	kd = k * num / den
	return zd, pd, kd
}

// zpkToTF expands zeros/poles/gain into transfer function coefficients.
// The denominator comes out monic because poly is monic.
func zpkToTF(z, p []complex128, k complex128) (b, a []float64) {
	bc := poly(z)
	ac := poly(p)
	b = make([]float64, len(bc))
	for i, c := range bc {
		b[i] = real(c * k)
	}
	a = make([]float64, len(ac))
	for i, c := range ac {
		a[i] = real(c)
	}
	return b, a
}

// butterworthLowpass designs an order-n Butterworth lowpass at cutoff Hz.
func butterworthLowpass(order int, cutoff, sampleRate float64) (b, a []float64) {
	wo := prewarp(cutoff, sampleRate)
	p := prototypePoles(order)
	k := complex(1, 0)
	for i := range p {
		p[i] *= complex(wo, 0)
		k *= complex(wo, 0)
	}
	zd, pd, kd := bilinearZPK(nil, p, k)
	return zpkToTF(zd, pd, kd)
}

// butterworthHighpass designs an order-n Butterworth highpass at cutoff Hz.
func butterworthHighpass(order int, cutoff, sampleRate float64) (b, a []float64) {
	wo := prewarp(cutoff, sampleRate)
	p := prototypePoles(order)
	k := complex(1, 0)
	z := make([]complex128, order)
	for i := range p {
		k /= -p[i]
		p[i] = complex(wo, 0) / p[i]
		// z[i] stays at the origin
	}
	zd, pd, kd := bilinearZPK(z, p, k)
	return zpkToTF(zd, pd, kd)
}

// butterworthBandpass designs an order-n Butterworth bandpass between
// low and high Hz. The resulting transfer function has order 2n.
func butterworthBandpass(order int, low, high, sampleRate float64) (b, a []float64) {
	wl := prewarp(low, sampleRate)
	wh := prewarp(high, sampleRate)
	bw := wh - wl
	wo := math.Sqrt(wl * wh)

	proto := prototypePoles(order)
	k := complex(math.Pow(bw, float64(order)), 0)

	z := make([]complex128, order) // zeros at the origin
	p := make([]complex128, 0, 2*order)
	for _, pi := range proto {
		plp := pi * complex(bw/2, 0)
		d := cmplx.Sqrt(plp*plp - complex(wo*wo, 0))
		p = append(p, plp+d, plp-d)
	}
	zd, pd, kd := bilinearZPK(z, p, k)
	return zpkToTF(zd, pd, kd)
}

// notchDesign designs a second-order notch biquad at freq Hz with
// quality factor q, -3 dB bandwidth freq/q.
func notchDesign(freq, q, sampleRate float64) (b, a []float64) {
	w0 := freq / (sampleRate / 2) * math.Pi
	bw := w0 / q

	gb := 1 / math.Sqrt2
	beta := (math.Sqrt(1-gb*gb) / gb) * math.Tan(bw/2)
	gain := 1 / (1 + beta)

	cw := math.Cos(w0)
	b = []float64{gain, -2 * gain * cw, gain}
	a = []float64{1, -2 * gain * cw, 2*gain - 1}
	return b, a
}

// iirState runs a transfer function in direct form II transposed,
// carrying filter state across buffers so successive chunks join
// without boundary artifacts. The state starts at rest.
type iirState struct {
	b, a []float64
	z    []float64
}

func newIIRState(b, a []float64) *iirState {
	n := len(b)
	if len(a) > n {
		n = len(a)
	}
	bp := make([]float64, n)
	copy(bp, b)
	ap := make([]float64, n)
	copy(ap, a)
	return &iirState{b: bp, a: ap, z: make([]float64, n-1)}
}

func (s *iirState) process(in, out []float64) {
	n := len(s.b)
	for i, x := range in {
		y := s.b[0]*x + s.z[0]
		for j := 1; j < n-1; j++ {
			s.z[j-1] = s.b[j]*x + s.z[j] - s.a[j]*y
		}
		s.z[n-2] = s.b[n-1]*x - s.a[n-1]*y
		out[i] = y
	}
}

// freqz evaluates the magnitude response of b/a at nfreqs points evenly
// spaced over [0, pi).
func freqz(b, a []float64, nfreqs int) []float64 {
	mags := make([]float64, nfreqs)
	for k := range mags {
		w := math.Pi * float64(k) / float64(nfreqs)
		e := cmplx.Exp(complex(0, -w))

		num := complex(0, 0)
		for j := len(b) - 1; j >= 0; j-- {
			num = num*e + complex(b[j], 0)
		}
		den := complex(0, 0)
		for j := len(a) - 1; j >= 0; j-- {
			den = den*e + complex(a[j], 0)
		}
		mags[k] = cmplx.Abs(num / den)
	}
	return mags
}
