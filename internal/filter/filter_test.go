// SPDX-License-Identifier: MIT
package filter

import (
	"math"
	"testing"

	"spectrum/internal/config"
)

func TestGainAmplitudeRoundTrip(t *testing.T) {
	t.Parallel()
	var g gain

	g.setAmplitude(0.5)
	if want := 20 * math.Log10(0.5); math.Abs(g.GainDB()-want) > 1e-12 {
		t.Errorf("gain_db = %v, want %v", g.GainDB(), want)
	}
	if math.Abs(g.Amplitude()-0.5) > 1e-12 {
		t.Errorf("amplitude = %v, want 0.5", g.Amplitude())
	}

	g.setAmplitude(0)
	if g.GainDB() != silenceDB {
		t.Errorf("zero amplitude gain_db = %v, want %v", g.GainDB(), silenceDB)
	}
	if g.Amplitude() != 0 {
		t.Errorf("zero amplitude = %v, want exactly 0", g.Amplitude())
	}

	g.setGainDB(-130)
	if g.Amplitude() != 0 {
		t.Errorf("below-floor amplitude = %v, want exactly 0", g.Amplitude())
	}
}

func TestNewFactory(t *testing.T) {
	cfg := config.New()

	cases := []struct {
		name   string
		params map[string]any
	}{
		{"bandpass", map[string]any{"type": "bandpass", "lowcut": 200.0, "highcut": 800.0, "order": 4}},
		{"lowpass", map[string]any{"type": "lowpass", "cutoff": 1000.0, "order": 2}},
		{"highpass", map[string]any{"type": "highpass", "cutoff": 100.0}},
		{"notch", map[string]any{"type": "notch", "freq": 50.0, "q": 30.0}},
		{"gaussian", map[string]any{"type": "gaussian", "center_freq": 440.0, "width": 50.0}},
		{"parabolic", map[string]any{"type": "parabolic", "center_freq": 440.0, "width": 50.0}},
		{"plateau", map[string]any{"type": "plateau", "center_freq": 440.0, "width": 100.0, "flat_width": 40.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := New(cfg, tc.params)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			got := f.Parameters()
			if got["type"] != tc.name {
				t.Errorf("round-trip type = %v, want %v", got["type"], tc.name)
			}
			// A rebuilt filter from the serialized form must agree.
			clone, err := New(cfg, got)
			if err != nil {
				t.Fatalf("New from serialized form failed: %v", err)
			}
			if clone.Name() != f.Name() {
				t.Errorf("clone name %q != %q", clone.Name(), f.Name())
			}
		})
	}

	if _, err := New(cfg, map[string]any{"type": "resonator"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestMaskSymmetry(t *testing.T) {
	cfg := config.New()
	// An off-center skewed Gaussian is asymmetric before mirroring.
	f := NewGaussian(cfg, 3000, 500, 1.0, 2.0, 1.0)

	for _, n := range []int{1024, 1023} {
		f.EnsureMaskSize(n)
		mask := f.Mask()
		if len(mask) != n {
			t.Fatalf("mask size %d, want %d", len(mask), n)
		}
		mid := n / 2
		if n%2 == 0 {
			for j := 0; mid+j < n; j++ {
				if mask[mid+j] != mask[mid-1-j] {
					t.Fatalf("n=%d: mask[%d]=%v, mirror %v", n, mid+j, mask[mid+j], mask[mid-1-j])
				}
			}
		} else {
			for j := 0; mid+1+j < n; j++ {
				if mask[mid+1+j] != mask[mid-1-j] {
					t.Fatalf("n=%d: mask[%d]=%v, mirror %v", n, mid+1+j, mask[mid+1+j], mask[mid-1-j])
				}
			}
		}
	}
}

func TestMaskCacheInvalidation(t *testing.T) {
	cfg := config.New()
	f := NewParabolic(cfg, 1000, 100, 1.0, 0, 1)

	f.EnsureMaskSize(512)
	before := f.Mask()

	f.Update(map[string]any{"center_freq": 2000.0})
	if f.Mask() != nil {
		t.Fatal("mask not invalidated by parameter update")
	}

	f.EnsureMaskSize(512)
	after := f.Mask()
	same := true
	for i := range before {
		if before[i] != after[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("rebuilt mask identical despite moved center")
	}
}

func TestPlateauWidthClamp(t *testing.T) {
	cfg := config.New()
	f := NewPlateau(cfg, 1000, 10, 50, 1.0)
	if f.Width < f.FlatWidth+1 {
		t.Errorf("constructor: width %v not clamped above flat_width %v", f.Width, f.FlatWidth)
	}

	f.Update(map[string]any{"width": 5.0, "flat_width": 80.0})
	if f.Width < f.FlatWidth+1 {
		t.Errorf("update: width %v not clamped above flat_width %v", f.Width, f.FlatWidth)
	}
}

func TestMaskProcessPassesBandRejectsOutside(t *testing.T) {
	cfg := config.New()
	f := NewGaussian(cfg, 1000, 200, 1.0, 0, 1.0)

	const n = 4096
	inBand := make([]float64, n)
	outBand := make([]float64, n)
	for i := range inBand {
		ts := float64(i) / float64(cfg.SampleRate)
		inBand[i] = math.Sin(2 * math.Pi * 1000 * ts)
		outBand[i] = math.Sin(2 * math.Pi * 8000 * ts)
	}

	rms := func(x []float64) float64 {
		sum := 0.0
		for _, v := range x {
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(x)))
	}

	passed := rms(f.Process(inBand))
	rejected := rms(f.Process(outBand))
	if passed < 0.5 {
		t.Errorf("in-band rms = %v, want most energy kept", passed)
	}
	if rejected > 0.01 {
		t.Errorf("out-of-band rms = %v, want near zero", rejected)
	}
}

func TestIIRMaskMatchesResponse(t *testing.T) {
	cfg := config.New()
	f := NewLowpass(cfg, 1000, 4, 1.0)

	for _, n := range []int{256, 255} {
		f.EnsureMaskSize(n)
		mask := f.Mask()
		if len(mask) != n {
			t.Fatalf("mask size %d, want %d", len(mask), n)
		}
		// Bin 0 is DC, which a lowpass passes untouched.
		if math.Abs(mask[0]-1) > 1e-6 {
			t.Errorf("n=%d: DC mask = %v, want 1", n, mask[0])
		}
		// The negative-frequency half mirrors the positive half.
		if n%2 == 0 {
			if mask[n/2] != mask[n/2-1] {
				t.Errorf("n=%d: mask not symmetric about midpoint", n)
			}
		} else {
			if mask[n/2+1] != mask[n/2-1] {
				t.Errorf("n=%d: mask not symmetric about midpoint", n)
			}
		}
	}
}

func TestChainOutOfRangeNoOps(t *testing.T) {
	cfg := config.New()
	c := NewChain()
	c.Add(NewNotch(cfg, 50, 30, 1.0))

	c.Remove(-1)
	c.Remove(5)
	c.Update(3, map[string]any{"freq": 60.0})
	if c.Len() != 1 {
		t.Fatalf("chain length = %d, want 1", c.Len())
	}

	c.Remove(0)
	if c.Len() != 0 {
		t.Fatalf("chain length after remove = %d, want 0", c.Len())
	}
}

func TestChainUpdateStripsType(t *testing.T) {
	cfg := config.New()
	c := NewChain()
	c.Add(NewLowpass(cfg, 1000, 4, 1.0))

	c.Update(0, map[string]any{"type": "highpass", "cutoff": 2000.0})
	params := c.Parameters()[0]
	if params["type"] != KindLowpass {
		t.Errorf("filter kind changed via Update: %v", params["type"])
	}
	if params["cutoff"] != 2000.0 {
		t.Errorf("cutoff = %v, want 2000", params["cutoff"])
	}
}

func TestChainApplyCascades(t *testing.T) {
	cfg := config.New()
	c := NewChain()
	c.Add(NewLowpass(cfg, 5000, 4, 0.5))

	in := make([]float64, 256)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 440 * float64(i) / float64(cfg.SampleRate))
	}
	out := c.Apply(in)
	if len(out) != len(in) {
		t.Fatalf("output length %d, want %d", len(out), len(in))
	}
	// Input must be untouched; Apply works on a copy.
	if in[10] != math.Sin(2*math.Pi*440*10/float64(cfg.SampleRate)) {
		t.Error("Apply mutated its input")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	out := Normalize([]float64{0.1, -0.4, 0.2}, 1.0)
	peak := 0.0
	for _, v := range out {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-1.0) > 1e-12 {
		t.Errorf("normalized peak = %v, want 1", peak)
	}

	zeros := Normalize(make([]float64, 8), 1.0)
	for i, v := range zeros {
		if v != 0 {
			t.Fatalf("zero signal changed at %d: %v", i, v)
		}
	}
}

func TestChainApplyMasks(t *testing.T) {
	t.Parallel()
	cfg := config.New()
	c := NewChain()
	g := NewGaussian(cfg, 1000, 200, 0.5, 0, 1)
	p := NewParabolic(cfg, 2000, 300, 0.25, 0, 1)
	c.Add(g)
	c.Add(p)

	const n = 512
	freq := make([]complex128, n)
	for i := range freq {
		freq[i] = 1
	}
	c.ApplyMasks(freq)

	gm, pm := g.Mask(), p.Mask()
	for i := range freq {
		want := gm[i] * g.Amplitude() * pm[i] * p.Amplitude()
		if math.Abs(real(freq[i])-want) > 1e-12 || imag(freq[i]) != 0 {
			t.Fatalf("bin %d = %v, want %v", i, freq[i], want)
		}
	}
}

func TestChainApplyMasksEmptyChain(t *testing.T) {
	t.Parallel()
	c := NewChain()
	freq := []complex128{1, 2, 3}
	c.ApplyMasks(freq)
	for i, v := range freq {
		if v != complex(float64(i+1), 0) {
			t.Errorf("bin %d modified by empty chain: %v", i, v)
		}
	}
}
