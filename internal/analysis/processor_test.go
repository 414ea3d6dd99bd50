// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"spectrum/internal/config"
	"spectrum/internal/filter"
)

// stubSource feeds canned frames to the processor and repeats the last
// one when it runs out.
type stubSource struct {
	frames [][]float64
	idx    int
	live   bool
	chain  *filter.Chain
	closed bool
}

func newStubSource(live bool, frames ...[]float64) *stubSource {
	return &stubSource{frames: frames, live: live, chain: filter.NewChain()}
}

func (s *stubSource) next() []float64 {
	if len(s.frames) == 0 {
		return nil
	}
	if s.idx >= len(s.frames) {
		return s.frames[len(s.frames)-1]
	}
	f := s.frames[s.idx]
	s.idx++
	return f
}

func (s *stubSource) Read() []float64          { return s.next() }
func (s *stubSource) ReadAnalysis() []float64  { return s.next() }
func (s *stubSource) Filters() *filter.Chain   { return s.chain }
func (s *stubSource) Running() bool            { return !s.closed }
func (s *stubSource) Live() bool               { return s.live }
func (s *stubSource) Close() error             { s.closed = true; return nil }

func sineFrame(n int, freq, amp float64, sampleRate int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func quietFrame(n int) []float64 {
	return make([]float64, n)
}

func specMax(spec []float64) float64 {
	m := math.Inf(-1)
	for _, v := range spec {
		if v > m {
			m = v
		}
	}
	return m
}

func TestProcessNoSource(t *testing.T) {
	t.Parallel()
	p := NewProcessor(config.New())
	if f, s := p.Process(); f != nil || s != nil {
		t.Error("expected nil results with no source")
	}
}

func TestProcessStoppedSource(t *testing.T) {
	t.Parallel()
	cfg := config.New()
	p := NewProcessor(cfg)
	src := newStubSource(false, sineFrame(2048, 440, 0.5, cfg.SampleRate))
	p.SetSource(src)
	src.Close()

	if f, s := p.Process(); f != nil || s != nil {
		t.Error("expected nil results from stopped source")
	}
}

func TestProcessFindsSinePeak(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(false, sineFrame(1024, 1000, 0.5, cfg.SampleRate)))

	freqs, spec := p.Process()
	if freqs == nil {
		t.Fatal("Process returned nil")
	}
	if len(freqs) != 1024/2+1 {
		t.Fatalf("bin count = %d, want %d", len(freqs), 1024/2+1)
	}

	peakBin := 0
	for k := range spec {
		if spec[k] > spec[peakBin] {
			peakBin = k
		}
	}
	binWidth := float64(cfg.SampleRate) / 1024
	if math.Abs(freqs[peakBin]-1000) > 1.5*binWidth {
		t.Errorf("peak at %.1f Hz, want within a bin of 1000", freqs[peakBin])
	}

	// The spectrum is clipped to the configured dB range.
	for k, v := range spec {
		if v < cfg.MinDB || v > cfg.MaxDB {
			t.Fatalf("bin %d = %v outside [%v, %v]", k, v, cfg.MinDB, cfg.MaxDB)
		}
	}
}

func TestProcessZeroPadsShortChunk(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(2048)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(false, sineFrame(512, 1000, 0.5, cfg.SampleRate)))

	freqs, spec := p.Process()
	if len(freqs) != 2048/2+1 || len(spec) != len(freqs) {
		t.Fatalf("bin count = %d, want %d", len(freqs), 2048/2+1)
	}
}

func TestTriggerHoldTime(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	const n = 1024

	loud := sineFrame(n, 1000, 0.5, cfg.SampleRate)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(true, loud, quietFrame(n), quietFrame(n), quietFrame(n)))

	p.SetTriggerEnabled(true)
	p.SetTriggerMode(TriggerRising)
	p.SetTriggerResetMode(ResetHoldTime)
	// Three frames worth of hold, with slack against int truncation.
	p.SetHoldTime(3.5 * float64(n) / float64(cfg.SampleRate))

	_, first := p.Process()
	if specMax(first) < -20 {
		t.Fatalf("loud frame max = %v, want above -20 dB", specMax(first))
	}
	if !p.Triggered() {
		t.Fatal("rising edge did not trigger")
	}

	_, held := p.Process()
	if specMax(held) < -20 {
		t.Errorf("held frame max = %v, want peak held above -20 dB", specMax(held))
	}

	_, released := p.Process()
	if specMax(released) > -40 {
		t.Errorf("post-hold frame max = %v, want quiet again", specMax(released))
	}
	if p.Triggered() {
		t.Error("trigger still held after hold time elapsed")
	}
}

func TestTriggerNextTriggerHoldsIndefinitely(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	const n = 1024

	loud := sineFrame(n, 1000, 0.5, cfg.SampleRate)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(true, loud, quietFrame(n)))

	p.SetTriggerEnabled(true)
	p.SetTriggerMode(TriggerRising)
	p.SetTriggerResetMode(ResetNextTrigger)

	p.Process()
	for i := 0; i < 5; i++ {
		_, spec := p.Process()
		if specMax(spec) < -20 {
			t.Fatalf("frame %d: max = %v, want peak held until next edge", i, specMax(spec))
		}
	}
}

func TestTriggerManualReset(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	const n = 1024

	loud := sineFrame(n, 1000, 0.5, cfg.SampleRate)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(true, loud, quietFrame(n)))

	p.SetTriggerEnabled(true)
	p.SetTriggerResetMode(ResetManual)

	p.Process()
	_, held := p.Process()
	if specMax(held) < -20 {
		t.Fatalf("held frame max = %v, want peak held", specMax(held))
	}

	p.ManualTriggerReset()
	_, released := p.Process()
	if specMax(released) > -40 {
		t.Errorf("post-reset frame max = %v, want quiet", specMax(released))
	}
}

func TestDecaySlowsFall(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	const n = 1024

	loud := sineFrame(n, 1000, 0.5, cfg.SampleRate)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(true, loud, quietFrame(n)))

	p.SetDecayEnabled(true)
	p.SetDecayRate(0.5)

	_, first := p.Process()
	peak := specMax(first)

	_, second := p.Process()
	step := 0.5 * (cfg.MaxDB - cfg.MinDB) / 30
	want := peak - step
	if math.Abs(specMax(second)-want) > 1e-9 {
		t.Errorf("decayed max = %v, want %v", specMax(second), want)
	}
}

func TestTriggerIgnoredForSynthesizedSource(t *testing.T) {
	cfg := config.New()
	cfg.SetFFTSize(1024)
	const n = 1024

	loud := sineFrame(n, 1000, 0.5, cfg.SampleRate)
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(false, loud, quietFrame(n)))

	p.SetTriggerEnabled(true)
	p.Process()
	if p.Triggered() {
		t.Error("trigger engaged for non-live source")
	}
	_, second := p.Process()
	if specMax(second) > -40 {
		t.Errorf("quiet frame max = %v, want no peak hold without live input", specMax(second))
	}
}

func TestSetSourceClosesPrevious(t *testing.T) {
	cfg := config.New()
	p := NewProcessor(cfg)

	first := newStubSource(false)
	p.SetSource(first)
	p.SetSource(newStubSource(false))
	if !first.closed {
		t.Error("previous source not closed on swap")
	}
}

func BenchmarkProcess(b *testing.B) {
	cfg := config.New()
	p := NewProcessor(cfg)
	p.SetSource(newStubSource(false, sineFrame(cfg.FFTSize(), 440, 0.5, cfg.SampleRate)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process()
	}
}
