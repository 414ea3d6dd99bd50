// SPDX-License-Identifier: MIT

// Package export renders finished audio out of the noise generator:
// faded and normalized signals, burst sequences for carousel playback,
// WAV files, and generated source code.
package export

import (
	"errors"
	"math"

	"spectrum/internal/filter"
	"spectrum/internal/noise"
)

// ErrFadeTooLong is returned when the fade-in and fade-out regions do
// not fit inside the signal.
var ErrFadeTooLong = errors.New("fade durations exceed signal length")

// ApplyEnvelope shapes the signal with raised-cosine fades. The fade
// curve is (0.5*(1-cos(pi*t)))^power, rising over fadeIn samples and
// mirrored over the last fadeOut samples.
func ApplyEnvelope(signal []float64, fadeIn, fadeOut int, powerIn, powerOut float64) ([]float64, error) {
	if fadeIn < 0 {
		fadeIn = 0
	}
	if fadeOut < 0 {
		fadeOut = 0
	}
	if fadeIn+fadeOut > len(signal) {
		return nil, ErrFadeTooLong
	}

	out := make([]float64, len(signal))
	copy(out, signal)
	if fadeIn == 0 && fadeOut == 0 {
		return out, nil
	}

	curve := func(i, n int, power float64) float64 {
		if n == 1 {
			return 0
		}
		t := float64(i) / float64(n-1)
		return math.Pow(0.5*(1-math.Cos(math.Pi*t)), power)
	}
	for i := 0; i < fadeIn; i++ {
		out[i] *= curve(i, fadeIn, powerIn)
	}
	for i := 0; i < fadeOut; i++ {
		out[len(out)-1-i] *= curve(i, fadeOut, powerOut)
	}
	return out, nil
}

// Options controls the signal rendering pipeline.
type Options struct {
	Amplitude float64 // base amplitude set on the generator

	EnableFade      bool
	FadeInDuration  float64 // seconds
	FadeOutDuration float64
	FadeInPower     float64
	FadeOutPower    float64

	EnableNormalization bool
	NormalizeValue      float64

	// FadeBeforeNorm fades first and normalizes after, so the fades
	// eat into headroom instead of the peak level.
	FadeBeforeNorm bool

	RNGType       string
	UseRandomSeed bool
	Seed          int64

	EnableAttenuation bool
	AttenuationDB     float64
}

// DefaultOptions returns the standard export pipeline settings.
func DefaultOptions() Options {
	return Options{
		Amplitude:           1.0,
		EnableFade:          true,
		FadeInDuration:      0.001,
		FadeOutDuration:     0.001,
		FadeInPower:         2.0,
		FadeOutPower:        2.0,
		EnableNormalization: true,
		NormalizeValue:      1.0,
		UseRandomSeed:       true,
	}
}

// Render generates duration seconds of noise and runs it through the
// fade/normalize/attenuate pipeline.
func Render(gen *noise.Generator, kind noise.Type, duration float64, sampleRate int, opts Options) ([]float64, error) {
	if opts.RNGType != "" {
		gen.SetRNGType(opts.RNGType)
	}
	if !opts.UseRandomSeed {
		gen.SetSeed(opts.Seed)
	}
	gen.SetBaseAmplitude(opts.Amplitude)

	total := int(float64(sampleRate) * duration)
	fadeIn, fadeOut := 0, 0
	if opts.EnableFade {
		fadeIn = int(float64(sampleRate) * opts.FadeInDuration)
		fadeOut = int(float64(sampleRate) * opts.FadeOutDuration)
	}
	if fadeIn+fadeOut > total {
		return nil, ErrFadeTooLong
	}

	signal := gen.Generate(total, float64(sampleRate), kind)

	var err error
	if opts.FadeBeforeNorm {
		if opts.EnableFade {
			signal, err = ApplyEnvelope(signal, fadeIn, fadeOut, opts.FadeInPower, opts.FadeOutPower)
			if err != nil {
				return nil, err
			}
		}
		if opts.EnableNormalization {
			signal = filter.Normalize(signal, opts.NormalizeValue)
		}
	} else {
		if opts.EnableNormalization {
			signal = filter.Normalize(signal, opts.NormalizeValue)
		}
		if opts.EnableFade {
			signal, err = ApplyEnvelope(signal, fadeIn, fadeOut, opts.FadeInPower, opts.FadeOutPower)
			if err != nil {
				return nil, err
			}
		}
	}

	if opts.EnableAttenuation {
		factor := math.Pow(10, -opts.AttenuationDB/20)
		for i := range signal {
			signal[i] *= factor
		}
	}
	return signal, nil
}

// SequenceSettings controls burst sequence rendering.
type SequenceSettings struct {
	Count      int
	DurationMS float64
	SilenceMS  float64
	SampleRate int
	Kind       noise.Type

	Options

	// GlobalNormalization scales every burst by the single factor that
	// brings the loudest burst to NormalizeValue, preserving relative
	// levels. Off means each burst is normalized on its own.
	GlobalNormalization bool
}

// RenderSequence generates Count noise bursts plus the silence buffer
// separating them during playback.
func RenderSequence(gen *noise.Generator, s SequenceSettings) (silence []float64, bursts [][]float64, err error) {
	if !s.UseRandomSeed {
		gen.SetSeed(s.Seed)
	}
	if s.Amplitude != 0 {
		gen.SetBaseAmplitude(s.Amplitude)
	}

	total := int(float64(s.SampleRate) * s.DurationMS / 1000)
	fadeIn, fadeOut := 0, 0
	if s.EnableFade {
		fadeIn = int(float64(s.SampleRate) * s.FadeInDuration)
		fadeOut = int(float64(s.SampleRate) * s.FadeOutDuration)
	}
	if fadeIn+fadeOut > total {
		return nil, nil, ErrFadeTooLong
	}

	bursts = make([][]float64, s.Count)
	for i := range bursts {
		bursts[i] = gen.Generate(total, float64(s.SampleRate), s.Kind)
	}

	fadeAll := func() error {
		if !s.EnableFade {
			return nil
		}
		for i, b := range bursts {
			faded, err := ApplyEnvelope(b, fadeIn, fadeOut, s.FadeInPower, s.FadeOutPower)
			if err != nil {
				return err
			}
			bursts[i] = faded
		}
		return nil
	}
	normalizeAll := func() {
		if !s.EnableNormalization {
			return
		}
		if s.GlobalNormalization {
			peak := 0.0
			for _, b := range bursts {
				for _, v := range b {
					if a := math.Abs(v); a > peak {
						peak = a
					}
				}
			}
			if peak == 0 {
				return
			}
			scale := s.NormalizeValue / peak
			for _, b := range bursts {
				for i := range b {
					b[i] *= scale
				}
			}
			return
		}
		for i, b := range bursts {
			bursts[i] = filter.Normalize(b, s.NormalizeValue)
		}
	}

	if s.FadeBeforeNorm {
		if err := fadeAll(); err != nil {
			return nil, nil, err
		}
		normalizeAll()
	} else {
		normalizeAll()
		if err := fadeAll(); err != nil {
			return nil, nil, err
		}
	}

	if s.EnableAttenuation {
		factor := math.Pow(10, -s.AttenuationDB/20)
		for _, b := range bursts {
			for i := range b {
				b[i] *= factor
			}
		}
	}

	silence = make([]float64, int(math.Ceil(float64(s.SampleRate)*s.SilenceMS/1000)))
	return silence, bursts, nil
}

// SplitSequence cuts a rendered sequence back into its bursts: strides
// of noise plus silence, keeping only the noise portions.
func SplitSequence(sequence []float64, sampleRate int, noiseDurationMS, silenceDurationMS float64) [][]float64 {
	noiseSamples := int(float64(sampleRate) * noiseDurationMS / 1000)
	silenceSamples := int(float64(sampleRate) * silenceDurationMS / 1000)
	stride := noiseSamples + silenceSamples
	if noiseSamples <= 0 || stride <= 0 {
		return nil
	}

	var bursts [][]float64
	for offset := 0; offset+noiseSamples <= len(sequence); offset += stride {
		burst := make([]float64, noiseSamples)
		copy(burst, sequence[offset:offset+noiseSamples])
		bursts = append(bursts, burst)
	}
	return bursts
}
