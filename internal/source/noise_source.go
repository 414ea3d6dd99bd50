// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"spectrum/internal/config"
	"spectrum/internal/export"
	"spectrum/internal/filter"
	"spectrum/internal/log"
	"spectrum/internal/noise"
)

// NoiseSource synthesizes noise on demand. Analysis chunks are
// generated straight from the generator; when an output device is
// enabled the same generator feeds a playback stream for monitoring.
type NoiseSource struct {
	cfg   *config.AudioConfig
	gen   *noise.Generator
	chain *filter.Chain

	mu    sync.Mutex
	kind  noise.Type
	synth []float64 // spectral-mode refill buffer

	running bool
	runMu   sync.RWMutex

	stream *portaudio.Stream
}

// NewNoiseSource creates a noise source of the given kind. If the
// config enables an output device the playback stream is opened and
// started here; failures propagate and leave nothing running.
func NewNoiseSource(cfg *config.AudioConfig, kind noise.Type) (*NoiseSource, error) {
	chain := filter.NewChain()
	s := &NoiseSource{
		cfg:     cfg,
		gen:     noise.NewGenerator(chain, cfg.RNGType),
		chain:   chain,
		kind:    kind,
		running: true,
	}

	if cfg.OutputDeviceEnabled {
		if err := s.openOutput(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *NoiseSource) openOutput() error {
	dev, err := OutputDevice(s.cfg.OutputDeviceID)
	if err != nil {
		return fmt.Errorf("resolving output device: %w", err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: s.cfg.Channels,
			Device:   dev,
			Latency:  dev.DefaultLowOutputLatency,
		},
		FramesPerBuffer: s.cfg.OutputBufferSize,
		SampleRate:      float64(s.cfg.SampleRate),
	}
	stream, err := portaudio.OpenStream(params, s.outputCallback)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("starting output stream: %w", err)
	}
	s.stream = stream
	log.Debugf("noise source output stream started on %q", dev.Name)
	return nil
}

// outputCallback runs on the device thread. It must not block or
// allocate more than the synthesis itself does.
func (s *NoiseSource) outputCallback(out []float32) {
	if !s.Running() || !s.cfg.MonitoringEnabled() {
		for i := range out {
			out[i] = 0
		}
		return
	}
	chunk := s.generateChunk(len(out))
	vol := s.cfg.MonitoringVolume()
	for i := range out {
		v := chunk[i] * vol
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
}

// generateChunk produces exactly frames samples in the current mode.
// White noise is generated at the requested size; spectral noise is
// synthesized in SpectralSize blocks for frequency resolution and
// sliced out of a refill buffer.
func (s *NoiseSource) generateChunk(frames int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr := float64(s.cfg.SampleRate)
	if s.kind == noise.Spectral {
		amp := s.cfg.AmpSpectral()
		for len(s.synth) < frames {
			block := s.gen.Generate(s.cfg.SpectralSize, sr, noise.Spectral)
			for i := range block {
				block[i] *= amp
			}
			s.synth = append(s.synth, block...)
		}
		out := make([]float64, frames)
		copy(out, s.synth)
		s.synth = s.synth[frames:]
		return out
	}

	data := s.gen.Generate(frames, sr, noise.White)
	if amp := s.cfg.AmpWhite(); amp != 1 {
		for i := range data {
			data[i] *= amp
		}
	}
	return data
}

// Read returns the next display-rate chunk.
func (s *NoiseSource) Read() []float64 {
	if !s.Running() {
		return make([]float64, s.cfg.ChunkSize)
	}
	return s.generateChunk(s.cfg.ChunkSize)
}

// ReadAnalysis returns an FFT-sized chunk. Filtering happens inside
// the generator for white noise; spectral noise is already shaped.
func (s *NoiseSource) ReadAnalysis() []float64 {
	if !s.Running() {
		return nil
	}
	return s.generateChunk(s.cfg.FFTSize())
}

// Filters returns the chain shared with the generator.
func (s *NoiseSource) Filters() *filter.Chain { return s.chain }

// Generator exposes the underlying generator for component edits and
// export.
func (s *NoiseSource) Generator() *noise.Generator { return s.gen }

// Kind returns the current synthesis mode.
func (s *NoiseSource) Kind() noise.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// SetKind switches the synthesis mode and discards any buffered
// spectral samples.
func (s *NoiseSource) SetKind(kind noise.Type) {
	s.mu.Lock()
	s.kind = kind
	s.synth = nil
	s.mu.Unlock()
}

// ExportSignal renders duration seconds of the current noise kind
// through the offline export pipeline. Playback keeps running; the
// render shares the generator, so seed and amplitude options apply to
// both.
func (s *NoiseSource) ExportSignal(duration float64, opts export.Options) ([]float64, error) {
	return export.Render(s.gen, s.Kind(), duration, s.cfg.SampleRate, opts)
}

// ExportSequence renders a burst sequence at the current kind and
// sample rate.
func (s *NoiseSource) ExportSequence(settings export.SequenceSettings) ([]float64, [][]float64, error) {
	settings.Kind = s.Kind()
	settings.SampleRate = s.cfg.SampleRate
	return export.RenderSequence(s.gen, settings)
}

// Running reports whether the source is active.
func (s *NoiseSource) Running() bool {
	s.runMu.RLock()
	defer s.runMu.RUnlock()
	return s.running
}

// Live reports false: synthesized noise is not device input.
func (s *NoiseSource) Live() bool { return false }

// Close stops playback and marks the source stopped.
func (s *NoiseSource) Close() error {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()

	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			log.Warnf("stopping output stream: %v", err)
		}
		if err := s.stream.Close(); err != nil {
			return fmt.Errorf("closing output stream: %w", err)
		}
		s.stream = nil
	}
	return nil
}
