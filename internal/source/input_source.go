// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectrum/internal/config"
	"spectrum/internal/filter"
	"spectrum/internal/log"
)

const (
	rawQueueCap    = 128
	resultQueueCap = 32
	readTimeout    = 5 * time.Millisecond
	closeTimeout   = 500 * time.Millisecond
	minRingSize    = 8192
)

// MonitoredInputSource captures live audio. The device callback writes
// into a ring buffer and hands chunks to a worker goroutine that cuts
// them into half-overlapping FFT-sized windows, runs the filter chain,
// and queues the results for the analyzer. An optional output stream
// replays the ring for monitoring.
type MonitoredInputSource struct {
	cfg   *config.AudioConfig
	chain *filter.Chain

	ring *ringBuffer

	raw     chan []float64
	results chan []float64

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	inputStream  *portaudio.Stream
	outputStream *portaudio.Stream

	monitorBuf []float64
}

// ringCapacity sizes the ring for a given block length: room for 16
// blocks, never below the floor. Both the constructor and the FFT-size
// reset path use this one rule.
func ringCapacity(blockSize int) int {
	c := 16 * blockSize
	if c < minRingSize {
		c = minRingSize
	}
	return c
}

// NewMonitoredInputSource opens the capture stream (and the playback
// stream when an output device is enabled) and starts the FFT worker.
// Any stream failure tears down whatever was already opened.
func NewMonitoredInputSource(cfg *config.AudioConfig) (*MonitoredInputSource, error) {
	s := &MonitoredInputSource{
		cfg:     cfg,
		chain:   filter.NewChain(),
		ring:    newRingBuffer(ringCapacity(cfg.InputBufferSize)),
		raw:     make(chan []float64, rawQueueCap),
		results: make(chan []float64, resultQueueCap),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.running.Store(true)

	if err := s.openInput(); err != nil {
		return nil, err
	}
	if cfg.OutputDeviceEnabled {
		if err := s.openOutput(); err != nil {
			s.closeStream(&s.inputStream)
			return nil, err
		}
	}

	go s.fftWorker()
	return s, nil
}

func (s *MonitoredInputSource) openInput() error {
	dev, err := InputDevice(s.cfg.InputDeviceID)
	if err != nil {
		return fmt.Errorf("resolving input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.cfg.Channels,
			Device:   dev,
			Latency:  dev.DefaultLowInputLatency,
		},
		FramesPerBuffer: s.cfg.InputBufferSize,
		SampleRate:      float64(s.cfg.SampleRate),
	}
	stream, err := portaudio.OpenStream(params, s.inputCallback)
	if err != nil {
		return fmt.Errorf("opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("starting input stream: %w", err)
	}
	s.inputStream = stream
	log.Debugf("input stream started on %q", dev.Name)
	return nil
}

func (s *MonitoredInputSource) openOutput() error {
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
		return fmt.Errorf("opening monitor stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("starting monitor stream: %w", err)
	}
	s.outputStream = stream
	log.Debugf("monitor stream started on %q", dev.Name)
	return nil
}

// inputCallback runs on the capture thread. Samples go to the ring and,
// via the bounded raw channel, to the FFT worker. When the channel
// nears capacity the oldest chunks are dropped in one batch so capture
// latency never builds up.
func (s *MonitoredInputSource) inputCallback(in []float32) {
	if !s.running.Load() {
		return
	}

	chunk := make([]float64, len(in))
	for i, v := range in {
		chunk[i] = float64(v)
	}
	s.ring.Write(chunk)

	if len(s.raw) >= rawQueueCap*4/5 {
		target := rawQueueCap / 5
	drain:
		for len(s.raw) > target {
			select {
			case <-s.raw:
			default:
				break drain
			}
		}
		if s.cfg.OnOverflow != nil {
			s.cfg.OnOverflow()
		}
	}

	select {
	case s.raw <- chunk:
	default:
	}
}

// outputCallback replays captured audio at the monitor cursor.
func (s *MonitoredInputSource) outputCallback(out []float32) {
	if !s.running.Load() || !s.cfg.MonitoringEnabled() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	if len(s.monitorBuf) != len(out) {
		s.monitorBuf = make([]float64, len(out))
	}
	if !s.ring.ReadMonitor(s.monitorBuf) && s.cfg.OnUnderflow != nil {
		s.cfg.OnUnderflow()
	}

	vol := s.cfg.MonitoringVolume()
	for i, v := range s.monitorBuf {
		v *= vol
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
}

// fftWorker accumulates raw chunks and produces filtered FFT-sized
// windows with 50% overlap. It also watches for FFT size changes and
// resets all buffering when one lands.
func (s *MonitoredInputSource) fftWorker() {
	defer close(s.done)

	var buf []float64
	lastSize := s.cfg.FFTSize()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-s.stop:
			return
		case chunk := <-s.raw:
			buf = append(buf, chunk...)
		case <-poll.C:
		}

		if n := s.cfg.FFTSize(); n != lastSize {
			lastSize = n
			buf = buf[:0]
			s.ring.Reset(ringCapacity(n))
			s.drainResults()
			continue
		}

		n := lastSize
		for len(buf) >= n {
			window := make([]float64, n)
			copy(window, buf[:n])
			buf = buf[n/2:]
			s.pushResult(s.chain.Apply(window))
		}
	}
}

// pushResult queues a processed window, evicting the oldest result
// when the queue runs hot so readers always see fresh data.
func (s *MonitoredInputSource) pushResult(spec []float64) {
	if len(s.results) >= cap(s.results)/2 {
		select {
		case <-s.results:
		default:
		}
	}
	select {
	case s.results <- spec:
	default:
	}
}

func (s *MonitoredInputSource) drainResults() {
	for {
		select {
		case <-s.results:
		default:
			return
		}
	}
}

// ReadAnalysis returns the freshest processed window. If the worker
// has nothing ready within readTimeout it falls back to filtering a
// window straight off the ring, and failing that returns zeros. It
// never blocks the caller for long.
func (s *MonitoredInputSource) ReadAnalysis() []float64 {
	if !s.running.Load() {
		return nil
	}
	n := s.cfg.FFTSize()

	select {
	case spec := <-s.results:
		if len(spec) == n {
			return spec
		}
		// Stale window from before a size change; fall through.
	case <-time.After(readTimeout):
	}

	out := make([]float64, n)
	if s.ring.ReadAnalysis(out) {
		return s.chain.Apply(out)
	}
	return out
}

// Read returns the next raw display-rate chunk, zeros if the ring has
// not accumulated enough samples.
func (s *MonitoredInputSource) Read() []float64 {
	out := make([]float64, s.cfg.ChunkSize)
	if !s.running.Load() {
		return out
	}
	s.ring.ReadAnalysis(out)
	return out
}

// Filters returns the chain applied to analysis windows.
func (s *MonitoredInputSource) Filters() *filter.Chain { return s.chain }

// Running reports whether the source is active.
func (s *MonitoredInputSource) Running() bool { return s.running.Load() }

// Live reports true: this is device input, so trigger and decay apply.
func (s *MonitoredInputSource) Live() bool { return true }

func (s *MonitoredInputSource) closeStream(stream **portaudio.Stream) error {
	if *stream == nil {
		return nil
	}
	if err := (*stream).Stop(); err != nil {
		log.Warnf("stopping stream: %v", err)
	}
	err := (*stream).Close()
	*stream = nil
	return err
}

// Close flips the running flag first so device callbacks and readers
// go quiet, then tears down the streams and joins the worker.
func (s *MonitoredInputSource) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if err := s.closeStream(&s.inputStream); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing input stream: %w", err)
	}
	if err := s.closeStream(&s.outputStream); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing monitor stream: %w", err)
	}

	close(s.stop)
	for {
		select {
		case <-s.raw:
			continue
		default:
		}
		break
	}
	s.drainResults()

	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		log.Warnf("fft worker did not exit within %v", closeTimeout)
	}
	return firstErr
}
