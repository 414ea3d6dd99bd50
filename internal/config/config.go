package config

import (
	"math"
	"sync"
	"sync/atomic"
)

// Core configuration constants that define the boundaries and defaults
// for the audio engine.
const (
	// Default values for the audio engine configuration
	DefaultSampleRate       = 44100 // CD-quality audio
	DefaultChannels         = 1     // Mono audio
	DefaultChunkSize        = 1024  // Processing chunk size
	DefaultBufferSize       = 1024  // Universal buffer size
	DefaultInputBufferSize  = 1024  // Input device block size
	DefaultOutputBufferSize = 1024  // Output device block size
	DefaultSpectralSize     = 8192  // Spectral synthesis block, sized for frequency resolution
	DefaultFFTSize          = 2048  // Analysis FFT size
	DefaultWindowType       = "hanning"
	DefaultScaleType        = "linear"
	DefaultAveragingCount   = 4
	DefaultMinDB            = -90.0
	DefaultMaxDB            = 0.0
	DefaultTriggerLevel     = -45.0
	DefaultMonitoringVolume = 0.2
	DefaultRNGType          = "uniform"

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
)

// AudioConfig holds the process-wide configuration shared by every core
// component. It is created once at startup and passed by pointer; the
// fields mutated at runtime from the control surface while audio threads
// read them sit behind atomic accessors, everything else is set before
// the streams start and treated as read-only afterwards.
type AudioConfig struct {
	// Audio I/O settings (fixed once streams are open).
	SampleRate       int
	Channels         int
	ChunkSize        int
	BufferSize       int
	InputBufferSize  int
	OutputBufferSize int
	SpectralSize     int

	// Analysis settings read by the foreground processing loop only.
	ScaleType      string
	AveragingCount int
	MinDB          float64
	MaxDB          float64
	TriggerLevel   float64

	// Device selection.
	InputDeviceID       int
	OutputDeviceID      int
	InputDeviceEnabled  bool
	OutputDeviceEnabled bool

	// RNG distribution for noise synthesis ("uniform" or "standard_normal").
	RNGType string

	// Status callbacks supplied by the caller. Fire-and-forget; invoked
	// from device callback threads, so they must not block.
	OnOverflow  func()
	OnUnderflow func()

	fftSize           atomic.Int64
	monitoringEnabled atomic.Bool
	monitoringVolume  atomicFloat
	ampWhite          atomicFloat
	ampSpectral       atomicFloat

	windowMu   sync.RWMutex
	windowType string
}

// atomicFloat stores a float64 as raw bits for lock-free access from
// device callbacks.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// New creates an AudioConfig populated with default values.
func New() *AudioConfig {
	c := &AudioConfig{
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
		ChunkSize:        DefaultChunkSize,
		BufferSize:       DefaultBufferSize,
		InputBufferSize:  DefaultInputBufferSize,
		OutputBufferSize: DefaultOutputBufferSize,
		SpectralSize:     DefaultSpectralSize,
		ScaleType:        DefaultScaleType,
		AveragingCount:   DefaultAveragingCount,
		MinDB:            DefaultMinDB,
		MaxDB:            DefaultMaxDB,
		TriggerLevel:     DefaultTriggerLevel,
		InputDeviceID:    MinDeviceID,
		OutputDeviceID:   MinDeviceID,
		RNGType:          DefaultRNGType,
		windowType:       DefaultWindowType,
	}
	c.fftSize.Store(DefaultFFTSize)
	c.monitoringVolume.Store(DefaultMonitoringVolume)
	c.ampWhite.Store(1.0)
	c.ampSpectral.Store(1.0)
	return c
}

// FFTSize returns the current analysis FFT size.
func (c *AudioConfig) FFTSize() int {
	return int(c.fftSize.Load())
}

// SetFFTSize changes the analysis FFT size. Components holding
// size-dependent caches (windows, filter masks, ring buffers) observe
// the new value on their next processing tick and resize themselves;
// values below 1 are ignored.
func (c *AudioConfig) SetFFTSize(n int) {
	if n < 1 {
		return
	}
	c.fftSize.Store(int64(n))
}

// WindowType returns the configured analysis window name.
func (c *AudioConfig) WindowType() string {
	c.windowMu.RLock()
	defer c.windowMu.RUnlock()
	return c.windowType
}

// SetWindowType sets the analysis window name.
func (c *AudioConfig) SetWindowType(name string) {
	c.windowMu.Lock()
	c.windowType = name
	c.windowMu.Unlock()
}

// MonitoringEnabled reports whether live monitoring playback is on.
func (c *AudioConfig) MonitoringEnabled() bool { return c.monitoringEnabled.Load() }

// SetMonitoringEnabled toggles live monitoring playback.
func (c *AudioConfig) SetMonitoringEnabled(on bool) { c.monitoringEnabled.Store(on) }

// MonitoringVolume returns the monitoring playback gain (0..1).
func (c *AudioConfig) MonitoringVolume() float64 { return c.monitoringVolume.Load() }

// SetMonitoringVolume sets the monitoring playback gain, clamped to [0, 1].
func (c *AudioConfig) SetMonitoringVolume(v float64) {
	c.monitoringVolume.Store(math.Min(1, math.Max(0, v)))
}

// AmpWhite returns the white-noise playback amplitude.
func (c *AudioConfig) AmpWhite() float64 { return c.ampWhite.Load() }

// SetAmpWhite sets the white-noise playback amplitude.
func (c *AudioConfig) SetAmpWhite(v float64) { c.ampWhite.Store(v) }

// AmpSpectral returns the spectral-noise playback amplitude.
func (c *AudioConfig) AmpSpectral() float64 { return c.ampSpectral.Load() }

// SetAmpSpectral sets the spectral-noise playback amplitude.
func (c *AudioConfig) SetAmpSpectral(v float64) { c.ampSpectral.Store(v) }

// Nyquist returns half the sample rate in Hz.
func (c *AudioConfig) Nyquist() float64 {
	return float64(c.SampleRate) / 2
}
