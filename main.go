// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"spectrum/cmd"
	"spectrum/internal/analysis"
	"spectrum/internal/config"
	"spectrum/internal/export"
	"spectrum/internal/log"
	"spectrum/internal/noise"
	"spectrum/internal/source"
	"spectrum/internal/transport"
	"spectrum/pkg/build"
)

// main drives the program through three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Resolve build information
//   - Parse command line arguments
//   - Execute one-off commands if requested
//   - Initialize PortAudio and load persisted settings
//
// 2. Concurrent Phase (Hot Path):
//   - Start the signal source and its device streams
//   - Run the analysis loop, broadcasting frames over WebSocket
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Persist settings and release audio resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	// Limit OS threads: one for the audio callbacks (time-critical),
	// one for analysis, serving and I/O.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if opts.Verbose {
		log.SetLevel(log.LevelDebug)
	}

	switch opts.Command {
	case "list":
		if err := withPortAudio(source.ListDevices); err != nil {
			log.Fatalf("%v", err)
		}
		return
	case "export":
		if err := runExport(opts); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := withPortAudio(func() error { return runAnalyzer(opts) }); err != nil {
		log.Fatalf("%v", err)
	}
}

// withPortAudio brackets fn with PortAudio initialization and teardown.
func withPortAudio(fn func() error) error {
	if err := source.Initialize(); err != nil {
		return err
	}
	defer source.Terminate()
	return fn()
}

func runAnalyzer(opts *cmd.Options) error {
	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		return err
	}

	cfg := config.New()
	settings.Apply(cfg)

	if !opts.Verbose {
		if level, ok := log.ParseLevel(settings.LogLevel); ok {
			log.SetLevel(level)
		}
	}

	// Command line flags override the persisted settings.
	if opts.SampleRate > 0 {
		cfg.SampleRate = opts.SampleRate
	}
	if opts.FramesPerBuffer > 0 {
		cfg.InputBufferSize = opts.FramesPerBuffer
		cfg.OutputBufferSize = opts.FramesPerBuffer
	}
	if opts.FFTSize > 0 {
		cfg.SetFFTSize(opts.FFTSize)
	}
	if opts.WindowType != "" {
		cfg.SetWindowType(opts.WindowType)
	}
	cfg.InputDeviceID = opts.InputDeviceID
	cfg.OutputDeviceID = opts.OutputDeviceID
	if opts.Monitor {
		cfg.SetMonitoringEnabled(true)
	}
	cfg.OnOverflow = func() {
		log.Warnf("input overflow, samples dropped")
	}
	cfg.OnUnderflow = func() {
		log.Debugf("monitor underflow, playing silence")
	}

	sourceType := settings.Source.SourceType
	if opts.SourceType != "" {
		sourceType = opts.SourceType
	}

	src, err := openSource(cfg, sourceType)
	if err != nil {
		return err
	}

	proc := analysis.NewProcessor(cfg)
	proc.SetSource(src)
	proc.SetTriggerLevel(cfg.TriggerLevel)

	ws, err := transport.NewWebSocketTransport(opts.WSAddr)
	if err != nil {
		proc.Close()
		return err
	}

	log.Infof("%s started, source=%s rate=%d fft=%d",
		build.GetInfo().Summary(), sourceType, cfg.SampleRate, cfg.FFTSize())

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				freqs, spec := proc.Process()
				if err := ws.Send(transport.Frame{Frequencies: freqs, MagnitudesDB: spec}); err != nil {
					log.Debugf("frame send failed: %v", err)
				}
			}
		}
	}()

	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	close(stop)

	if err := ws.Close(); err != nil {
		log.Errorf("closing transport: %v", err)
	}
	if err := proc.Close(); err != nil {
		log.Errorf("closing processor: %v", err)
	}

	if err := config.SaveSettings(opts.SettingsPath, config.Snapshot(cfg, sourceType)); err != nil {
		log.Errorf("saving settings: %v", err)
	}
	return nil
}

// openSource builds the signal source named by sourceType. Noise
// sources open an output stream only when monitoring is enabled.
func openSource(cfg *config.AudioConfig, sourceType string) (source.Source, error) {
	if sourceType == "input" {
		cfg.InputDeviceEnabled = true
		cfg.OutputDeviceEnabled = cfg.MonitoringEnabled()
		return source.NewMonitoredInputSource(cfg)
	}

	kind, err := noise.ParseType(sourceType)
	if err != nil {
		return nil, err
	}
	cfg.OutputDeviceEnabled = cfg.MonitoringEnabled()
	return source.NewNoiseSource(cfg, kind)
}

// runExport renders noise offline and writes it to a WAV file. It never
// touches the audio devices.
func runExport(opts *cmd.Options) error {
	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = "white"
	}
	if sourceType == "input" {
		return fmt.Errorf("export renders synthesized noise; source must be white or spectral")
	}
	kind, err := noise.ParseType(sourceType)
	if err != nil {
		return err
	}

	gen := noise.NewGenerator(nil, config.DefaultRNGType)

	ropts := export.DefaultOptions()
	if opts.ExportSeed >= 0 {
		ropts.UseRandomSeed = false
		ropts.Seed = opts.ExportSeed
	}
	if opts.ExportNorm <= 0 {
		ropts.EnableNormalization = false
	} else {
		ropts.NormalizeValue = opts.ExportNorm
	}
	if opts.ExportAtten > 0 {
		ropts.EnableAttenuation = true
		ropts.AttenuationDB = opts.ExportAtten
	}

	var signal []float64
	var bursts [][]float64
	var silenceSamples int
	if opts.ExportCount > 1 {
		silence, seq, err := export.RenderSequence(gen, export.SequenceSettings{
			Count:               opts.ExportCount,
			DurationMS:          opts.ExportDuration * 1000,
			SilenceMS:           opts.ExportSilence,
			SampleRate:          opts.SampleRate,
			Kind:                kind,
			Options:             ropts,
			GlobalNormalization: opts.ExportGlobal,
		})
		if err != nil {
			return err
		}
		bursts = seq
		silenceSamples = len(silence)
		for _, b := range bursts {
			signal = append(signal, b...)
			signal = append(signal, silence...)
		}
	} else {
		signal, err = export.Render(gen, kind, opts.ExportDuration, opts.SampleRate, ropts)
		if err != nil {
			return err
		}
	}

	if err := export.WriteWAV(opts.ExportPath, signal, opts.SampleRate, opts.ExportBitDepth); err != nil {
		return err
	}
	fmt.Printf("Wrote %d samples to %s\n", len(signal), opts.ExportPath)

	if opts.CodeTemplate != "" {
		if err := writeCode(opts, sourceType, signal, bursts, silenceSamples); err != nil {
			return err
		}
	}
	return nil
}

// writeCode renders the code template against the exported audio. A
// multi-burst export uses the carousel mode, a single render embeds the
// whole signal as one array.
func writeCode(opts *cmd.Options, sourceType string, signal []float64, bursts [][]float64, silenceSamples int) error {
	text, err := os.ReadFile(opts.CodeTemplate)
	if err != nil {
		return fmt.Errorf("reading code template: %w", err)
	}

	code, err := export.GenerateCode(signal, export.CodeSettings{
		Carousel:       len(bursts) > 0,
		Bursts:         bursts,
		SilenceSamples: silenceSamples,
		GeneratorType:  sourceType,
		Template:       export.CodeTemplate{Text: string(text)},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.CodeOutput, []byte(code), 0o644); err != nil {
		return fmt.Errorf("writing generated code: %w", err)
	}
	fmt.Printf("Wrote generated code to %s\n", opts.CodeOutput)
	return nil
}
