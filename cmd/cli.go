// SPDX-License-Identifier: MIT
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"spectrum/internal/config"
	"spectrum/pkg/build"
)

// Options is the parsed command line. Command selects what main runs:
// "" starts the analyzer, "list" prints devices, "export" renders noise
// to a file.
type Options struct {
	Command string

	SettingsPath string
	WSAddr       string
	Verbose      bool

	InputDeviceID  int
	OutputDeviceID int
	Monitor        bool

	SampleRate      int
	FramesPerBuffer int
	FFTSize         int
	WindowType      string
	SourceType      string

	// Export command settings.
	ExportPath     string
	ExportDuration float64
	ExportBitDepth int
	ExportSeed     int64
	ExportCount    int
	ExportSilence  float64
	ExportNorm     float64
	ExportGlobal   bool
	ExportAtten    float64
	CodeTemplate   string
	CodeOutput     string
}

// ParseArgs builds the command tree, executes it against os.Args and
// returns the selected options.
func ParseArgs() (*Options, error) {
	info := build.GetInfo()
	options := &Options{
		InputDeviceID:  config.MinDeviceID,
		OutputDeviceID: config.MinDeviceID,
	}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         "Real-time spectrum analyzer and noise synthesis engine",
		Version:       info.Summary(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = ""
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Render noise to a WAV file without starting the analyzer",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "export"
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&options.ExportPath, "output", "o", "noise.wav",
		"Output WAV file path")
	exportCmd.Flags().Float64VarP(&options.ExportDuration, "duration", "t", 1.0,
		"Duration of each noise burst in seconds")
	exportCmd.Flags().IntVar(&options.ExportBitDepth, "bit-depth", 16,
		"WAV bit depth (16, 24 or 32)")
	exportCmd.Flags().Int64Var(&options.ExportSeed, "seed", -1,
		"RNG seed for reproducible output (-1 for random)")
	exportCmd.Flags().IntVarP(&options.ExportCount, "count", "n", 1,
		"Number of bursts; above 1 renders a burst sequence")
	exportCmd.Flags().Float64Var(&options.ExportSilence, "silence", 190,
		"Silence between bursts in milliseconds")
	exportCmd.Flags().Float64Var(&options.ExportNorm, "normalize", 1.0,
		"Peak normalization target (0 disables)")
	exportCmd.Flags().BoolVar(&options.ExportGlobal, "global-norm", false,
		"Normalize the sequence as a whole instead of per burst")
	exportCmd.Flags().Float64Var(&options.ExportAtten, "attenuation", 0,
		"Post-normalization attenuation in dB (0 disables)")
	exportCmd.Flags().StringVar(&options.CodeTemplate, "code-template", "",
		"Template file for embedded source code generation")
	exportCmd.Flags().StringVar(&options.CodeOutput, "code-output", "noise.h",
		"Output path for generated source code")
	rootCmd.AddCommand(exportCmd)

	// Audio device configuration
	rootCmd.PersistentFlags().IntVarP(&options.InputDeviceID, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().IntVar(&options.OutputDeviceID, "output-device", config.MinDeviceID,
		"Output device ID for monitoring playback")
	rootCmd.PersistentFlags().BoolVarP(&options.Monitor, "monitor", "m", false,
		"Play the analyzed signal back through the output device")
	rootCmd.PersistentFlags().IntVarP(&options.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&options.FramesPerBuffer, "frames-per-buffer", "b", 0,
		"Device buffer size in frames (affects latency; 0 keeps saved settings)")

	// Analysis configuration
	rootCmd.PersistentFlags().IntVarP(&options.FFTSize, "fft-size", "f", 0,
		"Analysis FFT size (power of two recommended; 0 keeps saved settings)")
	rootCmd.PersistentFlags().StringVarP(&options.WindowType, "window", "w", "",
		"Analysis window: hanning, hamming, blackman, flattop, rectangular")
	rootCmd.PersistentFlags().StringVarP(&options.SourceType, "source", "g", "",
		"Signal source: white, spectral or input")

	// Server and persistence configuration
	rootCmd.PersistentFlags().StringVar(&options.WSAddr, "listen", ":8765",
		"WebSocket listen address for spectrum frames")
	rootCmd.PersistentFlags().StringVar(&options.SettingsPath, "settings", "",
		"Settings file path (default: platform config dir)")

	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}
