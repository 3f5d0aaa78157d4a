// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ColonelBlimp/micspectrum/internal/analyzer"
	"github.com/ColonelBlimp/micspectrum/internal/audio"
	"github.com/ColonelBlimp/micspectrum/internal/config"
	"github.com/ColonelBlimp/micspectrum/internal/device"
	"github.com/ColonelBlimp/micspectrum/internal/dsp"
	"github.com/ColonelBlimp/micspectrum/internal/recovery"
	"github.com/ColonelBlimp/micspectrum/internal/render"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "micspectrum",
	Short: "Live spectrum analyzer for microphone input",
	Long: `A real-time spectrum analyzer that captures mono audio, projects each
window onto a fixed set of frequency bins and draws the result in the terminal.`,
	SilenceUsage: true,
	RunE:         runAnalyzer,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices for the selected backend",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

// flagBindings maps persistent flags to config keys.
var flagBindings = map[string]string{
	"device":     "device_index",
	"backend":    "backend",
	"file":       "wav_file",
	"resolution": "resolution",
	"min-hz":     "min_hz",
	"max-hz":     "max_hz",
	"view":       "view",
	"debug":      "debug",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().StringP("backend", "b", device.BackendMiniaudio, "capture backend: miniaudio, portaudio or wav")
	rootCmd.PersistentFlags().StringP("file", "f", "", "replay a WAV file instead of a live device")
	rootCmd.PersistentFlags().IntP("resolution", "r", 80, "number of frequency bins")
	rootCmd.PersistentFlags().Float64("min-hz", 0, "frequency of the first bin in Hz")
	rootCmd.PersistentFlags().Float64("max-hz", 400, "frequency of the last bin in Hz")
	rootCmd.PersistentFlags().StringP("view", "v", render.ViewSpectrum, "display: spectrum, waveform or pitch")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	rootCmd.Flags().Uint64P("frames", "n", 0, "stop after this many frames (0 runs until interrupted)")

	rootCmd.AddCommand(devicesCmd)
}

func initConfig() {
	bindFlags()
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags runs on every command initialization so that bindings survive
// a viper reset.
func bindFlags() {
	for flag, key := range flagBindings {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

func runAnalyzer(cmd *cobra.Command, _ []string) error {
	// --file alone selects the wav backend
	if cmd.Flags().Changed("file") && !cmd.Flags().Changed("backend") {
		viper.Set("backend", device.BackendWAV)
	}

	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(settings, cmd.ErrOrStderr())

	engine, err := dsp.NewEngine(dsp.EngineConfig{
		SampleRate: settings.SampleRate,
		FrameSize:  settings.FrameSize,
		Resolution: settings.Resolution,
		MinHz:      settings.MinHz,
		MaxHz:      settings.MaxHz,
		Window:     settings.Window,
	}, dsp.WithLogger(log))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	out := cmd.OutOrStdout()
	screen, err := render.NewTerminal(out, render.Options{
		View:   settings.View,
		Width:  settings.Width,
		Height: settings.Height,
		AGC:    dsp.AGCConfig{Attack: settings.AGCAttack, Decay: settings.AGCDecay},
		Clear:  render.IsTerminal(out),
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	dev, err := device.Open(device.Config{
		Backend:      settings.Backend,
		DeviceIndex:  settings.DeviceIndex,
		SampleRate:   int(settings.SampleRate),
		FrameSize:    settings.FrameSize,
		BufferFrames: settings.DeviceBufferFrames,
		WAVFile:      settings.WAVFile,
		WAVLoop:      settings.WAVLoop,
	}, log)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	src, err := audio.NewSource(dev, settings.FrameSize,
		audio.WithPollInterval(settings.PollInterval),
		audio.WithLogger(log))
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("audio: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.WithError(err).Warn("close capture device")
		}
	}()
	defer recovery.HandlePanicFunc(func() { _ = src.Close() })

	frames, _ := cmd.Flags().GetUint64("frames")
	loop, err := analyzer.New(src, engine, screen,
		analyzer.WithLogger(log),
		analyzer.WithMaxFrames(frames))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"backend":     settings.Backend,
		"sample_rate": settings.SampleRate,
		"frame_size":  settings.FrameSize,
		"resolution":  settings.Resolution,
		"bin_width":   engine.BinWidth(),
	}).Info("analyzer started")

	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	log.WithFields(logrus.Fields{
		"frames":   loop.Frames(),
		"overruns": src.Overruns(),
	}).Info("analyzer stopped")
	return nil
}

func runDevices(cmd *cobra.Command, _ []string) error {
	backend := viper.GetString("backend")
	out := cmd.OutOrStdout()

	if backend == device.BackendWAV {
		fmt.Fprintln(out, "the wav backend replays files and has no devices")
		return nil
	}

	devices, err := device.List(backend)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	for _, d := range devices {
		if d.Details != "" {
			fmt.Fprintf(out, "%3d  %s (%s)\n", d.Index, d.Name, d.Details)
		} else {
			fmt.Fprintf(out, "%3d  %s\n", d.Index, d.Name)
		}
	}
	return nil
}

// newLogger configures the standard logrus logger from settings.
func newLogger(s *config.Settings, out io.Writer) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if s.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}
