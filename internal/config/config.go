// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	AppName       = "micspectrum"
	ConfigType    = "yaml"
	DefaultConfig = `# Mic Spectrum Configuration

# Capture device settings
backend: "miniaudio"      # miniaudio, portaudio or wav
device_index: -1          # -1 for default device (see 'micspectrum devices')
sample_rate: 44100        # Capture sample rate in Hz
frame_size: 1024          # Analysis window length in samples (also the device buffer)
device_buffer_frames: 4   # Device buffers queued before the oldest samples are dropped
poll_interval: "10ms"     # Sleep between polls while the device has no samples

# WAV replay (backend: wav)
wav_file: ""              # Path to a PCM WAV file
wav_loop: false           # Restart at the end instead of exiting

# Spectrum
resolution: 80            # Number of frequency bins
min_hz: 0                 # Frequency of the first bin
max_hz: 400               # Frequency of the last bin (below sample_rate/2)
window: "rectangular"     # Analysis taper: rectangular, hann, hamming, blackman

# Display
view: "spectrum"          # spectrum, waveform or pitch
width: 0                  # Columns, 0 = terminal width
height: 20                # Rows used by the spectrum and waveform views
agc_attack: 0.5           # Display AGC attack (0.0-1.0], how fast bars follow louder input
agc_decay: 0.95           # Display AGC decay per frame [0.0-1.0], higher = slower fall

# Logging
log_level: "info"         # panic, fatal, error, warn, info, debug, trace
debug: false              # Force debug logging
`
)

// Settings holds all application configuration
type Settings struct {
	// Capture device settings
	Backend            string        `mapstructure:"backend"`
	DeviceIndex        int           `mapstructure:"device_index"`
	SampleRate         float64       `mapstructure:"sample_rate"`
	FrameSize          int           `mapstructure:"frame_size"`
	DeviceBufferFrames int           `mapstructure:"device_buffer_frames"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`

	// WAV replay
	WAVFile string `mapstructure:"wav_file"`
	WAVLoop bool   `mapstructure:"wav_loop"`

	// Spectrum
	Resolution int     `mapstructure:"resolution"`
	MinHz      float64 `mapstructure:"min_hz"`
	MaxHz      float64 `mapstructure:"max_hz"`
	Window     string  `mapstructure:"window"`

	// Display
	View      string  `mapstructure:"view"`
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	AGCAttack float64 `mapstructure:"agc_attack"`
	AGCDecay  float64 `mapstructure:"agc_decay"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/micspectrum/
func Init() error {
	// Set defaults
	viper.SetDefault("backend", "miniaudio")
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("frame_size", 1024)
	viper.SetDefault("device_buffer_frames", 4)
	viper.SetDefault("poll_interval", "10ms")
	viper.SetDefault("wav_file", "")
	viper.SetDefault("wav_loop", false)
	viper.SetDefault("resolution", 80)
	viper.SetDefault("min_hz", 0)
	viper.SetDefault("max_hz", 400)
	viper.SetDefault("window", "rectangular")
	viper.SetDefault("view", "spectrum")
	viper.SetDefault("width", 0)
	viper.SetDefault("height", 20)
	viper.SetDefault("agc_attack", 0.5)
	viper.SetDefault("agc_decay", 0.95)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

var (
	validBackends = map[string]bool{"miniaudio": true, "portaudio": true, "wav": true}
	validWindows  = map[string]bool{"rectangular": true, "hann": true, "hamming": true, "blackman": true}
	validViews    = map[string]bool{"spectrum": true, "waveform": true, "pitch": true}
	validLevels   = map[string]bool{
		"panic": true, "fatal": true, "error": true, "warn": true,
		"warning": true, "info": true, "debug": true, "trace": true,
	}
)

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Capture device settings
	if !validBackends[s.Backend] {
		errs = append(errs, fmt.Errorf("backend must be one of miniaudio, portaudio, wav, got %q", s.Backend))
	}
	if s.DeviceIndex < -1 {
		errs = append(errs, fmt.Errorf("device_index must be -1 (default) or a device index, got %d", s.DeviceIndex))
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.FrameSize < 64 || s.FrameSize > 16384 {
		errs = append(errs, fmt.Errorf("frame_size must be between 64 and 16384, got %d", s.FrameSize))
	}
	if s.DeviceBufferFrames < 1 || s.DeviceBufferFrames > 64 {
		errs = append(errs, fmt.Errorf("device_buffer_frames must be between 1 and 64, got %d", s.DeviceBufferFrames))
	}
	if s.PollInterval < 0 || s.PollInterval > time.Second {
		errs = append(errs, fmt.Errorf("poll_interval must be between 0 and 1s, got %v", s.PollInterval))
	}

	// WAV replay
	if s.Backend == "wav" && s.WAVFile == "" {
		errs = append(errs, errors.New("wav_file is required when backend is wav"))
	}

	// Spectrum
	if s.Resolution < 2 || s.Resolution > 4096 {
		errs = append(errs, fmt.Errorf("resolution must be between 2 and 4096, got %d", s.Resolution))
	}
	if s.MinHz < 0 {
		errs = append(errs, fmt.Errorf("min_hz must not be negative, got %v", s.MinHz))
	}
	if s.MaxHz < s.MinHz {
		errs = append(errs, fmt.Errorf("max_hz (%v Hz) must not be below min_hz (%v Hz)", s.MaxHz, s.MinHz))
	}
	if !validWindows[s.Window] {
		errs = append(errs, fmt.Errorf("window must be one of rectangular, hann, hamming, blackman, got %q", s.Window))
	}

	// Display
	if !validViews[s.View] {
		errs = append(errs, fmt.Errorf("view must be one of spectrum, waveform, pitch, got %q", s.View))
	}
	if s.Width < 0 || s.Width > 1000 {
		errs = append(errs, fmt.Errorf("width must be between 0 (auto) and 1000, got %d", s.Width))
	}
	if s.Height < 4 || s.Height > 200 {
		errs = append(errs, fmt.Errorf("height must be between 4 and 200, got %d", s.Height))
	}
	if s.AGCAttack <= 0.0 || s.AGCAttack > 1.0 {
		errs = append(errs, fmt.Errorf("agc_attack must be in (0.0, 1.0], got %v", s.AGCAttack))
	}
	if s.AGCDecay < 0.0 || s.AGCDecay > 1.0 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.0 and 1.0, got %v", s.AGCDecay))
	}

	// Logging
	if !validLevels[s.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level must be one of panic, fatal, error, warn, info, debug, trace, got %q", s.LogLevel))
	}

	// Nyquist check: the top bin must be below half the sample rate
	if s.MaxHz >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("max_hz (%v Hz) must be less than Nyquist frequency (%v Hz)", s.MaxHz, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
