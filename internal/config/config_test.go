package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

// isolateHome points HOME and the XDG config dir at a fresh temp directory.
func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

// chdir switches to dir for the rest of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	})
}

func writeXDGConfig(t *testing.T, home, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".config", AppName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestInit_WithDefaults(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)
	writeXDGConfig(t, tmpDir, DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"backend", "miniaudio"},
		{"device_index", -1},
		{"sample_rate", 44100},
		{"frame_size", 1024},
		{"device_buffer_frames", 4},
		{"poll_interval", "10ms"},
		{"wav_file", ""},
		{"wav_loop", false},
		{"resolution", 80},
		{"min_hz", 0},
		{"max_hz", 400},
		{"window", "rectangular"},
		{"view", "spectrum"},
		{"width", 0},
		{"height", 20},
		{"agc_attack", 0.5},
		{"agc_decay", 0.95},
		{"log_level", "info"},
		{"debug", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.expected {
				t.Errorf("viper.Get(%q) = %v (%T), want %v", tt.key, got, got, tt.expected)
			}
		})
	}
}

func TestInit_CreatesConfigIfMissing(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ".config", AppName, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Errorf("Init() did not create config file at %s", configPath)
	}
}

func TestInit_ReadsLocalConfigFirst(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	writeXDGConfig(t, tmpDir, "resolution: 40")
	chdir(t, tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("resolution: 120"), 0644); err != nil {
		t.Fatalf("failed to write local config: %v", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetInt("resolution"); got != 120 {
		t.Errorf("viper.GetInt(resolution) = %d, want 120 (local config)", got)
	}
}

func TestInit_DotConfigTakesPrecedence(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, ".config.yaml"), []byte("max_hz: 1000"), 0644); err != nil {
		t.Fatalf("failed to write .config.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("max_hz: 2000"), 0644); err != nil {
		t.Fatalf("failed to write config.yaml: %v", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetFloat64("max_hz"); got != 1000 {
		t.Errorf("viper.GetFloat64(max_hz) = %v, want 1000 (.config.yaml should take precedence)", got)
	}
}

func TestInit_InvalidConfigFile(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)
	writeXDGConfig(t, tmpDir, "invalid: yaml: content: [[[")

	if err := Init(); err == nil {
		t.Error("Init() should return error for invalid YAML")
	}
}

func TestGet_ReturnsSettings(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)
	writeXDGConfig(t, tmpDir, DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if settings.Backend != "miniaudio" {
		t.Errorf("Settings.Backend = %q, want miniaudio", settings.Backend)
	}
	if settings.DeviceIndex != -1 {
		t.Errorf("Settings.DeviceIndex = %d, want -1", settings.DeviceIndex)
	}
	if settings.SampleRate != 44100 {
		t.Errorf("Settings.SampleRate = %f, want 44100", settings.SampleRate)
	}
	if settings.FrameSize != 1024 {
		t.Errorf("Settings.FrameSize = %d, want 1024", settings.FrameSize)
	}
	if settings.PollInterval != 10*time.Millisecond {
		t.Errorf("Settings.PollInterval = %v, want 10ms", settings.PollInterval)
	}
	if settings.Resolution != 80 {
		t.Errorf("Settings.Resolution = %d, want 80", settings.Resolution)
	}
	if settings.MinHz != 0 || settings.MaxHz != 400 {
		t.Errorf("Settings range = [%v, %v], want [0, 400]", settings.MinHz, settings.MaxHz)
	}
	if settings.Debug != false {
		t.Errorf("Settings.Debug = %v, want false", settings.Debug)
	}
}

func TestGet_AllFields(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)

	customConfig := `backend: wav
device_index: 2
sample_rate: 48000
frame_size: 2048
device_buffer_frames: 8
poll_interval: 5ms
wav_file: /tmp/tone.wav
wav_loop: true
resolution: 120
min_hz: 50
max_hz: 2000
window: hann
view: pitch
width: 100
height: 30
agc_attack: 0.8
agc_decay: 0.9
log_level: debug
debug: true
`
	writeXDGConfig(t, tmpDir, customConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := Settings{
		Backend:            "wav",
		DeviceIndex:        2,
		SampleRate:         48000,
		FrameSize:          2048,
		DeviceBufferFrames: 8,
		PollInterval:       5 * time.Millisecond,
		WAVFile:            "/tmp/tone.wav",
		WAVLoop:            true,
		Resolution:         120,
		MinHz:              50,
		MaxHz:              2000,
		Window:             "hann",
		View:               "pitch",
		Width:              100,
		Height:             30,
		AGCAttack:          0.8,
		AGCDecay:           0.9,
		LogLevel:           "debug",
		Debug:              true,
	}
	if *settings != want {
		t.Errorf("Get() = %+v\nwant %+v", *settings, want)
	}
}

func TestGet_InvalidSettings(t *testing.T) {
	resetViper()
	tmpDir := isolateHome(t)
	chdir(t, tmpDir)
	writeXDGConfig(t, tmpDir, "resolution: 1\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, err := Get()
	if err == nil || !strings.Contains(err.Error(), "resolution") {
		t.Errorf("Get() error = %v, want resolution error", err)
	}
}

func TestEnsureConfigExists_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config")

	if err := ensureConfigExists(configPath); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	content, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != DefaultConfig {
		t.Errorf("config content does not match DefaultConfig")
	}
}

func TestEnsureConfigExists_DoesNotOverwrite(t *testing.T) {
	configPath := t.TempDir()

	configFile := filepath.Join(configPath, "config.yaml")
	existingContent := "existing: true"
	if err := os.WriteFile(configFile, []byte(existingContent), 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	if err := ensureConfigExists(configPath); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != existingContent {
		t.Errorf("ensureConfigExists() overwrote existing config")
	}
}

func TestEnsureConfigExists_WriteError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping test when running as root")
	}

	configPath := filepath.Join(t.TempDir(), "readonly")
	if err := os.MkdirAll(configPath, 0555); err != nil {
		t.Fatalf("failed to create readonly dir: %v", err)
	}
	defer func() {
		if err := os.Chmod(configPath, 0755); err != nil {
			t.Logf("failed to restore permissions: %v", err)
		}
	}()

	if err := ensureConfigExists(filepath.Join(configPath, "subdir")); err == nil {
		t.Error("ensureConfigExists() should return error for read-only directory")
	}
}

func TestConstants(t *testing.T) {
	if AppName != "micspectrum" {
		t.Errorf("AppName = %q, want %q", AppName, "micspectrum")
	}
	if ConfigType != "yaml" {
		t.Errorf("ConfigType = %q, want %q", ConfigType, "yaml")
	}
}

func TestDefaultConfig_ContainsExpectedKeys(t *testing.T) {
	expectedKeys := []string{
		"backend", "device_index", "sample_rate", "frame_size",
		"device_buffer_frames", "poll_interval", "wav_file", "wav_loop",
		"resolution", "min_hz", "max_hz", "window", "view", "width", "height",
		"agc_attack", "agc_decay", "log_level", "debug",
	}

	for _, key := range expectedKeys {
		if !strings.Contains(DefaultConfig, key+":") {
			t.Errorf("DefaultConfig missing key: %s", key)
		}
	}
}

// Validation tests

func TestSettings_Validate_ValidSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for valid settings", err)
	}
}

func TestSettings_Validate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string // empty for valid
	}{
		{"portaudio backend", func(s *Settings) { s.Backend = "portaudio" }, ""},
		{"unknown backend", func(s *Settings) { s.Backend = "jack" }, "backend"},
		{"wav without file", func(s *Settings) { s.Backend = "wav" }, "wav_file"},
		{"wav with file", func(s *Settings) { s.Backend = "wav"; s.WAVFile = "x.wav" }, ""},
		{"device index below -1", func(s *Settings) { s.DeviceIndex = -2 }, "device_index"},
		{"device index 3", func(s *Settings) { s.DeviceIndex = 3 }, ""},
		{"sample rate too low", func(s *Settings) { s.SampleRate = 7999 }, "sample_rate"},
		{"sample rate maximum", func(s *Settings) { s.SampleRate = 192000 }, ""},
		{"sample rate too high", func(s *Settings) { s.SampleRate = 192001 }, "sample_rate"},
		{"frame size too small", func(s *Settings) { s.FrameSize = 63 }, "frame_size"},
		{"frame size not power of two", func(s *Settings) { s.FrameSize = 1000 }, ""},
		{"frame size too large", func(s *Settings) { s.FrameSize = 16385 }, "frame_size"},
		{"no device buffers", func(s *Settings) { s.DeviceBufferFrames = 0 }, "device_buffer_frames"},
		{"negative poll interval", func(s *Settings) { s.PollInterval = -time.Millisecond }, "poll_interval"},
		{"zero poll interval", func(s *Settings) { s.PollInterval = 0 }, ""},
		{"poll interval too long", func(s *Settings) { s.PollInterval = 2 * time.Second }, "poll_interval"},
		{"resolution 1", func(s *Settings) { s.Resolution = 1 }, "resolution"},
		{"resolution 2", func(s *Settings) { s.Resolution = 2 }, ""},
		{"negative min_hz", func(s *Settings) { s.MinHz = -1 }, "min_hz"},
		{"inverted range", func(s *Settings) { s.MinHz = 300; s.MaxHz = 200 }, "max_hz"},
		{"single frequency", func(s *Settings) { s.MinHz = 300; s.MaxHz = 300 }, ""},
		{"unknown window", func(s *Settings) { s.Window = "kaiser" }, "window"},
		{"blackman window", func(s *Settings) { s.Window = "blackman" }, ""},
		{"unknown view", func(s *Settings) { s.View = "3d" }, "view"},
		{"waveform view", func(s *Settings) { s.View = "waveform" }, ""},
		{"negative width", func(s *Settings) { s.Width = -1 }, "width"},
		{"height too small", func(s *Settings) { s.Height = 3 }, "height"},
		{"zero attack", func(s *Settings) { s.AGCAttack = 0 }, "agc_attack"},
		{"attack above one", func(s *Settings) { s.AGCAttack = 1.1 }, "agc_attack"},
		{"decay above one", func(s *Settings) { s.AGCDecay = 1.1 }, "agc_decay"},
		{"zero decay", func(s *Settings) { s.AGCDecay = 0 }, ""},
		{"unknown log level", func(s *Settings) { s.LogLevel = "verbose" }, "log_level"},
		{"warning log level", func(s *Settings) { s.LogLevel = "warning" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_NyquistFrequency(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		maxHz      float64
		wantErr    bool
	}{
		{"well below nyquist", 44100, 400, false},
		{"just below nyquist", 44100, 22049, false},
		{"at nyquist", 8000, 4000, true},
		{"above nyquist", 8000, 5000, true},
		{"low sample rate valid", 8000, 3999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.SampleRate = tt.sampleRate
			s.MaxHz = tt.maxHz
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_MultipleErrors(t *testing.T) {
	s := &Settings{
		Backend:    "bad", // invalid
		SampleRate: 0,     // invalid
		FrameSize:  1,     // invalid
		Resolution: 0,     // invalid
		MinHz:      -5,    // invalid
		Window:     "bad", // invalid
		View:       "bad", // invalid
		Height:     0,     // invalid
		AGCAttack:  2.0,   // invalid
		AGCDecay:   -1,    // invalid
		LogLevel:   "bad", // invalid
	}

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should return error for multiple invalid fields")
	}

	errStr := err.Error()
	expectedSubstrings := []string{
		"backend",
		"sample_rate",
		"frame_size",
		"device_buffer_frames",
		"resolution",
		"min_hz",
		"window",
		"view",
		"height",
		"agc_attack",
		"agc_decay",
		"log_level",
	}

	for _, substr := range expectedSubstrings {
		if !strings.Contains(errStr, substr) {
			t.Errorf("Validate() error should mention %q, got: %v", substr, errStr)
		}
	}
}

// validSettings returns a Settings struct with all valid values
func validSettings() *Settings {
	return &Settings{
		Backend:            "miniaudio",
		DeviceIndex:        -1,
		SampleRate:         44100,
		FrameSize:          1024,
		DeviceBufferFrames: 4,
		PollInterval:       10 * time.Millisecond,
		Resolution:         80,
		MinHz:              0,
		MaxHz:              400,
		Window:             "rectangular",
		View:               "spectrum",
		Width:              0,
		Height:             20,
		AGCAttack:          0.5,
		AGCDecay:           0.95,
		LogLevel:           "info",
		Debug:              false,
	}
}
