package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jscyril/golang_midi_player/internal/backend"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MIDIPLAYER_"

// Config holds application configuration
type Config struct {
	MusicDirectories []string          `json:"music_directories"`
	DefaultVolume    float64           `json:"default_volume"`
	Theme            string            `json:"theme"`
	KeyBindings      KeyMap            `json:"key_bindings"`
	DataDir          string            `json:"data_dir"`
	Backend          string            `json:"backend"`
	MIDIPort         string            `json:"midi_port"`
	SoundFont        string            `json:"soundfont"`
	SampleRate       int               `json:"sample_rate"`
	BufferFrames     int               `json:"buffer_frames"`
	RenderTailMs     int               `json:"render_tail_ms"`
	FixedPoint       bool              `json:"fixed_point"`
	FakeVolume       bool              `json:"fake_volume"`
	Loop             bool              `json:"loop"`
	ScanWorkers      int               `json:"scan_workers"`
	LogLevel         string            `json:"log_level"`
	LogScopes        map[string]string `json:"log_scopes,omitempty"`
	LogFile          string            `json:"log_file"`
}

// KeyMap defines keyboard shortcuts
type KeyMap struct {
	PlayPause   string `json:"play_pause"`
	Stop        string `json:"stop"`
	Next        string `json:"next"`
	Previous    string `json:"previous"`
	VolumeUp    string `json:"volume_up"`
	VolumeDown  string `json:"volume_down"`
	SeekForward string `json:"seek_forward"`
	SeekBack    string `json:"seek_back"`
	Quit        string `json:"quit"`
	Search      string `json:"search"`
	Library     string `json:"library"`
	Stats       string `json:"stats"`
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	return &Config{
		MusicDirectories: []string{},
		DefaultVolume:    0.25,
		Theme:            "dark",
		DataDir:          "./data",
		Backend:          backend.NameSoftSynth,
		SampleRate:       44100,
		BufferFrames:     2048,
		RenderTailMs:     2000,
		ScanWorkers:      4,
		LogLevel:         "info",
		KeyBindings: KeyMap{
			PlayPause:   " ",
			Stop:        "s",
			Next:        "n",
			Previous:    "p",
			VolumeUp:    "+",
			VolumeDown:  "-",
			SeekForward: "right",
			SeekBack:    "left",
			Quit:        "q",
			Search:      "/",
			Library:     "l",
			Stats:       "i",
		},
	}
}

// LoadConfig reads and unmarshals configuration from file. Missing keys
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// SaveConfig marshals and saves configuration to file
func SaveConfig(config *Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadOrCreate loads config from path or creates default if not exists
func LoadOrCreate(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Save default config if file didn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(config, path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	return config, nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		return path
	}

	// Use XDG config directory if available
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "midiplay", "config.json")
	}

	// Fall back to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(home, ".config", "midiplay", "config.json")
}

// LoadEnvFiles loads dotenv files into the environment without replacing
// variables that are already set. With no arguments ".env" is tried.
// Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from MIDIPLAYER_* variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("BACKEND", &c.Backend)
	str("MIDI_PORT", &c.MIDIPort)
	str("SOUNDFONT", &c.SoundFont)
	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	str("THEME", &c.Theme)

	if v, ok := os.LookupEnv(EnvPrefix + "MUSIC_DIRS"); ok {
		c.MusicDirectories = filepath.SplitList(v)
	}

	ints := map[string]*int{
		"SAMPLE_RATE":    &c.SampleRate,
		"BUFFER_FRAMES":  &c.BufferFrames,
		"RENDER_TAIL_MS": &c.RenderTailMs,
		"SCAN_WORKERS":   &c.ScanWorkers,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"FIXED_POINT": &c.FixedPoint,
		"FAKE_VOLUME": &c.FakeVolume,
		"LOOP":        &c.Loop,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "VOLUME"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sVOLUME: %w", EnvPrefix, err)
		}
		c.DefaultVolume = f
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DefaultVolume < 0 || c.DefaultVolume > 1 {
		return fmt.Errorf("default_volume %v outside [0,1]", c.DefaultVolume)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate %d outside 8000-192000", c.SampleRate)
	}
	if c.BufferFrames < 0 {
		return fmt.Errorf("buffer_frames %d is negative", c.BufferFrames)
	}
	switch strings.ToLower(c.Backend) {
	case backend.NameSoftSynth, backend.NameNative:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// BackendConfig is the part of the config the MIDI device needs.
func (c *Config) BackendConfig() backend.Config {
	tail := time.Duration(c.RenderTailMs) * time.Millisecond
	if c.RenderTailMs == 0 {
		tail = -1
	}
	return backend.Config{
		Name:         c.Backend,
		Port:         c.MIDIPort,
		SoundFont:    c.SoundFont,
		SampleRate:   c.SampleRate,
		Tail:         tail,
		BufferFrames: c.BufferFrames,
		FixedPoint:   c.FixedPoint,
		FakeVolume:   c.FakeVolume,
	}
}
