package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/tuning"
)

// DefaultFile is read when no --config flag is given.
const DefaultFile = "guitarbot.yaml"

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	MusicDir          string   `yaml:"music_dir"`
	ConfigDir         string   `yaml:"config_dir"`
	CacheDir          string   `yaml:"cache_dir"`
	Controller        string   `yaml:"controller"`
	Tuning            string   `yaml:"tuning"`
	Strategy          string   `yaml:"strategy"`
	TempoBPM          float64  `yaml:"tempo_bpm"`
	ClearCacheOnStart bool     `yaml:"clear_cache_on_start"`
	Hardware          Hardware `yaml:"hardware"`
	Server            Server   `yaml:"server"`
	Live              Live     `yaml:"live"`
}

type Hardware struct {
	SerialPort  string `yaml:"serial_port"`
	Baud        int    `yaml:"baud"`
	FrequencyHz int    `yaml:"frequency_hz"`
	Boards      []int  `yaml:"boards"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Live struct {
	ChordWindowMS int `yaml:"chord_window_ms"`
}

func Default() Config {
	return Config{
		MusicDir:          "./music",
		ConfigDir:         "./",
		Controller:        "realtime",
		Tuning:            "dropd",
		Strategy:          "lowest",
		TempoBPM:          120,
		ClearCacheOnStart: true,
		Hardware: Hardware{
			SerialPort:  "/dev/ttyACM0",
			Baud:        500000,
			FrequencyHz: controller.DefaultFrequencyHz,
			Boards:      append([]int(nil), controller.DefaultBoards...),
		},
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Live: Live{ChordWindowMS: 15},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// CachePath is where performances are cached; the music directory unless
// set.
func (c Config) CachePath() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return c.MusicDir
}

func (c Config) ChordWindow() time.Duration {
	return time.Duration(c.Live.ChordWindowMS) * time.Millisecond
}

// ControllerConfig translates the hardware section for controller.New.
func (c Config) ControllerConfig() (controller.Config, error) {
	kind, err := controller.ParseKind(c.Controller)
	if err != nil {
		return controller.Config{}, err
	}
	return controller.Config{
		Kind:        kind,
		SerialPort:  c.Hardware.SerialPort,
		Baud:        c.Hardware.Baud,
		FrequencyHz: c.Hardware.FrequencyHz,
		Boards:      c.Hardware.Boards,
	}, nil
}

// Validate checks the names and ranges that would otherwise only fail deep
// inside a command.
func (c Config) Validate() error {
	if _, err := controller.ParseKind(c.Controller); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := tuning.Lookup(c.Tuning); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := assign.LookupStrategy(c.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Hardware.FrequencyHz <= 0 || c.Hardware.FrequencyHz > controller.MaxFrequencyHz {
		return fmt.Errorf("%w: frequency_hz %d not in (0, %d]", ErrInvalid, c.Hardware.FrequencyHz, controller.MaxFrequencyHz)
	}
	if err := controller.CheckBoards(c.Hardware.Boards); err != nil {
		return fmt.Errorf("%w: hardware.boards: %v", ErrInvalid, err)
	}
	if c.TempoBPM <= 0 {
		return fmt.Errorf("%w: tempo_bpm must be positive", ErrInvalid)
	}
	if c.MusicDir == "" {
		return fmt.Errorf("%w: music_dir is empty", ErrInvalid)
	}
	return nil
}
