package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chase3718/guitarbot/tuning"
)

const (
	FretFile  = "fret.conf"
	PluckFile = "pluck.conf"

	defaultEngage  = 1.5
	defaultRelease = 1.5
	defaultBoard   = 1
)

// PluckLabels names the pluck actuators, lowest string first.
var PluckLabels = [tuning.NumStrings]string{"E", "A", "D", "G", "B", "e"}

var (
	// ErrMissingConfig is returned when a layout file is absent and defaults
	// may not be generated because real actuators are attached.
	ErrMissingConfig = errors.New("layout: config file missing")
	ErrMalformed     = errors.New("layout: malformed config")
)

// FretActuation is the servo target that presses one fret of one string.
// A negative Board or Port means no actuator is wired for the fret.
type FretActuation struct {
	Pitch   int      `json:"pitch"`
	Engage  float64  `json:"engage"`
	Release *float64 `json:"release,omitempty"`
	Board   int      `json:"board"`
	Port    int      `json:"port"`
}

// PluckActuation drives the plectrum of one string, swinging between Up and
// Down on successive plucks.
type PluckActuation struct {
	Label string  `json:"label"`
	Board int     `json:"board"`
	Port  int     `json:"port"`
	Up    float64 `json:"up"`
	Down  float64 `json:"down"`
}

// Layout is the loaded actuator map. It is read-only once loaded.
type Layout struct {
	Frets  [][]FretActuation
	Plucks []PluckActuation
}

// Fret returns the actuation of fret f on string s.
func (l *Layout) Fret(s, f int) (FretActuation, bool) {
	if s < 0 || s >= len(l.Frets) || f < 0 || f >= len(l.Frets[s]) {
		return FretActuation{}, false
	}
	return l.Frets[s][f], true
}

// Pluck returns the pluck actuator of string s.
func (l *Layout) Pluck(s int) (PluckActuation, bool) {
	if s < 0 || s >= len(l.Plucks) {
		return PluckActuation{}, false
	}
	return l.Plucks[s], true
}

// Option configures a Repository.
type Option func(*Repository)

// WithHardware forbids writing default files: a missing file becomes
// ErrMissingConfig so real actuators are never driven from unreviewed values.
func WithHardware(hardware bool) Option {
	return func(r *Repository) {
		r.hardware = hardware
	}
}

// WithLogger sets the logger used for default generation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// Repository loads and persists the layout files of one config directory.
type Repository struct {
	dir      string
	hardware bool
	logger   *slog.Logger
}

func NewRepository(dir string, opts ...Option) *Repository {
	r := &Repository{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "layout")
	return r
}

// Load reads both layout files, generating defaults where allowed.
func (r *Repository) Load() (*Layout, error) {
	frets, err := r.LoadFrets()
	if err != nil {
		return nil, err
	}
	plucks, err := r.LoadPlucks()
	if err != nil {
		return nil, err
	}
	return &Layout{Frets: frets, Plucks: plucks}, nil
}

func (r *Repository) LoadFrets() ([][]FretActuation, error) {
	var frets [][]FretActuation
	if err := r.load(FretFile, &frets, func() any { return DefaultFrets() }); err != nil {
		return nil, err
	}
	if len(frets) != tuning.NumStrings {
		return nil, fmt.Errorf("%w: %s has %d strings, want %d", ErrMalformed, FretFile, len(frets), tuning.NumStrings)
	}
	for s, row := range frets {
		if len(row) != tuning.FretsPerString {
			return nil, fmt.Errorf("%w: %s string %d has %d frets, want %d",
				ErrMalformed, FretFile, s, len(row), tuning.FretsPerString)
		}
	}
	return frets, nil
}

func (r *Repository) LoadPlucks() ([]PluckActuation, error) {
	var plucks []PluckActuation
	if err := r.load(PluckFile, &plucks, func() any { return DefaultPlucks() }); err != nil {
		return nil, err
	}
	if len(plucks) != tuning.NumStrings {
		return nil, fmt.Errorf("%w: %s has %d entries, want %d", ErrMalformed, PluckFile, len(plucks), tuning.NumStrings)
	}
	return plucks, nil
}

func (r *Repository) SaveFrets(frets [][]FretActuation) error {
	return r.save(FretFile, frets)
}

func (r *Repository) SavePlucks(plucks []PluckActuation) error {
	return r.save(PluckFile, plucks)
}

// Regenerate overwrites both files with defaults. It is refused under
// hardware for the same reason a missing file is.
func (r *Repository) Regenerate() error {
	if r.hardware {
		return fmt.Errorf("%w: refusing to regenerate defaults with hardware attached", ErrMissingConfig)
	}
	r.logger.Warn("layout: regenerating default config", "dir", r.dir)
	if err := r.SaveFrets(DefaultFrets()); err != nil {
		return err
	}
	return r.SavePlucks(DefaultPlucks())
}

func (r *Repository) load(name string, v any, defaults func() any) error {
	path := filepath.Join(r.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if r.hardware {
			return fmt.Errorf("%w: %s (won't create defaults with hardware attached)", ErrMissingConfig, path)
		}
		r.logger.Warn("layout: config not found, creating default", "file", path)
		if err := r.save(name, defaults()); err != nil {
			return err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("layout: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}

func (r *Repository) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: encode %s: %w", name, err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("layout: create %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("layout: write %s: %w", path, err)
	}
	r.logger.Info("layout: config saved", "file", path)
	return nil
}

// DefaultFrets builds a safe fret map from BaseOpenPitch: no fret is wired
// to a port, and even pitches carry a release position.
func DefaultFrets() [][]FretActuation {
	frets := make([][]FretActuation, tuning.NumStrings)
	for s, open := range tuning.BaseOpenPitch {
		frets[s] = make([]FretActuation, tuning.FretsPerString)
		for f := range frets[s] {
			pitch := open + f
			fa := FretActuation{
				Pitch:  pitch,
				Engage: defaultEngage,
				Board:  defaultBoard,
				Port:   -1,
			}
			if pitch%2 == 0 {
				release := defaultRelease
				fa.Release = &release
			}
			frets[s][f] = fa
		}
	}
	return frets
}

// DefaultPlucks builds an unwired pluck map in PluckLabels order.
func DefaultPlucks() []PluckActuation {
	plucks := make([]PluckActuation, tuning.NumStrings)
	for s, label := range PluckLabels {
		plucks[s] = PluckActuation{Label: label, Board: -1, Port: -1}
	}
	return plucks
}
