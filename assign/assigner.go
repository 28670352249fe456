package assign

import (
	"log/slog"

	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/tuning"
)

// Assigner turns a note stream into chords of string/fret instructions. Feed
// it with Add in stream order and collect the result with Finish. An
// Assigner is not safe for concurrent use.
type Assigner struct {
	tuning   *tuning.Tuning
	strategy Strategy
	logger   *slog.Logger

	current *model.Chord
	taken   Taken
	out     model.Performance
}

func New(t *tuning.Tuning, s Strategy, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{
		tuning:   t,
		strategy: s,
		logger:   logger.With("component", "assign", "tuning", t.Name()),
		taken:    NewTaken(),
	}
}

// Add places one note. A non-harmonic note closes the pending chord first;
// harmonic notes and the first note of a piece join the pending chord.
func (a *Assigner) Add(n model.ParsedNote) {
	if !n.Harmonic && a.current != nil {
		a.flush()
	}
	if a.current == nil {
		a.current = &model.Chord{}
		a.taken = NewTaken()
	}
	if n.Tempo > 0 {
		a.current.Tempo = n.Tempo
	}
	a.current.Notes = append(a.current.Notes, a.resolve(n, &a.taken))
}

// Finish flushes the pending chord and returns the performance. The
// Assigner is reset and may be reused for another stream.
func (a *Assigner) Finish() model.Performance {
	if a.current != nil {
		a.flush()
	}
	out := a.out
	a.out = nil
	return out
}

// Chord resolves one group of simultaneous pitches outside of a stream, as
// used for live input.
func (a *Assigner) Chord(pitches []int, duration float64) model.Chord {
	taken := NewTaken()
	c := model.Chord{Notes: make([]model.ResolvedNote, 0, len(pitches))}
	for _, p := range pitches {
		c.Notes = append(c.Notes, a.resolve(model.ParsedNote{Pitch: p, Duration: duration}, &taken))
	}
	return c
}

func (a *Assigner) flush() {
	a.out = append(a.out, *a.current)
	a.current = nil
}

func (a *Assigner) resolve(n model.ParsedNote, taken *Taken) model.ResolvedNote {
	if n.Rest {
		return model.ResolvedNote{String: model.NoString, Name: model.RestName, Duration: n.Duration}
	}
	rn := model.ResolvedNote{
		String:   model.NoString,
		Name:     tuning.PitchName(n.Pitch),
		Duration: n.Duration,
	}
	candidates := a.tuning.Candidates(n.Pitch)
	s, ok := a.strategy(candidates, *taken, n.Pitch)
	if !ok {
		low, high := a.tuning.Span()
		a.logger.Warn("assign: no string available for pitch",
			"pitch", rn.Name,
			"midi_pitch", n.Pitch,
			"playable", tuning.PitchName(low)+".."+tuning.PitchName(high),
			"candidates", candidates,
			"taken", *taken,
		)
		return rn
	}
	rn.String = s
	rn.Fret = a.tuning.Fret(s, n.Pitch)
	rn.Hit = true
	taken[s] = rn.Fret
	a.logger.Debug("assign: pitch assigned", "pitch", rn.Name, "string", s, "fret", rn.Fret)
	return rn
}

// Assign runs a whole note stream through a fresh Assigner.
func Assign(t *tuning.Tuning, s Strategy, notes []model.ParsedNote, logger *slog.Logger) model.Performance {
	a := New(t, s, logger)
	for _, n := range notes {
		a.Add(n)
	}
	return a.Finish()
}
