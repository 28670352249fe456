package tuning

import (
	"errors"
	"fmt"
	"sort"
)

const (
	NumStrings     = 6
	FretsPerString = 16
)

// BaseOpenPitch is the pitch of each open string before a variant's offsets
// are applied, lowest string first: E1(28) A1(33) D2(38) G2(43) B2(47) E3(52).
var BaseOpenPitch = [NumStrings]int{28, 33, 38, 43, 47, 52}

var (
	ErrInvalidRange = errors.New("tuning: invalid string range")
	ErrUnknown      = errors.New("tuning: unknown variant")
)

// variants maps a tuning name to its per-string semitone offsets.
var variants = map[string][NumStrings]int{
	"standard": {0, 0, 0, 0, 0, 0},
	"dropd":    {-2, 0, 0, 0, 0, 0},
}

// Range is the inclusive pitch range a string can play.
type Range struct {
	Start int
	End   int
}

func (r Range) Contains(pitch int) bool {
	return pitch >= r.Start && pitch <= r.End
}

// Tuning holds the playable range of every string. It is immutable after New.
type Tuning struct {
	name   string
	ranges [NumStrings]Range
}

// New derives the string ranges for offsets applied to BaseOpenPitch. Open
// pitches have to rise strictly from string to string; a string starting at
// or below its lower neighbour is rejected as overlapping.
func New(name string, offsets [NumStrings]int) (*Tuning, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidRange)
	}
	t := &Tuning{name: name}
	for s := 0; s < NumStrings; s++ {
		start := BaseOpenPitch[s] + offsets[s]
		r := Range{Start: start, End: start + FretsPerString - 1}
		if r.Start < 0 || r.Start > r.End {
			return nil, fmt.Errorf("%w: string %d spans %d..%d", ErrInvalidRange, s, r.Start, r.End)
		}
		if s > 0 && r.Start <= t.ranges[s-1].Start {
			return nil, fmt.Errorf("%w: string %d starts at %s, not above string %d (%s)",
				ErrInvalidRange, s, PitchName(r.Start), s-1, PitchName(t.ranges[s-1].Start))
		}
		t.ranges[s] = r
	}
	return t, nil
}

// Lookup returns a named tuning variant.
func Lookup(name string) (*Tuning, error) {
	offsets, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return New(name, offsets)
}

// Names lists the known variants in lexicographic order.
func Names() []string {
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Name identifies the variant; it is part of every cache key.
func (t *Tuning) Name() string { return t.name }

// RangeOf returns the inclusive pitch range of string s. An index outside
// 0..NumStrings-1 yields an empty range.
func (t *Tuning) RangeOf(s int) (start, end int) {
	if s < 0 || s >= NumStrings {
		return 0, -1
	}
	r := t.ranges[s]
	return r.Start, r.End
}

// Candidates lists, lowest string first, every string whose range holds pitch.
func (t *Tuning) Candidates(pitch int) []int {
	var out []int
	for s, r := range t.ranges {
		if r.Contains(pitch) {
			out = append(out, s)
		}
	}
	return out
}

// Fret is the fret offset of pitch on string s. The caller must have checked
// that s is a candidate for pitch.
func (t *Tuning) Fret(s, pitch int) int {
	return pitch - t.ranges[s].Start
}

// Span is the lowest and highest pitch the instrument can play.
func (t *Tuning) Span() (low, high int) {
	return t.ranges[0].Start, t.ranges[NumStrings-1].End
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName renders a MIDI pitch as note name plus octave, e.g. 40 -> "E2".
func PitchName(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?\"%d\"", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], (pitch/12)-1)
}
