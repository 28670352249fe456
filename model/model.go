package model

import (
	"fmt"
	"time"
)

// NoString is the string index of a note that no string could play.
const NoString = -1

// DefaultTempo is used until a piece or the caller sets one.
const DefaultTempo = 120.0

// RestName is the display name of a resolved rest.
const RestName = "R"

// ParsedNote is one entry of the note stream. Duration is expressed as a
// fraction of a whole note. Harmonic notes sound together with the previous
// note instead of starting a new chord.
type ParsedNote struct {
	Pitch    int
	Duration float64
	Harmonic bool
	Rest     bool
	// Tempo is a BPM change taking effect with this note, 0 for none.
	Tempo float64
}

// ResolvedNote is a note bound to a string and fret. Hit is false when the
// note could not be placed; it still occupies its slot in the chord so the
// performance stays time-aligned.
type ResolvedNote struct {
	String   int     `json:"string"`
	Fret     int     `json:"fret"`
	Hit      bool    `json:"hit"`
	Name     string  `json:"name,omitempty"`
	Duration float64 `json:"duration"`
}

// Same reports whether both notes drive the same physical action.
func (n ResolvedNote) Same(o ResolvedNote) bool {
	return n.String == o.String && n.Fret == o.Fret
}

// Label renders the note for logs, e.g. "D3:s2/f0".
func (n ResolvedNote) Label() string {
	if !n.Hit {
		return fmt.Sprintf("%s:-", n.Name)
	}
	return fmt.Sprintf("%s:s%d/f%d", n.Name, n.String, n.Fret)
}

// Chord is a group of notes that sound at the same moment.
type Chord struct {
	Notes []ResolvedNote `json:"notes"`
	// Tempo is a BPM change that applies from this chord on, 0 for none.
	Tempo float64 `json:"tempo,omitempty"`
}

// Duration is the length of the chord in whole notes, taken from the note
// that opened it.
func (c Chord) Duration() float64 {
	if len(c.Notes) == 0 {
		return 0
	}
	return c.Notes[0].Duration
}

// Length converts the chord duration to wall-clock time at the given tempo,
// counting a quarter note as one beat.
func (c Chord) Length(bpm float64) time.Duration {
	if bpm <= 0 {
		bpm = DefaultTempo
	}
	ms := c.Duration() * 4 * 60000 / bpm
	return time.Duration(ms * float64(time.Millisecond))
}

// Hits counts the notes that were placed on a string.
func (c Chord) Hits() int {
	n := 0
	for _, note := range c.Notes {
		if note.Hit {
			n++
		}
	}
	return n
}

// Same compares the physical actions of two chords, ignoring display fields.
func (c Chord) Same(o Chord) bool {
	if len(c.Notes) != len(o.Notes) {
		return false
	}
	for i := range c.Notes {
		if !c.Notes[i].Same(o.Notes[i]) {
			return false
		}
	}
	return true
}

// Performance is the ordered chord sequence of one piece. It is never
// modified after it has been computed or loaded.
type Performance []Chord

// Same compares two performances chord by chord with Chord.Same.
func (p Performance) Same(o Performance) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !p[i].Same(o[i]) {
			return false
		}
	}
	return true
}

// Length is the total playing time, honouring tempo changes carried by the
// chords, starting from the given tempo.
func (p Performance) Length(bpm float64) time.Duration {
	var total time.Duration
	for _, c := range p {
		if c.Tempo > 0 {
			bpm = c.Tempo
		}
		total += c.Length(bpm)
	}
	return total
}
