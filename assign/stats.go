package assign

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"

	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/tuning"
)

// Stats summarises a performance before it is played.
type Stats struct {
	Chords    int
	Notes     int
	Hits      int
	Misses    int
	Rests     int
	PerString [tuning.NumStrings]int
	Length    time.Duration
}

// Summarize counts the notes of p and estimates its length at bpm.
func Summarize(p model.Performance, bpm float64) Stats {
	st := Stats{Chords: len(p), Length: p.Length(bpm)}
	for _, c := range p {
		for _, n := range c.Notes {
			st.Notes++
			switch {
			case n.Hit:
				st.Hits++
				if n.String >= 0 && n.String < tuning.NumStrings {
					st.PerString[n.String]++
				}
			case n.Name == model.RestName:
				st.Rests++
			default:
				st.Misses++
			}
		}
	}
	return st
}

func (s Stats) String() string {
	return fmt.Sprintf("%d chords, %d notes (%d played, %d unplayable, %d rests), strings %v, about %s",
		s.Chords, s.Notes, s.Hits, s.Misses, s.Rests, s.PerString,
		durafmt.Parse(s.Length).LimitFirstN(2).String())
}
