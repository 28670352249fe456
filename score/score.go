package score

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/guitarbot/model"
)

// Extension is the file extension of playable pieces.
const Extension = ".mid"

var ErrUnsupported = errors.New("score: unsupported midi file")

type onset struct {
	tick   int64
	pitch  int
	length int64
}

type tempoChange struct {
	tick int64
	bpm  float64
}

// Parse reads a Standard MIDI File into a note stream. Notes starting on the
// same tick form one chord: the lowest pitch opens it and the others are
// harmonic. The opening note lasts until the next onset so gaps are kept, and
// silence before the first note becomes a rest. Tempo events attach to the
// first note sounding at or after them.
func Parse(data []byte) (notes []model.ParsedNote, err error) {
	// smf can panic on truncated input
	defer func() {
		if r := recover(); r != nil {
			notes = nil
			err = fmt.Errorf("%w: %v", ErrUnsupported, r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("score: parse midi: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fmt.Errorf("%w: time format %v", ErrUnsupported, s.TimeFormat)
	}
	whole := float64(ticks) * 4

	onsets, tempos := collect(s)
	sort.SliceStable(onsets, func(i, j int) bool {
		if onsets[i].tick != onsets[j].tick {
			return onsets[i].tick < onsets[j].tick
		}
		return onsets[i].pitch < onsets[j].pitch
	})
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })

	var out []model.ParsedNote
	ti := 0
	if len(onsets) > 0 && onsets[0].tick > 0 {
		rest := model.ParsedNote{Rest: true, Duration: float64(onsets[0].tick) / whole}
		for ti < len(tempos) && tempos[ti].tick == 0 {
			rest.Tempo = tempos[ti].bpm
			ti++
		}
		out = append(out, rest)
	}
	for i := 0; i < len(onsets); {
		j := i
		for j < len(onsets) && onsets[j].tick == onsets[i].tick {
			j++
		}
		group := onsets[i:j]

		var bpm float64
		for ti < len(tempos) && tempos[ti].tick <= group[0].tick {
			bpm = tempos[ti].bpm
			ti++
		}
		span := longest(group)
		if j < len(onsets) {
			span = onsets[j].tick - group[0].tick
		}
		for k, o := range group {
			n := model.ParsedNote{Pitch: o.pitch, Duration: float64(o.length) / whole, Harmonic: k > 0}
			if k == 0 {
				n.Duration = float64(span) / whole
				n.Tempo = bpm
			}
			out = append(out, n)
		}
		i = j
	}
	return out, nil
}

func collect(s *smf.SMF) ([]onset, []tempoChange) {
	var onsets []onset
	var tempos []tempoChange
	for _, track := range s.Tracks {
		var abs int64
		open := map[uint16][]int{}
		for _, ev := range track {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			var bpm float64
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				tempos = append(tempos, tempoChange{tick: abs, bpm: bpm})
			case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
				id := uint16(ch)<<8 | uint16(key)
				open[id] = append(open[id], len(onsets))
				onsets = append(onsets, onset{tick: abs, pitch: int(key), length: -1})
			case ev.Message.GetNoteOff(&ch, &key, &vel), ev.Message.GetNoteOn(&ch, &key, &vel):
				id := uint16(ch)<<8 | uint16(key)
				if idx := open[id]; len(idx) > 0 {
					onsets[idx[0]].length = abs - onsets[idx[0]].tick
					open[id] = idx[1:]
				}
			}
		}
		// notes still sounding at the end of the track last until then
		for _, idx := range open {
			for _, i := range idx {
				onsets[i].length = abs - onsets[i].tick
			}
		}
	}
	return onsets, tempos
}

func longest(group []onset) int64 {
	var n int64
	for _, o := range group {
		if o.length > n {
			n = o.length
		}
	}
	return n
}
