package assign

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chase3718/guitarbot/tuning"
)

// Free marks a string that has no note yet in the current chord.
const Free = -1

// Taken holds, per string, the fret already committed in the current chord
// or Free.
type Taken [tuning.NumStrings]int

// NewTaken returns a state with every string free.
func NewTaken() Taken {
	var t Taken
	for i := range t {
		t[i] = Free
	}
	return t
}

func (t Taken) Used(s int) bool {
	return s >= 0 && s < len(t) && t[s] != Free
}

// Strategy picks the string that plays pitch among candidates, given the
// strings already taken in the chord. It must be deterministic and must not
// keep state; taken is passed by value. ok is false when every candidate is
// taken or there are none.
type Strategy func(candidates []int, taken Taken, pitch int) (s int, ok bool)

var ErrUnknownStrategy = errors.New("assign: unknown strategy")

var strategies = map[string]Strategy{
	"lowest":  LowestFirst,
	"highest": HighestFirst,
}

// LowestFirst takes the first free candidate from the lowest string up,
// which also favours the highest fret the pitch allows.
func LowestFirst(candidates []int, taken Taken, _ int) (int, bool) {
	for _, s := range candidates {
		if !taken.Used(s) {
			return s, true
		}
	}
	return Free, false
}

// HighestFirst takes the first free candidate from the highest string down,
// keeping fingerings close to the nut.
func HighestFirst(candidates []int, taken Taken, _ int) (int, bool) {
	for i := len(candidates) - 1; i >= 0; i-- {
		if s := candidates[i]; !taken.Used(s) {
			return s, true
		}
	}
	return Free, false
}

// LookupStrategy resolves a strategy by its configured name.
func LookupStrategy(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// StrategyNames lists the known strategies in lexicographic order.
func StrategyNames() []string {
	out := make([]string, 0, len(strategies))
	for name := range strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
