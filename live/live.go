package live

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/chase3718/guitarbot/model"
)

// DefaultWindow is how long after the last note-on a chord stays open.
const DefaultWindow = 15 * time.Millisecond

// noteLength is the nominal duration given to live chords, a quarter note.
const noteLength = 0.25

// Grouper collects note-ons that arrive within one window and emits them as
// a single chord once the keyboard has been quiet for that window.
type Grouper struct {
	mu       sync.Mutex
	pending  []int
	debounce func(func())
	emit     func(pitches []int)
}

func NewGrouper(window time.Duration, emit func(pitches []int)) *Grouper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Grouper{debounce: debounce.New(window), emit: emit}
}

func (g *Grouper) NoteOn(pitch int) {
	g.mu.Lock()
	g.pending = append(g.pending, pitch)
	g.mu.Unlock()
	g.debounce(g.flush)
}

func (g *Grouper) flush() {
	g.mu.Lock()
	pitches := g.pending
	g.pending = nil
	g.mu.Unlock()
	if len(pitches) == 0 {
		return
	}
	sort.Ints(pitches)
	g.emit(pitches)
}

// Chorder resolves pitches to strings.
type Chorder interface {
	Chord(pitches []int, duration float64) model.Chord
}

// Performer actuates chords.
type Performer interface {
	PlayChord(c model.Chord) error
	ResetFrets() error
}

// Session plays what is performed on a MIDI keyboard.
type Session struct {
	performer Performer
	chorder   Chorder
	grouper   *Grouper
	logger    *slog.Logger
}

func NewSession(p Performer, c Chorder, window time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{performer: p, chorder: c, logger: logger.With("component", "live")}
	s.grouper = NewGrouper(window, s.play)
	return s
}

// HandleNote is the Watcher note callback. Only note starts make sound; the
// strings ring until the next chord on them.
func (s *Session) HandleNote(on bool, pitch int) {
	if on {
		s.grouper.NoteOn(pitch)
	}
}

// Disconnected releases every fret when the keyboard goes away so nothing
// stays pressed.
func (s *Session) Disconnected() {
	s.logger.Warn("live: keyboard lost, releasing frets")
	if err := s.performer.ResetFrets(); err != nil {
		s.logger.Error("live: reset failed", "err", err)
	}
}

func (s *Session) play(pitches []int) {
	c := s.chorder.Chord(pitches, noteLength)
	s.logger.Info("live: chord", "pitches", pitches, "played", c.Hits())
	if err := s.performer.PlayChord(c); err != nil {
		s.logger.Warn("live: chord not played", "err", err)
	}
}

// Run connects a Watcher to s and polls for devices until ctx is done.
func Run(ctx context.Context, s *Session) error {
	w, err := NewWatcher(s.HandleNote, s.Disconnected, s.logger)
	if err != nil {
		return err
	}
	defer w.Close()
	s.logger.Info("live: waiting for a MIDI keyboard")

	ticker := time.NewTicker(RescanInterval / 4)
	defer ticker.Stop()
	w.Tick()
	for {
		select {
		case <-ctx.Done():
			if _, ok := w.Connected(); ok {
				s.Disconnected()
			}
			return nil
		case <-ticker.C:
			w.Tick()
		}
	}
}
