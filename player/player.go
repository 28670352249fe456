package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/cache"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/layout"
	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/score"
	"github.com/chase3718/guitarbot/tuning"
)

var (
	ErrBusy    = errors.New("player: a performance is already playing")
	ErrStopped = errors.New("player: stopped")
)

const noFret = -1

// Player turns pieces into performances and plays them on one controller.
// At most one session plays at a time.
type Player struct {
	ctrl         *controller.Controller
	tuning       *tuning.Tuning
	strategy     assign.Strategy
	strategyName string
	layout       *layout.Layout
	cache        *cache.Cache
	logger       *slog.Logger

	tempo atomic.Uint64

	mu      sync.Mutex
	session *session

	// actMu guards the physical state below and serialises actuation.
	actMu     sync.Mutex
	held      [tuning.NumStrings]int
	pluckDown [tuning.NumStrings]bool
}

type session struct {
	id      string
	started time.Time
	total   int
	played  atomic.Int64
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status describes what the player is doing.
type Status struct {
	Playing bool    `json:"playing"`
	Session string  `json:"session,omitempty"`
	Chord   int     `json:"chord"`
	Chords  int     `json:"chords"`
	Elapsed string  `json:"elapsed,omitempty"`
	Tempo   float64 `json:"tempo"`
	Tuning  string  `json:"tuning"`
}

// Option configures a Player.
type Option func(*Player)

func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithCache routes ComputePerformance through c.
func WithCache(c *cache.Cache) Option {
	return func(p *Player) { p.cache = c }
}

func WithTempo(bpm float64) Option {
	return func(p *Player) { p.SetTempo(bpm) }
}

// New builds a player around ctrl. The strategy is looked up by name so the
// name can take part in cache keys.
func New(ctrl *controller.Controller, t *tuning.Tuning, strategy string, lay *layout.Layout, opts ...Option) (*Player, error) {
	s, err := assign.LookupStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if lay == nil {
		lay = &layout.Layout{Frets: layout.DefaultFrets(), Plucks: layout.DefaultPlucks()}
	}
	p := &Player{
		ctrl:         ctrl,
		tuning:       t,
		strategy:     s,
		strategyName: strategy,
		layout:       lay,
		logger:       slog.Default(),
	}
	p.SetTempo(model.DefaultTempo)
	for i := range p.held {
		p.held[i] = noFret
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("component", "player")
	return p, nil
}

func (p *Player) Tuning() *tuning.Tuning { return p.tuning }

func (p *Player) Strategy() assign.Strategy { return p.strategy }

func (p *Player) StrategyName() string { return p.strategyName }

func (p *Player) Tempo() float64 {
	return math.Float64frombits(p.tempo.Load())
}

// SetTempo changes the tempo for chords not yet started. Non-positive values
// are ignored.
func (p *Player) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	p.tempo.Store(math.Float64bits(bpm))
}

// ComputePerformance parses content and assigns it to strings. With useCache
// a stored performance is reused; without it the performance is recomputed
// and overwrites the stored one.
func (p *Player) ComputePerformance(ctx context.Context, content []byte, useCache bool) (model.Performance, assign.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, assign.Stats{}, err
	}
	compute := func() (model.Performance, error) {
		notes, err := score.Parse(content)
		if err != nil {
			return nil, err
		}
		return assign.Assign(p.tuning, p.strategy, notes, p.logger), nil
	}

	var (
		perf model.Performance
		hit  bool
		err  error
	)
	switch {
	case p.cache == nil:
		perf, err = compute()
	case useCache:
		key := cache.NewKey(content, p.tuning.Name(), p.strategyName)
		perf, hit, err = p.cache.GetOrCompute(key, compute)
	default:
		key := cache.NewKey(content, p.tuning.Name(), p.strategyName)
		if perf, err = compute(); err == nil {
			if serr := p.cache.Store(key, perf); serr != nil {
				p.logger.Warn("player: cache store failed", "key", key, "err", serr)
			}
		}
	}
	if err != nil {
		return nil, assign.Stats{}, fmt.Errorf("player: compute performance: %w", err)
	}
	st := assign.Summarize(perf, p.Tempo())
	p.logger.Info("player: performance ready", "cached", hit, "stats", st.String())
	return perf, st, nil
}

// Play plays perf and blocks until it ends, is stopped or ctx is done.
func (p *Player) Play(ctx context.Context, perf model.Performance) error {
	_, done, err := p.PlayAsync(ctx, perf)
	if err != nil {
		return err
	}
	return <-done
}

// PlayAsync reserves the player and plays perf in the background. It returns
// the session id and a channel receiving the outcome, or ErrBusy.
func (p *Player) PlayAsync(ctx context.Context, perf model.Performance) (string, <-chan error, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{id: uuid.NewString(), started: time.Now(), total: len(perf), cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		cancel()
		return "", nil, ErrBusy
	}
	p.session = s
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := p.run(ctx, s, perf)
		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()
		close(s.done)
		done <- err
	}()
	return s.id, done, nil
}

func (p *Player) run(ctx context.Context, s *session, perf model.Performance) (err error) {
	logger := p.logger.With("session", s.id)
	logger.Info("player: playing", "chords", len(perf), "tempo", p.Tempo())

	if rerr := p.ResetFrets(); rerr != nil {
		return fmt.Errorf("player: reset before play: %w", rerr)
	}
	defer func() {
		if rerr := p.ResetFrets(); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("player: reset after play: %w", rerr))
		}
		logger.Info("player: done", "chords", s.played.Load(), "elapsed", time.Since(s.started).Round(time.Millisecond), "err", err)
	}()

	p.ctrl.Start()
	var offset time.Duration
	for i, chord := range perf {
		if s.stopped.Load() {
			return ErrStopped
		}
		if chord.Tempo > 0 {
			p.SetTempo(chord.Tempo)
		}
		if err := p.ctrl.WaitUntil(ctx, offset); err != nil {
			return p.interrupted(s, err)
		}
		bpm := p.Tempo()
		// the stop flag is not checked again until the chord is fully issued
		if err := p.actuate(i, offset, chord); err != nil {
			return err
		}
		s.played.Add(1)
		offset += chord.Length(bpm)
	}
	if err := p.ctrl.WaitUntil(ctx, offset); err != nil {
		return p.interrupted(s, err)
	}
	return nil
}

func (p *Player) interrupted(s *session, err error) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	return err
}

// PlayChord actuates one chord right away. It is used for live input and
// fails with ErrBusy while a session is playing.
func (p *Player) PlayChord(c model.Chord) error {
	p.mu.Lock()
	busy := p.session != nil
	p.mu.Unlock()
	if busy {
		return ErrBusy
	}
	return p.actuate(0, 0, c)
}

// Stop asks the playing session to end after its current chord. It does
// nothing when idle.
func (p *Player) Stop() {
	p.stop()
}

func (p *Player) stop() *session {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	p.logger.Info("player: stop requested", "session", s.id)
	s.stopped.Store(true)
	s.cancel()
	return s
}

func (p *Player) Status() Status {
	st := Status{Tempo: p.Tempo(), Tuning: p.tuning.Name()}
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s != nil {
		st.Playing = true
		st.Session = s.id
		st.Chord = int(s.played.Load())
		st.Chords = s.total
		st.Elapsed = time.Since(s.started).Round(time.Second).String()
	}
	return st
}

// Close stops playback, releases the frets and closes the controller.
func (p *Player) Close() error {
	if s := p.stop(); s != nil {
		<-s.done
	}
	return multierr.Combine(p.ResetFrets(), p.ctrl.Close())
}
