package player

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/chase3718/guitarbot/model"
)

// actuate issues every played note of one chord: frets first so the strings
// are stopped before they are plucked.
func (p *Player) actuate(index int, at time.Duration, c model.Chord) error {
	act, ok := p.ctrl.Actuator()
	if !ok {
		p.render(index, at, c)
		return nil
	}

	p.actMu.Lock()
	defer p.actMu.Unlock()
	for _, n := range c.Notes {
		if !n.Hit {
			continue
		}
		if !p.onNeck(n) {
			p.logger.Warn("player: no such string", "string", n.String, "fret", n.Fret)
			continue
		}
		if held := p.held[n.String]; held != noFret && held != n.Fret {
			if err := p.releaseLocked(n.String, held); err != nil {
				return err
			}
		}
		fa, ok := p.layout.Fret(n.String, n.Fret)
		if !ok {
			p.logger.Warn("player: no fret actuator", "string", n.String, "fret", n.Fret)
			continue
		}
		if err := act.SetServoPulse(fa.Board, fa.Port, fa.Engage); err != nil {
			return fmt.Errorf("player: engage %s: %w", n.Label(), err)
		}
		p.held[n.String] = n.Fret
	}
	for _, n := range c.Notes {
		if !n.Hit || !p.onNeck(n) {
			continue
		}
		pa, ok := p.layout.Pluck(n.String)
		if !ok {
			p.logger.Warn("player: no pluck actuator", "string", n.String)
			continue
		}
		pos := pa.Down
		if p.pluckDown[n.String] {
			pos = pa.Up
		}
		if err := act.SetServoPulse(pa.Board, pa.Port, pos); err != nil {
			return fmt.Errorf("player: pluck %s: %w", n.Label(), err)
		}
		p.pluckDown[n.String] = !p.pluckDown[n.String]
	}
	return nil
}

func (p *Player) onNeck(n model.ResolvedNote) bool {
	return n.String >= 0 && n.String < len(p.held)
}

// releaseLocked moves one fret actuator back to its release position. Frets
// without a release position share a servo with a neighbour and are left
// alone.
func (p *Player) releaseLocked(s, f int) error {
	p.held[s] = noFret
	fa, ok := p.layout.Fret(s, f)
	if !ok || fa.Release == nil {
		return nil
	}
	act, _ := p.ctrl.Actuator()
	if err := act.SetServoPulse(fa.Board, fa.Port, *fa.Release); err != nil {
		return fmt.Errorf("player: release string %d fret %d: %w", s, f, err)
	}
	return nil
}

// ResetFrets moves every fret actuator with a release position back to it so
// the instrument is in a known state.
func (p *Player) ResetFrets() error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	for i := range p.held {
		p.held[i] = noFret
	}
	act, ok := p.ctrl.Actuator()
	if !ok {
		p.logger.Debug("player: frets reset")
		return nil
	}
	var err error
	for _, row := range p.layout.Frets {
		for _, fa := range row {
			if fa.Release == nil || fa.Board < 0 || fa.Port < 0 {
				continue
			}
			err = multierr.Append(err, act.SetServoPulse(fa.Board, fa.Port, *fa.Release))
		}
	}
	p.logger.Debug("player: frets reset", "err", err)
	return err
}

// render logs a chord when the controller has nothing to drive.
func (p *Player) render(index int, at time.Duration, c model.Chord) {
	labels := make([]string, len(c.Notes))
	for i, n := range c.Notes {
		labels[i] = n.Label()
	}
	p.logger.Info("player: chord", "index", index, "at", at.Round(time.Millisecond), "notes", strings.Join(labels, " "))
}
