package player

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/guitarbot/cache"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/layout"
	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/tuning"
)

type pulse struct {
	addr, port int
	ticks      int
}

// recordingBus keeps the pulses sent to the servo boards.
type recordingBus struct {
	mu     sync.Mutex
	pulses []pulse
	closed bool
}

func (b *recordingBus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p[3] == controller.CmdSetPulse {
		b.pulses = append(b.pulses, pulse{addr: int(p[4]), port: int(p[5]), ticks: int(p[6]) | int(p[7])<<8})
	}
	return len(p), nil
}

func (b *recordingBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) sent() []pulse {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pulse(nil), b.pulses...)
}

// ticks at 100 Hz
const (
	t10 = 410 // 1.0 ms
	t15 = 614 // 1.5 ms
	t20 = 819 // 2.0 ms
)

func ptr(v float64) *float64 { return &v }

// wiredLayout connects frets 2 and 3 of the low string to board 0 and the
// low string's plectrum to board 1. Everything else stays unwired.
func wiredLayout() *layout.Layout {
	frets := layout.DefaultFrets()
	for s := range frets {
		for f := range frets[s] {
			frets[s][f].Port = -1
			frets[s][f].Release = nil
		}
	}
	frets[0][2] = layout.FretActuation{Pitch: 30, Engage: 1.0, Release: ptr(2.0), Board: 0, Port: 2}
	frets[0][3] = layout.FretActuation{Pitch: 31, Engage: 1.0, Release: ptr(2.0), Board: 0, Port: 3}
	plucks := layout.DefaultPlucks()
	plucks[0] = layout.PluckActuation{Label: "E", Board: 1, Port: 0, Up: 1.0, Down: 1.5}
	return &layout.Layout{Frets: frets, Plucks: plucks}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func hardwarePlayer(t *testing.T, bus *recordingBus) *Player {
	t.Helper()
	ctrl, err := controller.New(controller.Config{Kind: controller.HardwareKind, FrequencyHz: 100, Boards: controller.DefaultBoards},
		controller.WithBus(bus), controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	tn, err := tuning.Lookup("standard")
	require.NoError(t, err)
	p, err := New(ctrl, tn, "lowest", wiredLayout(), WithLogger(quietLogger()))
	require.NoError(t, err)
	return p
}

func chord(notes ...model.ResolvedNote) model.Chord {
	return model.Chord{Notes: notes}
}

func played(s, f int) model.ResolvedNote {
	return model.ResolvedNote{String: s, Fret: f, Hit: true, Duration: 0.001}
}

func TestPlayResetsAndSkipsUnplayedNotes(t *testing.T) {
	bus := &recordingBus{}
	p := hardwarePlayer(t, bus)
	perf := model.Performance{chord(played(0, 2), model.ResolvedNote{String: model.NoString, Name: "C9", Duration: 0.001})}

	require.NoError(t, p.Play(context.Background(), perf))

	assert.Equal(t, []pulse{
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
		{0x40, 2, t10}, // engage
		{0x41, 0, t15}, // pluck down
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
	}, bus.sent())
}

func TestOffNeckNoteIsSkipped(t *testing.T) {
	bus := &recordingBus{}
	p := hardwarePlayer(t, bus)
	var buf bytes.Buffer
	p.logger = slog.New(slog.NewTextHandler(&buf, nil))
	perf := model.Performance{chord(played(7, 0), played(-3, 1), played(0, 2))}

	require.NotPanics(t, func() {
		require.NoError(t, p.Play(context.Background(), perf))
	})

	assert.Equal(t, []pulse{
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
		{0x40, 2, t10}, {0x41, 0, t15},
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
	}, bus.sent())
	assert.Contains(t, buf.String(), "no such string")
}

func TestPluckAlternatesAndFretIsReleased(t *testing.T) {
	bus := &recordingBus{}
	p := hardwarePlayer(t, bus)
	perf := model.Performance{chord(played(0, 2)), chord(played(0, 3)), chord(played(0, 3))}

	require.NoError(t, p.Play(context.Background(), perf))

	assert.Equal(t, []pulse{
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
		{0x40, 2, t10}, {0x41, 0, t15},
		{0x40, 2, t20}, {0x40, 3, t10}, {0x41, 0, t10},
		{0x40, 3, t10}, {0x41, 0, t15},
		{0x40, 2, t20}, {0x40, 3, t20}, // reset
	}, bus.sent())
}

func TestStopDuringRealTimePlay(t *testing.T) {
	ctrl, err := controller.New(controller.Config{Kind: controller.RealTimeKind}, controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	tn, err := tuning.Lookup("dropd")
	require.NoError(t, err)
	p, err := New(ctrl, tn, "lowest", nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	perf := make(model.Performance, 100)
	for i := range perf {
		perf[i] = chord(model.ResolvedNote{String: 0, Fret: 2, Hit: true, Name: "E2", Duration: 0.25})
	}

	_, done, err := p.PlayAsync(context.Background(), perf)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, p.Status().Playing)

	begin := time.Now()
	p.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not end playback")
	}
	assert.Less(t, time.Since(begin), time.Second)
	assert.False(t, p.Status().Playing)
}

func TestSecondPlayIsBusy(t *testing.T) {
	ctrl, err := controller.New(controller.Config{Kind: controller.RealTimeKind}, controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	tn, err := tuning.Lookup("dropd")
	require.NoError(t, err)
	p, err := New(ctrl, tn, "lowest", nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	long := model.Performance{chord(model.ResolvedNote{String: 0, Hit: true, Duration: 4})}
	id, done, err := p.PlayAsync(context.Background(), long)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	err = p.Play(context.Background(), long)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, p.PlayChord(long[0]), ErrBusy)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, <-done, ErrStopped)
}

func TestChordTempoAppliesForward(t *testing.T) {
	bus := &recordingBus{}
	p := hardwarePlayer(t, bus)
	perf := model.Performance{chord(played(0, 2)), {Tempo: 300, Notes: []model.ResolvedNote{played(0, 3)}}}

	require.NoError(t, p.Play(context.Background(), perf))
	assert.Equal(t, 300.0, p.Tempo())

	p.SetTempo(0)
	assert.Equal(t, 300.0, p.Tempo(), "non-positive tempo is ignored")
}

func encode(t *testing.T) []byte {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(960)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 40, 100))
	tr.Add(0, midi.NoteOn(0, 47, 100))
	tr.Add(480, midi.NoteOff(0, 40))
	tr.Add(0, midi.NoteOff(0, 47))
	tr.Add(0, midi.NoteOn(0, 45, 100))
	tr.Add(480, midi.NoteOff(0, 45))
	tr.Close(0)
	require.NoError(t, sm.Add(tr))
	var buf bytes.Buffer
	_, err := sm.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestComputePerformanceThroughCache(t *testing.T) {
	ctrl, err := controller.New(controller.Config{Kind: controller.NoWait}, controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	tn, err := tuning.Lookup("dropd")
	require.NoError(t, err)
	c := cache.New(t.TempDir(), cache.WithLogger(quietLogger()))
	p, err := New(ctrl, tn, "lowest", nil, WithCache(c), WithLogger(quietLogger()))
	require.NoError(t, err)
	content := encode(t)

	first, st, err := p.ComputePerformance(context.Background(), content, true)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 3, st.Notes)
	assert.Equal(t, 3, st.Hits)

	_, ok := c.Lookup(cache.NewKey(content, "dropd", "lowest"))
	assert.True(t, ok)

	second, _, err := p.ComputePerformance(context.Background(), content, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	fresh, _, err := p.ComputePerformance(context.Background(), content, false)
	require.NoError(t, err)
	assert.True(t, first.Same(fresh))

	require.NoError(t, p.Play(context.Background(), first))
}

func TestComputePerformanceRejectsBadInput(t *testing.T) {
	ctrl, err := controller.New(controller.Config{Kind: controller.NoWait}, controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	tn, err := tuning.Lookup("dropd")
	require.NoError(t, err)
	p, err := New(ctrl, tn, "lowest", nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, _, err = p.ComputePerformance(context.Background(), []byte("garbage"), true)
	assert.Error(t, err)
}

func TestCloseClosesController(t *testing.T) {
	bus := &recordingBus{}
	p := hardwarePlayer(t, bus)
	require.NoError(t, p.Close())
	assert.True(t, bus.closed)
}
