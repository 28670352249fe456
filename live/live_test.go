package live

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/tuning"
)

type fakePerformer struct {
	mu     sync.Mutex
	chords []model.Chord
	resets int
	err    error
}

func (f *fakePerformer) PlayChord(c model.Chord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chords = append(f.chords, c)
	return f.err
}

func (f *fakePerformer) ResetFrets() error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return nil
}

func (f *fakePerformer) played() []model.Chord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Chord(nil), f.chords...)
}

func TestGrouperCollectsChord(t *testing.T) {
	var mu sync.Mutex
	var got [][]int
	g := NewGrouper(20*time.Millisecond, func(p []int) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	g.NoteOn(55)
	g.NoteOn(40)
	g.NoteOn(47)
	time.Sleep(100 * time.Millisecond)
	g.NoteOn(60)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]int{{40, 47, 55}, {60}}, got)
}

func TestSessionPlaysAssignedChord(t *testing.T) {
	tn, err := tuning.Lookup("standard")
	require.NoError(t, err)
	perf := &fakePerformer{}
	s := NewSession(perf, assign.New(tn, assign.LowestFirst, nil), 10*time.Millisecond, nil)

	s.HandleNote(true, 40)
	s.HandleNote(true, 45)
	s.HandleNote(false, 40)

	require.Eventually(t, func() bool { return len(perf.played()) == 1 }, time.Second, 5*time.Millisecond)
	c := perf.played()[0]
	require.Len(t, c.Notes, 2)
	assert.Equal(t, 2, c.Hits())
	assert.Equal(t, 0, c.Notes[0].String)
	assert.Equal(t, 1, c.Notes[1].String)
}

func TestSessionLogsRejectedChord(t *testing.T) {
	tn, err := tuning.Lookup("standard")
	require.NoError(t, err)
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))
	perf := &fakePerformer{err: errors.New("busy")}
	s := NewSession(perf, assign.New(tn, assign.LowestFirst, nil), 5*time.Millisecond, logger)

	s.HandleNote(true, 40)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Contains(buf.Bytes(), []byte("chord not played"))
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectedResetsFrets(t *testing.T) {
	perf := &fakePerformer{}
	s := NewSession(perf, nil, 0, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	s.Disconnected()
	assert.Equal(t, 1, perf.resets)
}

func TestInputSelection(t *testing.T) {
	names := filterInputs([]string{"Midi Through Port-0", "Launchkey Mini", "USB Keyboard"}, ExcludedPatterns)
	assert.Equal(t, []string{"Launchkey Mini", "USB Keyboard"}, names)

	name, ok := pickPreferred(names, PreferredPatterns)
	assert.True(t, ok)
	assert.Equal(t, "Launchkey Mini", name)

	_, ok = pickPreferred([]string{"A", "B"}, PreferredPatterns)
	assert.False(t, ok)

	name, ok = pickPreferred([]string{"Only One"}, PreferredPatterns)
	assert.True(t, ok)
	assert.Equal(t, "Only One", name)
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
