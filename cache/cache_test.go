package cache

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/guitarbot/model"
)

func sample() model.Performance {
	return model.Performance{
		{Notes: []model.ResolvedNote{
			{String: 0, Fret: 2, Hit: true, Name: "E2", Duration: 0.25},
			{String: 3, Fret: 0, Hit: true, Name: "G3", Duration: 0.25},
			{String: model.NoString, Name: "C9", Duration: 0.25},
		}},
		{Tempo: 90, Notes: []model.ResolvedNote{{String: model.NoString, Name: model.RestName, Duration: 0.5}}},
	}
}

func TestKeyDependsOnContentTuningAndStrategy(t *testing.T) {
	content := []byte("piece")
	base := NewKey(content, "dropd", "lowest")

	assert.Equal(t, base, NewKey([]byte("piece"), "dropd", "lowest"))
	assert.NotEqual(t, base, NewKey(content, "standard", "lowest"))
	assert.NotEqual(t, base, NewKey(content, "dropd", "highest"))
	assert.NotEqual(t, base, NewKey([]byte("other"), "dropd", "lowest"))
	assert.Contains(t, string(base), "-dropd-lowest")
}

func TestStoreLookupRoundTrip(t *testing.T) {
	c := New(t.TempDir())
	key := NewKey([]byte("x"), "dropd", "lowest")

	_, ok := c.Lookup(key)
	assert.False(t, ok)

	require.NoError(t, c.Store(key, sample()))
	got, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, sample(), got)
}

func TestStoreReplacesWholesale(t *testing.T) {
	c := New(t.TempDir())
	key := NewKey([]byte("x"), "dropd", "lowest")
	require.NoError(t, c.Store(key, sample()))

	short := model.Performance{{Notes: []model.ResolvedNote{{String: 1, Fret: 1, Hit: true}}}}
	require.NoError(t, c.Store(key, short))

	got, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, short, got)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	c := New(dir, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	key := NewKey([]byte("x"), "dropd", "lowest")
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.file()), []byte("{not json"), 0o644))

	_, ok := c.Lookup(key)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "decode failed")

	p, hit, err := c.GetOrCompute(key, func() (model.Performance, error) { return sample(), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample(), p)

	got, ok := c.Lookup(key)
	require.True(t, ok, "recomputed entry overwrites the corrupt one")
	assert.Equal(t, sample(), got)
}

func TestOffNeckEntryIsMiss(t *testing.T) {
	entries := map[string]string{
		"string too high": `[{"notes":[{"string":7,"fret":0,"hit":true,"duration":0.25}]}]`,
		"negative string": `[{"notes":[{"string":-2,"fret":0,"hit":true,"duration":0.25}]}]`,
		"fret too high":   `[{"notes":[{"string":1,"fret":16,"hit":true,"duration":0.25}]}]`,
	}
	for name, entry := range entries {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			var buf bytes.Buffer
			c := New(dir, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
			key := NewKey([]byte(name), "standard", "lowest")
			require.NoError(t, os.WriteFile(filepath.Join(dir, key.file()), []byte(entry), 0o644))

			_, ok := c.Lookup(key)
			assert.False(t, ok)
			assert.Contains(t, buf.String(), "invalid entry")

			p, hit, err := c.GetOrCompute(key, func() (model.Performance, error) { return sample(), nil })
			require.NoError(t, err)
			assert.False(t, hit)
			assert.Equal(t, sample(), p)
		})
	}
}

func TestUnplayedNoteNeedsNoPosition(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	key := NewKey([]byte("rest"), "standard", "lowest")
	entry := `[{"notes":[{"string":-1,"fret":-1,"hit":false,"name":"C9","duration":0.25}]}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.file()), []byte(entry), 0o644))

	p, ok := c.Lookup(key)
	require.True(t, ok)
	require.Len(t, p, 1)
	assert.False(t, p[0].Notes[0].Hit)
}

func TestClearRemovesOnlyEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a-dropd-lowest.cache", "b-dropd-lowest.cache", "c-standard-lowest.cache"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mid"), []byte("midi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fret.conf"), []byte("{}"), 0o644))

	c := New(dir)
	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"song.mid", "fret.conf"}, names)

	n, err = c.Clear()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearMissingDir(t *testing.T) {
	n, err := New(filepath.Join(t.TempDir(), "missing")).Clear()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetOrComputeHit(t *testing.T) {
	c := New(t.TempDir())
	key := NewKey([]byte("x"), "dropd", "lowest")
	require.NoError(t, c.Store(key, sample()))

	p, hit, err := c.GetOrCompute(key, func() (model.Performance, error) {
		t.Fatal("compute must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample(), p)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(t.TempDir())
	key := NewKey([]byte("x"), "dropd", "lowest")

	var calls int32
	release := make(chan struct{})
	compute := func() (model.Performance, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sample(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := c.GetOrCompute(key, compute)
			assert.NoError(t, err)
			assert.Len(t, p, 2)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
