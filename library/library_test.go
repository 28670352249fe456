package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestListSortedWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "zebra.mid", "z")
	write(t, dir, "alpha.mid", "a")
	write(t, dir, "Bolero.mid", "b")
	write(t, dir, "notes.txt", "x")
	write(t, dir, "abc123-dropd.cache", "c")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.mid"), 0o755))

	names, err := New(dir, ".mid").List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolero", "alpha", "zebra"}, names)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	names, err := New(filepath.Join(t.TempDir(), "nope"), ".mid").List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPiecesCarrySize(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "song.mid", "12345")

	pieces, err := New(dir, ".mid").Pieces()
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, "5 B", pieces[0].Size)
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "song.mid", "content")
	lib := New(dir, ".mid")

	data, err := lib.Read("song")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	_, err = lib.Read("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = lib.Read("../song")
	assert.ErrorIs(t, err, ErrNotFound)
}
