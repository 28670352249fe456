package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrNotFound = errors.New("library: piece not found")

// Piece describes one playable file.
type Piece struct {
	Name string `json:"name"`
	Size string `json:"size"`
}

// Library lists and reads the pieces of one music directory.
type Library struct {
	dir string
	ext string
}

func New(dir, ext string) *Library {
	return &Library{dir: dir, ext: ext}
}

func (l *Library) Dir() string { return l.dir }

// List returns the piece names, extension stripped, in lexicographic order.
func (l *Library) List() ([]string, error) {
	pieces, err := l.Pieces()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(pieces))
	for i, p := range pieces {
		names[i] = p.Name
	}
	return names, nil
}

// Pieces is List with file sizes.
func (l *Library) Pieces() ([]Piece, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Piece{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("library: read %s: %w", l.dir, err)
	}
	out := []Piece{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), l.ext) {
			continue
		}
		p := Piece{Name: strings.TrimSuffix(e.Name(), l.ext)}
		if info, err := e.Info(); err == nil {
			p.Size = humanize.Bytes(uint64(info.Size()))
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the raw content of the named piece.
func (l *Library) Read(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name+l.ext))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("library: read %s: %w", name, err)
	}
	return data, nil
}
