package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/chase3718/guitarbot/model"
	"github.com/chase3718/guitarbot/tuning"
)

// Extension marks the files owned by the cache inside its directory.
const Extension = ".cache"

// Key identifies one cached performance: the content hash of the piece plus
// the tuning and allocation policy it was assigned with.
type Key string

// NewKey builds the key for content assigned under the named tuning and
// strategy. Distinct tunings or strategies never collide.
func NewKey(content []byte, tuningName, strategyName string) Key {
	sum := blake2b.Sum256(content)
	return Key(hex.EncodeToString(sum[:]) + "-" + tuningName + "-" + strategyName)
}

func (k Key) file() string { return string(k) + Extension }

// Cache stores performances as one JSON file per key.
type Cache struct {
	dir    string
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func New(dir string, opts ...Option) *Cache {
	c := &Cache{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

func (c *Cache) Dir() string { return c.dir }

// Lookup returns the stored performance for key. A missing entry is a miss;
// an unreadable entry is logged and also reported as a miss.
func (c *Cache) Lookup(key Key) (model.Performance, bool) {
	path := filepath.Join(c.dir, key.file())
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache: read failed, treating as miss", "key", key, "err", err)
		return nil, false
	}
	var p model.Performance
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("cache: decode failed, treating as miss", "key", key, "err", err)
		return nil, false
	}
	if err := checkPositions(p); err != nil {
		c.logger.Warn("cache: invalid entry, treating as miss", "key", key, "err", err)
		return nil, false
	}
	c.logger.Debug("cache: hit", "key", key, "chords", len(p))
	return p, true
}

// checkPositions rejects played notes that name a string or fret the
// instrument does not have.
func checkPositions(p model.Performance) error {
	for i, c := range p {
		for _, n := range c.Notes {
			if !n.Hit {
				continue
			}
			if n.String < 0 || n.String >= tuning.NumStrings || n.Fret < 0 || n.Fret >= tuning.FretsPerString {
				return fmt.Errorf("chord %d: note %s has no position on the neck", i, n.Label())
			}
		}
	}
	return nil
}

// Store replaces the entry for key. The file is written next to its final
// name and renamed so readers never observe a partial entry.
func (c *Cache) Store(key Key, p model.Performance) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: create %s: %w", c.dir, err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(c.dir, "."+string(key)+"-*")
	if err != nil {
		return fmt.Errorf("cache: store %s: %w", key, err)
	}
	_, werr := tmp.Write(data)
	if err := multierr.Combine(werr, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: store %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, key.file())); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: store %s: %w", key, err)
	}
	c.logger.Debug("cache: stored", "key", key, "chords", len(p), "bytes", len(data))
	return nil
}

// GetOrCompute returns the cached performance for key or runs compute and
// stores its result. Concurrent callers for the same key share one compute.
// The boolean reports a cache hit.
func (c *Cache) GetOrCompute(key Key, compute func() (model.Performance, error)) (model.Performance, bool, error) {
	type result struct {
		p   model.Performance
		hit bool
	}
	v, err, _ := c.group.Do(string(key), func() (interface{}, error) {
		if p, ok := c.Lookup(key); ok {
			return result{p: p, hit: true}, nil
		}
		p, err := compute()
		if err != nil {
			return nil, err
		}
		if err := c.Store(key, p); err != nil {
			c.logger.Warn("cache: store failed", "key", key, "err", err)
		}
		return result{p: p}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.p, r.hit, nil
}

// Clear deletes every cache entry and returns how many were removed. Files
// without the cache extension are left alone. Clearing an empty or missing
// directory is not an error.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: list %s: %w", c.dir, err)
	}
	var (
		removed int
		freed   uint64
		errs    error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
		freed += uint64(size)
	}
	c.logger.Info("cache: cleared", "entries", removed, "freed", humanize.Bytes(freed))
	if errs != nil {
		return removed, fmt.Errorf("cache: clear: %w", errs)
	}
	return removed, nil
}
