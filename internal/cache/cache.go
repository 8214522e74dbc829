// Package cache stores parsed modules on disk keyed by content hash.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Cache is a directory of entries, one per key. An entry is only served
// back for the content hash it was stored with.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

type entry struct {
	Key    string    `json:"key"`
	Hash   string    `json:"hash"`
	Stored time.Time `json:"stored"`
	Data   []byte    `json:"data"`
}

// New opens the cache in dir, creating it. A ttlHours of 0 never expires
// entries. A disabled cache ignores dir and stores nothing.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// HashBytes returns the hex BLAKE3 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the data stored under key for hash. Expired entries are
// removed and miss.
func (c *Cache) Lookup(key, hash string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	path := c.entryPath(key)
	e, err := readEntry(path)
	if err != nil || e.Key != key || e.Hash != hash {
		return nil, false
	}
	if c.expired(e) {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Data, true
}

// Store records data under key for hash, replacing any previous entry.
func (c *Cache) Store(key, hash string, data []byte) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(entry{Key: key, Hash: hash, Stored: time.Now(), Data: data})
	if err != nil {
		return err
	}

	// renamed into place so concurrent readers never see a partial entry
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.entryPath(key))
}

// Prune deletes expired and unreadable entries along with temp files left
// by interrupted writes, returning how many files it removed.
func (c *Cache) Prune() (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, f.Name())
		stale := strings.HasPrefix(f.Name(), ".entry-")
		if !stale && filepath.Ext(f.Name()) == ".json" {
			e, err := readEntry(path)
			stale = err != nil || c.expired(e)
		}
		if !stale {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && time.Since(e.Stored) > c.ttl
}

// entryPath maps key to a file name; keys are hashed so any key is valid.
func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, HashBytes([]byte(key))+".json")
}

func readEntry(path string) (*entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
