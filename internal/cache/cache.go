// Package cache keeps mined databases on disk so that re-mining an
// unchanged program with the same settings is skipped.
package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"

	"github.com/panbanda/acminer/pkg/store"
)

const entryExt = ".msgpack"

// Cache provides file-based caching of mined databases.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// Entry is one cached database. Entries are stored as msgpack; Data holds
// the sealed JSON database.
type Entry struct {
	Key       string    `msgpack:"key"`
	Timestamp time.Time `msgpack:"timestamp"`
	Data      []byte    `msgpack:"data"`
}

// Settings are the analysis options a database depends on besides the
// program itself.
type Settings struct {
	KeepReceiver     bool     `json:"keep_receiver"`
	FollowParameters bool     `json:"follow_parameters"`
	InlineConstants  bool     `json:"inline_constants"`
	Entries          []string `json:"entries"`
}

// New creates a new cache instance.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
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
	return c.enabled
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Key derives the cache key of a program fingerprint and settings. The
// entry list is order-insensitive.
func Key(fingerprint string, s Settings) string {
	entries := append([]string(nil), s.Entries...)
	sort.Strings(entries)
	s.Entries = entries
	b, _ := json.Marshal(struct {
		Program  string   `json:"program"`
		Settings Settings `json:"settings"`
	}{fingerprint, s})
	return HashBytes(b)
}

// Get retrieves a cached entry if it exists and is not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.Timestamp) > c.ttl {
		os.Remove(path)
		return nil, false
	}

	return entry.Data, true
}

// Set stores a JSON value in the cache.
func (c *Cache) Set(key string, data []byte) error {
	if !c.enabled {
		return nil
	}
	if !json.Valid(data) {
		return errors.New("cache data must be JSON")
	}

	entryData, err := msgpack.Marshal(Entry{
		Key:       key,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	return os.WriteFile(c.keyPath(key), entryData, 0600)
}

// GetDocument returns the cached database for key. Entries that fail
// validation are dropped.
func (c *Cache) GetDocument(key string) (*store.Document, bool) {
	data, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	doc, err := store.Read(bytes.NewReader(data))
	if err != nil {
		_ = c.Invalidate(key)
		return nil, false
	}
	return doc, true
}

// PutDocument seals doc and stores it under key.
func (c *Cache) PutDocument(key string, doc *store.Document) error {
	if !c.enabled {
		return nil
	}
	var buf bytes.Buffer
	if err := store.Write(&buf, doc); err != nil {
		return err
	}
	return c.Set(key, buf.Bytes())
}

// Invalidate removes a cache entry.
func (c *Cache) Invalidate(key string) error {
	if !c.enabled {
		return nil
	}
	err := os.Remove(c.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath converts a key to a filesystem path.
func (c *Cache) keyPath(key string) string {
	hash := blake3.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+entryExt)
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = time.Since(newest)
	}
	return stats, nil
}
