// Package manifest records, per source artifact, the content hash and
// destination it last produced, so unchanged work is skipped across runs.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const formatVersion = 1

// Entry is what a source key last produced.
type Entry struct {
	Hash        string `json:"hash"`
	Destination string `json:"destination"`
}

// Candidate is one unit of work offered to Sync.
type Candidate struct {
	Key         string
	Hash        string
	Destination string
}

// Stats counts what a run did through the manifest.
type Stats struct {
	Skipped  int `json:"skipped"`
	Produced int `json:"produced"`
	Pruned   int `json:"pruned"`
	Dropped  int `json:"dropped"`
}

// Manifest is safe for concurrent Sync calls. It is written to disk only
// by Save.
type Manifest struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
	seen    map[string]bool
	stats   Stats
}

type file struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Load reads the manifest at path. A missing file is an empty manifest. An
// unreadable one is discarded with a warning, which only costs a full
// re-production.
func Load(path string) (*Manifest, error) {
	m := &Manifest{path: path, entries: map[string]Entry{}, seen: map[string]bool{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, worlderr.New(worlderr.KindIO, "manifest.Load", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil || f.Version != formatVersion {
		logger.Warn("discarding unreadable manifest", "path", path, "err", err)
		return m, nil
	}
	if f.Entries != nil {
		m.entries = f.Entries
	}
	return m, nil
}

// Path is where Save writes.
func (m *Manifest) Path() string { return m.path }

// Len is the number of entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get returns the entry for key.
func (m *Manifest) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

// Stats returns the counters so far.
func (m *Manifest) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// PruneMissing drops entries whose destination no longer exists.
func (m *Manifest) PruneMissing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.Destination != "" && !fsutil.Exists(e.Destination) {
			delete(m.entries, k)
			n++
		}
	}
	m.stats.Pruned += n
	return n
}

// Sync skips c when the recorded hash and destination match and the
// destination exists; otherwise it calls produce and records c. It reports
// whether produce ran. A failed produce leaves the entry untouched.
func (m *Manifest) Sync(c Candidate, produce func(destination string) error) (bool, error) {
	m.mu.Lock()
	m.seen[c.Key] = true
	prev, ok := m.entries[c.Key]
	m.mu.Unlock()

	if ok && prev.Hash == c.Hash && prev.Destination == c.Destination && fsutil.Exists(c.Destination) {
		m.mu.Lock()
		m.stats.Skipped++
		m.mu.Unlock()
		return false, nil
	}
	if err := produce(c.Destination); err != nil {
		return false, fmt.Errorf("produce %s: %w", c.Key, err)
	}

	m.mu.Lock()
	m.entries[c.Key] = Entry{Hash: c.Hash, Destination: c.Destination}
	m.stats.Produced++
	m.mu.Unlock()
	return true, nil
}

// SyncBytes syncs generated content: the hash is taken over data and
// producing writes it atomically to destination.
func (m *Manifest) SyncBytes(key, destination string, data []byte) (bool, error) {
	return m.Sync(Candidate{Key: key, Hash: HashBytes(data), Destination: destination}, func(dst string) error {
		return fsutil.WriteFileAtomic(dst, data, 0o644)
	})
}

// Retain drops entries not offered to Sync since Load, so artifacts that
// are no longer produced stop being tracked.
func (m *Manifest) Retain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if !m.seen[k] {
			delete(m.entries, k)
			n++
		}
	}
	m.stats.Dropped += n
	return n
}

// Stale returns the destinations of entries not offered to Sync since Load,
// in key order.
func (m *Manifest) Stale() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if !m.seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.entries[k].Destination)
	}
	return out
}

// Save writes the manifest with write-then-rename.
func (m *Manifest) Save() error {
	m.mu.Lock()
	data, err := json.MarshalIndent(file{Version: formatVersion, Entries: m.entries}, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.path, append(data, '\n'), 0o644); err != nil {
		return worlderr.New(worlderr.KindIO, "manifest.Save", err)
	}
	return nil
}
