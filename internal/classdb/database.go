// Package classdb holds the table of known engine class names used for
// completion and validation.
//
// The table is published as an immutable Snapshot behind an atomic pointer.
// Every update builds a complete new Snapshot first and then swaps it in, so
// readers observe either the previous table or the new one, never a mix.
package classdb

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Source describes where the current table came from
type Source string

const (
	// SourceBuiltinSeed means no sync has succeeded and the embedded list is in use
	SourceBuiltinSeed Source = "builtin-seed"

	// SourceRemoteSynced means the table was replaced by a successful sync
	SourceRemoteSynced Source = "remote-synced"
)

// ErrEmptyClassList is returned when an update would leave the table empty
var ErrEmptyClassList = errors.New("class list is empty")

// Marker is the freshness marker of a table
type Marker struct {
	// Version is the version token reported by the remote source
	Version string `json:"version"`

	// Hash is the SHA256 of the raw payload the table was built from
	Hash string `json:"hash,omitempty"`

	// SyncedAt is the time of the last successful sync or version confirmation
	SyncedAt time.Time `json:"syncedAt"`
}

// Snapshot is an immutable, complete class table
type Snapshot struct {
	names  []string
	index  map[string]struct{}
	marker Marker
	source Source
}

// NewSnapshot builds a snapshot from the given names. Duplicate names collapse,
// surrounding whitespace is trimmed and blank names are dropped.
// Returns ErrEmptyClassList if no names remain.
func NewSnapshot(names []string, marker Marker, source Source) (*Snapshot, error) {
	index := make(map[string]struct{}, len(names))
	sorted := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := index[name]; ok {
			continue
		}
		index[name] = struct{}{}
		sorted = append(sorted, name)
	}
	if len(sorted) == 0 {
		return nil, ErrEmptyClassList
	}
	slices.Sort(sorted)

	// Drop monotonic clock and location so the marker survives a JSON round trip unchanged
	if !marker.SyncedAt.IsZero() {
		marker.SyncedAt = marker.SyncedAt.UTC().Round(0)
	}

	return &Snapshot{
		names:  sorted,
		index:  index,
		marker: marker,
		source: source,
	}, nil
}

// Contains reports whether name is a known class
func (s *Snapshot) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// All returns the class names in sorted order
func (s *Snapshot) All() []string {
	return slices.Clone(s.names)
}

// Len returns the number of classes
func (s *Snapshot) Len() int {
	return len(s.names)
}

// Marker returns the freshness marker
func (s *Snapshot) Marker() Marker {
	return s.marker
}

// Source returns where the table came from
func (s *Snapshot) Source() Source {
	return s.source
}

// withMarker returns a copy sharing the (immutable) names with a new marker
func (s *Snapshot) withMarker(marker Marker) *Snapshot {
	if !marker.SyncedAt.IsZero() {
		marker.SyncedAt = marker.SyncedAt.UTC().Round(0)
	}
	return &Snapshot{
		names:  s.names,
		index:  s.index,
		marker: marker,
		source: s.source,
	}
}

// Database is the process-wide (or per-workspace) class table
type Database struct {
	current atomic.Pointer[Snapshot]
}

// New creates a database holding the builtin seed list
func New() *Database {
	d := &Database{}
	d.current.Store(SeedSnapshot())
	return d
}

// Snapshot returns the current table
func (d *Database) Snapshot() *Snapshot {
	return d.current.Load()
}

// Contains reports whether name is a known class
func (d *Database) Contains(name string) bool {
	return d.current.Load().Contains(name)
}

// All returns the class names in sorted order
func (d *Database) All() []string {
	return d.current.Load().All()
}

// Len returns the number of known classes
func (d *Database) Len() int {
	return d.current.Load().Len()
}

// Marker returns the freshness marker of the current table
func (d *Database) Marker() Marker {
	return d.current.Load().Marker()
}

// Source returns where the current table came from
func (d *Database) Source() Source {
	return d.current.Load().Source()
}

// IsStale reports whether the table should be refreshed. A table that never
// synced is always stale. Otherwise it is stale once maxAge has elapsed since
// the marker's SyncedAt; maxAge <= 0 disables expiry.
func (d *Database) IsStale(now time.Time, maxAge time.Duration) bool {
	snap := d.current.Load()
	if snap.source != SourceRemoteSynced || snap.marker.SyncedAt.IsZero() {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return now.Sub(snap.marker.SyncedAt) >= maxAge
}

// Replace swaps in a complete new table built from names. The current table
// is left untouched when names is empty.
func (d *Database) Replace(names []string, marker Marker) (*Snapshot, error) {
	snap, err := NewSnapshot(names, marker, SourceRemoteSynced)
	if err != nil {
		return nil, err
	}
	d.current.Store(snap)
	return snap, nil
}

// Touch renews the marker's SyncedAt without changing the entries.
// Used when the remote source confirms the current version is still the latest.
func (d *Database) Touch(syncedAt time.Time) *Snapshot {
	for {
		old := d.current.Load()
		marker := old.marker
		marker.SyncedAt = syncedAt
		next := old.withMarker(marker)
		if d.current.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Restore publishes a snapshot loaded from persistent storage
func (d *Database) Restore(snap *Snapshot) error {
	if snap == nil || snap.Len() == 0 {
		return fmt.Errorf("cannot restore class database: %w", ErrEmptyClassList)
	}
	d.current.Store(snap)
	return nil
}
