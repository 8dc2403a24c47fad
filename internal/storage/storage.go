// Package storage persists the class database cache on the local filesystem.
//
// The cache is a single JSON document written with a temp-file-and-rename
// discipline under an exclusive file lock, so a crash mid-write leaves the
// previous cache intact and concurrent processes never read a partial file.
// Documents are validated against an embedded JSON schema when loaded.
package storage

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pinehappi/argon/internal/classdb"
)

const (
	// CacheFileName is the name of the class cache file
	CacheFileName = "classes.json"

	// SchemaVersion is the version of the cache document layout
	SchemaVersion = 1

	schemaResource = "cache.schema.json"
)

// ErrCacheNotFound is returned by Get when no cache has been written yet
var ErrCacheNotFound = errors.New("class cache not found")

//go:embed schema/cache.schema.json
var cacheSchemaData []byte

//go:generate mockgen -destination=mocks/mock_storage_manager.go -package=mocks -source=storage.go StorageManager

// StorageManager defines the interface for class cache persistence
type StorageManager interface {
	// Store saves a snapshot to persistent storage
	Store(ctx context.Context, snap *classdb.Snapshot) error

	// Get loads and validates the persisted snapshot
	Get(ctx context.Context) (*classdb.Snapshot, error)

	// Delete removes the persisted snapshot
	Delete(ctx context.Context) error
}

// cacheDocument is the on-disk layout of the cache
type cacheDocument struct {
	SchemaVersion int            `json:"schemaVersion"`
	Source        classdb.Source `json:"source"`
	Marker        classdb.Marker `json:"marker"`
	Classes       []string       `json:"classes"`
}

// fileStorageManager implements StorageManager using the local filesystem
type fileStorageManager struct {
	basePath string
	schema   *jsonschema.Schema
}

// NewFileStorageManager creates a new file-based storage manager rooted at basePath
func NewFileStorageManager(basePath string) (StorageManager, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &fileStorageManager{
		basePath: basePath,
		schema:   schema,
	}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(cacheSchemaData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded cache schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("failed to add embedded schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded cache schema: %w", err)
	}
	return schema, nil
}

func (f *fileStorageManager) filePath() string {
	return filepath.Join(f.basePath, CacheFileName)
}

func (f *fileStorageManager) lock() *flock.Flock {
	return flock.New(f.filePath() + ".lock")
}

// Store writes the snapshot to a temporary file and renames it over the cache
func (f *fileStorageManager) Store(ctx context.Context, snap *classdb.Snapshot) error {
	if snap == nil || snap.Len() == 0 {
		return fmt.Errorf("cannot store class cache: %w", classdb.ErrEmptyClassList)
	}

	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(cacheDocument{
		SchemaVersion: SchemaVersion,
		Source:        snap.Source(),
		Marker:        snap.Marker(),
		Classes:       snap.All(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal class cache: %w", err)
	}

	fileLock := f.lock()
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock class cache: %w", err)
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	tmp, err := os.CreateTemp(f.basePath, CacheFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary cache file: %w", err)
	}

	if err := os.Rename(tmpPath, f.filePath()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("Stored class cache",
		"path", f.filePath(), "classes", snap.Len(), "version", snap.Marker().Version)
	return nil
}

// Get reads, validates and decodes the cache file
func (f *fileStorageManager) Get(_ context.Context) (*classdb.Snapshot, error) {
	fileLock := f.lock()
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := fileLock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock class cache: %w", err)
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	data, err := os.ReadFile(f.filePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to read class cache: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse class cache: %w", err)
	}
	if err := f.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("class cache failed schema validation: %w", err)
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class cache: %w", err)
	}

	snap, err := classdb.NewSnapshot(doc.Classes, doc.Marker, doc.Source)
	if err != nil {
		return nil, fmt.Errorf("invalid class cache: %w", err)
	}
	return snap, nil
}

// Delete removes the cache file
func (f *fileStorageManager) Delete(_ context.Context) error {
	if err := os.Remove(f.filePath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, nothing to delete
			return nil
		}
		return fmt.Errorf("failed to delete class cache: %w", err)
	}
	return nil
}
