// Package cache implements the per-model result cache a Provider
// consults before invoking an extractor and populates after a
// successful one (spec.md §4.4). A cache entry is keyed by a string the
// Provider builds from its own name and the target, and is read back along with a status: a hit, a miss, or a
// corrupted entry that must be treated as a miss after being logged.
//
// Two backends are provided: FileCache, a sandboxed on-disk store with
// a checksum sidecar, and GormCache, a SQLite-backed store for
// deployments that want a single queryable cache file instead of many
// loose ones.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kscanio/kscan/internal/config"
	"github.com/kscanio/kscan/internal/storage"
)

// Status describes the outcome of a Read.
type Status int

const (
	// StatusMiss means no entry exists for the key.
	StatusMiss Status = iota
	// StatusHit means a valid entry was found and returned.
	StatusHit
	// StatusCorrupted means an entry exists but failed its integrity
	// check; callers must treat this the same as a miss but should log
	// it, since it usually indicates an interrupted write or disk
	// corruption rather than ordinary cache churn.
	StatusCorrupted
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusCorrupted:
		return "corrupted"
	default:
		return "miss"
	}
}

// Cache is the read/write surface a Provider mediates extraction
// through.
type Cache interface {
	Read(ctx context.Context, key string) ([]byte, Status, error)
	Write(ctx context.Context, key string, value []byte) error
}

// ErrNotFound is returned internally by backends to signal a clean
// miss; Read translates it to (nil, StatusMiss, nil) so callers never
// need to special-case it.
var ErrNotFound = errors.New("cache: entry not found")

// FileCache stores each entry as two sandboxed files: the value itself
// and a ".sha256" sidecar used to detect corruption on read.
type FileCache struct {
	sandbox *storage.Sandbox
}

// NewFileCache creates a FileCache rooted at dir, which is created if
// it does not already exist.
func NewFileCache(dir string) (*FileCache, error) {
	sb, err := storage.NewSandbox(dir)
	if err != nil {
		return nil, fmt.Errorf("creating cache sandbox: %w", err)
	}
	return &FileCache{sandbox: sb}, nil
}

func (c *FileCache) paths(key string) (valuePath, sumPath string) {
	name := keyToFilename(key)
	return name, name + ".sha256"
}

// Read implements Cache.
func (c *FileCache) Read(_ context.Context, key string) ([]byte, Status, error) {
	valuePath, sumPath := c.paths(key)

	exists, err := c.sandbox.Exists(valuePath)
	if err != nil {
		return nil, StatusMiss, err
	}
	if !exists {
		return nil, StatusMiss, nil
	}

	data, err := c.sandbox.ReadFile(valuePath)
	if err != nil {
		return nil, StatusMiss, err
	}

	wantSum, err := c.sandbox.ReadFile(sumPath)
	if err != nil {
		// No sidecar at all is treated as corrupted: every entry this
		// cache itself writes always has one.
		return nil, StatusCorrupted, nil
	}

	gotSum := checksum(data)
	if string(wantSum) != gotSum {
		return nil, StatusCorrupted, nil
	}
	return data, StatusHit, nil
}

// Write implements Cache.
func (c *FileCache) Write(_ context.Context, key string, value []byte) error {
	valuePath, sumPath := c.paths(key)
	if err := c.sandbox.AtomicWrite(valuePath, value); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := c.sandbox.AtomicWrite(sumPath, []byte(checksum(value))); err != nil {
		return fmt.Errorf("writing cache checksum: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// keyToFilename maps an arbitrary cache key to a filesystem-safe name,
// the hex SHA-256 of the key. Two keys sharing a name would share an
// entry; the checksum sidecar does not detect that, since each write
// stores a value and its matching checksum together.
func keyToFilename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".bin"
}

// entry is the GORM model backing GormCache's table.
type entry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Checksum  string `gorm:"size:64"`
	Blob      []byte
	WrittenAt time.Time
}

func (entry) TableName() string { return "cache_entries" }

// GormCache stores entries in a single SQLite database file via GORM,
// for deployments that prefer one queryable cache file over many loose
// ones on disk.
type GormCache struct {
	db *gorm.DB
}

// NewGormCache migrates the cache schema on the already opened db and
// returns a GormCache backed by it; opening the database file is left to
// the caller (see New).
func NewGormCache(db *gorm.DB) (*GormCache, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrating cache schema: %w", err)
	}
	return &GormCache{db: db}, nil
}

// Read implements Cache.
func (c *GormCache) Read(ctx context.Context, key string) ([]byte, Status, error) {
	var e entry
	err := c.db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, StatusMiss, nil
	}
	if err != nil {
		return nil, StatusMiss, err
	}
	if checksum(e.Blob) != e.Checksum {
		return nil, StatusCorrupted, nil
	}
	return e.Blob, StatusHit, nil
}

// Write implements Cache.
func (c *GormCache) Write(ctx context.Context, key string, value []byte) error {
	e := entry{
		Key:       key,
		Checksum:  checksum(value),
		Blob:      value,
		WrittenAt: time.Now(),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&e).Error
}

// New selects and opens a Cache backend according to cfg.Cache.Backend
// (spec.md §4.5): "file" roots a FileCache at cfg.CacheDir; "sqlite"
// opens (creating if necessary) a GormCache at
// "<cfg.CacheDir>/cache.db".
func New(cfg *config.Config) (Cache, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		if _, err := storage.NewSandbox(cfg.CacheDir); err != nil {
			return nil, fmt.Errorf("creating cache directory %q: %w", cfg.CacheDir, err)
		}
		dbPath := filepath.Join(cfg.CacheDir, "cache.db")
		db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache at %q: %w", dbPath, err)
		}
		return NewGormCache(db)
	default:
		return NewFileCache(cfg.CacheDir)
	}
}

// ResultPath returns the on-disk path FileCache would use for key,
// without reading it. Exposed for diagnostics and tests only.
func (c *FileCache) ResultPath(key string) string {
	name, _ := c.paths(key)
	return filepath.Join(c.sandbox.BaseDir(), name)
}
