package storageengine

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Options configures the storage engine.
type Options struct {
	// DbRoot is the directory holding tables/, metadata/ and indexes/.
	DbRoot string

	// BufferPoolSize is the number of page frames kept in memory.
	// Default: 256 frames.
	BufferPoolSize int

	// PageCacheSize is the number of clean page images kept below the
	// buffer pool by the disk manager. 0 disables the cache.
	// Default: 1024 pages.
	PageCacheSize int

	// Logger receives the engine logs. Default: no logging.
	Logger *zap.Logger
}

// DefaultOptions returns the engine options with default values.
func DefaultOptions() Options {
	return Options{
		DbRoot:         "databases/default",
		BufferPoolSize: 256,
		PageCacheSize:  1024,
	}
}

// Validate fills unset fields with defaults and rejects unusable values.
func (o *Options) Validate() error {
	if o.DbRoot == "" {
		return errors.New("options: DbRoot is required")
	}
	if o.BufferPoolSize <= 0 {
		o.BufferPoolSize = 256
	}
	// the deepest write path pins a root-to-leaf chain plus a few siblings
	if o.BufferPoolSize < 16 {
		return errors.Newf("options: BufferPoolSize %d is below the minimum of 16 frames", o.BufferPoolSize)
	}
	if o.PageCacheSize < 0 {
		return errors.Newf("options: PageCacheSize must not be negative (%d)", o.PageCacheSize)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}
