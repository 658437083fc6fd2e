package storageengine

import (
	indexfile "IndexDB/storage_engine/access/indexfile_manager"
	"IndexDB/storage_engine/bufferpool"
	"IndexDB/storage_engine/catalog"
	checkpoint "IndexDB/storage_engine/checkpoint_manager"
	diskmanager "IndexDB/storage_engine/disk_manager"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
The main file of storage engine, that wires the disk manager, buffer pool,
catalog manager and index file manager for one database root.

Rows live inside the indexes: every index of a table stores the full
fixed-length row as its record payload, keyed by the index columns.
*/

func NewStorageEngine(opts Options) (*StorageEngine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.DbRoot, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create db root")
	}

	logger := opts.Logger

	catalogManager, err := catalog.NewCatalogManager(opts.DbRoot, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init catalog manager")
	}

	diskManager, err := diskmanager.NewDiskManager(opts.PageCacheSize, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init disk manager")
	}

	bufferPool := bufferpool.NewBufferPool(opts.BufferPoolSize, diskManager, logger)

	indexManager, err := indexfile.NewIndexFileManager(filepath.Join(opts.DbRoot, "indexes"),
		catalogManager, diskManager, bufferPool, logger)
	if err != nil {
		_ = diskManager.Close()
		return nil, errors.Wrap(err, "failed to init index manager")
	}

	checkpointManager, err := checkpoint.NewCheckpointManager(opts.DbRoot, logger)
	if err != nil {
		_ = diskManager.Close()
		return nil, errors.Wrap(err, "failed to init checkpoint manager")
	}
	last, err := checkpointManager.LoadCheckpoint()
	if err != nil {
		_ = diskManager.Close()
		return nil, err
	}

	se := &StorageEngine{
		BufferPool:        bufferPool,
		DiskManager:       diskManager,
		CatalogManager:    catalogManager,
		IndexManager:      indexManager,
		CheckpointManager: checkpointManager,
		DbRoot:            opts.DbRoot,
		logger:            logger,
	}

	logger.Info("storage engine ready",
		zap.String("root", opts.DbRoot),
		zap.Uint64("last_checkpoint", last.Seq),
		zap.Int("buffer_pool", opts.BufferPoolSize),
		zap.Int("page_cache", opts.PageCacheSize))
	return se, nil
}

// Close checkpoints, then closes every open index and file. The engine is
// unusable afterwards.
func (se *StorageEngine) Close() error {
	err := se.Checkpoint()
	if cerr := se.IndexManager.CloseAll(); err == nil {
		err = cerr
	}
	if cerr := se.DiskManager.Close(); err == nil {
		err = cerr
	}

	stats := se.BufferPool.GetStats()
	se.logger.Info("storage engine closed",
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("misses", stats.Misses),
		zap.Float64("hit_rate", stats.HitRate))
	return err
}

// Checkpoint writes every open index's header and dirty pages to disk,
// syncs the files and records the checkpoint. Writers must be quiescent.
func (se *StorageEngine) Checkpoint() error {
	names := se.IndexManager.OpenIndexes()
	for _, name := range names {
		entry, ok := se.CatalogManager.GetIndex(name)
		if !ok {
			continue
		}
		tree, err := se.IndexManager.OpenIndex(entry.Table, entry.KeyColumns)
		if err != nil {
			return err
		}
		if err := tree.Flush(); err != nil {
			return errors.Wrapf(err, "checkpoint of index '%s'", name)
		}
	}
	if err := se.DiskManager.Sync(); err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	_, err := se.CheckpointManager.SaveCheckpoint(names)
	return err
}
