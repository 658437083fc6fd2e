package storageengine

import (
	indexfile "IndexDB/storage_engine/access/indexfile_manager"
	"IndexDB/storage_engine/bufferpool"
	"IndexDB/storage_engine/catalog"
	checkpoint "IndexDB/storage_engine/checkpoint_manager"
	diskmanager "IndexDB/storage_engine/disk_manager"

	"go.uber.org/zap"
)

type StorageEngine struct {
	BufferPool *bufferpool.BufferPool

	DiskManager    *diskmanager.DiskManager
	CatalogManager *catalog.CatalogManager
	IndexManager   *indexfile.IndexFileManager

	CheckpointManager *checkpoint.CheckpointManager

	DbRoot string
	logger *zap.Logger
}
