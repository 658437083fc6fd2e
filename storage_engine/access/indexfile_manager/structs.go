package indexfile

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/storage_engine/bufferpool"
	"IndexDB/storage_engine/catalog"
	diskmanager "IndexDB/storage_engine/disk_manager"
	"sync"

	"go.uber.org/zap"
)

type IndexFileManager struct {
	baseDir     string                      // e.g., /data/mydb/indexes
	indexes     map[string]*bplus.BPlusTree // index name → open B+ tree
	catalog     *catalog.CatalogManager     // table schemas + index file ids
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	logger      *zap.Logger
	mu          sync.RWMutex
}

// CreateOptions overrides the capacities derived from the page size. Zero
// keeps the derived value; larger values are clamped to it.
type CreateOptions struct {
	TreeOrder         int
	MaxRecordsPerLeaf int
}
