package bufferpool

import (
	diskmanager "IndexDB/storage_engine/disk_manager"
	"IndexDB/storage_engine/page"
	"sync"

	"go.uber.org/zap"
)

// ############################################# BUFFER POOL #############################################

// BufferPool manages cached pages in memory with LRU eviction
// Works for every page of every index file (header pages included)
type BufferPool struct {
	pages       map[int64]*page.Page // pageID -> Page
	capacity    int
	diskManager *diskmanager.DiskManager
	accessOrder []int64 // LRU tracking: most recently used at end
	hits        uint64
	misses      uint64
	logger      *zap.Logger
	mu          sync.Mutex
}

// Stats returns buffer pool statistics
type BufferPoolStats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
	Hits        uint64
	Misses      uint64
	HitRate     float64
}
