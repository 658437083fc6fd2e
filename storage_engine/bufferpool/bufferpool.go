package bufferpool

import (
	diskmanager "IndexDB/storage_engine/disk_manager"
	"IndexDB/storage_engine/page"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file is the main file of the bufferpool
The buffer pool works on LRU based caching mechanism
and holds access to disk manager for flushing the pages in the cache onto the disk
similarly if page not found in the cache, disk manager loads the page from the disk and adds in the cache for future access

Pages are identified by globalPageID.
Every FetchPage/NewPage pins the frame; the caller must UnpinPage it exactly once.
Latching the page contents is the caller's business (see page.Page).
*/

var ErrAllPinned = errors.New("all pages are pinned, cannot evict")

// NewBufferPool creates a new buffer pool with the given capacity
func NewBufferPool(capacity int, diskManager *diskmanager.DiskManager, logger *zap.Logger) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferPool{
		pages:       make(map[int64]*page.Page, capacity),
		capacity:    capacity,
		diskManager: diskManager,
		accessOrder: make([]int64, 0, capacity),
		logger:      logger.Named("bufferpool"),
	}
}

// FetchPage retrieves a page from the buffer pool, loading from disk if necessary
// Returns the page with pin count incremented
func (bp *BufferPool) FetchPage(pageID int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	// Check if page is in buffer pool
	if pg, exists := bp.pages[pageID]; exists {
		bp.hits++
		bp.updateAccessOrder(pageID)
		pg.PinCount++
		return pg, nil
	}

	bp.misses++
	bp.logger.Debug("miss, loading from disk", zap.Int64("page_id", pageID))

	if bp.diskManager == nil {
		return nil, errors.New("disk manager not set")
	}

	if err := bp.makeRoom(); err != nil {
		return nil, errors.Wrapf(err, "failed to make room for page %d", pageID)
	}

	pg, err := bp.diskManager.ReadPage(pageID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read page %d from disk", pageID)
	}

	bp.pages[pg.ID] = pg
	bp.updateAccessOrder(pg.ID)
	pg.PinCount++

	return pg, nil
}

// NewPage asks the DiskManager for the next available page ID for the given
// file, constructs a zeroed Page entirely in RAM, marks it dirty so
// the BufferPool will eventually flush it, and pins it for the caller.
func (bp *BufferPool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.diskManager == nil {
		return nil, errors.New("disk manager not set")
	}

	// Evict first so a full pool does not leak an allocated page number.
	if err := bp.makeRoom(); err != nil {
		return nil, errors.Wrap(err, "failed to make room for new page")
	}

	pageID, err := bp.diskManager.AllocatePage(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate page")
	}

	pg := diskmanager.NewPage(pageID, fileID, pageType)
	pg.Data[types.PageTypeOffset] = byte(pageType)
	pg.IsDirty = true // New pages are dirty by default
	pg.PinCount = 1

	bp.pages[pg.ID] = pg
	bp.updateAccessOrder(pg.ID)

	return pg, nil
}

// UnpinPage decrements the pin count for a page
func (bp *BufferPool) UnpinPage(pageID int64, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, exists := bp.pages[pageID]
	if !exists {
		return errors.Newf("page %d not in buffer pool", pageID)
	}

	if pg.PinCount <= 0 {
		panic(errors.AssertionFailedf("unpin of page %d with pin count %d", pageID, pg.PinCount))
	}
	pg.PinCount--

	if isDirty {
		pg.IsDirty = true
	}

	return nil
}

// FlushPage writes a specific page to disk if dirty
func (bp *BufferPool) FlushPage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, exists := bp.pages[pageID]
	if !exists {
		return errors.Newf("page %d not in buffer pool", pageID)
	}

	return bp.flushLocked(pg)
}

// FlushFile writes every dirty page of one file to disk. The caller makes
// sure nobody mutates pages of the file while it runs.
func (bp *BufferPool) FlushFile(fileID uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	flushed := 0
	for _, pg := range bp.pages {
		if pg.FileID != fileID || !pg.IsDirty {
			continue
		}
		if err := bp.flushLocked(pg); err != nil {
			return err
		}
		flushed++
	}

	bp.logger.Debug("flushed file", zap.Uint32("file_id", fileID), zap.Int("pages", flushed))
	return nil
}

// FlushAllPages writes all dirty pages to disk
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, pg := range bp.pages {
		if err := bp.flushLocked(pg); err != nil {
			return err
		}
	}
	return nil
}

// flushLocked assumes bp.mu is held.
func (bp *BufferPool) flushLocked(pg *page.Page) error {
	if !pg.IsDirty {
		return nil
	}
	if err := bp.diskManager.WritePage(pg); err != nil {
		return errors.Wrapf(err, "failed to flush page %d", pg.ID)
	}
	pg.IsDirty = false
	return nil
}

// DropFile removes every frame of a file from the pool without writing it.
// Used after the file has been flushed (close) or when it is destroyed.
func (bp *BufferPool) DropFile(fileID uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for pageID, pg := range bp.pages {
		if pg.FileID != fileID {
			continue
		}
		if pg.PinCount > 0 {
			return errors.Newf("cannot drop pinned page %d (pin count %d)", pageID, pg.PinCount)
		}
	}

	kept := bp.accessOrder[:0]
	for _, id := range bp.accessOrder {
		if pg, ok := bp.pages[id]; ok && pg.FileID == fileID {
			delete(bp.pages, id)
			continue
		}
		kept = append(kept, id)
	}
	bp.accessOrder = kept
	return nil
}

// makeRoom evicts one page if the pool is at capacity.
// Assumes lock is already held
func (bp *BufferPool) makeRoom() error {
	if len(bp.pages) < bp.capacity {
		return nil
	}
	return bp.evictLRU()
}

// evictLRU evicts the least recently used unpinned page
// Assumes lock is already held
func (bp *BufferPool) evictLRU() error {
	// Find first unpinned page in access order (LRU)
	for i := 0; i < len(bp.accessOrder); i++ {
		pageID := bp.accessOrder[i]
		pg, exists := bp.pages[pageID]

		if !exists {
			// Remove from access order if page doesn't exist
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			i--
			continue
		}

		// Skip pinned pages
		if pg.PinCount > 0 {
			continue
		}

		bp.logger.Debug("evict", zap.Int64("page_id", pageID), zap.Bool("dirty", pg.IsDirty))
		if err := bp.flushLocked(pg); err != nil {
			return errors.Wrapf(err, "failed to write page %d during eviction", pageID)
		}

		delete(bp.pages, pageID)
		bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
		return nil
	}

	return ErrAllPinned
}

// updateAccessOrder moves a page to the end of access order (most recently used)
// Assumes lock is already held
func (bp *BufferPool) updateAccessOrder(pageID int64) {
	// Remove from current position
	for i, id := range bp.accessOrder {
		if id == pageID {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			break
		}
	}
	// Add to end (most recently used)
	bp.accessOrder = append(bp.accessOrder, pageID)
}
