package diskmanager

import (
	"IndexDB/storage_engine/page"
	"IndexDB/types"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

/*
This is main file for disk manager
It owns:
File descriptors (os.File)
Reading/writing raw bytes at specific offsets (ReadAt, WriteAt)
Page allocation (tracking NextPageID per file)

Page ID encoding:
globalPageID = int64(fileID) << 32 | localPageNum
This makes global IDs deterministic, the same on every restart regardless of file load order.

Bufferpool on Page hits return the pages, but if page miss occurs then it is disk manager which reads/writes the page at the offset.
Below the buffer pool sits a small ristretto cache of page images, so a page that was
evicted and is fetched again shortly after does not always cost a disk read.
The buffer pool serialises all I/O for one page, which keeps the cache coherent:
every write refreshes the cached image before the frame can be read back.
*/

var ErrFileNotOpen = errors.New("file not open")

// NewDiskManager creates a disk manager. pageCacheSize is the number of page
// images kept in the read cache; 0 disables the cache.
func NewDiskManager(pageCacheSize int, logger *zap.Logger) (*DiskManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dm := &DiskManager{
		files:      make(map[uint32]*FileDescriptor),
		paths:      make(map[string]uint32),
		nextFileID: 1,
		logger:     logger.Named("diskmanager"),
	}

	if pageCacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
			NumCounters: int64(pageCacheSize) * 10,
			MaxCost:     int64(pageCacheSize),
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "NewDiskManager: failed to create page cache")
		}
		dm.pageCache = cache
	}

	return dm, nil
}

func NewPage(pageID int64, fileID uint32, pageType types.PageType) *page.Page {
	return &page.Page{
		ID:       pageID,
		FileID:   fileID,
		Data:     make([]byte, page.PageSize),
		IsDirty:  false,
		PinCount: 0,
		PageType: pageType,
	}
}

// CreateFile creates a new empty file; it fails if the file already exists.
func (dm *DiskManager) CreateFile(filePath string) error {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filePath)
	}
	return file.Close()
}

// FileExists is a presence check only.
func (dm *DiskManager) FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && !info.IsDir()
}

// DestroyFile removes a file from disk. An open file must be closed first.
func (dm *DiskManager) DestroyFile(filePath string) error {
	dm.mu.RLock()
	_, open := dm.paths[filePath]
	dm.mu.RUnlock()

	if open {
		return errors.Newf("cannot destroy open file %s", filePath)
	}
	if err := os.Remove(filePath); err != nil {
		return errors.Wrapf(err, "failed to remove file %s", filePath)
	}
	dm.logger.Debug("destroyed file", zap.String("path", filePath))
	return nil
}

/*
Why two OpenFile variants:
OpenFileWithID: used when the catalog hands out a stable file id for the file
OpenFile: the disk manager assigns the next free id (session scoped)
*/
func (dm *DiskManager) OpenFileWithID(filePath string, catalogFileID uint32) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id, ok := dm.paths[filePath]; ok {
		return id, nil
	}
	if _, taken := dm.files[catalogFileID]; taken {
		return 0, errors.Newf("file id %d already in use", catalogFileID)
	}

	if err := dm.openLocked(filePath, catalogFileID); err != nil {
		return 0, err
	}
	if catalogFileID >= dm.nextFileID {
		dm.nextFileID = catalogFileID + 1
	}
	return catalogFileID, nil
}

// OpenFile opens an existing file and returns its file ID
func (dm *DiskManager) OpenFile(filePath string) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	// Check if file is already open
	if id, ok := dm.paths[filePath]; ok {
		return id, nil
	}

	fileID := dm.nextFileID
	for {
		if _, taken := dm.files[fileID]; !taken {
			break
		}
		fileID++
	}

	if err := dm.openLocked(filePath, fileID); err != nil {
		return 0, err
	}
	dm.nextFileID = fileID + 1
	return fileID, nil
}

// openLocked assumes dm.mu is held.
func (dm *DiskManager) openLocked(filePath string, fileID uint32) error {
	file, err := os.OpenFile(filePath, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", filePath)
	}

	// Get file size to determine existing pages
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrap(err, "failed to stat file")
	}

	dm.files[fileID] = &FileDescriptor{
		FileID:     fileID,
		FilePath:   filePath,
		File:       file,
		NextPageID: stat.Size() / int64(page.PageSize),
	}
	dm.paths[filePath] = fileID

	dm.logger.Debug("opened file",
		zap.String("path", filePath),
		zap.Uint32("file_id", fileID),
		zap.Int64("pages", stat.Size()/int64(page.PageSize)))
	return nil
}

func (dm *DiskManager) descriptor(fileID uint32) (*FileDescriptor, error) {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(ErrFileNotOpen, "file %d", fileID)
	}
	return fd, nil
}

// ReadPage reads a page from disk
func (dm *DiskManager) ReadPage(globalPageID int64) (*page.Page, error) {
	fileID, localPageID := page.SplitPageID(globalPageID)

	fd, err := dm.descriptor(fileID)
	if err != nil {
		return nil, err
	}

	pg := NewPage(globalPageID, fileID, types.PageTypeUnknown)

	if dm.pageCache != nil {
		if img, ok := dm.pageCache.Get(globalPageID); ok && len(img) == page.PageSize {
			copy(pg.Data, img)
			pg.PageType = types.PageType(pg.Data[types.PageTypeOffset])
			return pg, nil
		}
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()

	if fd.File == nil {
		return nil, errors.Wrapf(ErrFileNotOpen, "file %d is closed", fileID)
	}
	if int64(localPageID) >= fd.NextPageID {
		return nil, errors.Newf("page %d beyond end of file %d (%d pages)", localPageID, fileID, fd.NextPageID)
	}

	offset := int64(localPageID) * int64(page.PageSize)
	n, err := fd.File.ReadAt(pg.Data, offset)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "ReadPage: failed to read page %d of file %d", localPageID, fileID)
		}
		// allocated but never written, reads as a zero page
		dm.logger.Debug("read of unwritten page", zap.Int32("page", localPageID), zap.Uint32("file_id", fileID))
	}

	// Pad with zeros if partial read
	for i := n; i < page.PageSize; i++ {
		pg.Data[i] = 0
	}

	pg.PageType = types.PageType(pg.Data[types.PageTypeOffset])
	dm.cachePage(pg)

	return pg, nil
}

// WritePage writes a page to disk
func (dm *DiskManager) WritePage(pg *page.Page) error {
	fd, err := dm.descriptor(pg.FileID)
	if err != nil {
		return err
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return errors.Wrapf(ErrFileNotOpen, "file %d is closed", pg.FileID)
	}

	if len(pg.Data) != page.PageSize {
		return errors.Newf("page data size %d does not match page size %d", len(pg.Data), page.PageSize)
	}

	// Mark page type
	pg.Data[types.PageTypeOffset] = byte(pg.PageType)

	localPageID := int64(pg.LocalPageNo())
	offset := localPageID * int64(page.PageSize)

	if _, err := fd.File.WriteAt(pg.Data, offset); err != nil {
		return errors.Wrapf(err, "failed to write page %d to file %d", localPageID, pg.FileID)
	}

	// Update next page ID if we wrote beyond current end
	if localPageID >= fd.NextPageID {
		fd.NextPageID = localPageID + 1
	}

	dm.refreshCache(pg)
	pg.IsDirty = false
	return nil
}

// refreshCache replaces the cached image after a write. A Set may be dropped
// or still sit in ristretto's buffer, so the old image is deleted first and
// the buffers are drained before the frame can be read back.
func (dm *DiskManager) refreshCache(pg *page.Page) {
	if dm.pageCache == nil {
		return
	}
	dm.pageCache.Del(pg.ID)
	dm.cachePage(pg)
	dm.pageCache.Wait()
}

func (dm *DiskManager) cachePage(pg *page.Page) {
	if dm.pageCache == nil {
		return
	}
	img := make([]byte, len(pg.Data))
	copy(img, pg.Data)
	dm.pageCache.Set(pg.ID, img, 1)
}

// AllocatePage reserves the next available page number for a file and returns
// its global id. It does NOT write anything to disk; the BufferPool writes the
// page when it later flushes the dirty frame.
func (dm *DiskManager) AllocatePage(fileID uint32) (int64, error) {
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return 0, err
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return 0, errors.Wrapf(ErrFileNotOpen, "file %d is closed", fileID)
	}

	localPageNum := fd.NextPageID
	fd.NextPageID++

	return page.GlobalPageID(fileID, int32(localPageNum)), nil
}

// NumPages returns how many pages of the file have been allocated.
func (dm *DiskManager) NumPages(fileID uint32) (int64, error) {
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return 0, err
	}
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	return fd.NextPageID, nil
}

// Sync flushes all file buffers to disk
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	for _, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				fd.mu.Unlock()
				return errors.Wrapf(err, "failed to sync file %d", fd.FileID)
			}
		}
		fd.mu.Unlock()
	}

	return nil
}

// CloseFile closes a specific file
func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return errors.Wrapf(ErrFileNotOpen, "file %d", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	delete(dm.files, fileID)
	delete(dm.paths, fd.FilePath)
	dm.purgeCache(fileID, fd.NextPageID)

	if fd.File == nil {
		return nil // Already closed
	}

	if err := fd.File.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync before close")
	}

	if err := fd.File.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}

	fd.File = nil
	dm.logger.Debug("closed file", zap.String("path", fd.FilePath), zap.Uint32("file_id", fileID))
	return nil
}

// purgeCache drops cached images of a file so a recycled file id never sees them.
func (dm *DiskManager) purgeCache(fileID uint32, numPages int64) {
	if dm.pageCache == nil {
		return
	}
	for local := int64(0); local < numPages; local++ {
		dm.pageCache.Del(page.GlobalPageID(fileID, int32(local)))
	}
	// sets still buffered inside ristretto could land after the deletes
	dm.pageCache.Wait()
}

// CloseAll closes all open files
func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var lastErr error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				lastErr = err
			}
			if err := fd.File.Close(); err != nil {
				lastErr = err
			}
			fd.File = nil
		}
		dm.purgeCache(fileID, fd.NextPageID)
		fd.mu.Unlock()
		delete(dm.files, fileID)
		delete(dm.paths, fd.FilePath)
	}

	return lastErr
}

// Close closes every file and releases the page cache. The disk manager
// must not be used afterwards.
func (dm *DiskManager) Close() error {
	err := dm.CloseAll()
	if dm.pageCache != nil {
		dm.pageCache.Close()
	}
	return err
}

// GetFileDescriptor returns the file descriptor for a given file ID
func (dm *DiskManager) GetFileDescriptor(fileID uint32) (*FileDescriptor, error) {
	return dm.descriptor(fileID)
}

// FileID returns the id of an open file.
func (dm *DiskManager) FileID(filePath string) (uint32, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	id, ok := dm.paths[filePath]
	return id, ok
}
