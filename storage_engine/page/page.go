package page

import (
	"IndexDB/types"
	"sync"
)

const (
	PageSize      = types.PageSize
	PageLSNOffset = 0 // first 8 bytes of every page = LSN
)

/*
Page is one frame of the buffer pool.

Two different kinds of synchronisation apply to a page:
  - PinCount and IsDirty are frame bookkeeping and are only touched while the
    buffer pool mutex is held.
  - latch protects Data. The index layer takes it shared for reads and
    exclusive for writes (latch crabbing); the buffer pool never takes it
    for pinned pages.

A pinned page is never evicted, so a caller holding a pin may latch and read
Data without further coordination with the buffer pool.
*/

type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64
	latch    sync.RWMutex
}

func (p *Page) WLatch() {
	p.latch.Lock()
}

func (p *Page) WUnlatch() {
	p.latch.Unlock()
}

func (p *Page) RLatch() {
	p.latch.RLock()
}

func (p *Page) RUnlatch() {
	p.latch.RUnlock()
}

// LocalPageNo returns the page number inside its file.
func (p *Page) LocalPageNo() int32 {
	return int32(p.ID & 0xFFFFFFFF)
}

// GlobalPageID builds the buffer pool id of a page: fileID in the high half,
// the page number inside the file in the low half.
func GlobalPageID(fileID uint32, localPageNo int32) int64 {
	return int64(fileID)<<32 | int64(uint32(localPageNo))
}

func SplitPageID(globalPageID int64) (uint32, int32) {
	return uint32(globalPageID >> 32), int32(globalPageID & 0xFFFFFFFF)
}
