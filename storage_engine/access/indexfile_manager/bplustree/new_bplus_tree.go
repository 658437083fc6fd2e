package bplus

import (
	"IndexDB/storage_engine/bufferpool"
	"IndexDB/storage_engine/page"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// InitIndexFile lays out a fresh index file that is open in the disk manager
// and still empty: page 0 gets the header, page 1 an empty leaf that is
// both the root and the only leaf. hdr must carry the key columns and
// capacities; page numbers and counters are filled in here.
func InitIndexFile(fileID uint32, hdr *IndexFileHeader, bp *bufferpool.BufferPool) error {
	hdrPage, err := bp.NewPage(fileID, types.PageTypeMetadata)
	if err != nil {
		return errors.Wrap(err, "InitIndexFile: failed to allocate header page")
	}
	defer bp.UnpinPage(hdrPage.ID, true)

	rootPage, err := bp.NewPage(fileID, types.PageTypeBPlusNode)
	if err != nil {
		return errors.Wrap(err, "InitIndexFile: failed to allocate root page")
	}
	defer bp.UnpinPage(rootPage.ID, true)

	if hdrPage.LocalPageNo() != HeaderPageNo || rootPage.LocalPageNo() != InitRootPageNo {
		return errors.Newf("InitIndexFile: file %d is not empty (got pages %d, %d)",
			fileID, hdrPage.LocalPageNo(), rootPage.LocalPageNo())
	}

	hdr.NumPages = 2
	hdr.RootPage = InitRootPageNo
	hdr.FirstLeaf = InitRootPageNo
	hdr.LastLeaf = InitRootPageNo
	hdr.NextRecordID = 1

	root := &LeafNode{nodeHandle: nodeHandle{page: rootPage, geo: newGeometry(hdr)}}
	root.init(InvalidPageNo, InvalidPageNo, InvalidPageNo)

	if err := SerializeHeader(hdr, hdrPage.Data); err != nil {
		return errors.Wrap(err, "InitIndexFile")
	}
	return nil
}

// OpenBPlusTree binds a tree to an index file that is open in the disk
// manager, reading its header through the buffer pool.
func OpenBPlusTree(fileID uint32, bp *bufferpool.BufferPool, logger *zap.Logger) (*BPlusTree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pg, err := bp.FetchPage(page.GlobalPageID(fileID, HeaderPageNo))
	if err != nil {
		return nil, errors.Wrap(err, "OpenBPlusTree: failed to read header page")
	}
	hdr, err := DeserializeHeader(pg.Data)
	_ = bp.UnpinPage(pg.ID, false)
	if err != nil {
		return nil, errors.Wrapf(err, "OpenBPlusTree: file %d", fileID)
	}

	t := &BPlusTree{
		fileID:     fileID,
		bufferPool: bp,
		geo:        newGeometry(hdr),
		cmp:        NewKeyComparator(hdr.Columns),
		hdr:        hdr,
		logger:     logger.Named("index").With(zap.Uint32("file_id", fileID)),
	}

	t.logger.Debug("opened tree",
		zap.Int32("root", hdr.RootPage),
		zap.Int32("pages", hdr.NumPages),
		zap.Int32("order", hdr.TreeOrder),
		zap.Int32("max_records", hdr.MaxRecordsPerLeaf))
	return t, nil
}

// Flush writes the header back to page 0 and forces every page of this
// index through the buffer pool. No operation may run concurrently.
func (t *BPlusTree) Flush() error {
	if err := t.persistHeader(); err != nil {
		return err
	}
	if err := t.bufferPool.FlushFile(t.fileID); err != nil {
		return errors.Wrap(err, "Flush: failed to flush pages")
	}
	return nil
}

// Close flushes the index. The file itself is closed by the index manager.
func (t *BPlusTree) Close() error {
	if err := t.Flush(); err != nil {
		return errors.Wrap(err, "Close")
	}
	t.logger.Debug("closed tree")
	return nil
}

func (t *BPlusTree) persistHeader() error {
	pg, err := t.bufferPool.FetchPage(page.GlobalPageID(t.fileID, HeaderPageNo))
	if err != nil {
		return errors.Wrap(err, "persistHeader: failed to fetch header page")
	}

	pg.WLatch()
	t.hdrMu.Lock()
	err = SerializeHeader(t.hdr, pg.Data)
	t.hdrMu.Unlock()
	pg.WUnlatch()

	if uerr := t.bufferPool.UnpinPage(pg.ID, err == nil); uerr != nil && err == nil {
		err = uerr
	}
	return errors.Wrap(err, "persistHeader")
}

// FileID returns the disk manager id of the index file.
func (t *BPlusTree) FileID() uint32 { return t.fileID }

// Header returns a snapshot of the file header.
func (t *BPlusTree) Header() IndexFileHeader {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return *t.hdr.clone()
}

// KeyLen is the width every key passed to the tree must have.
func (t *BPlusTree) KeyLen() int { return t.geo.keyLen }

// PayloadLen is the width every record payload must have.
func (t *BPlusTree) PayloadLen() int { return t.geo.recordLen - RecordHeaderSize }

// Compare exposes the key order of the index.
func (t *BPlusTree) Compare(a, b []byte) int { return t.cmp(a, b) }

func (t *BPlusTree) nextRecordID() uint64 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	id := t.hdr.NextRecordID
	t.hdr.NextRecordID++
	return id
}

// rootPageNo must be called with rootLatch held.
func (t *BPlusTree) rootPageNo() int32 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.RootPage
}

// setRootPageNo must be called with rootLatch held.
func (t *BPlusTree) setRootPageNo(pageNo int32) {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.RootPage = pageNo
}

func (t *BPlusTree) firstLeaf() int32 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.FirstLeaf
}

func (t *BPlusTree) lastLeaf() int32 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.LastLeaf
}

func (t *BPlusTree) setLastLeaf(pageNo int32) {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.LastLeaf = pageNo
}

func (t *BPlusTree) numPages() int32 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.NumPages
}
