package bplus

import (
	"IndexDB/storage_engine/page"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

/*
Node accessors.

A node is a short lived view over one pinned buffer pool page. It holds no
copy of the page: every getter reads the page bytes and every mutator writes
them and marks the node dirty, so the page is unpinned dirty exactly when its
bytes changed.

The two node kinds are separate types behind the Node interface:

	*LeafNode      directory of (key, record offset) + fixed length records
	*InternalNode  n keys paired with n children, key[0] not used for routing

fetchNode looks at the isLeaf byte and hands back the right one; callers
type switch where the kind matters.
*/

type latchMode uint8

const (
	latchNone latchMode = iota
	latchRead
	latchWrite
)

// Node is implemented by *LeafNode and *InternalNode.
type Node interface {
	PageNo() int32
	IsLeaf() bool
	Size() int
	MaxSize() int
	MinSize() int
	Parent() int32
	SetParent(parent int32)
	IsRoot() bool
	KeyAt(i int) []byte

	handle() *nodeHandle
}

// geometry holds the capacity constants of one index file. It never changes
// after the file is opened.
type geometry struct {
	keyLen     int
	order      int // max keys per internal node
	maxRecords int // max records per leaf
	recordLen  int // record header + payload

	// internal node layout
	internalKeysOff     int
	internalChildrenOff int

	// leaf layout
	dirOff       int
	dirEntrySize int
	recordsOff   int
	recordsEnd   int
}

func newGeometry(h *IndexFileHeader) *geometry {
	g := &geometry{
		keyLen:     int(h.KeyLen),
		order:      int(h.TreeOrder),
		maxRecords: int(h.MaxRecordsPerLeaf),
		recordLen:  int(h.RecordLen),
	}
	g.internalKeysOff = PageHeaderSize
	g.internalChildrenOff = g.internalKeysOff + (g.order+1)*g.keyLen

	g.dirOff = PageHeaderSize
	g.dirEntrySize = g.keyLen + 4
	g.recordsOff = g.dirOff + (g.maxRecords+1)*g.dirEntrySize
	g.recordsEnd = g.recordsOff + (g.maxRecords+1)*g.recordLen
	return g
}

// recordIDSource hands out record ids, implemented by the tree.
type recordIDSource interface {
	nextRecordID() uint64
}

type nodeHandle struct {
	page  *page.Page
	geo   *geometry
	cmp   KeyComparator
	ids   recordIDSource
	dirty bool
	latch latchMode
}

func (h *nodeHandle) handle() *nodeHandle { return h }

func (h *nodeHandle) PageNo() int32 {
	return h.page.LocalPageNo()
}

func (h *nodeHandle) IsLeaf() bool {
	return h.page.Data[offIsLeaf] == 1
}

func (h *nodeHandle) Parent() int32 {
	return h.getI32(offParent)
}

func (h *nodeHandle) SetParent(parent int32) {
	h.putI32(offParent, parent)
}

// IsRoot: only the root has no parent.
func (h *nodeHandle) IsRoot() bool {
	return h.Parent() == InvalidPageNo
}

func (h *nodeHandle) getI32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(h.page.Data[off:]))
}

func (h *nodeHandle) putI32(off int, v int32) {
	binary.LittleEndian.PutUint32(h.page.Data[off:], uint32(v))
	h.dirty = true
}

func (h *nodeHandle) rlatch() {
	h.page.RLatch()
	h.latch = latchRead
}

func (h *nodeHandle) wlatch() {
	h.page.WLatch()
	h.latch = latchWrite
}

func (h *nodeHandle) unlatch() {
	switch h.latch {
	case latchRead:
		h.page.RUnlatch()
	case latchWrite:
		h.page.WUnlatch()
	default:
		panic(errors.AssertionFailedf("unlatch of page %d that is not latched", h.PageNo()))
	}
	h.latch = latchNone
}

// wrapNode builds the accessor matching the page kind.
func wrapNode(h nodeHandle) Node {
	if h.page.Data[offIsLeaf] == 1 {
		return &LeafNode{nodeHandle: h}
	}
	return &InternalNode{nodeHandle: h}
}
