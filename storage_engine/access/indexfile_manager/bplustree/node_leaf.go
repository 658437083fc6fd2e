package bplus

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// LeafNode: a page directory of (key, record offset) pairs in ascending key
// order, followed by a record area of fixed length slots. The directory
// defines logical order; where a record sits physically does not matter.
//
// Record slots come from the free chain (seeded by splits) first and from
// the bump pointer otherwise. The directory has room for maxRecords+1
// entries so an overflowing insert can land before the split.
type LeafNode struct {
	nodeHandle
}

func (n *LeafNode) Size() int    { return int(n.getI32(offTotRecords)) }
func (n *LeafNode) MaxSize() int { return n.geo.maxRecords + 1 }
func (n *LeafNode) MinSize() int { return (n.geo.maxRecords + 1) / 2 }

// NumRecords is the number of records without the tombstone bit.
func (n *LeafNode) NumRecords() int { return int(n.getI32(offNumRecords)) }

func (n *LeafNode) Next() int32 { return n.getI32(offNextPage) }
func (n *LeafNode) Prev() int32 { return n.getI32(offPrevPage) }

func (n *LeafNode) SetNext(pageNo int32) { n.putI32(offNextPage, pageNo) }
func (n *LeafNode) SetPrev(pageNo int32) { n.putI32(offPrevPage, pageNo) }

func (n *LeafNode) dirEntryOff(slot int) int {
	return n.geo.dirOff + slot*n.geo.dirEntrySize
}

// KeyAt returns the key of a directory slot inside the page.
func (n *LeafNode) KeyAt(slot int) []byte {
	off := n.dirEntryOff(slot)
	return n.page.Data[off : off+n.geo.keyLen]
}

func (n *LeafNode) recordOffsetAt(slot int) int {
	off := n.dirEntryOff(slot) + n.geo.keyLen
	return int(int32(binary.LittleEndian.Uint32(n.page.Data[off:])))
}

func (n *LeafNode) setDirEntry(slot int, key []byte, recordOff int) {
	off := n.dirEntryOff(slot)
	copy(n.page.Data[off:off+n.geo.keyLen], key)
	binary.LittleEndian.PutUint32(n.page.Data[off+n.geo.keyLen:], uint32(int32(recordOff)))
	n.dirty = true
}

// LowerBound returns the first directory slot whose key is >= target.
func (n *LeafNode) LowerBound(target []byte) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := lo + (hi-lo)/2
		if n.cmp(n.KeyAt(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpperBound returns the first directory slot whose key is > target.
func (n *LeafNode) UpperBound(target []byte) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := lo + (hi-lo)/2
		if n.cmp(n.KeyAt(mid), target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// find returns the slot holding key exactly, or -1.
func (n *LeafNode) find(key []byte) int {
	slot := n.LowerBound(key)
	if slot < n.Size() && n.cmp(n.KeyAt(slot), key) == 0 {
		return slot
	}
	return -1
}

// RecordAt returns the full record (header + payload) inside the page.
func (n *LeafNode) RecordAt(slot int) []byte {
	off := n.recordOffsetAt(slot)
	return n.page.Data[off : off+n.geo.recordLen]
}

// PayloadAt returns a copy of the record payload.
func (n *LeafNode) PayloadAt(slot int) []byte {
	rec := n.RecordAt(slot)
	out := make([]byte, len(rec)-RecordHeaderSize)
	copy(out, rec[RecordHeaderSize:])
	return out
}

func (n *LeafNode) RecordIDAt(slot int) uint64 {
	return binary.LittleEndian.Uint64(n.RecordAt(slot)[recID:])
}

func (n *LeafNode) IsDeletedAt(slot int) bool {
	return n.RecordAt(slot)[recFlags]&flagDeleted != 0
}

// SetDeletedAt flips the tombstone bit and reports whether it changed.
func (n *LeafNode) SetDeletedAt(slot int, deleted bool) bool {
	rec := n.RecordAt(slot)
	if (rec[recFlags]&flagDeleted != 0) == deleted {
		return false
	}
	if deleted {
		rec[recFlags] |= flagDeleted
		n.putI32(offNumRecords, int32(n.NumRecords()-1))
	} else {
		rec[recFlags] &^= flagDeleted
		n.putI32(offNumRecords, int32(n.NumRecords()+1))
	}
	n.dirty = true
	return true
}

// SetPayloadAt overwrites the payload and keeps the record header.
func (n *LeafNode) SetPayloadAt(slot int, payload []byte) {
	copy(n.RecordAt(slot)[RecordHeaderSize:], payload)
	n.dirty = true
}

func nextFree(rec []byte) int32 {
	return int32(binary.LittleEndian.Uint32(rec[recNextFree:]))
}

func putNextFree(rec []byte, off int32) {
	binary.LittleEndian.PutUint32(rec[recNextFree:], uint32(off))
}

// allocRecord hands out a free record slot: free chain first, then the bump
// pointer.
func (n *LeafNode) allocRecord() int {
	if head := n.getI32(offFirstDeleted); head != InvalidPageNo {
		off := int(head)
		next := nextFree(n.page.Data[off : off+n.geo.recordLen])
		n.putI32(offFirstDeleted, next)
		return off
	}

	free := n.getI32(offFreeSpace)
	if free == InvalidPageNo {
		panic(errors.AssertionFailedf("leaf %d has no free record slot (size=%d)", n.PageNo(), n.Size()))
	}
	off := int(free)
	next := off + n.geo.recordLen
	if next+n.geo.recordLen > n.geo.recordsEnd {
		n.putI32(offFreeSpace, InvalidPageNo)
	} else {
		n.putI32(offFreeSpace, int32(next))
	}
	return off
}

// shiftDirectory opens count empty directory entries at pos.
func (n *LeafNode) shiftDirectory(pos, count int) {
	size := n.Size()
	if pos < 0 || pos > size || size+count > n.MaxSize() {
		panic(errors.AssertionFailedf("leaf %d directory overflow: pos=%d count=%d size=%d max=%d",
			n.PageNo(), pos, count, size, n.MaxSize()))
	}
	data := n.page.Data
	copy(data[n.dirEntryOff(pos+count):n.dirEntryOff(size+count)], data[n.dirEntryOff(pos):n.dirEntryOff(size)])
}

// InsertKeyRecord inserts key with a fresh record. It returns the directory
// slot and false, without touching the page, when the key already exists.
func (n *LeafNode) InsertKeyRecord(key []byte, payload []byte) (int, bool) {
	size := n.Size()
	slot := n.LowerBound(key)
	if slot < size && n.cmp(n.KeyAt(slot), key) == 0 {
		return slot, false
	}

	n.shiftDirectory(slot, 1)

	off := n.allocRecord()
	rec := n.page.Data[off : off+n.geo.recordLen]
	clear(rec[:RecordHeaderSize])
	putNextFree(rec, InvalidPageNo)
	binary.LittleEndian.PutUint64(rec[recID:], n.ids.nextRecordID())
	copy(rec[RecordHeaderSize:], payload)

	n.setDirEntry(slot, key, off)
	n.putI32(offTotRecords, int32(size+1))
	n.putI32(offNumRecords, int32(n.NumRecords()+1))
	return slot, true
}

// InsertContinuousRecords copies count directory entries starting at first
// of src, with their records, into this leaf at pos. Record headers (record
// id, tombstone) travel with the records.
func (n *LeafNode) InsertContinuousRecords(pos int, src *LeafNode, first, count int) {
	if count <= 0 {
		return
	}
	if first < 0 || first+count > src.Size() {
		panic(errors.AssertionFailedf("InsertContinuousRecords: range [%d,%d) outside source size %d",
			first, first+count, src.Size()))
	}

	n.shiftDirectory(pos, count)

	live := 0
	for i := 0; i < count; i++ {
		from := src.RecordAt(first + i)
		off := n.allocRecord()
		rec := n.page.Data[off : off+n.geo.recordLen]
		copy(rec, from)
		putNextFree(rec, InvalidPageNo)
		if rec[recFlags]&flagDeleted == 0 {
			live++
		}
		n.setDirEntry(pos+i, src.KeyAt(first+i), off)
	}

	n.putI32(offTotRecords, int32(n.Size()+count))
	n.putI32(offNumRecords, int32(n.NumRecords()+live))
}

// truncate drops directory slots [newSize, size) after they were copied to
// a sibling and threads their record slots onto the free chain, head at
// the record of slot newSize.
func (n *LeafNode) truncate(newSize int) {
	size := n.Size()
	if newSize < 0 || newSize > size {
		panic(errors.AssertionFailedf("truncate leaf %d to %d, size %d", n.PageNo(), newSize, size))
	}

	head := n.getI32(offFirstDeleted)
	dropped := 0
	for slot := size - 1; slot >= newSize; slot-- {
		rec := n.RecordAt(slot)
		if rec[recFlags]&flagDeleted == 0 {
			dropped++
		}
		putNextFree(rec, head)
		head = int32(n.recordOffsetAt(slot))
	}

	n.putI32(offFirstDeleted, head)
	n.putI32(offTotRecords, int32(newSize))
	n.putI32(offNumRecords, int32(n.NumRecords()-dropped))
}

func (n *LeafNode) init(parent, prev, next int32) {
	WritePageHeader(n.page.Data, PageHeader{
		Parent:             parent,
		IsLeaf:             true,
		FreeSpaceOffset:    int32(n.geo.recordsOff),
		FirstDeletedOffset: InvalidPageNo,
		PrevPage:           prev,
		NextPage:           next,
	})
	n.dirty = true
}
