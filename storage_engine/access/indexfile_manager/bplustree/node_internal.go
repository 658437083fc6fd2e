package bplus

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// InternalNode: num_keys keys paired one to one with num_keys children.
// key[i] is the smallest key reachable through child[i]; key[0] is kept
// but lookup never routes on it.
type InternalNode struct {
	nodeHandle
}

func (n *InternalNode) Size() int    { return int(n.getI32(offNumKeys)) }
func (n *InternalNode) MaxSize() int { return n.geo.order + 1 }
func (n *InternalNode) MinSize() int { return (n.geo.order + 1) / 2 }

func (n *InternalNode) setSize(size int) {
	n.putI32(offNumKeys, int32(size))
}

func (n *InternalNode) keyOff(i int) int {
	return n.geo.internalKeysOff + i*n.geo.keyLen
}

func (n *InternalNode) childOff(i int) int {
	return n.geo.internalChildrenOff + i*4
}

// KeyAt returns the key bytes inside the page; copy before unlatching.
func (n *InternalNode) KeyAt(i int) []byte {
	off := n.keyOff(i)
	return n.page.Data[off : off+n.geo.keyLen]
}

func (n *InternalNode) ChildAt(i int) int32 {
	return int32(binary.LittleEndian.Uint32(n.page.Data[n.childOff(i):]))
}

func (n *InternalNode) setKeyAt(i int, key []byte) {
	copy(n.KeyAt(i), key)
	n.dirty = true
}

func (n *InternalNode) setChildAt(i int, child int32) {
	binary.LittleEndian.PutUint32(n.page.Data[n.childOff(i):], uint32(child))
	n.dirty = true
}

// LowerBound returns the first slot whose key is >= target.
func (n *InternalNode) LowerBound(target []byte) int {
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

// UpperBound returns the first slot whose key is > target.
func (n *InternalNode) UpperBound(target []byte) int {
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

// Lookup picks the child whose range holds target: the last slot with
// key <= target, or slot 0 when target is below every separator.
func (n *InternalNode) Lookup(target []byte) int32 {
	idx := n.UpperBound(target) - 1
	if idx < 0 {
		idx = 0
	}
	return n.ChildAt(idx)
}

// InsertPairs inserts len(keys) (key, child) pairs at pos, shifting the
// tail right first.
func (n *InternalNode) InsertPairs(pos int, keys [][]byte, children []int32) {
	count := len(keys)
	size := n.Size()
	if count != len(children) {
		panic(errors.AssertionFailedf("InsertPairs: %d keys but %d children", count, len(children)))
	}
	if pos < 0 || pos > size || size+count > n.MaxSize() {
		panic(errors.AssertionFailedf("InsertPairs: pos=%d count=%d size=%d max=%d on page %d",
			pos, count, size, n.MaxSize(), n.PageNo()))
	}

	keyLen := n.geo.keyLen
	data := n.page.Data
	copy(data[n.keyOff(pos+count):n.keyOff(size+count)], data[n.keyOff(pos):n.keyOff(size)])
	copy(data[n.childOff(pos+count):n.childOff(size+count)], data[n.childOff(pos):n.childOff(size)])

	for i := 0; i < count; i++ {
		if len(keys[i]) != keyLen {
			panic(errors.AssertionFailedf("InsertPairs: key of %d bytes, want %d", len(keys[i]), keyLen))
		}
		n.setKeyAt(pos+i, keys[i])
		n.setChildAt(pos+i, children[i])
	}
	n.setSize(size + count)
}

// FindChild returns the slot of child, or -1.
func (n *InternalNode) FindChild(child int32) int {
	for i := 0; i < n.Size(); i++ {
		if n.ChildAt(i) == child {
			return i
		}
	}
	return -1
}

func (n *InternalNode) init(parent int32) {
	WritePageHeader(n.page.Data, PageHeader{
		Parent:             parent,
		IsLeaf:             false,
		FreeSpaceOffset:    InvalidPageNo,
		FirstDeletedOffset: InvalidPageNo,
		PrevPage:           InvalidPageNo,
		NextPage:           InvalidPageNo,
	})
	n.dirty = true
}
