package bplus

import (
	"github.com/cockroachdb/errors"
)

// LowerBound returns the position of the first entry with key >= target.
// Past the last entry of the tree it returns LeafEnd.
func (t *BPlusTree) LowerBound(key []byte) (Rid, error) {
	return t.bound(key, false)
}

// UpperBound returns the position of the first entry with key > target.
func (t *BPlusTree) UpperBound(key []byte) (Rid, error) {
	return t.bound(key, true)
}

func (t *BPlusTree) bound(key []byte, upper bool) (Rid, error) {
	if err := t.checkKey(key); err != nil {
		return InvalidRid(), err
	}

	ctx := t.newLatchContext(OpFind)
	defer ctx.release()

	leaf, err := t.findLeafPage(key, OpFind, ctx, false)
	if err != nil {
		return InvalidRid(), errors.Wrap(err, "bound")
	}
	defer t.releaseNode(leaf)

	var slot int
	if upper {
		slot = leaf.UpperBound(key)
	} else {
		slot = leaf.LowerBound(key)
	}
	return t.normalise(leaf, slot)
}

// normalise turns a directory slot of a read latched leaf into a Rid. A slot
// past the last entry moves to slot 0 of the next leaf, or stays as the end
// position when leaf is the last one.
func (t *BPlusTree) normalise(leaf *LeafNode, slot int) (Rid, error) {
	if slot < leaf.Size() {
		return Rid{PageNo: leaf.PageNo(), SlotNo: int32(slot), RecordID: leaf.RecordIDAt(slot)}, nil
	}

	next := leaf.Next()
	if next == InvalidPageNo {
		return Rid{PageNo: leaf.PageNo(), SlotNo: int32(leaf.Size())}, nil
	}

	right, err := t.fetchLeaf(next, latchRead)
	if err != nil {
		return InvalidRid(), errors.Wrapf(err, "normalise: next leaf of %d", leaf.PageNo())
	}
	defer t.releaseNode(right)

	if right.Size() == 0 {
		return Rid{PageNo: right.PageNo(), SlotNo: 0}, nil
	}
	return Rid{PageNo: right.PageNo(), SlotNo: 0, RecordID: right.RecordIDAt(0)}, nil
}

// GetValue returns the Rid of key, or none when the key is not indexed.
// Tombstoned entries are returned too.
func (t *BPlusTree) GetValue(key []byte) ([]Rid, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}

	ctx := t.newLatchContext(OpFind)
	defer ctx.release()

	leaf, err := t.findLeafPage(key, OpFind, ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "GetValue")
	}
	defer t.releaseNode(leaf)

	slot := leaf.find(key)
	if slot < 0 {
		return nil, nil
	}
	return []Rid{{PageNo: leaf.PageNo(), SlotNo: int32(slot), RecordID: leaf.RecordIDAt(slot)}}, nil
}

// LeafBegin is the position of the smallest entry. The first leaf never
// changes: splits only ever add pages to the right.
func (t *BPlusTree) LeafBegin() Rid {
	return Rid{PageNo: t.firstLeaf(), SlotNo: 0}
}

// LeafEnd is the position one past the largest entry: the last leaf and its
// size. The header's last leaf may lag behind a concurrent split, so the
// chain is followed to its real end.
func (t *BPlusTree) LeafEnd() (Rid, error) {
	leaf, err := t.fetchLeaf(t.lastLeaf(), latchRead)
	if err != nil {
		return InvalidRid(), errors.Wrap(err, "LeafEnd")
	}

	for leaf.Next() != InvalidPageNo {
		next, err := t.fetchLeaf(leaf.Next(), latchRead)
		if err != nil {
			t.releaseNode(leaf)
			return InvalidRid(), errors.Wrap(err, "LeafEnd")
		}
		t.releaseNode(leaf)
		leaf = next
	}
	defer t.releaseNode(leaf)

	return Rid{PageNo: leaf.PageNo(), SlotNo: int32(leaf.Size())}, nil
}

// Height is the number of levels, 1 for a tree that is a single leaf.
func (t *BPlusTree) Height() (int, error) {
	t.rootLatch.Lock()
	cur, err := t.fetchNode(t.rootPageNo(), latchRead)
	t.rootLatch.Unlock()
	if err != nil {
		return 0, errors.Wrap(err, "Height")
	}

	height := 1
	for {
		internal, ok := cur.(*InternalNode)
		if !ok {
			break
		}
		child, err := t.fetchNode(internal.ChildAt(0), latchRead)
		t.releaseNode(internal)
		if err != nil {
			return 0, errors.Wrap(err, "Height")
		}
		cur = child
		height++
	}
	t.releaseNode(cur)
	return height, nil
}
