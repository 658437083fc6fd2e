package bplus

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// InsertEntry adds key with payload and returns where the record landed.
//
// A key that is already indexed is not an error here: nothing is modified
// and InvalidRid is returned. InsertRecord turns that into ErrDuplicateKey.
func (t *BPlusTree) InsertEntry(key, payload []byte) (Rid, error) {
	if err := t.checkKey(key); err != nil {
		return InvalidRid(), err
	}
	if err := t.checkPayload(payload); err != nil {
		return InvalidRid(), err
	}

	ctx := t.newLatchContext(OpInsert)
	defer ctx.release()

	leaf, err := t.findLeafPage(key, OpInsert, ctx, false)
	if err != nil {
		return InvalidRid(), errors.Wrap(err, "InsertEntry")
	}
	defer t.releaseNode(leaf)

	slot, inserted := leaf.InsertKeyRecord(key, payload)
	if !inserted {
		return InvalidRid(), nil
	}
	rid := Rid{PageNo: leaf.PageNo(), SlotNo: int32(slot), RecordID: leaf.RecordIDAt(slot)}

	if leaf.Size() < leaf.MaxSize() {
		return rid, nil
	}

	// The leaf already holds the new record; from here on a failure leaves
	// the tree half split.
	sibling, err := t.splitLeaf(leaf)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "split of leaf %d", leaf.PageNo()))
	}
	defer t.releaseNode(sibling)

	if err := t.insertIntoParent(ctx, leaf, sibling.KeyAt(0), sibling); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "insert into parent of leaf %d", leaf.PageNo()))
	}

	if s := sibling.find(key); s >= 0 {
		rid.PageNo = sibling.PageNo()
		rid.SlotNo = int32(s)
	}
	return rid, nil
}

// insertIntoParent links newNode, the right half of a split of old, into
// the tree with separator key. It grows a new root when old was the root
// and splits the parent when the extra pair overflows it.
func (t *BPlusTree) insertIntoParent(ctx *latchContext, old Node, key []byte, newNode Node) error {
	if old.IsRoot() {
		return t.newRoot(ctx, old, newNode)
	}

	parent := ctx.ancestor(old.Parent())
	if parent == nil {
		panic(errors.AssertionFailedf("parent %d of page %d is not write latched", old.Parent(), old.PageNo()))
	}
	idx := parent.FindChild(old.PageNo())
	if idx < 0 {
		panic(errors.AssertionFailedf("page %d not found in its parent %d", old.PageNo(), parent.PageNo()))
	}

	parent.InsertPairs(idx+1, [][]byte{key}, []int32{newNode.PageNo()})
	if parent.Size() < parent.MaxSize() {
		ctx.release()
		return nil
	}

	sibling, err := t.splitInternal(parent)
	if err != nil {
		return err
	}
	defer t.releaseNode(sibling)

	return t.insertIntoParent(ctx, parent, sibling.KeyAt(0), sibling)
}

func (t *BPlusTree) checkKey(key []byte) error {
	if len(key) != t.geo.keyLen {
		return errors.Wrapf(ErrInvalidKeyLength, "got %d bytes, index key is %d", len(key), t.geo.keyLen)
	}
	return nil
}

func (t *BPlusTree) checkPayload(payload []byte) error {
	if len(payload) != t.PayloadLen() {
		return errors.Wrapf(ErrInvalidRecordLength, "got %d bytes, record payload is %d", len(payload), t.PayloadLen())
	}
	return nil
}

func (t *BPlusTree) logSplit(kind string, from, to Node) {
	t.logger.Debug("split",
		zap.String("kind", kind),
		zap.Int32("page", from.PageNo()),
		zap.Int32("sibling", to.PageNo()),
		zap.Int("kept", from.Size()),
		zap.Int("moved", to.Size()))
}
