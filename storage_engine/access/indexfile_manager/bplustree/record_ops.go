package bplus

import (
	"github.com/cockroachdb/errors"
)

// resolve latches the leaf addressed by rid and checks that the slot still
// holds the record rid was issued for. A zero RecordID skips that check.
func (t *BPlusTree) resolve(rid Rid, mode latchMode) (*LeafNode, int, error) {
	if !rid.IsValid() {
		return nil, 0, errors.Wrapf(ErrEntryNotFound, "invalid rid %s", rid)
	}

	leaf, err := t.fetchLeaf(rid.PageNo, mode)
	if err != nil {
		if errors.Is(err, ErrBadIndexFile) {
			return nil, 0, errors.Wrapf(ErrEntryNotFound, "rid %s", rid)
		}
		return nil, 0, err
	}

	slot := int(rid.SlotNo)
	if slot < 0 || slot >= leaf.Size() {
		t.releaseNode(leaf)
		return nil, 0, errors.Wrapf(ErrEntryNotFound, "rid %s: slot out of range (size %d)", rid, leaf.Size())
	}
	if rid.RecordID != 0 && leaf.RecordIDAt(slot) != rid.RecordID {
		t.releaseNode(leaf)
		return nil, 0, errors.Wrapf(ErrEntryNotFound, "rid %s: slot now holds record %d", rid, leaf.RecordIDAt(slot))
	}
	return leaf, slot, nil
}

// GetRecord returns a copy of the payload stored at rid.
func (t *BPlusTree) GetRecord(rid Rid) ([]byte, error) {
	leaf, slot, err := t.resolve(rid, latchRead)
	if err != nil {
		return nil, errors.Wrap(err, "GetRecord")
	}
	defer t.releaseNode(leaf)
	return leaf.PayloadAt(slot), nil
}

// KeyAt returns a copy of the key stored at rid.
func (t *BPlusTree) KeyAt(rid Rid) ([]byte, error) {
	leaf, slot, err := t.resolve(rid, latchRead)
	if err != nil {
		return nil, errors.Wrap(err, "KeyAt")
	}
	defer t.releaseNode(leaf)
	return append([]byte(nil), leaf.KeyAt(slot)...), nil
}

// InsertRecord is InsertEntry with duplicates reported as ErrDuplicateKey.
func (t *BPlusTree) InsertRecord(key, payload []byte) (Rid, error) {
	rid, err := t.InsertEntry(key, payload)
	if err != nil {
		return InvalidRid(), err
	}
	if !rid.IsValid() {
		return InvalidRid(), errors.Wrapf(ErrDuplicateKey, "key %s", FormatKey(t.hdr.Columns, key))
	}
	return rid, nil
}

// DeleteRecord sets the tombstone bit of the record at rid. The entry stays
// in the directory and the tree never shrinks.
func (t *BPlusTree) DeleteRecord(rid Rid) error {
	return t.setDeleted(rid, true, "DeleteRecord")
}

// RollbackDeleteRecord clears the tombstone bit set by DeleteRecord.
func (t *BPlusTree) RollbackDeleteRecord(rid Rid) error {
	return t.setDeleted(rid, false, "RollbackDeleteRecord")
}

func (t *BPlusTree) setDeleted(rid Rid, deleted bool, op string) error {
	leaf, slot, err := t.resolve(rid, latchWrite)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer t.releaseNode(leaf)
	leaf.SetDeletedAt(slot, deleted)
	return nil
}

// IsDeleted reports the tombstone bit of the record at rid.
func (t *BPlusTree) IsDeleted(rid Rid) (bool, error) {
	leaf, slot, err := t.resolve(rid, latchRead)
	if err != nil {
		return false, errors.Wrap(err, "IsDeleted")
	}
	defer t.releaseNode(leaf)
	return leaf.IsDeletedAt(slot), nil
}

// UpdateRecord overwrites the payload at rid in place; record id and
// tombstone bit are kept.
func (t *BPlusTree) UpdateRecord(rid Rid, payload []byte) error {
	if err := t.checkPayload(payload); err != nil {
		return errors.Wrap(err, "UpdateRecord")
	}
	leaf, slot, err := t.resolve(rid, latchWrite)
	if err != nil {
		return errors.Wrap(err, "UpdateRecord")
	}
	defer t.releaseNode(leaf)
	leaf.SetPayloadAt(slot, payload)
	return nil
}

// DeleteEntry tombstones the record of key, found through a delete
// traversal, and returns its position.
func (t *BPlusTree) DeleteEntry(key []byte) (Rid, error) {
	if err := t.checkKey(key); err != nil {
		return InvalidRid(), err
	}

	ctx := t.newLatchContext(OpDelete)
	defer ctx.release()

	leaf, err := t.findLeafPage(key, OpDelete, ctx, false)
	if err != nil {
		return InvalidRid(), errors.Wrap(err, "DeleteEntry")
	}
	defer t.releaseNode(leaf)

	slot := leaf.find(key)
	if slot < 0 {
		return InvalidRid(), errors.Wrapf(ErrEntryNotFound, "DeleteEntry: key %s", FormatKey(t.hdr.Columns, key))
	}
	leaf.SetDeletedAt(slot, true)
	return Rid{PageNo: leaf.PageNo(), SlotNo: int32(slot), RecordID: leaf.RecordIDAt(slot)}, nil
}

// ReplayInsertRecord redoes a logged insert. Replaying into a tree that
// already holds the record with the logged id is a no-op; any other outcome
// than the logged Rid is an assertion failure.
func (t *BPlusTree) ReplayInsertRecord(rid Rid, key, payload []byte) error {
	got, err := t.InsertEntry(key, payload)
	if err != nil {
		return errors.Wrap(err, "ReplayInsertRecord")
	}

	if !got.IsValid() {
		rids, err := t.GetValue(key)
		if err != nil {
			return errors.Wrap(err, "ReplayInsertRecord")
		}
		if len(rids) == 1 && rids[0].RecordID == rid.RecordID {
			return nil
		}
		return errors.AssertionFailedf("ReplayInsertRecord: key %s already indexed with a different record",
			FormatKey(t.hdr.Columns, key))
	}

	if got.RecordID != rid.RecordID || !got.SamePosition(rid) {
		return errors.AssertionFailedf("ReplayInsertRecord: replayed to %s, logged %s", got, rid)
	}
	return nil
}
