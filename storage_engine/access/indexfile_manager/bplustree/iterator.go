package bplus

import (
	"github.com/cockroachdb/errors"
)

// Scan walks Rids in key order from begin up to, not including, end. It is
// single pass; build a new one to scan again. Tombstoned records are
// returned like any other, callers filter them.
type Scan struct {
	tree *BPlusTree
	cur  Rid
	end  Rid

	// set when the walk fell off the last leaf without meeting end
	exhausted bool
}

func NewScan(tree *BPlusTree, begin, end Rid) *Scan {
	return &Scan{tree: tree, cur: begin, end: end}
}

// FullScan covers the whole index.
func FullScan(tree *BPlusTree) (*Scan, error) {
	end, err := tree.LeafEnd()
	if err != nil {
		return nil, err
	}
	return NewScan(tree, tree.LeafBegin(), end), nil
}

func (s *Scan) Rid() Rid { return s.cur }

func (s *Scan) IsEnd() bool { return s.exhausted || s.cur.SamePosition(s.end) }

// Next advances to the following entry, stepping onto the next leaf when
// the current one is exhausted and is neither the last leaf nor the leaf
// of the end position.
func (s *Scan) Next() error {
	if s.IsEnd() {
		return nil
	}

	leaf, err := s.tree.fetchLeaf(s.cur.PageNo, latchRead)
	if err != nil {
		return errors.Wrap(err, "Scan.Next")
	}
	defer s.tree.releaseNode(leaf)

	slot := int(s.cur.SlotNo) + 1
	if slot < leaf.Size() {
		s.cur = Rid{PageNo: leaf.PageNo(), SlotNo: int32(slot), RecordID: leaf.RecordIDAt(slot)}
		return nil
	}

	next := leaf.Next()
	if next == InvalidPageNo || leaf.PageNo() == s.end.PageNo {
		s.cur = Rid{PageNo: leaf.PageNo(), SlotNo: int32(slot)}
		if slot > leaf.Size() || (next == InvalidPageNo && !s.cur.SamePosition(s.end)) {
			s.exhausted = true
		}
		return nil
	}

	right, err := s.tree.fetchLeaf(next, latchRead)
	if err != nil {
		return errors.Wrap(err, "Scan.Next")
	}
	defer s.tree.releaseNode(right)

	s.cur = Rid{PageNo: next, SlotNo: 0}
	if right.Size() > 0 {
		s.cur.RecordID = right.RecordIDAt(0)
	}
	return nil
}
