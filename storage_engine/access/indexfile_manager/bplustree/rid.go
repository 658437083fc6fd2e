package bplus

import "fmt"

// Rid locates a record: leaf page, directory slot and the record id stamped
// at insert time. PageNo and SlotNo are only a cache, a split may move the
// record; RecordID never changes.
type Rid struct {
	PageNo   int32
	SlotNo   int32
	RecordID uint64
}

// InvalidRid is returned for rejected inserts.
func InvalidRid() Rid {
	return Rid{PageNo: InvalidPageNo, SlotNo: -1}
}

func (r Rid) IsValid() bool {
	return r.PageNo != InvalidPageNo
}

// SamePosition compares page and slot only.
func (r Rid) SamePosition(o Rid) bool {
	return r.PageNo == o.PageNo && r.SlotNo == o.SlotNo
}

func (r Rid) String() string {
	return fmt.Sprintf("(page=%d slot=%d rid=%d)", r.PageNo, r.SlotNo, r.RecordID)
}
