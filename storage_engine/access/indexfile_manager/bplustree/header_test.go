package bplus

import (
	"IndexDB/types"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &IndexFileHeader{
		NumPages:          17,
		RootPage:          9,
		Columns:           []types.ColumnMeta{{Type: types.TypeInt, Len: 4}, {Type: types.TypeString, Len: 12}},
		KeyLen:            16,
		TreeOrder:         120,
		MaxRecordsPerLeaf: 40,
		RecordLen:         RecordHeaderSize + 32,
		FirstLeaf:         1,
		LastLeaf:          15,
		NextRecordID:      1 << 40,
	}

	data := make([]byte, types.PageSize)
	if err := SerializeHeader(h, data); err != nil {
		t.Fatalf("SerializeHeader: %v", err)
	}
	got, err := DeserializeHeader(data)
	if err != nil {
		t.Fatalf("DeserializeHeader: %v", err)
	}

	if got.NumPages != h.NumPages || got.RootPage != h.RootPage || got.KeyLen != h.KeyLen ||
		got.TreeOrder != h.TreeOrder || got.MaxRecordsPerLeaf != h.MaxRecordsPerLeaf ||
		got.RecordLen != h.RecordLen || got.FirstLeaf != h.FirstLeaf || got.LastLeaf != h.LastLeaf ||
		got.NextRecordID != h.NextRecordID {
		t.Errorf("header mismatch: got %+v, want %+v", got, h)
	}
	if len(got.Columns) != 2 || got.Columns[1] != h.Columns[1] {
		t.Errorf("columns mismatch: %+v", got.Columns)
	}
	if got.PayloadLen() != 32 {
		t.Errorf("PayloadLen = %d, want 32", got.PayloadLen())
	}
}

func TestDeserializeRejectsForeignPage(t *testing.T) {
	data := make([]byte, types.PageSize)
	if _, err := DeserializeHeader(data); !errors.Is(err, ErrBadIndexFile) {
		t.Errorf("zero page: expected ErrBadIndexFile, got %v", err)
	}

	h := &IndexFileHeader{
		Columns:           []types.ColumnMeta{{Type: types.TypeInt, Len: 4}},
		KeyLen:            8, // does not match the columns
		TreeOrder:         4,
		MaxRecordsPerLeaf: 4,
		RecordLen:         RecordHeaderSize + 4,
	}
	if err := SerializeHeader(h, data); err != nil {
		t.Fatalf("SerializeHeader: %v", err)
	}
	if _, err := DeserializeHeader(data); !errors.Is(err, ErrBadIndexFile) {
		t.Errorf("key length mismatch: expected ErrBadIndexFile, got %v", err)
	}
}

func TestPageHeaderRoundTrip(t *testing.T) {
	data := make([]byte, types.PageSize)
	ph := PageHeader{
		Parent:             3,
		IsLeaf:             true,
		NumKeys:            0,
		NumRecords:         5,
		TotRecords:         7,
		FreeSpaceOffset:    1000,
		FirstDeletedOffset: InvalidPageNo,
		PrevPage:           2,
		NextPage:           InvalidPageNo,
	}
	WritePageHeader(data, ph)
	if got := ReadPageHeader(data); got != ph {
		t.Errorf("page header mismatch: got %+v, want %+v", got, ph)
	}
}

func TestCompositeKeyComparator(t *testing.T) {
	cols := []types.ColumnMeta{{Type: types.TypeInt, Len: 4}, {Type: types.TypeString, Len: 4}}
	cmp := NewKeyComparator(cols)

	mk := func(i int32, s string) []byte {
		k := types.EncodeInt(i)
		b := make([]byte, 4)
		copy(b, s)
		return append(k, b...)
	}

	tests := []struct {
		a, b []byte
		want int
	}{
		{mk(1, "b"), mk(2, "a"), -1},
		{mk(-1, "z"), mk(0, "a"), -1},
		{mk(5, "ab"), mk(5, "b"), -1},
		{mk(5, "abc"), mk(5, "abc"), 0},
		{mk(5, "b"), mk(5, "a"), 1},
	}
	for _, tt := range tests {
		if got := cmp(tt.a, tt.b); got != tt.want {
			t.Errorf("cmp(%s, %s) = %d, want %d", FormatKey(cols, tt.a), FormatKey(cols, tt.b), got, tt.want)
		}
	}

	if got := FormatKey(cols, mk(7, "hi")); got != `(7, "hi")` {
		t.Errorf("FormatKey = %s", got)
	}
}
