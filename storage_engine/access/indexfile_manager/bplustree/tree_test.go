package bplus

import (
	"IndexDB/storage_engine/bufferpool"
	diskmanager "IndexDB/storage_engine/disk_manager"
	"IndexDB/types"
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

type testIndex struct {
	tree *BPlusTree
	bp   *bufferpool.BufferPool
	dm   *diskmanager.DiskManager
	path string
}

// newTestIndex creates an INT keyed index with 8 byte payloads in a temp dir.
func newTestIndex(t *testing.T, order, maxRecords int) *testIndex {
	t.Helper()

	dm, err := diskmanager.NewDiskManager(128, nil)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	bp := bufferpool.NewBufferPool(256, dm, nil)
	path := filepath.Join(t.TempDir(), "test.idx")
	if err := dm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fileID, err := dm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	hdr := &IndexFileHeader{
		Columns:           []types.ColumnMeta{{Type: types.TypeInt, Len: 4}},
		KeyLen:            4,
		TreeOrder:         int32(order),
		MaxRecordsPerLeaf: int32(maxRecords),
		RecordLen:         RecordHeaderSize + 8,
	}
	if err := InitIndexFile(fileID, hdr, bp); err != nil {
		t.Fatalf("InitIndexFile: %v", err)
	}

	tree, err := OpenBPlusTree(fileID, bp, nil)
	if err != nil {
		t.Fatalf("OpenBPlusTree: %v", err)
	}
	return &testIndex{tree: tree, bp: bp, dm: dm, path: path}
}

// reopen flushes the tree, drops it from memory and opens the file again.
func (ti *testIndex) reopen(t *testing.T) {
	t.Helper()
	fileID := ti.tree.FileID()
	if err := ti.tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ti.bp.DropFile(fileID); err != nil {
		t.Fatalf("DropFile: %v", err)
	}
	if err := ti.dm.CloseFile(fileID); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if _, err := ti.dm.OpenFileWithID(ti.path, fileID); err != nil {
		t.Fatalf("OpenFileWithID: %v", err)
	}
	tree, err := OpenBPlusTree(fileID, ti.bp, nil)
	if err != nil {
		t.Fatalf("OpenBPlusTree after reopen: %v", err)
	}
	ti.tree = tree
}

func (ti *testIndex) assertNoPins(t *testing.T) {
	t.Helper()
	if n := ti.bp.PinnedPages(ti.tree.FileID()); n != 0 {
		t.Fatalf("%d pages still pinned", n)
	}
}

func key(k int) []byte { return types.EncodeInt(int32(k)) }

func payload(v int) []byte { return types.EncodeBigInt(int64(v)) }

func payloadValue(b []byte) int { return int(int64(binary.LittleEndian.Uint64(b))) }

func insertKeys(t *testing.T, tree *BPlusTree, keys []int) map[int]Rid {
	t.Helper()
	rids := make(map[int]Rid, len(keys))
	for _, k := range keys {
		rid, err := tree.InsertRecord(key(k), payload(k))
		if err != nil {
			t.Fatalf("InsertRecord(%d): %v", k, err)
		}
		rids[k] = rid
	}
	return rids
}

func scanKeys(t *testing.T, tree *BPlusTree) []int {
	t.Helper()
	scan, err := FullScan(tree)
	if err != nil {
		t.Fatalf("FullScan: %v", err)
	}
	var out []int
	for !scan.IsEnd() {
		k, err := tree.KeyAt(scan.Rid())
		if err != nil {
			t.Fatalf("KeyAt(%s): %v", scan.Rid(), err)
		}
		out = append(out, int(types.DecodeInt(k)))
		if err := scan.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	return out
}

func TestEmptyTree(t *testing.T) {
	ti := newTestIndex(t, 4, 3)

	rids, err := ti.tree.GetValue(key(1))
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if len(rids) != 0 {
		t.Errorf("expected no rid in empty tree, got %v", rids)
	}

	end, err := ti.tree.LeafEnd()
	if err != nil {
		t.Fatalf("LeafEnd: %v", err)
	}
	if !ti.tree.LeafBegin().SamePosition(end) {
		t.Errorf("empty tree: begin %s != end %s", ti.tree.LeafBegin(), end)
	}
	if got := scanKeys(t, ti.tree); len(got) != 0 {
		t.Errorf("scan of empty tree returned %v", got)
	}
	if h, err := ti.tree.Height(); err != nil || h != 1 {
		t.Errorf("Height = %d, %v; want 1", h, err)
	}
	if err := ti.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	ti.assertNoPins(t)
}

func TestInsertAndGetValue(t *testing.T) {
	ti := newTestIndex(t, 4, 4)

	for k := 1; k <= 10; k++ {
		if _, err := ti.tree.InsertRecord(key(k), payload(k)); err != nil {
			t.Fatalf("InsertRecord(%d): %v", k, err)
		}
	}

	for k := 1; k <= 10; k++ {
		rids, err := ti.tree.GetValue(key(k))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", k, err)
		}
		if len(rids) != 1 {
			t.Fatalf("GetValue(%d) returned %d rids", k, len(rids))
		}
		rec, err := ti.tree.GetRecord(rids[0])
		if err != nil {
			t.Fatalf("GetRecord(%d): %v", k, err)
		}
		if got := payloadValue(rec); got != k {
			t.Errorf("record of key %d holds %d", k, got)
		}
	}

	if err := ti.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	ti.assertNoPins(t)
}

func TestDuplicateInsertIsNoop(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	insertKeys(t, ti.tree, []int{5, 6, 7})

	rid, err := ti.tree.InsertEntry(key(6), payload(600))
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if rid.IsValid() {
		t.Errorf("duplicate InsertEntry returned valid rid %s", rid)
	}

	_, err = ti.tree.InsertRecord(key(6), payload(600))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	rids, _ := ti.tree.GetValue(key(6))
	rec, err := ti.tree.GetRecord(rids[0])
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if payloadValue(rec) != 6 {
		t.Errorf("duplicate insert overwrote the record: %d", payloadValue(rec))
	}
	if got := scanKeys(t, ti.tree); len(got) != 3 {
		t.Errorf("scan after duplicate: %v", got)
	}
	ti.assertNoPins(t)
}

func TestInvalidLengths(t *testing.T) {
	ti := newTestIndex(t, 4, 3)

	if _, err := ti.tree.InsertRecord([]byte{1, 2}, payload(1)); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("short key: expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := ti.tree.InsertRecord(key(1), []byte{1}); !errors.Is(err, ErrInvalidRecordLength) {
		t.Errorf("short payload: expected ErrInvalidRecordLength, got %v", err)
	}
	if _, err := ti.tree.GetValue(make([]byte, 9)); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("long lookup key: expected ErrInvalidKeyLength, got %v", err)
	}
	ti.assertNoPins(t)
}

// Keys 1..10 with order 4: every key has one rid, soft deletes of 1..9
// leave all ten entries in a scan with the tombstones set.
func TestSoftDeleteKeepsEntries(t *testing.T) {
	ti := newTestIndex(t, 4, 4)
	insertKeys(t, ti.tree, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	for k := 1; k <= 9; k++ {
		if _, err := ti.tree.DeleteEntry(key(k)); err != nil {
			t.Fatalf("DeleteEntry(%d): %v", k, err)
		}
	}

	scan, err := FullScan(ti.tree)
	if err != nil {
		t.Fatalf("FullScan: %v", err)
	}
	n := 0
	for !scan.IsEnd() {
		k, err := ti.tree.KeyAt(scan.Rid())
		if err != nil {
			t.Fatalf("KeyAt: %v", err)
		}
		deleted, err := ti.tree.IsDeleted(scan.Rid())
		if err != nil {
			t.Fatalf("IsDeleted: %v", err)
		}
		want := types.DecodeInt(k) != 10
		if deleted != want {
			t.Errorf("key %d: deleted=%t, want %t", types.DecodeInt(k), deleted, want)
		}
		n++
		if err := scan.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if n != 10 {
		t.Errorf("scan returned %d entries, want 10", n)
	}

	if _, err := ti.tree.DeleteEntry(key(42)); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("delete of missing key: expected ErrEntryNotFound, got %v", err)
	}
	ti.assertNoPins(t)
}

func TestDeleteRollback(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	rids := insertKeys(t, ti.tree, []int{1, 2})

	rid := rids[2]
	if err := ti.tree.DeleteRecord(rid); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if deleted, _ := ti.tree.IsDeleted(rid); !deleted {
		t.Fatalf("record not tombstoned after DeleteRecord")
	}
	if err := ti.tree.RollbackDeleteRecord(rid); err != nil {
		t.Fatalf("RollbackDeleteRecord: %v", err)
	}
	if deleted, _ := ti.tree.IsDeleted(rid); deleted {
		t.Fatalf("record still tombstoned after rollback")
	}

	if err := ti.tree.UpdateRecord(rid, payload(200)); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	rec, _ := ti.tree.GetRecord(rid)
	if payloadValue(rec) != 200 {
		t.Errorf("UpdateRecord not visible: %d", payloadValue(rec))
	}
	ti.assertNoPins(t)
}

func TestStaleRidAfterSplit(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	rids := insertKeys(t, ti.tree, []int{1, 2, 3})
	old := rids[3]

	// fourth key fills the leaf and splits it: 1,2 | 3,4
	rid4, err := ti.tree.InsertRecord(key(4), payload(4))
	if err != nil {
		t.Fatalf("InsertRecord(4): %v", err)
	}
	if rec, err := ti.tree.GetRecord(rid4); err != nil || payloadValue(rec) != 4 {
		t.Fatalf("rid returned by splitting insert does not resolve: %v", err)
	}

	if _, err := ti.tree.GetRecord(old); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("moved record: expected ErrEntryNotFound, got %v", err)
	}

	// the slot exists again but holds another record
	insertKeys(t, ti.tree, []int{0})
	if _, err := ti.tree.GetRecord(old); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("reused slot: expected ErrEntryNotFound, got %v", err)
	}

	fresh, err := ti.tree.LowerBound(key(3))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	if fresh.RecordID != old.RecordID {
		t.Errorf("record id changed across split: %d != %d", fresh.RecordID, old.RecordID)
	}
	if _, err := ti.tree.GetRecord(InvalidRid()); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("invalid rid: expected ErrEntryNotFound, got %v", err)
	}
	ti.assertNoPins(t)
}

func TestSplitLeafRecyclesRecordSlots(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	insertKeys(t, ti.tree, []int{10, 20, 30, 40}) // fourth key splits the root leaf

	chain := func() []int32 {
		leaf, err := ti.tree.fetchLeaf(ti.tree.firstLeaf(), latchRead)
		if err != nil {
			t.Fatalf("fetchLeaf: %v", err)
		}
		defer ti.tree.releaseNode(leaf)
		var offs []int32
		for off := leaf.getI32(offFirstDeleted); off != InvalidPageNo; {
			offs = append(offs, off)
			off = nextFree(leaf.page.Data[int(off) : int(off)+leaf.geo.recordLen])
		}
		return offs
	}

	free := chain()
	if len(free) != 2 {
		t.Fatalf("left leaf free chain %v, want the 2 records moved to the sibling", free)
	}

	insertKeys(t, ti.tree, []int{5})
	if got := chain(); len(got) != 1 || got[0] != free[1] {
		t.Fatalf("free chain after reuse %v, want [%d]", got, free[1])
	}
	if got := scanKeys(t, ti.tree); len(got) != 5 || got[0] != 5 {
		t.Fatalf("scan: %v", got)
	}
	ti.assertNoPins(t)
}

func TestBounds(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	insertKeys(t, ti.tree, []int{10, 20, 30, 40, 50, 60, 70})

	tests := []struct {
		name  string
		key   int
		upper bool
		want  int // key at the returned position, -1 for the end
	}{
		{"lower exact", 30, false, 30},
		{"lower between", 35, false, 40},
		{"lower before all", 1, false, 10},
		{"lower past all", 99, false, -1},
		{"upper exact", 30, true, 40},
		{"upper last", 70, true, -1},
		{"upper between", 45, true, 50},
	}

	end, err := ti.tree.LeafEnd()
	if err != nil {
		t.Fatalf("LeafEnd: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rid Rid
			if tt.upper {
				rid, err = ti.tree.UpperBound(key(tt.key))
			} else {
				rid, err = ti.tree.LowerBound(key(tt.key))
			}
			if err != nil {
				t.Fatalf("bound: %v", err)
			}
			if tt.want < 0 {
				if !rid.SamePosition(end) {
					t.Errorf("got %s, want end %s", rid, end)
				}
				return
			}
			k, err := ti.tree.KeyAt(rid)
			if err != nil {
				t.Fatalf("KeyAt(%s): %v", rid, err)
			}
			if got := int(types.DecodeInt(k)); got != tt.want {
				t.Errorf("got key %d, want %d", got, tt.want)
			}
		})
	}
	ti.assertNoPins(t)
}

func TestRangeScan(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	var keys []int
	for k := 0; k < 200; k += 2 {
		keys = append(keys, k)
	}
	insertKeys(t, ti.tree, keys)

	begin, err := ti.tree.LowerBound(key(31))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	end, err := ti.tree.UpperBound(key(60))
	if err != nil {
		t.Fatalf("UpperBound: %v", err)
	}

	var got []int
	for scan := NewScan(ti.tree, begin, end); !scan.IsEnd(); {
		k, err := ti.tree.KeyAt(scan.Rid())
		if err != nil {
			t.Fatalf("KeyAt: %v", err)
		}
		got = append(got, int(types.DecodeInt(k)))
		if err := scan.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	want := 32
	for _, k := range got {
		if k != want {
			t.Fatalf("range scan: got %v", got)
		}
		want += 2
	}
	if want != 62 {
		t.Errorf("range scan stopped early: %v", got)
	}
	ti.assertNoPins(t)
}

func TestShuffledInsertHeight(t *testing.T) {
	const n = 10000
	const order = 4
	ti := newTestIndex(t, order, order)

	keys := rand.New(rand.NewSource(7)).Perm(n)
	lastHeight := 1
	for i, k := range keys {
		if _, err := ti.tree.InsertRecord(key(k), payload(k)); err != nil {
			t.Fatalf("InsertRecord(%d): %v", k, err)
		}
		if i%500 == 0 {
			h, err := ti.tree.Height()
			if err != nil {
				t.Fatalf("Height: %v", err)
			}
			if h < lastHeight {
				t.Fatalf("height shrank from %d to %d", lastHeight, h)
			}
			lastHeight = h
		}
	}

	for k := 0; k < n; k++ {
		rid, err := ti.tree.LowerBound(key(k))
		if err != nil {
			t.Fatalf("LowerBound(%d): %v", k, err)
		}
		got, err := ti.tree.KeyAt(rid)
		if err != nil {
			t.Fatalf("KeyAt for %d: %v", k, err)
		}
		if !bytes.Equal(got, key(k)) {
			t.Fatalf("LowerBound(%d) landed on %d", k, types.DecodeInt(got))
		}
	}

	h, err := ti.tree.Height()
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	limit := int(math.Ceil(math.Log(n)/math.Log(order/2))) + 1
	if h > limit {
		t.Errorf("height %d exceeds %d", h, limit)
	}

	scanned := scanKeys(t, ti.tree)
	if len(scanned) != n {
		t.Fatalf("scan returned %d keys, want %d", len(scanned), n)
	}
	for i, k := range scanned {
		if k != i {
			t.Fatalf("scan out of order at %d: %d", i, k)
		}
	}

	if err := ti.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	ti.assertNoPins(t)
}

func TestDescendingAndNegativeKeys(t *testing.T) {
	ti := newTestIndex(t, 3, 2)
	var keys []int
	for k := 50; k >= -50; k-- {
		keys = append(keys, k)
	}
	insertKeys(t, ti.tree, keys)

	got := scanKeys(t, ti.tree)
	if len(got) != 101 || got[0] != -50 || got[100] != 50 {
		t.Fatalf("scan: %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("keys not ascending at %d: %d, %d", i, got[i-1], got[i])
		}
	}
	if err := ti.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
}

// Descending inserts keep splitting the leftmost nodes, so key 0 of the
// internal nodes goes stale. That key is never routed on and must not make
// a healthy tree fail the check.
func TestIntegrityIgnoresFirstInternalKey(t *testing.T) {
	for _, n := range []int{4, 7, 12, 25, 60, 200} {
		ti := newTestIndex(t, 3, 2)
		var keys []int
		for k := n; k > 0; k-- {
			keys = append(keys, k)
		}
		insertKeys(t, ti.tree, keys)

		if err := ti.tree.CheckIntegrity(); err != nil {
			t.Fatalf("n=%d: CheckIntegrity: %v", n, err)
		}
		if got := scanKeys(t, ti.tree); len(got) != n || got[0] != 1 || got[n-1] != n {
			t.Fatalf("n=%d: scan returned %d keys", n, len(got))
		}
		ti.assertNoPins(t)
	}
}

func TestReopenPersistsTree(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	keys := rand.New(rand.NewSource(3)).Perm(300)
	insertKeys(t, ti.tree, keys)
	before := ti.tree.Header()

	ti.reopen(t)

	after := ti.tree.Header()
	if after.RootPage != before.RootPage || after.NumPages != before.NumPages ||
		after.NextRecordID != before.NextRecordID || after.LastLeaf != before.LastLeaf {
		t.Fatalf("header changed across reopen: %+v != %+v", after, before)
	}
	if got := scanKeys(t, ti.tree); len(got) != 300 {
		t.Fatalf("scan after reopen returned %d keys", len(got))
	}
	if err := ti.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity after reopen: %v", err)
	}

	// record ids keep growing after reopen
	rid, err := ti.tree.InsertRecord(key(1000), payload(1000))
	if err != nil {
		t.Fatalf("InsertRecord after reopen: %v", err)
	}
	if rid.RecordID != before.NextRecordID {
		t.Errorf("record id %d, want %d", rid.RecordID, before.NextRecordID)
	}
	ti.assertNoPins(t)
}

func TestReplayInsertRecord(t *testing.T) {
	logged := newTestIndex(t, 4, 3)
	replica := newTestIndex(t, 4, 3)

	keys := rand.New(rand.NewSource(11)).Perm(60)
	type entry struct {
		k   int
		rid Rid
	}
	var log []entry
	for _, k := range keys {
		rid, err := logged.tree.InsertRecord(key(k), payload(k))
		if err != nil {
			t.Fatalf("InsertRecord(%d): %v", k, err)
		}
		log = append(log, entry{k, rid})
	}

	for _, e := range log {
		if err := replica.tree.ReplayInsertRecord(e.rid, key(e.k), payload(e.k)); err != nil {
			t.Fatalf("ReplayInsertRecord(%d): %v", e.k, err)
		}
	}

	// replaying an applied record again is a no-op
	last := log[len(log)-1]
	rids, _ := replica.tree.GetValue(key(last.k))
	if err := replica.tree.ReplayInsertRecord(rids[0], key(last.k), payload(last.k)); err != nil {
		t.Fatalf("second replay: %v", err)
	}

	if !errors.HasAssertionFailure(replica.tree.ReplayInsertRecord(Rid{PageNo: 1, SlotNo: 0, RecordID: 9999}, key(last.k), payload(last.k))) {
		t.Errorf("replay with a foreign record id must be an assertion failure")
	}

	if err := replica.tree.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	replica.assertNoPins(t)
}

func TestDump(t *testing.T) {
	ti := newTestIndex(t, 4, 3)
	insertKeys(t, ti.tree, []int{1, 2, 3, 4, 5, 6})
	if _, err := ti.tree.DeleteEntry(key(3)); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	var buf bytes.Buffer
	if err := ti.tree.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Page 0 (header)", "Nodes (BFS)"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
	ti.assertNoPins(t)
}
