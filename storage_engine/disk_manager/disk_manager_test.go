package diskmanager

import (
	"IndexDB/storage_engine/page"
	"IndexDB/types"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestDiskManagerPageIO(t *testing.T) {
	for _, cacheSize := range []int{0, 16} {
		dm, err := NewDiskManager(cacheSize, nil)
		if err != nil {
			t.Fatalf("NewDiskManager: %v", err)
		}

		path := filepath.Join(t.TempDir(), "io.idx")
		if err := dm.CreateFile(path); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
		if err := dm.CreateFile(path); err == nil {
			t.Errorf("CreateFile of an existing file must fail")
		}

		fileID, err := dm.OpenFileWithID(path, 7)
		if err != nil {
			t.Fatalf("OpenFileWithID: %v", err)
		}
		if fileID != 7 {
			t.Fatalf("file id %d, want 7", fileID)
		}

		var ids []int64
		for i := 0; i < 3; i++ {
			id, err := dm.AllocatePage(fileID)
			if err != nil {
				t.Fatalf("AllocatePage: %v", err)
			}
			if _, local := page.SplitPageID(id); local != int32(i) {
				t.Fatalf("page %d allocated as local %d", i, local)
			}
			ids = append(ids, id)
		}

		pg := NewPage(ids[1], fileID, types.PageTypeBPlusNode)
		copy(pg.Data[64:], []byte("payload"))
		if err := dm.WritePage(pg); err != nil {
			t.Fatalf("WritePage: %v", err)
		}

		// rewrite so a cached image would be stale
		copy(pg.Data[64:], []byte("PAYLOAD"))
		if err := dm.WritePage(pg); err != nil {
			t.Fatalf("WritePage: %v", err)
		}

		got, err := dm.ReadPage(ids[1])
		if err != nil {
			t.Fatalf("ReadPage: %v", err)
		}
		if !bytes.Equal(got.Data[64:71], []byte("PAYLOAD")) {
			t.Errorf("cache=%d: read %q", cacheSize, got.Data[64:71])
		}
		if got.PageType != types.PageTypeBPlusNode {
			t.Errorf("page type %s", got.PageType)
		}

		// allocated but never written reads as zeros
		zero, err := dm.ReadPage(ids[2])
		if err != nil {
			t.Fatalf("ReadPage of unwritten page: %v", err)
		}
		if !bytes.Equal(zero.Data, make([]byte, page.PageSize)) {
			t.Errorf("unwritten page is not zero")
		}

		if _, err := dm.ReadPage(page.GlobalPageID(fileID, 50)); err == nil {
			t.Errorf("read beyond end of file must fail")
		}

		if err := dm.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestDiskManagerReopenKeepsPages(t *testing.T) {
	dm, err := NewDiskManager(8, nil)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	defer dm.Close()

	path := filepath.Join(t.TempDir(), "reopen.idx")
	if err := dm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fileID, _ := dm.OpenFile(path)
	for i := 0; i < 4; i++ {
		id, _ := dm.AllocatePage(fileID)
		pg := NewPage(id, fileID, types.PageTypeBPlusNode)
		pg.Data[32] = byte(i)
		if err := dm.WritePage(pg); err != nil {
			t.Fatalf("WritePage: %v", err)
		}
	}
	if err := dm.CloseFile(fileID); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if _, err := dm.ReadPage(page.GlobalPageID(fileID, 0)); !errors.Is(err, ErrFileNotOpen) {
		t.Errorf("read of closed file: expected ErrFileNotOpen, got %v", err)
	}

	fileID, err = dm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	n, err := dm.NumPages(fileID)
	if err != nil || n != 4 {
		t.Fatalf("NumPages = %d, %v; want 4", n, err)
	}
	pg, err := dm.ReadPage(page.GlobalPageID(fileID, 3))
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if pg.Data[32] != 3 {
		t.Errorf("page 3 holds %d", pg.Data[32])
	}

	if err := dm.DestroyFile(path); err == nil {
		t.Errorf("DestroyFile of an open file must fail")
	}
	dm.CloseFile(fileID)
	if err := dm.DestroyFile(path); err != nil {
		t.Fatalf("DestroyFile: %v", err)
	}
	if dm.FileExists(path) {
		t.Errorf("file still exists after DestroyFile")
	}
}

func TestDiskManagerReadErrorIsReturned(t *testing.T) {
	dm, err := NewDiskManager(0, nil)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}

	path := filepath.Join(t.TempDir(), "broken.idx")
	if err := dm.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fileID, err := dm.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	id, _ := dm.AllocatePage(fileID)
	pg := NewPage(id, fileID, types.PageTypeBPlusNode)
	pg.Data[32] = 9
	if err := dm.WritePage(pg); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	// pull the descriptor out from under the disk manager
	fd, err := dm.GetFileDescriptor(fileID)
	if err != nil {
		t.Fatalf("GetFileDescriptor: %v", err)
	}
	if err := fd.File.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := dm.ReadPage(id)
	if err == nil {
		t.Fatalf("ReadPage on a failing file returned page with byte %d, want an error", got.Data[32])
	}
	if errors.Is(err, ErrFileNotOpen) {
		t.Errorf("I/O failure reported as ErrFileNotOpen: %v", err)
	}
}
