package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointSequence(t *testing.T) {
	root := t.TempDir()
	cm, err := NewCheckpointManager(root, nil)
	if err != nil {
		t.Fatalf("NewCheckpointManager: %v", err)
	}

	cp, err := cm.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Seq != 0 {
		t.Fatalf("fresh root has checkpoint %d", cp.Seq)
	}

	for i := 1; i <= 3; i++ {
		cp, err := cm.SaveCheckpoint([]string{"students_id"})
		if err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
		if cp.Seq != uint64(i) {
			t.Errorf("checkpoint %d got seq %d", i, cp.Seq)
		}
	}

	// a second manager on the same root continues the sequence
	other, err := NewCheckpointManager(root, nil)
	if err != nil {
		t.Fatalf("NewCheckpointManager: %v", err)
	}
	cp, err = other.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Seq != 3 || len(cp.Indexes) != 1 || cp.Timestamp == 0 {
		t.Errorf("loaded checkpoint %+v", cp)
	}
	if _, err := os.Stat(filepath.Join(root, "metadata", "checkpoint.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	if err := other.DeleteCheckpoint(); err != nil {
		t.Fatalf("DeleteCheckpoint: %v", err)
	}
	if cp, _ := other.LoadCheckpoint(); cp.Seq != 0 {
		t.Errorf("checkpoint survived delete: %+v", cp)
	}
}

func TestCorruptCheckpointStartsOver(t *testing.T) {
	root := t.TempDir()
	cm, err := NewCheckpointManager(root, nil)
	if err != nil {
		t.Fatalf("NewCheckpointManager: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "metadata", "checkpoint.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cp, err := cm.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Seq != 0 {
		t.Errorf("corrupt checkpoint loaded as %+v", cp)
	}
}
