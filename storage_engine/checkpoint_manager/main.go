package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
The checkpoint file lives at <dbRoot>/metadata/checkpoint.json and names the
indexes whose headers and dirty pages were on disk when it was written.
An index missing from the last checkpoint may hold pages that never reached
its file; CheckIntegrity is the tool to look at such an index.
*/

func NewCheckpointManager(dbRoot string, logger *zap.Logger) (*CheckpointManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(dbRoot, "metadata")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create metadata dir")
	}
	return &CheckpointManager{
		checkpointPath: filepath.Join(dir, "checkpoint.json"),
		logger:         logger.Named("checkpoint"),
	}, nil
}

// SaveCheckpoint writes the next checkpoint record through a temp file and
// a rename, so a crash leaves either the old record or the new one.
func (cm *CheckpointManager) SaveCheckpoint(indexes []string) (*Checkpoint, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	last, err := cm.load()
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		Seq:       last.Seq + 1,
		Timestamp: time.Now().Unix(),
		Indexes:   indexes,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal checkpoint")
	}

	tempPath := cm.checkpointPath + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open temp checkpoint")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to write temp checkpoint")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to sync temp checkpoint")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close temp checkpoint")
	}
	if err := os.Rename(tempPath, cm.checkpointPath); err != nil {
		return nil, errors.Wrap(err, "failed to rename checkpoint")
	}

	if dir, err := os.Open(filepath.Dir(cm.checkpointPath)); err == nil {
		_ = dir.Sync()
		dir.Close()
	}

	cm.logger.Info("checkpoint saved", zap.Uint64("seq", cp.Seq), zap.Int("indexes", len(indexes)))
	return cp, nil
}

// LoadCheckpoint returns the last checkpoint, or a zero record when none
// was written yet.
func (cm *CheckpointManager) LoadCheckpoint() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.load()
}

func (cm *CheckpointManager) load() (*Checkpoint, error) {
	data, err := os.ReadFile(cm.checkpointPath)
	if os.IsNotExist(err) {
		return &Checkpoint{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		cm.logger.Warn("checkpoint file corrupted, starting over", zap.Error(err))
		return &Checkpoint{}, nil
	}
	return &cp, nil
}

// DeleteCheckpoint removes the checkpoint file
func (cm *CheckpointManager) DeleteCheckpoint() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.checkpointPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete checkpoint")
	}
	return nil
}
