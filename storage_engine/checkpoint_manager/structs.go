package checkpoint

import (
	"sync"

	"go.uber.org/zap"
)

// CheckpointManager records when the index files were last made durable.
type CheckpointManager struct {
	checkpointPath string
	logger         *zap.Logger
	mu             sync.RWMutex
}

// Checkpoint is the record written after every successful flush of the
// open indexes. Seq grows by one per checkpoint.
type Checkpoint struct {
	Seq       uint64   `json:"seq"`
	Timestamp int64    `json:"timestamp"`
	Indexes   []string `json:"indexes"`
}
