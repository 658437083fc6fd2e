package catalog

import (
	types "IndexDB/types"
	"sync"

	"go.uber.org/zap"
)

type CatalogManager struct {
	dbRoot       string
	tableSchemas map[string]types.TableSchema
	indexes      map[string]IndexEntry // index name -> entry
	nextFileID   uint32
	logger       *zap.Logger
	mu           sync.RWMutex
}

// IndexEntry is the catalog row of one index file.
type IndexEntry struct {
	Table      string   `json:"table"`
	KeyColumns []string `json:"key_columns"`
	FileID     uint32   `json:"file_id"`
}
