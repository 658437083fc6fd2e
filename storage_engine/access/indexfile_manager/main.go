package indexfile

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/storage_engine/bufferpool"
	"IndexDB/storage_engine/catalog"
	diskmanager "IndexDB/storage_engine/disk_manager"
	"IndexDB/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file is the main file for Index File Manager that deals with the index files
It has access to the disk manager and the buffer pool, and asks the catalog for
table schemas and for the stable file id of every index.

One index = one file <baseDir>/<table>_<col>[_<col>...].idx holding a B+ tree.
Open trees are cached per index name until CloseIndex / CloseAll.
*/

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexOpen     = errors.New("index is open")
)

func NewIndexFileManager(baseDir string, cat *catalog.CatalogManager, diskManager *diskmanager.DiskManager,
	bufferPool *bufferpool.BufferPool, logger *zap.Logger) (*IndexFileManager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create indexes directory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IndexFileManager{
		baseDir:     baseDir,
		indexes:     make(map[string]*bplus.BPlusTree),
		catalog:     cat,
		bufferPool:  bufferPool,
		diskManager: diskManager,
		logger:      logger,
	}, nil
}

// GetIndexName names the index of table over keyColumns.
func (ifm *IndexFileManager) GetIndexName(tableName string, keyColumns []string) string {
	return tableName + "_" + strings.Join(keyColumns, "_")
}

func (ifm *IndexFileManager) indexPath(indexName string) string {
	return filepath.Join(ifm.baseDir, indexName+".idx")
}

// IndexExists is a presence check on the index file.
func (ifm *IndexFileManager) IndexExists(tableName string, keyColumns []string) bool {
	return ifm.diskManager.FileExists(ifm.indexPath(ifm.GetIndexName(tableName, keyColumns)))
}

// buildHeader resolves the key columns against the table schema and sizes
// the tree for them.
func (ifm *IndexFileManager) buildHeader(tableName string, keyColumns []string, opts CreateOptions) (*bplus.IndexFileHeader, error) {
	if len(keyColumns) == 0 {
		return nil, errors.Wrap(bplus.ErrInvalidKeyLength, "no key columns")
	}

	schema, err := ifm.catalog.GetTableSchema(tableName)
	if err != nil {
		return nil, err
	}

	cols := make([]types.ColumnMeta, 0, len(keyColumns))
	keyLen := 0
	for _, name := range keyColumns {
		col, _, err := schema.Column(name)
		if err != nil {
			return nil, errors.Wrap(err, "invalid key column")
		}
		cols = append(cols, col.Meta())
		keyLen += col.Width()
	}
	if keyLen > bplus.MaxIndexKeyLen {
		return nil, errors.Wrapf(bplus.ErrInvalidKeyLength, "key of %d bytes exceeds %d", keyLen, bplus.MaxIndexKeyLen)
	}

	recordLen := bplus.RecordHeaderSize + schema.RecordLen()
	order, maxRecords, err := ComputeCapacity(keyLen, recordLen)
	if err != nil {
		return nil, err
	}
	order, maxRecords = opts.apply(order, maxRecords)

	return &bplus.IndexFileHeader{
		Columns:           cols,
		KeyLen:            int32(keyLen),
		TreeOrder:         int32(order),
		MaxRecordsPerLeaf: int32(maxRecords),
		RecordLen:         int32(recordLen),
	}, nil
}

// CreateIndex creates the index file of table over keyColumns with a header
// page and an empty root leaf, registers it in the catalog and leaves it
// closed. Records stored in the index have the width of a table row.
func (ifm *IndexFileManager) CreateIndex(tableName string, keyColumns []string, opts CreateOptions) error {
	hdr, err := ifm.buildHeader(tableName, keyColumns, opts)
	if err != nil {
		return errors.Wrapf(err, "CreateIndex %s", tableName)
	}

	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	indexName := ifm.GetIndexName(tableName, keyColumns)
	path := ifm.indexPath(indexName)
	if ifm.diskManager.FileExists(path) {
		return errors.Wrapf(ErrIndexExists, "index '%s'", indexName)
	}
	if _, registered := ifm.catalog.GetIndex(indexName); registered {
		// file gone but catalog row left behind by an interrupted destroy
		if err := ifm.catalog.DropIndex(indexName); err != nil {
			return err
		}
	}

	fileID, err := ifm.catalog.RegisterIndex(indexName, tableName, keyColumns)
	if err != nil {
		return err
	}

	if err := ifm.initFile(path, fileID, hdr); err != nil {
		_ = ifm.diskManager.DestroyFile(path)
		_ = ifm.catalog.DropIndex(indexName)
		return errors.Wrapf(err, "CreateIndex %s", indexName)
	}

	ifm.logger.Info("created index",
		zap.String("index", indexName),
		zap.Uint32("file_id", fileID),
		zap.Int32("key_len", hdr.KeyLen),
		zap.Int32("order", hdr.TreeOrder),
		zap.Int32("max_records", hdr.MaxRecordsPerLeaf))
	return nil
}

func (ifm *IndexFileManager) initFile(path string, fileID uint32, hdr *bplus.IndexFileHeader) error {
	if err := ifm.diskManager.CreateFile(path); err != nil {
		return err
	}
	if _, err := ifm.diskManager.OpenFileWithID(path, fileID); err != nil {
		return err
	}

	err := bplus.InitIndexFile(fileID, hdr, ifm.bufferPool)
	if err == nil {
		err = ifm.bufferPool.FlushFile(fileID)
	}
	if dropErr := ifm.bufferPool.DropFile(fileID); err == nil {
		err = dropErr
	}
	if closeErr := ifm.diskManager.CloseFile(fileID); err == nil {
		err = closeErr
	}
	return err
}

// OpenIndex returns the B+ tree of an existing index, opening it on first use.
// Trees are cached per index name; the cache is cleared by CloseIndex/CloseAll.
func (ifm *IndexFileManager) OpenIndex(tableName string, keyColumns []string) (*bplus.BPlusTree, error) {
	indexName := ifm.GetIndexName(tableName, keyColumns)

	ifm.mu.RLock()
	btree, exists := ifm.indexes[indexName]
	ifm.mu.RUnlock()

	if exists && btree != nil {
		return btree, nil
	}

	// Slow path: open the index file.
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have
	// opened it while we were waiting for the lock).
	if btree, exists := ifm.indexes[indexName]; exists && btree != nil {
		return btree, nil
	}

	path := ifm.indexPath(indexName)
	if !ifm.diskManager.FileExists(path) {
		return nil, errors.Wrapf(ErrIndexNotFound, "index '%s'", indexName)
	}
	fileID, err := ifm.catalog.GetIndexFileID(indexName)
	if err != nil {
		return nil, errors.Wrapf(ErrIndexNotFound, "index '%s' has a file but no catalog entry", indexName)
	}

	if _, err := ifm.diskManager.OpenFileWithID(path, fileID); err != nil {
		return nil, errors.Wrapf(err, "OpenIndex %s", indexName)
	}

	btree, err = bplus.OpenBPlusTree(fileID, ifm.bufferPool, ifm.logger)
	if err != nil {
		_ = ifm.bufferPool.DropFile(fileID)
		_ = ifm.diskManager.CloseFile(fileID)
		return nil, errors.Wrapf(err, "failed to open B+ tree '%s'", indexName)
	}

	ifm.indexes[indexName] = btree
	ifm.logger.Info("opened index", zap.String("index", indexName), zap.Uint32("file_id", fileID))
	return btree, nil
}

// CloseIndex writes the header back, flushes every page of the index and
// closes its file. Closing an index that is not open is a no-op.
func (ifm *IndexFileManager) CloseIndex(tableName string, keyColumns []string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	return ifm.closeLocked(ifm.GetIndexName(tableName, keyColumns))
}

func (ifm *IndexFileManager) closeLocked(indexName string) error {
	btree, exists := ifm.indexes[indexName]
	if !exists {
		return nil
	}

	if err := btree.Close(); err != nil {
		return errors.Wrapf(err, "failed to close index '%s'", indexName)
	}
	if err := ifm.bufferPool.DropFile(btree.FileID()); err != nil {
		return errors.Wrapf(err, "failed to close index '%s'", indexName)
	}
	if err := ifm.diskManager.CloseFile(btree.FileID()); err != nil {
		return errors.Wrapf(err, "failed to close index '%s'", indexName)
	}

	delete(ifm.indexes, indexName)
	ifm.logger.Info("closed index", zap.String("index", indexName))
	return nil
}

// DestroyIndex removes the index file and its catalog entry. An open index
// must be closed first.
func (ifm *IndexFileManager) DestroyIndex(tableName string, keyColumns []string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	indexName := ifm.GetIndexName(tableName, keyColumns)
	if _, open := ifm.indexes[indexName]; open {
		return errors.Wrapf(ErrIndexOpen, "index '%s'", indexName)
	}

	path := ifm.indexPath(indexName)
	if !ifm.diskManager.FileExists(path) {
		return errors.Wrapf(ErrIndexNotFound, "index '%s'", indexName)
	}
	if err := ifm.diskManager.DestroyFile(path); err != nil {
		return err
	}
	if _, registered := ifm.catalog.GetIndex(indexName); registered {
		if err := ifm.catalog.DropIndex(indexName); err != nil {
			return err
		}
	}

	ifm.logger.Info("destroyed index", zap.String("index", indexName))
	return nil
}

// OpenIndexes returns the names of the cached trees in sorted order.
func (ifm *IndexFileManager) OpenIndexes() []string {
	ifm.mu.RLock()
	defer ifm.mu.RUnlock()

	names := make([]string, 0, len(ifm.indexes))
	for name := range ifm.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll closes all cached indexes and clears the cache.
// Called when shutting down the storage engine.
func (ifm *IndexFileManager) CloseAll() error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	var lastErr error
	for indexName := range ifm.indexes {
		if err := ifm.closeLocked(indexName); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
