package catalog

import (
	types "IndexDB/types"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file is the main access of Catalog Manager
Catalog manager maintains the metadata of the database and also persists it on the disk
It persists table schemas, the index registry (index name -> table, key columns, file id)
and the file id counter. Everything is loaded back when the catalog is opened.

Layout under dbRoot:

	tables/<table>_schema.json
	metadata/index_file_mapping.json
	metadata/next_file_id.json
*/

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
	ErrIndexUnknown  = errors.New("index not registered")
)

func NewCatalogManager(dbRoot string, logger *zap.Logger) (*CatalogManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cm := &CatalogManager{
		dbRoot:       dbRoot,
		tableSchemas: make(map[string]types.TableSchema),
		indexes:      make(map[string]IndexEntry),
		nextFileID:   1,
		logger:       logger.Named("catalog"),
	}

	if err := os.MkdirAll(cm.tablesDir(), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create tables directory")
	}
	if err := os.MkdirAll(cm.metaDir(), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create metadata directory")
	}
	if err := cm.loadAllTableSchemas(); err != nil {
		return nil, err
	}
	if err := cm.loadIndexMapping(); err != nil {
		return nil, err
	}

	cm.logger.Debug("catalog loaded",
		zap.String("root", dbRoot),
		zap.Int("tables", len(cm.tableSchemas)),
		zap.Int("indexes", len(cm.indexes)))
	return cm, nil
}

func (cm *CatalogManager) tablesDir() string { return filepath.Join(cm.dbRoot, "tables") }
func (cm *CatalogManager) metaDir() string   { return filepath.Join(cm.dbRoot, "metadata") }

func (cm *CatalogManager) TableExists(tableName string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.tableSchemas[tableName]
	return exists
}

func (cm *CatalogManager) GetTableSchema(name string) (types.TableSchema, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	schema, ok := cm.tableSchemas[name]
	if !ok {
		return types.TableSchema{}, errors.Wrapf(ErrTableNotFound, "table '%s'", name)
	}
	return schema, nil
}

// ListTables returns the table names in sorted order.
func (cm *CatalogManager) ListTables() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	names := make([]string, 0, len(cm.tableSchemas))
	for name := range cm.tableSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cm *CatalogManager) RegisterTable(schema types.TableSchema) error {
	if err := schema.Validate(); err != nil {
		return errors.Wrap(err, "RegisterTable")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.tableSchemas[schema.TableName]; exists {
		return errors.Wrapf(ErrTableExists, "table '%s'", schema.TableName)
	}
	if err := cm.persistSchema(schema); err != nil {
		return err
	}
	cm.tableSchemas[schema.TableName] = schema

	cm.logger.Info("registered table", zap.String("table", schema.TableName), zap.Int("columns", len(schema.Columns)))
	return nil
}

// UnregisterTable forgets a table. Its indexes must have been dropped first.
func (cm *CatalogManager) UnregisterTable(tableName string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.tableSchemas[tableName]; !exists {
		return errors.Wrapf(ErrTableNotFound, "table '%s'", tableName)
	}
	for name, entry := range cm.indexes {
		if entry.Table == tableName {
			return errors.Newf("table '%s' still has index '%s'", tableName, name)
		}
	}

	schemaPath := filepath.Join(cm.tablesDir(), tableName+"_schema.json")
	if err := os.Remove(schemaPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete schema file")
	}
	delete(cm.tableSchemas, tableName)
	return nil
}

// RegisterIndex records a new index and hands out its file id. File ids are
// never reused, so a stale page image of a dropped index cannot surface.
func (cm *CatalogManager) RegisterIndex(indexName, tableName string, keyColumns []string) (uint32, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.tableSchemas[tableName]; !exists {
		return 0, errors.Wrapf(ErrTableNotFound, "table '%s'", tableName)
	}
	if entry, exists := cm.indexes[indexName]; exists {
		return entry.FileID, errors.Newf("index '%s' already registered", indexName)
	}

	fileID := cm.nextFileID
	cm.nextFileID++
	cm.indexes[indexName] = IndexEntry{
		Table:      tableName,
		KeyColumns: append([]string(nil), keyColumns...),
		FileID:     fileID,
	}

	if err := cm.persistIndexMapping(); err != nil {
		delete(cm.indexes, indexName)
		return 0, err
	}
	return fileID, nil
}

func (cm *CatalogManager) DropIndex(indexName string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.indexes[indexName]; !exists {
		return errors.Wrapf(ErrIndexUnknown, "index '%s'", indexName)
	}
	delete(cm.indexes, indexName)
	return cm.persistIndexMapping()
}

func (cm *CatalogManager) GetIndexFileID(indexName string) (uint32, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	entry, exists := cm.indexes[indexName]
	if !exists {
		return 0, errors.Wrapf(ErrIndexUnknown, "index '%s'", indexName)
	}
	return entry.FileID, nil
}

func (cm *CatalogManager) GetIndex(indexName string) (IndexEntry, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	entry, ok := cm.indexes[indexName]
	return entry, ok
}

// IndexesOf returns the index names of a table in sorted order.
func (cm *CatalogManager) IndexesOf(tableName string) []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var names []string
	for name, entry := range cm.indexes {
		if entry.Table == tableName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (cm *CatalogManager) persistSchema(schema types.TableSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal schema")
	}
	schemaPath := filepath.Join(cm.tablesDir(), schema.TableName+"_schema.json")
	return errors.Wrap(os.WriteFile(schemaPath, data, 0644), "failed to write schema")
}

// persistIndexMapping assumes cm.mu is held.
func (cm *CatalogManager) persistIndexMapping() error {
	data, err := json.MarshalIndent(cm.indexes, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal index mapping")
	}
	if err := os.WriteFile(filepath.Join(cm.metaDir(), "index_file_mapping.json"), data, 0644); err != nil {
		return errors.Wrap(err, "failed to write index mapping")
	}

	data, err = json.MarshalIndent(cm.nextFileID, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal file id counter")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(cm.metaDir(), "next_file_id.json"), data, 0644),
		"failed to write file id counter")
}

func (cm *CatalogManager) loadIndexMapping() error {
	data, err := os.ReadFile(filepath.Join(cm.metaDir(), "index_file_mapping.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read index mapping")
	}
	if err := json.Unmarshal(data, &cm.indexes); err != nil {
		return errors.Wrap(err, "failed to unmarshal index mapping")
	}

	// restore counter
	counterData, err := os.ReadFile(filepath.Join(cm.metaDir(), "next_file_id.json"))
	var counter uint32
	if err == nil && json.Unmarshal(counterData, &counter) == nil {
		cm.nextFileID = counter
	}
	// never hand out an id that is still in the mapping
	for _, entry := range cm.indexes {
		if entry.FileID >= cm.nextFileID {
			cm.nextFileID = entry.FileID + 1
		}
	}
	return nil
}

func (cm *CatalogManager) loadAllTableSchemas() error {
	entries, err := os.ReadDir(cm.tablesDir())
	if err != nil {
		return errors.Wrap(err, "failed to read tables directory")
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, "_schema.json") {
			continue
		}

		schemaPath := filepath.Join(cm.tablesDir(), name)
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read schema file %s", schemaPath)
		}

		var schema types.TableSchema
		if err := json.Unmarshal(data, &schema); err != nil {
			return errors.Wrapf(err, "invalid schema in file %s", schemaPath)
		}
		cm.tableSchemas[schema.TableName] = schema
	}
	return nil
}
