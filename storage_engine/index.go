package storageengine

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
)

/*
This file contains the helpers that map a table row onto its indexes:
which columns form a key, how the key bytes are built from row values,
and which open tree serves each index of a table.
*/

var ErrRowNotFound = errors.New("row not found")

type tableIndex struct {
	name    string
	columns []string
	tree    *bplus.BPlusTree
}

func primaryKeyColumns(schema types.TableSchema) []string {
	var cols []string
	for _, col := range schema.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col.Name)
		}
	}
	return cols
}

func (se *StorageEngine) primaryIndex(tableName string) (*bplus.BPlusTree, error) {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return nil, err
	}
	return se.IndexManager.OpenIndex(tableName, primaryKeyColumns(schema))
}

// tableIndexes opens every index of the table, primary index first.
func (se *StorageEngine) tableIndexes(schema types.TableSchema) ([]tableIndex, error) {
	pkCols := primaryKeyColumns(schema)
	primaryName := se.IndexManager.GetIndexName(schema.TableName, pkCols)

	primary, err := se.IndexManager.OpenIndex(schema.TableName, pkCols)
	if err != nil {
		return nil, err
	}
	out := []tableIndex{{name: primaryName, columns: pkCols, tree: primary}}

	for _, name := range se.CatalogManager.IndexesOf(schema.TableName) {
		if name == primaryName {
			continue
		}
		entry, _ := se.CatalogManager.GetIndex(name)
		tree, err := se.IndexManager.OpenIndex(schema.TableName, entry.KeyColumns)
		if err != nil {
			return nil, err
		}
		out = append(out, tableIndex{name: name, columns: entry.KeyColumns, tree: tree})
	}
	return out, nil
}

// ExtractKey encodes the values of keyColumns, taken from a full row, into
// index key bytes.
func ExtractKey(schema types.TableSchema, keyColumns []string, row []any) ([]byte, error) {
	if len(row) != len(schema.Columns) {
		return nil, errors.Newf("column count mismatch: expected %d, got %d", len(schema.Columns), len(row))
	}
	var key []byte
	for _, name := range keyColumns {
		col, idx, err := schema.Column(name)
		if err != nil {
			return nil, err
		}
		b, err := types.ValueToBytes(row[idx], col)
		if err != nil {
			return nil, errors.Wrapf(err, "key column %s", name)
		}
		key = append(key, b...)
	}
	return key, nil
}

// EncodeKey encodes key values given in keyColumns order.
func EncodeKey(schema types.TableSchema, keyColumns []string, values []any) ([]byte, error) {
	if len(values) != len(keyColumns) {
		return nil, errors.Newf("key has %d columns, got %d values", len(keyColumns), len(values))
	}
	var key []byte
	for i, name := range keyColumns {
		col, _, err := schema.Column(name)
		if err != nil {
			return nil, err
		}
		b, err := types.ValueToBytes(values[i], col)
		if err != nil {
			return nil, errors.Wrapf(err, "key column %s", name)
		}
		key = append(key, b...)
	}
	return key, nil
}
