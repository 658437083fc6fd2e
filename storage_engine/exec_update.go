package storageengine

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file contains the Update row functionality
The row is found in every index through its key columns, so key columns
cannot change; the payload is overwritten in place in each index.
*/

func (se *StorageEngine) UpdateRow(tableName string, values []any) error {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return err
	}
	payload, err := types.EncodeRow(schema.Columns, values)
	if err != nil {
		return err
	}

	indexes, err := se.tableIndexes(schema)
	if err != nil {
		return err
	}

	// the primary index decides whether the row exists
	pkKey, err := ExtractKey(schema, indexes[0].columns, values)
	if err != nil {
		return err
	}
	old, err := se.rowByKey(indexes[0].tree, schema, pkKey)
	if err != nil {
		return err
	}

	for _, idx := range indexes {
		oldKey, err := ExtractKey(schema, idx.columns, old)
		if err != nil {
			return err
		}
		newKey, err := ExtractKey(schema, idx.columns, values)
		if err != nil {
			return err
		}
		if idx.tree.Compare(oldKey, newKey) != 0 {
			return errors.Newf("update changes the key of index '%s'", idx.name)
		}
	}

	for _, idx := range indexes {
		key, _ := ExtractKey(schema, idx.columns, values)
		rids, err := idx.tree.GetValue(key)
		if err != nil {
			return err
		}
		if len(rids) == 0 {
			return errors.Wrapf(ErrRowNotFound, "index '%s' is missing the row", idx.name)
		}
		if err := idx.tree.UpdateRecord(rids[0], payload); err != nil {
			return errors.Wrapf(err, "update in index '%s'", idx.name)
		}
	}

	se.logger.Debug("updated row", zap.String("table", tableName))
	return nil
}

// rowByKey decodes the live row stored under key.
func (se *StorageEngine) rowByKey(tree *bplus.BPlusTree, schema types.TableSchema, key []byte) ([]any, error) {
	rids, err := tree.GetValue(key)
	if err != nil {
		return nil, err
	}
	if len(rids) == 0 {
		return nil, errors.Wrapf(ErrRowNotFound, "table '%s'", schema.TableName)
	}
	return se.liveRow(tree, schema, rids[0])
}
