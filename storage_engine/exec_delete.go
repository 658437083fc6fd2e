package storageengine

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"
	"bytes"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file contains row deletion and its undo
A delete only sets the tombstone bit of the row's record in every index;
the entries stay, so RestoreRow can clear the bit again (rollback of an
aborted delete) and a later insert of the same key revives the slot.
*/

// DeleteRow tombstones the row with the given primary key values.
func (se *StorageEngine) DeleteRow(tableName string, pkValues []any) error {
	return se.setRowDeleted(tableName, pkValues, true)
}

// RestoreRow undoes DeleteRow.
func (se *StorageEngine) RestoreRow(tableName string, pkValues []any) error {
	return se.setRowDeleted(tableName, pkValues, false)
}

func (se *StorageEngine) setRowDeleted(tableName string, pkValues []any, deleted bool) error {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return err
	}
	indexes, err := se.tableIndexes(schema)
	if err != nil {
		return err
	}

	pkKey, err := EncodeKey(schema, indexes[0].columns, pkValues)
	if err != nil {
		return err
	}
	rids, err := indexes[0].tree.GetValue(pkKey)
	if err != nil {
		return err
	}
	if len(rids) == 0 {
		return errors.Wrapf(ErrRowNotFound, "%s %v", tableName, pkValues)
	}
	if isDeleted, err := indexes[0].tree.IsDeleted(rids[0]); err != nil {
		return err
	} else if isDeleted == deleted {
		return errors.Wrapf(ErrRowNotFound, "%s %v (deleted=%t)", tableName, pkValues, isDeleted)
	}

	payload, err := indexes[0].tree.GetRecord(rids[0])
	if err != nil {
		return err
	}
	row, err := types.DecodeRow(payload, schema.Columns)
	if err != nil {
		return err
	}

	if deleted {
		for _, idx := range indexes {
			key, err := ExtractKey(schema, idx.columns, row)
			if err != nil {
				return err
			}
			if _, err := idx.tree.DeleteEntry(key); err != nil {
				return errors.Wrapf(err, "delete in index '%s'", idx.name)
			}
		}
	} else if err := se.restoreEntries(schema, indexes, pkKey, row, payload); err != nil {
		return err
	}

	se.logger.Debug("row tombstone", zap.String("table", tableName), zap.Bool("deleted", deleted))
	return nil
}

// restoreEntries clears the tombstone of the row's entry in every index.
// A secondary entry may have been revived by another row since the delete:
// when that row is live the restore fails with ErrDuplicateKey, when it is
// tombstoned too the entry is handed back to this row. Nothing is written
// until every index has been checked.
func (se *StorageEngine) restoreEntries(schema types.TableSchema, indexes []tableIndex, pkKey []byte,
	row []any, payload []byte) error {
	pkCols := indexes[0].columns
	rids := make([]bplus.Rid, len(indexes))
	reclaim := make([]bool, len(indexes))

	for i, idx := range indexes {
		key, err := ExtractKey(schema, idx.columns, row)
		if err != nil {
			return err
		}
		found, err := idx.tree.GetValue(key)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.Wrapf(ErrRowNotFound, "index '%s' is missing the row", idx.name)
		}
		rids[i] = found[0]
		if i == 0 {
			continue
		}

		stored, err := idx.tree.GetRecord(found[0])
		if err != nil {
			return err
		}
		owner, err := types.DecodeRow(stored, schema.Columns)
		if err != nil {
			return err
		}
		ownerKey, err := ExtractKey(schema, pkCols, owner)
		if err != nil {
			return err
		}
		if bytes.Equal(ownerKey, pkKey) {
			continue
		}
		isDeleted, err := idx.tree.IsDeleted(found[0])
		if err != nil {
			return err
		}
		if !isDeleted {
			return errors.Wrapf(bplus.ErrDuplicateKey, "index '%s' holds another live row", idx.name)
		}
		reclaim[i] = true
	}

	for i, idx := range indexes {
		if reclaim[i] {
			if err := idx.tree.UpdateRecord(rids[i], payload); err != nil {
				return errors.Wrapf(err, "restore in index '%s'", idx.name)
			}
		}
		if err := idx.tree.RollbackDeleteRecord(rids[i]); err != nil {
			return errors.Wrapf(err, "restore in index '%s'", idx.name)
		}
	}
	return nil
}
