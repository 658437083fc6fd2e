package storageengine

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file contains the insert row operation

	StorageEngine.InsertRow("students", [1, "Alice", 20])
	     ├── CatalogManager.GetTableSchema("students")
	     ├── EncodeRow(values) → fixed length payload
	     ├── for every index: key = ExtractKey(row), duplicate check
	     └── for every index: InsertRecord(key, payload)
	               (a tombstoned entry with the same key is revived in place)

The duplicate check runs over all indexes before anything is written, so a
rejected row leaves no index touched. A failure while writing undoes the
entries already written. Concurrent inserts of the same key
into different indexes are not coordinated.
*/

func (se *StorageEngine) InsertRow(tableName string, values []any) (bplus.Rid, error) {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return bplus.InvalidRid(), err
	}
	if len(values) != len(schema.Columns) {
		return bplus.InvalidRid(), errors.Newf("column count mismatch: expected %d, got %d",
			len(schema.Columns), len(values))
	}

	payload, err := types.EncodeRow(schema.Columns, values)
	if err != nil {
		return bplus.InvalidRid(), err
	}

	indexes, err := se.tableIndexes(schema)
	if err != nil {
		return bplus.InvalidRid(), err
	}

	keys := make([][]byte, len(indexes))
	revive := make([]bplus.Rid, len(indexes))
	prior := make([][]byte, len(indexes))
	for i, idx := range indexes {
		keys[i], err = ExtractKey(schema, idx.columns, values)
		if err != nil {
			return bplus.InvalidRid(), err
		}

		rids, err := idx.tree.GetValue(keys[i])
		if err != nil {
			return bplus.InvalidRid(), err
		}
		revive[i] = bplus.InvalidRid()
		if len(rids) == 0 {
			continue
		}
		deleted, err := idx.tree.IsDeleted(rids[0])
		if err != nil {
			return bplus.InvalidRid(), err
		}
		if !deleted {
			return bplus.InvalidRid(), errors.Wrapf(bplus.ErrDuplicateKey, "index '%s'", idx.name)
		}
		revive[i] = rids[0]
		if prior[i], err = idx.tree.GetRecord(rids[0]); err != nil {
			return bplus.InvalidRid(), err
		}
	}

	primaryRid, err := se.applyInsert(indexes, keys, revive, prior, payload)
	if err != nil {
		return bplus.InvalidRid(), err
	}

	se.logger.Debug("inserted row", zap.String("table", tableName), zap.Stringer("rid", primaryRid))
	return primaryRid, nil
}

// indexWrite is one entry written by an insert. prior holds the payload a
// revived tombstone carried before, nil for a fresh entry.
type indexWrite struct {
	tree  *bplus.BPlusTree
	rid   bplus.Rid
	prior []byte
}

// applyInsert writes the row into every index. When one index fails, the
// entries already written are tombstoned again (revived ones get their old
// payload back) so the row is not half visible.
func (se *StorageEngine) applyInsert(indexes []tableIndex, keys [][]byte, revive []bplus.Rid, prior [][]byte,
	payload []byte) (bplus.Rid, error) {
	writes := make([]indexWrite, 0, len(indexes))
	for i, idx := range indexes {
		var rid bplus.Rid
		var err error
		if revive[i].IsValid() {
			rid, err = se.reviveRecord(idx.tree, keys[i], revive[i], payload)
		} else {
			rid, err = idx.tree.InsertRecord(keys[i], payload)
		}
		if err != nil {
			err = errors.Wrapf(err, "insert into index '%s'", idx.name)
			if uerr := undoInsert(writes); uerr != nil {
				se.logger.Error("undo of partial insert failed", zap.Error(uerr))
				err = errors.WithSecondaryError(err, uerr)
			}
			return bplus.InvalidRid(), err
		}
		writes = append(writes, indexWrite{tree: idx.tree, rid: rid, prior: prior[i]})
	}
	return writes[0].rid, nil
}

func undoInsert(writes []indexWrite) error {
	var errs error
	for i := len(writes) - 1; i >= 0; i-- {
		w := writes[i]
		if w.prior != nil {
			if err := w.tree.UpdateRecord(w.rid, w.prior); err != nil {
				errs = errors.CombineErrors(errs, err)
				continue
			}
		}
		if err := w.tree.DeleteRecord(w.rid); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// reviveRecord reuses a tombstoned entry: new payload, tombstone cleared.
// The Rid may have gone stale since the lookup, so it is re-resolved once.
func (se *StorageEngine) reviveRecord(tree *bplus.BPlusTree, key []byte, rid bplus.Rid, payload []byte) (bplus.Rid, error) {
	if err := tree.UpdateRecord(rid, payload); err != nil {
		if !errors.Is(err, bplus.ErrEntryNotFound) {
			return bplus.InvalidRid(), err
		}
		rids, lerr := tree.GetValue(key)
		if lerr != nil || len(rids) == 0 {
			return bplus.InvalidRid(), err
		}
		rid = rids[0]
		if err := tree.UpdateRecord(rid, payload); err != nil {
			return bplus.InvalidRid(), err
		}
	}
	if err := tree.RollbackDeleteRecord(rid); err != nil {
		return bplus.InvalidRid(), err
	}
	return rid, nil
}
