package storageengine

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
)

/*
This file contains the read paths
GetRow: point lookup through any index of the table
ScanRange: ordered walk of an index between two keys (either end optional)
Tombstoned rows are skipped here; the index itself returns them.
*/

// GetRow returns the live row whose keyColumns equal keyValues.
func (se *StorageEngine) GetRow(tableName string, keyColumns []string, keyValues []any) ([]any, error) {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return nil, err
	}
	tree, err := se.IndexManager.OpenIndex(tableName, keyColumns)
	if err != nil {
		return nil, err
	}
	key, err := EncodeKey(schema, keyColumns, keyValues)
	if err != nil {
		return nil, err
	}

	rids, err := tree.GetValue(key)
	if err != nil {
		return nil, err
	}
	if len(rids) == 0 {
		return nil, errors.Wrapf(ErrRowNotFound, "%s %v=%v", tableName, keyColumns, keyValues)
	}
	return se.liveRow(tree, schema, rids[0])
}

// liveRow decodes the row at rid, or ErrRowNotFound when it is tombstoned.
func (se *StorageEngine) liveRow(tree *bplus.BPlusTree, schema types.TableSchema, rid bplus.Rid) ([]any, error) {
	deleted, err := tree.IsDeleted(rid)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, errors.Wrapf(ErrRowNotFound, "%s rid %s is deleted", schema.TableName, rid)
	}
	payload, err := tree.GetRecord(rid)
	if err != nil {
		return nil, err
	}
	return types.DecodeRow(payload, schema.Columns)
}

// ScanTable visits every live row in primary key order.
func (se *StorageEngine) ScanTable(tableName string, fn func(row []any) error) error {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return err
	}
	return se.ScanRange(tableName, primaryKeyColumns(schema), nil, nil, fn)
}

// ScanRange visits live rows with lo <= key <= hi in the order of the index
// over keyColumns. A nil bound is open.
func (se *StorageEngine) ScanRange(tableName string, keyColumns []string, lo, hi []any, fn func(row []any) error) error {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return err
	}
	tree, err := se.IndexManager.OpenIndex(tableName, keyColumns)
	if err != nil {
		return err
	}

	var loKey, hiKey []byte
	if lo != nil {
		if loKey, err = EncodeKey(schema, keyColumns, lo); err != nil {
			return err
		}
	}
	if hi != nil {
		if hiKey, err = EncodeKey(schema, keyColumns, hi); err != nil {
			return err
		}
	}
	if loKey != nil && hiKey != nil && tree.Compare(loKey, hiKey) > 0 {
		return nil
	}

	begin := tree.LeafBegin()
	if loKey != nil {
		if begin, err = tree.LowerBound(loKey); err != nil {
			return err
		}
	}

	var end bplus.Rid
	if hiKey != nil {
		end, err = tree.UpperBound(hiKey)
	} else {
		end, err = tree.LeafEnd()
	}
	if err != nil {
		return err
	}

	for scan := bplus.NewScan(tree, begin, end); !scan.IsEnd(); {
		payload, err := tree.GetRecord(scan.Rid())
		if err != nil {
			return err
		}
		deleted, err := tree.IsDeleted(scan.Rid())
		if err != nil {
			return err
		}
		if !deleted {
			row, err := types.DecodeRow(payload, schema.Columns)
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
		}
		if err := scan.Next(); err != nil {
			return err
		}
	}
	return nil
}
