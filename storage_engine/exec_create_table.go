package storageengine

import (
	indexfile "IndexDB/storage_engine/access/indexfile_manager"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
)

/*
This file contains the Create Table process
The table schema is persisted by the catalog manager (tables/<table>_schema.json),
then the primary index over the primary key columns is created. A table
without a primary key cannot be stored: rows only live in indexes.
*/

func (se *StorageEngine) CreateTable(schema types.TableSchema, opts indexfile.CreateOptions) error {
	pkCols := primaryKeyColumns(schema)
	if len(pkCols) == 0 {
		return errors.Newf("table '%s' has no primary key column", schema.TableName)
	}

	if err := se.CatalogManager.RegisterTable(schema); err != nil {
		return err
	}

	if err := se.IndexManager.CreateIndex(schema.TableName, pkCols, opts); err != nil {
		if rerr := se.CatalogManager.UnregisterTable(schema.TableName); rerr != nil {
			return errors.WithSecondaryError(
				errors.Wrap(err, "failed to create primary index"), rerr)
		}
		return errors.Wrap(err, "failed to create primary index")
	}
	return nil
}

// CreateIndex adds a secondary index over keyColumns. It must be created
// before rows are inserted; existing rows are not back-filled.
func (se *StorageEngine) CreateIndex(tableName string, keyColumns []string, opts indexfile.CreateOptions) error {
	if len(se.CatalogManager.IndexesOf(tableName)) > 0 {
		primary, err := se.primaryIndex(tableName)
		if err != nil {
			return err
		}
		end, err := primary.LeafEnd()
		if err != nil {
			return err
		}
		if !primary.LeafBegin().SamePosition(end) {
			return errors.Newf("table '%s' already has rows, cannot add index on %v", tableName, keyColumns)
		}
	}
	return se.IndexManager.CreateIndex(tableName, keyColumns, opts)
}

// DropIndex closes and destroys a secondary index.
func (se *StorageEngine) DropIndex(tableName string, keyColumns []string) error {
	schema, err := se.CatalogManager.GetTableSchema(tableName)
	if err != nil {
		return err
	}
	if se.IndexManager.GetIndexName(tableName, keyColumns) ==
		se.IndexManager.GetIndexName(tableName, primaryKeyColumns(schema)) {
		return errors.Newf("cannot drop the primary index of '%s'", tableName)
	}

	if err := se.IndexManager.CloseIndex(tableName, keyColumns); err != nil {
		return err
	}
	return se.IndexManager.DestroyIndex(tableName, keyColumns)
}

// DropTable destroys every index of the table and forgets its schema.
func (se *StorageEngine) DropTable(tableName string) error {
	for _, name := range se.CatalogManager.IndexesOf(tableName) {
		entry, _ := se.CatalogManager.GetIndex(name)
		if err := se.IndexManager.CloseIndex(tableName, entry.KeyColumns); err != nil {
			return err
		}
		if err := se.IndexManager.DestroyIndex(tableName, entry.KeyColumns); err != nil {
			return err
		}
	}
	return se.CatalogManager.UnregisterTable(tableName)
}
