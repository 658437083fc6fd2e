// Seed program: creates a table in a database root and bulk-inserts rows in
// shuffled key order, then reports the primary index height and buffer pool
// stats.
// Run: go run ./cmd/seed -root databases/demo -rows 10000
// Then inspect: go run ./cmd/inspect databases/demo/indexes/students_id.idx
package main

import (
	storageengine "IndexDB/storage_engine"
	indexfile "IndexDB/storage_engine/access/indexfile_manager"
	"IndexDB/types"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"
)

func main() {
	root := flag.String("root", "databases/demo", "database root directory")
	rows := flag.Int("rows", 1000, "number of rows to insert")
	order := flag.Int("order", 0, "tree order override, 0 derives it from the page size")
	leaf := flag.Int("leaf", 0, "records per leaf override, 0 derives it from the page size")
	frames := flag.Int("frames", 256, "buffer pool frames")
	seed := flag.Int64("seed", 1, "shuffle seed")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *root, *rows, *frames, *seed, indexfile.CreateOptions{
		TreeOrder:         *order,
		MaxRecordsPerLeaf: *leaf,
	}); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger, root string, rows, frames int, seed int64, opts indexfile.CreateOptions) error {
	engineOpts := storageengine.DefaultOptions()
	engineOpts.DbRoot = root
	engineOpts.BufferPoolSize = frames
	engineOpts.Logger = logger

	se, err := storageengine.NewStorageEngine(engineOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := se.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}()

	schema := types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: types.TypeInt, IsPrimaryKey: true},
			{Name: "name", Type: types.TypeString, Len: 16},
			{Name: "age", Type: types.TypeInt},
		},
	}
	if !se.CatalogManager.TableExists(schema.TableName) {
		if err := se.CreateTable(schema, opts); err != nil {
			return err
		}
	}

	ids := rand.New(rand.NewSource(seed)).Perm(rows)
	inserted := 0
	for _, id := range ids {
		row := []any{int32(id), fmt.Sprintf("student-%d", id), int32(18 + id%10)}
		if _, err := se.InsertRow(schema.TableName, row); err != nil {
			logger.Warn("insert skipped", zap.Int("id", id), zap.Error(err))
			continue
		}
		inserted++
	}

	if err := se.Checkpoint(); err != nil {
		return err
	}

	tree, err := se.IndexManager.OpenIndex(schema.TableName, []string{"id"})
	if err != nil {
		return err
	}
	height, err := tree.Height()
	if err != nil {
		return err
	}
	if err := tree.CheckIntegrity(); err != nil {
		return err
	}

	stats := se.BufferPool.GetStats()
	hdr := tree.Header()
	fmt.Printf("inserted %d/%d rows into %s\n", inserted, rows, schema.TableName)
	fmt.Printf("index: order=%d max_records=%d pages=%d height=%d\n",
		hdr.TreeOrder, hdr.MaxRecordsPerLeaf, hdr.NumPages, height)
	fmt.Printf("buffer pool: hits=%d misses=%d hit_rate=%.2f\n", stats.Hits, stats.Misses, stats.HitRate)
	return nil
}
