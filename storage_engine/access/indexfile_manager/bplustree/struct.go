// Structure of the B+ tree index
/*
Tree
 ├── Internal Node (n keys + n child pointers, key[0] unused for routing)
 │      └── Child Internal Nodes ...
 │             └── Leaf Nodes (directory of key -> record, prev/next links)

- keys: sorted ascending order, unique
- internal nodes: len(children) == len(keys)
- leaf nodes: directory entries point at fixed length records in the same page
- leaf nodes doubly linked for range scans, first/last leaf kept in page 0
- all leaf nodes at same depth
- records are never removed, a delete only sets the tombstone bit

*/
package bplus

import (
	"IndexDB/storage_engine/bufferpool"
	"sync"

	"go.uber.org/zap"
)

// Operation selects the latching mode of a traversal.
type Operation int

const (
	OpFind Operation = iota
	OpInsert
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpFind:
		return "find"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type BPlusTree struct {
	fileID     uint32                 // DiskManager file ID for this index
	bufferPool *bufferpool.BufferPool // shared buffer pool
	geo        *geometry
	cmp        KeyComparator

	// rootLatch is the process wide root mutex: it guards hdr.RootPage and
	// changes to the top of the tree.
	rootLatch sync.Mutex

	// hdrMu guards the mutable fields of hdr (page count, leaf ends,
	// record id counter). Geometry fields never change after open.
	hdrMu sync.Mutex
	hdr   *IndexFileHeader

	logger *zap.Logger
}
