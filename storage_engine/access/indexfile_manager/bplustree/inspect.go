// Index file inspection for debugging.
// Use InspectIndexFileTo(w, path) to print a human-readable dump of an index file (.idx).

package bplus

import (
	"IndexDB/storage_engine/bufferpool"
	diskmanager "IndexDB/storage_engine/disk_manager"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// InspectIndexFile opens an index file on its own and prints its structure to stdout.
func InspectIndexFile(indexPath string) error {
	return InspectIndexFileTo(os.Stdout, indexPath)
}

// InspectIndexFileTo opens an index file outside of any engine and dumps it to w.
func InspectIndexFileTo(w io.Writer, indexPath string) error {
	dm, err := diskmanager.NewDiskManager(0, zap.NewNop())
	if err != nil {
		return err
	}
	defer dm.Close()

	fileID, err := dm.OpenFile(indexPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", indexPath)
	}

	bp := bufferpool.NewBufferPool(64, dm, zap.NewNop())
	tree, err := OpenBPlusTree(fileID, bp, zap.NewNop())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Index file: %s\n", indexPath)
	return tree.Dump(w)
}

// Dump writes the header and every node, level by level, to w: internal
// nodes with their separators and children, leaves with key -> record id
// and the tombstone mark.
func (t *BPlusTree) Dump(w io.Writer) error {
	hdr := t.Header()
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }
	pln := func(s string) { fmt.Fprintln(w, s) }

	p("  Page 0 (header): root=%d pages=%d keyLen=%d order=%d maxRecords=%d recordLen=%d\n",
		hdr.RootPage, hdr.NumPages, hdr.KeyLen, hdr.TreeOrder, hdr.MaxRecordsPerLeaf, hdr.RecordLen)
	p("  leaves: first=%d last=%d nextRecordID=%d\n", hdr.FirstLeaf, hdr.LastLeaf, hdr.NextRecordID)

	pln("\n  Nodes (BFS):")
	pln("  ---")

	queue := []int32{hdr.RootPage}
	level := 0
	for len(queue) > 0 {
		size := len(queue)
		p("  Level %d:\n", level)
		for _, pageNo := range queue[:size] {
			n, err := t.fetchNode(pageNo, latchRead)
			if err != nil {
				p("    [page %d] read error: %v\n", pageNo, err)
				continue
			}

			switch node := n.(type) {
			case *InternalNode:
				keys := make([]string, node.Size())
				children := make([]int32, node.Size())
				for i := range keys {
					keys[i] = FormatKey(hdr.Columns, node.KeyAt(i))
					children[i] = node.ChildAt(i)
				}
				p("    [page %d] INTERNAL parent=%d keys=%v children=%v\n", pageNo, node.Parent(), keys, children)
				queue = append(queue, children...)
			case *LeafNode:
				p("    [page %d] LEAF parent=%d records=%d live=%d prev=%d next=%d\n",
					pageNo, node.Parent(), node.Size(), node.NumRecords(), node.Prev(), node.Next())
				for i := 0; i < node.Size(); i++ {
					mark := ""
					if node.IsDeletedAt(i) {
						mark = " (deleted)"
					}
					p("      %s -> rid=%d%s\n", FormatKey(hdr.Columns, node.KeyAt(i)), node.RecordIDAt(i), mark)
				}
			}
			t.releaseNode(n)
		}
		pln("  ---")
		queue = queue[size:]
		level++
	}
	return nil
}
