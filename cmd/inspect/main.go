// Inspect an index file (.idx): prints the header and every node level by level.
// Usage: go run ./cmd/inspect <path-to-.idx>
// Example: go run ./cmd/inspect databases/demo/indexes/students_id.idx
package main

import (
	"fmt"
	"os"

	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <index.idx>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s databases/demo/indexes/students_id.idx\n", os.Args[0])
		os.Exit(1)
	}
	if err := bplus.InspectIndexFileTo(os.Stdout, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
