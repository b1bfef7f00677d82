// Inspect a minidb B+tree index file.
// Usage: go run ./cmd/inspect <path-to-index-file>
package main

import (
	"fmt"
	"os"

	"github.com/ffuko/minidb/btree"
	"github.com/ffuko/minidb/dblog"
	"github.com/ffuko/minidb/page"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <index-file>\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]

	logger, err := dblog.New(dblog.Config{Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	idx, err := btree.OpenIndex(path, page.DefaultConfig(), 64, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	if err := idx.Inspect(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
