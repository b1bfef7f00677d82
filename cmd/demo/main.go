// Demo builds a small student index on disk, inserts, searches, removes,
// and traverses it end to end. Usage: go run ./cmd/demo <path-to-index-file>
package main

import (
	"fmt"
	"os"

	"github.com/ffuko/minidb/btree"
	"github.com/ffuko/minidb/dblog"
	"github.com/ffuko/minidb/kv"
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

	keySchema := kv.KeySchema{Name: "student_id", Tag: kv.TagString}
	fieldSchema := []kv.FieldSchema{
		{Name: "name", Tag: kv.TagString},
		{Name: "grade", Tag: kv.TagString},
	}

	idx, err := btree.MakeIndex(path, page.DefaultConfig(), 16, 0, true, keySchema, fieldSchema, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	students := []struct {
		id, name, grade string
	}{
		{"S001", "Alice Johnson", "A"},
		{"S002", "Bob Smith", "B"},
		{"S003", "Charlie Brown", "A"},
		{"S004", "Diana Prince", "C"},
		{"S005", "Eve Wilson", "B"},
	}

	fmt.Println("=== inserting students ===")
	for _, s := range students {
		value := kv.Column{kv.StringField(s.name), kv.StringField(s.grade)}
		if err := idx.Insert(kv.StringKey(s.id), value); err != nil {
			fmt.Fprintf(os.Stderr, "insert %s: %v\n", s.id, err)
			continue
		}
		fmt.Printf("inserted %s -> %s (%s)\n", s.id, s.name, s.grade)
	}

	fmt.Println("\n=== searching students ===")
	for _, id := range []string{"S001", "S003", "S999"} {
		value, err := idx.Search(kv.StringKey(id))
		if err != nil {
			fmt.Printf("%s: not found (%v)\n", id, err)
			continue
		}
		fmt.Printf("%s: %s (%s)\n", id, value[0].S, value[1].S)
	}

	fmt.Println("\n=== removing S002 ===")
	if err := idx.Remove(kv.StringKey("S002")); err != nil {
		fmt.Fprintf(os.Stderr, "remove S002: %v\n", err)
	}

	fmt.Println("\n=== traversal order ===")
	err = idx.Traverse(func(key kv.Key, value kv.Column) error {
		fmt.Printf("%s -> %s (%s)\n", key, value[0].S, value[1].S)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "traverse: %v\n", err)
	}

	fmt.Println("\n=== stats ===")
	fmt.Printf("depth=%d records=%d\n", idx.Depth(), idx.NumberOfRecords())
	fmt.Printf("pool: %s\n", idx.PoolStats())
}
