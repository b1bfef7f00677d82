package btree

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ffuko/minidb/kv"
)

func TestInspectWritesLevelsAndPages(t *testing.T) {
	idx := newTestIndex(t, "inspect.idx")
	const n = 200
	for i := int64(0); i < n; i++ {
		if err := idx.Insert(kv.IntKey(i), label(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if idx.Depth() < 2 {
		t.Fatalf("Depth() = %d, want >= 2 so Inspect walks more than one level", idx.Depth())
	}

	var buf bytes.Buffer
	if err := idx.Inspect(&buf); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "level 0:") {
		t.Errorf("Inspect output missing root level header:\n%s", out)
	}
	if !strings.Contains(out, "LEAF") {
		t.Errorf("Inspect output has no LEAF lines:\n%s", out)
	}
	if !strings.Contains(out, "INTERNAL") {
		t.Errorf("Inspect output has no INTERNAL lines:\n%s", out)
	}
	if !strings.Contains(out, "pool:") {
		t.Errorf("Inspect output missing pool stats line:\n%s", out)
	}
}

func TestInspectSingleLeafRoot(t *testing.T) {
	idx := newTestIndex(t, "inspect_leaf.idx")
	idx.Insert(kv.IntKey(1), label(1))
	idx.Insert(kv.IntKey(2), label(2))

	var buf bytes.Buffer
	if err := idx.Inspect(&buf); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "LEAF") {
		t.Errorf("expected a LEAF line for a single-page tree:\n%s", out)
	}
	if strings.Contains(out, "level 1:") {
		t.Errorf("a one-level tree should not print a second level:\n%s", out)
	}
}
