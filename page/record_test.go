package page

import (
	"errors"
	"testing"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
)

func newTestLeaf(t *testing.T) *LeafView {
	t.Helper()
	cfg := DefaultConfig()
	p := New(cfg, 1)
	return NewLeaf(p)
}

func newTestInternal(t *testing.T) *InternalView {
	t.Helper()
	cfg := DefaultConfig()
	p := New(cfg, 1)
	return NewInternal(p)
}

func col(s string) kv.Column { return kv.Column{kv.StringField(s)} }

func TestLeafInsertSearchOrder(t *testing.T) {
	v := newTestLeaf(t)
	keys := []int64{5, 1, 3, 2, 4}
	for _, k := range keys {
		if _, err := v.Insert(kv.IntKey(k), col("v")); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	if v.NumberOfRecords() != len(keys) {
		t.Fatalf("NumberOfRecords() = %d, want %d", v.NumberOfRecords(), len(keys))
	}

	var got []int64
	for c := v.FirstUserCursor(); !c.IsSupremum(); {
		got = append(got, c.Key().I)
		next, err := v.NextCursor(c)
		if err != nil {
			t.Fatalf("NextCursor: %v", err)
		}
		c = next
	}
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("walked %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLeafInsertDuplicateRejected(t *testing.T) {
	v := newTestLeaf(t)
	if _, err := v.Insert(kv.IntKey(1), col("a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := v.Insert(kv.IntKey(1), col("b")); !errors.Is(err, dberr.KeyAlreadyExist) {
		t.Errorf("duplicate insert: got %v, want KeyAlreadyExist", err)
	}
}

func TestLeafSearchAndRemove(t *testing.T) {
	v := newTestLeaf(t)
	v.Insert(kv.IntKey(1), col("a"))
	v.Insert(kv.IntKey(2), col("b"))
	v.Insert(kv.IntKey(3), col("c"))

	cur, err := v.Search(kv.IntKey(2))
	if err != nil {
		t.Fatalf("Search(2): %v", err)
	}
	value, err := v.Value(cur)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value[0].S != "b" {
		t.Errorf("Value(2) = %q, want %q", value[0].S, "b")
	}

	if err := v.Remove(kv.IntKey(2)); err != nil {
		t.Fatalf("Remove(2): %v", err)
	}
	if v.NumberOfRecords() != 2 {
		t.Errorf("NumberOfRecords() after remove = %d, want 2", v.NumberOfRecords())
	}
	if _, err := v.Search(kv.IntKey(2)); !errors.Is(err, dberr.KeyNotFound) {
		t.Errorf("Search after remove: got %v, want KeyNotFound", err)
	}
	// The remaining keys must still walk in order across the removed gap.
	cur = v.FirstUserCursor()
	if cur.Key().I != 1 {
		t.Fatalf("first key after remove = %d, want 1", cur.Key().I)
	}
	next, err := v.NextCursor(cur)
	if err != nil {
		t.Fatalf("NextCursor: %v", err)
	}
	if next.Key().I != 3 {
		t.Errorf("second key after remove = %d, want 3", next.Key().I)
	}
}

func TestLeafRemoveMissingKey(t *testing.T) {
	v := newTestLeaf(t)
	v.Insert(kv.IntKey(1), col("a"))
	if err := v.Remove(kv.IntKey(99)); !errors.Is(err, dberr.KeyNotFound) {
		t.Errorf("Remove(missing): got %v, want KeyNotFound", err)
	}
}

func TestLeafOverflow(t *testing.T) {
	v := newTestLeaf(t)
	big := make([]byte, PayloadSize(DefaultConfig()))
	var err error
	for i := int64(0); i < 1000; i++ {
		_, err = v.Insert(kv.IntKey(i), kv.Column{kv.StringField(string(big[:8]))})
		if err != nil {
			break
		}
	}
	if !errors.Is(err, dberr.RecoverableOverflow) {
		t.Fatalf("expected RecoverableOverflow once the page filled up, got %v", err)
	}
}

func TestInternalInsertAndChild(t *testing.T) {
	v := newTestInternal(t)
	c1, err := v.Insert(kv.IntKey(10), 100)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	c2, err := v.Insert(kv.IntKey(20), 200)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if v.Child(c1) != 100 {
		t.Errorf("Child(c1) = %d, want 100", v.Child(c1))
	}
	if v.Child(c2) != 200 {
		t.Errorf("Child(c2) = %d, want 200", v.Child(c2))
	}
}

func TestInternalGetCursor(t *testing.T) {
	v := newTestInternal(t)
	v.Insert(kv.IntKey(10), 1)
	v.Insert(kv.IntKey(20), 2)
	v.Insert(kv.IntKey(30), 3)

	cur, err := v.GetCursor(kv.IntKey(25))
	if err != nil {
		t.Fatalf("GetCursor(25): %v", err)
	}
	if cur.Key().I != 20 {
		t.Errorf("GetCursor(25) = %d, want 20 (greatest key <= 25)", cur.Key().I)
	}

	cur, err = v.GetCursor(kv.IntKey(5))
	if err != nil {
		t.Fatalf("GetCursor(5): %v", err)
	}
	if cur.Key().I != 10 {
		t.Errorf("GetCursor(5) (below everything) = %d, want the first record's key 10", cur.Key().I)
	}

	cur, err = v.GetCursor(kv.IntKey(20))
	if err != nil {
		t.Fatalf("GetCursor(20): %v", err)
	}
	if cur.Key().I != 20 {
		t.Errorf("GetCursor(exact match) = %d, want 20", cur.Key().I)
	}
}

func TestMoveNRightLeaf(t *testing.T) {
	left := newTestLeaf(t)
	right := newTestLeaf(t)
	for i := int64(1); i <= 6; i++ {
		left.Insert(kv.IntKey(i), col("v"))
	}
	if err := MoveNRightLeaf(left, right, 3); err != nil {
		t.Fatalf("MoveNRightLeaf: %v", err)
	}
	if left.NumberOfRecords() != 3 || right.NumberOfRecords() != 3 {
		t.Fatalf("after move: left=%d right=%d, want 3/3", left.NumberOfRecords(), right.NumberOfRecords())
	}
	if left.LastUserCursor().Key().I != 3 {
		t.Errorf("left's max key = %d, want 3", left.LastUserCursor().Key().I)
	}
	if right.FirstUserCursor().Key().I != 4 {
		t.Errorf("right's min key = %d, want 4", right.FirstUserCursor().Key().I)
	}
}

func TestMoveNLeftLeaf(t *testing.T) {
	left := newTestLeaf(t)
	right := newTestLeaf(t)
	for i := int64(1); i <= 6; i++ {
		right.Insert(kv.IntKey(i), col("v"))
	}
	if err := MoveNLeftLeaf(right, left, 2); err != nil {
		t.Fatalf("MoveNLeftLeaf: %v", err)
	}
	if left.NumberOfRecords() != 2 || right.NumberOfRecords() != 4 {
		t.Fatalf("after move: left=%d right=%d, want 2/4", left.NumberOfRecords(), right.NumberOfRecords())
	}
	if left.FirstUserCursor().Key().I != 1 || left.LastUserCursor().Key().I != 2 {
		t.Errorf("left keys = [%d,%d], want [1,2]", left.FirstUserCursor().Key().I, left.LastUserCursor().Key().I)
	}
}

func TestUnionLeaf(t *testing.T) {
	dst := newTestLeaf(t)
	src := newTestLeaf(t)
	dst.Insert(kv.IntKey(1), col("a"))
	dst.Insert(kv.IntKey(2), col("b"))
	src.Insert(kv.IntKey(3), col("c"))
	src.Insert(kv.IntKey(4), col("d"))

	if err := UnionLeaf(dst, src); err != nil {
		t.Fatalf("UnionLeaf: %v", err)
	}
	if dst.NumberOfRecords() != 4 {
		t.Fatalf("dst has %d records, want 4", dst.NumberOfRecords())
	}
	if !src.IsEmpty() {
		t.Errorf("src should be empty after union")
	}
	var keys []int64
	for c := dst.FirstUserCursor(); !c.IsSupremum(); {
		keys = append(keys, c.Key().I)
		c, _ = dst.NextCursor(c)
	}
	want := []int64{1, 2, 3, 4}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, keys[i], want[i])
		}
	}
}

func TestUnionInternalReportsChildMoves(t *testing.T) {
	dst := newTestInternal(t)
	src := newTestInternal(t)
	dst.Insert(kv.IntKey(1), 10)
	src.Insert(kv.IntKey(2), 20)
	src.Insert(kv.IntKey(3), 30)

	moved, err := UnionInternal(dst, src)
	if err != nil {
		t.Fatalf("UnionInternal: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("UnionInternal reported %d moves, want 2", len(moved))
	}
	for _, m := range moved {
		c, err := dst.CursorAt(m.NewParentOffset)
		if err != nil {
			t.Fatalf("CursorAt(%d): %v", m.NewParentOffset, err)
		}
		if dst.Child(c) != m.ChildPageID {
			t.Errorf("child at reported offset is %d, want %d", dst.Child(c), m.ChildPageID)
		}
	}
}

func TestCompactLeafDropsTombstones(t *testing.T) {
	src := newTestLeaf(t)
	src.Insert(kv.IntKey(1), col("a"))
	src.Insert(kv.IntKey(2), col("b"))
	src.Insert(kv.IntKey(3), col("c"))
	src.Remove(kv.IntKey(2))

	fresh := newTestLeaf(t)
	if err := CompactLeaf(fresh, src); err != nil {
		t.Fatalf("CompactLeaf: %v", err)
	}
	if fresh.NumberOfRecords() != 2 {
		t.Fatalf("compacted leaf has %d records, want 2", fresh.NumberOfRecords())
	}
	if _, err := fresh.Search(kv.IntKey(2)); !errors.Is(err, dberr.KeyNotFound) {
		t.Errorf("deleted key survived compaction: %v", err)
	}
}
