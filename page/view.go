package page

import (
	"encoding/binary"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
)

// LeafView is C4's node view over a leaf page: every user record's value is
// a kv.Column. Grounded on original_source/storage/include/index/index_node.h
// (LeafNode) and record.h.
type LeafView struct {
	page *Page
	list *recordList
}

// InternalView is C4's node view over an internal page: every user record's
// value is the page id of the child subtree holding keys >= record key up
// to (but not including) the next record's key. Grounded on the same
// headers' InternalNode.
type InternalView struct {
	page *Page
	list *recordList
}

// NewLeaf initializes an empty leaf page's sentinel list in place.
func NewLeaf(p *Page) *LeafView {
	p.Header.IsLeaf = true
	v := &LeafView{page: p, list: newRecordList(p)}
	v.list.initSentinels()
	return v
}

// NewInternal initializes an empty internal page's sentinel list in place.
func NewInternal(p *Page) *InternalView {
	p.Header.IsLeaf = false
	v := &InternalView{page: p, list: newRecordList(p)}
	v.list.initSentinels()
	return v
}

// OpenLeaf wraps an already-initialized leaf page for record access.
func OpenLeaf(p *Page) *LeafView { return &LeafView{page: p, list: newRecordList(p)} }

// OpenInternal wraps an already-initialized internal page for record
// access.
func OpenInternal(p *Page) *InternalView { return &InternalView{page: p, list: newRecordList(p)} }

func (v *LeafView) Page() *Page { return v.page }
func (v *InternalView) Page() *Page { return v.page }

func (v *LeafView) NumberOfRecords() int { return int(v.page.Header.NumberOfRecords) }
func (v *InternalView) NumberOfRecords() int { return int(v.page.Header.NumberOfRecords) }

func (v *LeafView) IsEmpty() bool { return v.list.FirstUserCursor().IsSupremum() }
func (v *InternalView) IsEmpty() bool { return v.list.FirstUserCursor().IsSupremum() }

func (v *LeafView) FirstUserCursor() Cursor { return v.list.FirstUserCursor() }
func (v *LeafView) LastUserCursor() Cursor  { return v.list.LastUserCursor() }
func (v *InternalView) FirstUserCursor() Cursor { return v.list.FirstUserCursor() }
func (v *InternalView) LastUserCursor() Cursor  { return v.list.LastUserCursor() }

func (v *LeafView) NextCursor(c Cursor) (Cursor, error) { return v.list.NextCursor(c) }
func (v *LeafView) PrevCursor(c Cursor) (Cursor, error) { return v.list.PrevCursor(c) }
func (v *InternalView) NextCursor(c Cursor) (Cursor, error) { return v.list.NextCursor(c) }
func (v *InternalView) PrevCursor(c Cursor) (Cursor, error) { return v.list.PrevCursor(c) }

// GetCursor returns the cursor with key == key, or the greatest key < key.
func (v *InternalView) GetCursor(key kv.Key) (Cursor, error) { return v.list.GetCursor(key) }

// CursorAt resolves the record at a known byte offset within the page,
// e.g. a child's ParentRecordOff back-pointer into its parent.
func (v *InternalView) CursorAt(offset int) (Cursor, error) { return v.list.cursorAt(offset) }

// Value decodes the Column carried by c. c must have come from this view.
func (v *LeafView) Value(c Cursor) (kv.Column, error) {
	col, _, err := kv.DecodeColumn(v.list.valueBytes(c.rec))
	return col, err
}

// Child decodes the child page id carried by c. c must have come from this
// view.
func (v *InternalView) Child(c Cursor) uint32 {
	return binary.LittleEndian.Uint32(v.list.valueBytes(c.rec))
}

// Search returns the cursor whose key exactly matches key, or KeyNotFound.
func (v *LeafView) Search(key kv.Key) (Cursor, error) { return v.list.SearchRecord(key) }

// GetCursor returns the cursor with key == key, or the greatest key < key.
func (v *LeafView) GetCursor(key kv.Key) (Cursor, error) { return v.list.GetCursor(key) }

// Insert adds (key, value) in sorted position. Returns KeyAlreadyExist if
// key is present, RecoverableOverflow if the page has no room (the caller
// is expected to split and retry).
func (v *LeafView) Insert(key kv.Key, value kv.Column) (Cursor, error) {
	insertionPoint, exists, err := v.list.InsertionPoint(key)
	if err != nil {
		return Cursor{}, err
	}
	if exists {
		return Cursor{}, dberr.Errorf(dberr.KeyAlreadyExist, "key %s already exists", key)
	}
	return v.list.insertBefore(insertionPoint, key, kv.AppendColumn(nil, value))
}

// Remove lazy-deletes the record with the given key. KeyNotFound if absent.
func (v *LeafView) Remove(key kv.Key) error { return v.list.removeRecord(key) }

// Insert adds a (key, childPageID) record in sorted position.
func (v *InternalView) Insert(key kv.Key, childPageID uint32) (Cursor, error) {
	insertionPoint, exists, err := v.list.InsertionPoint(key)
	if err != nil {
		return Cursor{}, err
	}
	if exists {
		return Cursor{}, dberr.Errorf(dberr.KeyAlreadyExist, "key %s already exists", key)
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, childPageID)
	return v.list.insertBefore(insertionPoint, key, buf)
}

// Remove lazy-deletes the record with the given key.
func (v *InternalView) Remove(key kv.Key) error { return v.list.removeRecord(key) }

// PushBack/PushFront/PopBack/PopFront are the primitives node_split,
// node_union and node_move are built from, per spec.md §4.4.

func (v *LeafView) PushBack(key kv.Key, value kv.Column) (Cursor, error) {
	return v.list.pushBack(key, kv.AppendColumn(nil, value))
}
func (v *LeafView) PushFront(key kv.Key, value kv.Column) (Cursor, error) {
	return v.list.pushFront(key, kv.AppendColumn(nil, value))
}
func (v *LeafView) PopBack() (kv.Key, kv.Column, error) {
	rec, err := v.list.popBack()
	if err != nil {
		return kv.Key{}, nil, err
	}
	col, _, err := kv.DecodeColumn(v.list.valueBytes(rec))
	return rec.Key, col, err
}
func (v *LeafView) PopFront() (kv.Key, kv.Column, error) {
	rec, err := v.list.popFront()
	if err != nil {
		return kv.Key{}, nil, err
	}
	col, _, err := kv.DecodeColumn(v.list.valueBytes(rec))
	return rec.Key, col, err
}

func (v *InternalView) PushBack(key kv.Key, child uint32) (Cursor, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, child)
	return v.list.pushBack(key, buf)
}
func (v *InternalView) PushFront(key kv.Key, child uint32) (Cursor, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, child)
	return v.list.pushFront(key, buf)
}
func (v *InternalView) PopBack() (kv.Key, uint32, error) {
	rec, err := v.list.popBack()
	if err != nil {
		return kv.Key{}, 0, err
	}
	return rec.Key, binary.LittleEndian.Uint32(v.list.valueBytes(rec)), nil
}
func (v *InternalView) PopFront() (kv.Key, uint32, error) {
	rec, err := v.list.popFront()
	if err != nil {
		return kv.Key{}, 0, err
	}
	return rec.Key, binary.LittleEndian.Uint32(v.list.valueBytes(rec)), nil
}

// MoveNRightLeaf moves the n rightmost user records from src into the front
// of dst, preserving ascending order (pop_back followed by push_front on
// each, per spec.md §4.4's node_split).
func MoveNRightLeaf(src, dst *LeafView, n int) error {
	for i := 0; i < n; i++ {
		key, value, err := src.PopBack()
		if err != nil {
			return err
		}
		if _, err := dst.PushFront(key, value); err != nil {
			return err
		}
	}
	return nil
}

// ChildMove describes one internal record's new home after a split, union,
// or compaction: the btree layer uses it to retarget the moved child page's
// ParentPage/ParentRecordOff back-pointer in O(1), per spec.md §4.5's
// "each internal record names the child responsible for it".
type ChildMove struct {
	ChildPageID     uint32
	NewParentOffset int
}

// MoveNRightInternal is MoveNRightLeaf for internal nodes; it returns each
// moved child's new offset within dst so the caller can retarget its
// parent back-pointer.
func MoveNRightInternal(src, dst *InternalView, n int) ([]ChildMove, error) {
	moved := make([]ChildMove, 0, n)
	for i := 0; i < n; i++ {
		key, child, err := src.PopBack()
		if err != nil {
			return nil, err
		}
		c, err := dst.PushFront(key, child)
		if err != nil {
			return nil, err
		}
		moved = append(moved, ChildMove{ChildPageID: child, NewParentOffset: c.rec.Offset})
	}
	return moved, nil
}

// MoveNLeftLeaf moves the n leftmost user records from src onto the back
// of dst, preserving ascending order — the mirror of MoveNRightLeaf, used
// to borrow from a right sibling.
func MoveNLeftLeaf(src, dst *LeafView, n int) error {
	for i := 0; i < n; i++ {
		key, value, err := src.PopFront()
		if err != nil {
			return err
		}
		if _, err := dst.PushBack(key, value); err != nil {
			return err
		}
	}
	return nil
}

// MoveNLeftInternal is MoveNLeftLeaf for internal nodes; it returns each
// moved child's new offset within dst so the caller can retarget its
// parent back-pointer.
func MoveNLeftInternal(src, dst *InternalView, n int) ([]ChildMove, error) {
	moved := make([]ChildMove, 0, n)
	for i := 0; i < n; i++ {
		key, child, err := src.PopFront()
		if err != nil {
			return nil, err
		}
		c, err := dst.PushBack(key, child)
		if err != nil {
			return nil, err
		}
		moved = append(moved, ChildMove{ChildPageID: child, NewParentOffset: c.rec.Offset})
	}
	return moved, nil
}

// UnionLeaf appends every user record of src onto the back of dst in
// order, per spec.md §4.4's node_union.
func UnionLeaf(dst, src *LeafView) error {
	for {
		key, value, err := src.PopFront()
		if err != nil {
			if err == dberr.PopEmptyNode {
				return nil
			}
			return err
		}
		if _, err := dst.PushBack(key, value); err != nil {
			return err
		}
	}
}

// UnionInternal is UnionLeaf for internal nodes, returning each moved
// child's new offset within dst so the caller can retarget its parent
// back-pointer.
func UnionInternal(dst, src *InternalView) ([]ChildMove, error) {
	var moved []ChildMove
	for {
		key, child, err := src.PopFront()
		if err != nil {
			if err == dberr.PopEmptyNode {
				return moved, nil
			}
			return nil, err
		}
		c, err := dst.PushBack(key, child)
		if err != nil {
			return nil, err
		}
		moved = append(moved, ChildMove{ChildPageID: child, NewParentOffset: c.rec.Offset})
	}
}

// CompactLeaf rewrites every live record of src into fresh, a freshly
// initialized empty leaf page, in order. This reclaims the space tombstoned
// records were still holding, per spec.md §4.4's node_move.
func CompactLeaf(fresh, src *LeafView) error {
	for c := src.FirstUserCursor(); !c.IsSupremum(); {
		value, err := src.Value(c)
		if err != nil {
			return err
		}
		if _, err := fresh.PushBack(c.Key(), value); err != nil {
			return err
		}
		next, err := src.NextCursor(c)
		if err != nil {
			return err
		}
		c = next
	}
	return nil
}

// CompactInternal is CompactLeaf for internal nodes; it returns each
// surviving child's new offset within fresh so the caller can retarget its
// parent back-pointer (fresh may be a different physical page than src).
func CompactInternal(fresh, src *InternalView) ([]ChildMove, error) {
	var moved []ChildMove
	for c := src.FirstUserCursor(); !c.IsSupremum(); {
		child := src.Child(c)
		nc, err := fresh.PushBack(c.Key(), child)
		if err != nil {
			return nil, err
		}
		moved = append(moved, ChildMove{ChildPageID: child, NewParentOffset: nc.rec.Offset})
		next, err := src.NextCursor(c)
		if err != nil {
			return nil, err
		}
		c = next
	}
	return moved, nil
}

// scratchPage builds an empty page with hdr's sibling/parent linkage but a
// fresh payload buffer, for CompactLeafInPlace/CompactInternalInPlace to
// stage a rebuild into before overwriting the original in one shot.
func scratchPage(hdr Header, isLeaf bool, payloadLen int) *Page {
	h := hdr
	h.IsLeaf = isLeaf
	return &Page{Header: h, Payload: make([]byte, payloadLen)}
}

// CompactLeafInPlace rewrites v's own live records through a scratch page
// and copies the result back over v's payload, resetting the bump
// allocator's high-water mark to the space the surviving records actually
// need. Per spec.md §4.4's node_move, applied to a node's own page rather
// than a fresh one: PopBack/PopFront (used by split and borrow) unlink
// records without reclaiming their bytes, so a page that has shed half its
// records by popping still reports no free space until it is compacted.
func CompactLeafInPlace(v *LeafView) error {
	scratch := scratchPage(v.page.Header, true, len(v.page.Payload))
	fresh := NewLeaf(scratch)
	if err := CompactLeaf(fresh, v); err != nil {
		return err
	}
	copy(v.page.Payload, scratch.Payload)
	v.page.Header.NumberOfRecords = scratch.Header.NumberOfRecords
	v.page.Header.LastInsertedOff = scratch.Header.LastInsertedOff
	return nil
}

// CompactInternalInPlace is CompactLeafInPlace for internal nodes. It
// returns every surviving child's new offset within v (compaction can move
// a record that never left the page), so the caller must retarget all of
// them, not just the ones a split or borrow moved across pages.
func CompactInternalInPlace(v *InternalView) ([]ChildMove, error) {
	scratch := scratchPage(v.page.Header, false, len(v.page.Payload))
	fresh := NewInternal(scratch)
	moved, err := CompactInternal(fresh, v)
	if err != nil {
		return nil, err
	}
	copy(v.page.Payload, scratch.Payload)
	v.page.Header.NumberOfRecords = scratch.Header.NumberOfRecords
	v.page.Header.LastInsertedOff = scratch.Header.LastInsertedOff
	return moved, nil
}
