package btree

import (
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
)

// Cursor names a single record's position within the tree, stable across
// Next calls by re-resolving through the leaf sibling chain rather than
// holding a pin open between calls.
type Cursor struct {
	idx    *Index
	pageID uint32
	cur    page.Cursor
	done   bool
}

// GetCursor returns a Cursor positioned at key if present, else at the
// greatest key less than it, or at the first record of its leaf when key
// precedes every key there, per spec.md §4.5's get_cursor.
func (idx *Index) GetCursor(key kv.Key) (*Cursor, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	leaf, err := idx.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	view := page.OpenLeaf(leaf.Page)
	c, err := view.GetCursor(key)
	if err != nil {
		idx.pool.Unpin(leaf.PageID(), false)
		return nil, err
	}
	if err := idx.pool.Unpin(leaf.PageID(), false); err != nil {
		return nil, err
	}
	return &Cursor{idx: idx, pageID: leaf.PageID(), cur: c, done: c.IsInfimum() || c.IsSupremum()}, nil
}

// leftmostLeaf returns the page id of the leftmost leaf in the tree and a
// cursor at its first user record. No page is left pinned on return.
func (idx *Index) leftmostLeaf() (uint32, page.Cursor, error) {
	pageID := idx.meta.RootPageID
	for {
		f, err := idx.pool.Fetch(pageID)
		if err != nil {
			return 0, page.Cursor{}, err
		}
		if f.Page.Header.IsLeaf {
			view := page.OpenLeaf(f.Page)
			c := view.FirstUserCursor()
			if err := idx.pool.Unpin(pageID, false); err != nil {
				return 0, page.Cursor{}, err
			}
			return pageID, c, nil
		}
		view := page.OpenInternal(f.Page)
		first := view.FirstUserCursor()
		childID := view.Child(first)
		if err := idx.pool.Unpin(pageID, false); err != nil {
			return 0, page.Cursor{}, err
		}
		pageID = childID
	}
}

// Key returns the record key the cursor is positioned at.
func (c *Cursor) Key() kv.Key { return c.cur.Key() }

// Valid reports whether the cursor names a real record (not exhausted).
func (c *Cursor) Valid() bool { return !c.done }

// Value decodes the record's value column.
func (c *Cursor) Value() (kv.Column, error) {
	idx := c.idx
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.pool.Fetch(c.pageID)
	if err != nil {
		return nil, err
	}
	defer idx.pool.Unpin(c.pageID, false)
	return page.OpenLeaf(f.Page).Value(c.cur)
}

// Next advances the cursor to the following record, crossing into the
// sibling leaf via its NextPage link when the current leaf is exhausted.
// Returns false once the end of the tree is reached.
func (c *Cursor) Next() (bool, error) {
	idx := c.idx
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := idx.pool.Fetch(c.pageID)
	if err != nil {
		return false, err
	}
	view := page.OpenLeaf(f.Page)
	next, err := view.NextCursor(c.cur)
	if err != nil {
		idx.pool.Unpin(c.pageID, false)
		return false, err
	}
	if !next.IsSupremum() {
		if err := idx.pool.Unpin(c.pageID, false); err != nil {
			return false, err
		}
		c.cur = next
		return true, nil
	}

	nextLeafID := f.Page.Header.NextPage
	if err := idx.pool.Unpin(c.pageID, false); err != nil {
		return false, err
	}
	if nextLeafID == page.NoPage {
		c.done = true
		return false, nil
	}
	nf, err := idx.pool.Fetch(nextLeafID)
	if err != nil {
		return false, err
	}
	first := page.OpenLeaf(nf.Page).FirstUserCursor()
	if err := idx.pool.Unpin(nextLeafID, false); err != nil {
		return false, err
	}
	c.pageID = nextLeafID
	c.cur = first
	if first.IsSupremum() {
		c.done = true
		return false, nil
	}
	return true, nil
}

// Traverse calls visit for every live record in ascending key order,
// per spec.md §4.5's traverse. It stops and returns visit's error if any.
func (idx *Index) Traverse(visit func(key kv.Key, value kv.Column) error) error {
	idx.mu.Lock()
	pageID, cur, err := idx.leftmostLeaf()
	idx.mu.Unlock()
	if err != nil {
		return err
	}
	c := &Cursor{idx: idx, pageID: pageID, cur: cur, done: cur.IsSupremum()}
	for !c.done {
		value, err := c.Value()
		if err != nil {
			return err
		}
		if err := visit(c.Key(), value); err != nil {
			return err
		}
		if _, err := c.Next(); err != nil {
			return err
		}
	}
	return nil
}
