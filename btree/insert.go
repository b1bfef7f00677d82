package btree

import (
	"github.com/ffuko/minidb/bufferpool"
	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
)

// Insert adds (key, value) to the tree. KeyAlreadyExist if key is present.
// Grounded on bplustree/insertion.go's Insertion: find the responsible
// leaf, insert, and split-and-propagate on overflow instead of on a fixed
// key-count threshold, since records here are variable length.
func (idx *Index) Insert(key kv.Key, value kv.Column) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := kv.Validate(idx.meta.FieldSchema, value); err != nil {
		return err
	}

	leaf, err := idx.descendToLeaf(key)
	if err != nil {
		return err
	}

	leafView := page.OpenLeaf(leaf.Page)
	_, err = leafView.Insert(key, value)
	if isOverflow(err) {
		// Step 4's compaction path: tombstones may have left enough live
		// space for this insert even though the bump allocator reports
		// none. Reclaim it and retry once before resorting to a split.
		if err := page.CompactLeafInPlace(leafView); err != nil {
			idx.pool.Unpin(leaf.PageID(), false)
			return err
		}
		_, err = leafView.Insert(key, value)
	}
	if err == nil {
		if err := idx.pool.Unpin(leaf.PageID(), true); err != nil {
			return err
		}
		idx.meta.NumberOfRecords++
		return idx.flushMeta()
	} else if !isOverflow(err) {
		idx.pool.Unpin(leaf.PageID(), false)
		return err
	}

	sepKey, right, err := idx.splitLeaf(leaf)
	if err != nil {
		idx.pool.Unpin(leaf.PageID(), true)
		return err
	}

	cmp, err := kv.Compare(key, sepKey)
	if err != nil {
		idx.pool.Unpin(leaf.PageID(), true)
		idx.pool.Unpin(right.PageID(), true)
		return err
	}
	target := leaf
	if cmp >= 0 {
		target = right
	}
	if _, err := page.OpenLeaf(target.Page).Insert(key, value); err != nil {
		idx.pool.Unpin(leaf.PageID(), true)
		idx.pool.Unpin(right.PageID(), true)
		return err
	}

	leftParent := leaf.Page.Header.ParentPage
	if err := idx.pool.Unpin(leaf.PageID(), true); err != nil {
		return err
	}
	if err := idx.pool.Unpin(right.PageID(), true); err != nil {
		return err
	}

	if err := idx.insertIntoParent(leaf.PageID(), leftParent, sepKey, right.PageID()); err != nil {
		return err
	}
	idx.meta.NumberOfRecords++
	return idx.flushMeta()
}

// splitLeaf allocates a new right sibling for left, moves its upper half
// of records into it, and relinks the leaf sibling chain. left and the
// returned frame are both returned pinned.
func (idx *Index) splitLeaf(left *bufferpool.Frame) (kv.Key, *bufferpool.Frame, error) {
	right, err := idx.pool.Alloc()
	if err != nil {
		return kv.Key{}, nil, err
	}
	page.NewLeaf(right.Page)
	right.Page.Header.Level = left.Page.Header.Level
	right.Page.Header.ParentPage = left.Page.Header.ParentPage

	leftView := page.OpenLeaf(left.Page)
	rightView := page.OpenLeaf(right.Page)
	n := leftView.NumberOfRecords() / 2
	if n == 0 {
		n = 1
	}
	if err := page.MoveNRightLeaf(leftView, rightView, n); err != nil {
		return kv.Key{}, nil, err
	}
	// MoveNRightLeaf pops records off the back without reclaiming their
	// bytes, so left's bump allocator still reports no free space. Compact
	// it back onto its own page so the caller's retry below has room.
	if err := page.CompactLeafInPlace(leftView); err != nil {
		return kv.Key{}, nil, err
	}

	right.Page.Header.NextPage = left.Page.Header.NextPage
	right.Page.Header.PrevPage = left.PageID()
	left.Page.Header.NextPage = right.PageID()
	if right.Page.Header.NextPage != page.NoPage {
		nf, err := idx.pool.Fetch(right.Page.Header.NextPage)
		if err != nil {
			return kv.Key{}, nil, err
		}
		nf.Page.Header.PrevPage = right.PageID()
		if err := idx.pool.Unpin(nf.PageID(), true); err != nil {
			return kv.Key{}, nil, err
		}
	}

	sepKey := rightView.FirstUserCursor().Key()
	return sepKey, right, nil
}

// splitInternal is splitLeaf for internal nodes: it also retargets every
// moved child's parent back-pointer to the new sibling.
func (idx *Index) splitInternal(left *bufferpool.Frame) (kv.Key, *bufferpool.Frame, error) {
	right, err := idx.pool.Alloc()
	if err != nil {
		return kv.Key{}, nil, err
	}
	page.NewInternal(right.Page)
	right.Page.Header.Level = left.Page.Header.Level
	right.Page.Header.ParentPage = left.Page.Header.ParentPage

	leftView := page.OpenInternal(left.Page)
	rightView := page.OpenInternal(right.Page)
	n := leftView.NumberOfRecords() / 2
	if n == 0 {
		n = 1
	}
	moved, err := page.MoveNRightInternal(leftView, rightView, n)
	if err != nil {
		return kv.Key{}, nil, err
	}
	for _, m := range moved {
		if err := idx.retargetChild(m.ChildPageID, right.PageID(), m.NewParentOffset); err != nil {
			return kv.Key{}, nil, err
		}
	}
	// Same reclaiming as splitLeaf, plus: compaction can relocate a record
	// that never left the page, so every surviving child (not just the
	// ones moved to right) needs its back-pointer retargeted too.
	survivors, err := page.CompactInternalInPlace(leftView)
	if err != nil {
		return kv.Key{}, nil, err
	}
	for _, m := range survivors {
		if err := idx.retargetChild(m.ChildPageID, left.PageID(), m.NewParentOffset); err != nil {
			return kv.Key{}, nil, err
		}
	}

	sepKey := rightView.FirstUserCursor().Key()
	return sepKey, right, nil
}

// insertIntoParent inserts (sepKey, rightID) into leftID's parent,
// splitting and recursing upward on overflow, or growing a new root if
// leftID was the root. leftParent is leftID's parent at the time of the
// call (read before any unpin, since insertIntoParent may itself need to
// look it up again after a cascading split).
func (idx *Index) insertIntoParent(leftID, leftParent uint32, sepKey kv.Key, rightID uint32) error {
	if leftParent == page.NoPage {
		return idx.growRoot(leftID, sepKey, rightID)
	}

	parent, err := idx.pool.Fetch(leftParent)
	if err != nil {
		return err
	}
	view := page.OpenInternal(parent.Page)
	cur, err := view.Insert(sepKey, rightID)
	if isOverflow(err) {
		survivors, compactErr := page.CompactInternalInPlace(view)
		if compactErr != nil {
			idx.pool.Unpin(leftParent, false)
			return compactErr
		}
		for _, m := range survivors {
			if err := idx.retargetChild(m.ChildPageID, leftParent, m.NewParentOffset); err != nil {
				idx.pool.Unpin(leftParent, true)
				return err
			}
		}
		cur, err = view.Insert(sepKey, rightID)
	}
	if err == nil {
		if err := idx.retargetChild(rightID, leftParent, cur.Offset()); err != nil {
			idx.pool.Unpin(leftParent, true)
			return err
		}
		return idx.pool.Unpin(leftParent, true)
	}
	if !isOverflow(err) {
		idx.pool.Unpin(leftParent, false)
		return err
	}

	parentSep, sibling, err := idx.splitInternal(parent)
	if err != nil {
		idx.pool.Unpin(leftParent, true)
		return err
	}
	cmp, err := kv.Compare(sepKey, parentSep)
	if err != nil {
		idx.pool.Unpin(leftParent, true)
		idx.pool.Unpin(sibling.PageID(), true)
		return err
	}
	target := parent
	if cmp >= 0 {
		target = sibling
	}
	cur, err = page.OpenInternal(target.Page).Insert(sepKey, rightID)
	if err != nil {
		idx.pool.Unpin(leftParent, true)
		idx.pool.Unpin(sibling.PageID(), true)
		return err
	}
	if err := idx.retargetChild(rightID, target.PageID(), cur.Offset()); err != nil {
		idx.pool.Unpin(leftParent, true)
		idx.pool.Unpin(sibling.PageID(), true)
		return err
	}

	grandparent := parent.Page.Header.ParentPage
	if err := idx.pool.Unpin(leftParent, true); err != nil {
		return err
	}
	if err := idx.pool.Unpin(sibling.PageID(), true); err != nil {
		return err
	}
	return idx.insertIntoParent(leftParent, grandparent, parentSep, sibling.PageID())
}

// growRoot creates a fresh internal root over leftID and rightID when
// leftID (the previous root) just split.
func (idx *Index) growRoot(leftID uint32, sepKey kv.Key, rightID uint32) error {
	left, err := idx.pool.Fetch(leftID)
	if err != nil {
		return err
	}
	leftMinKey, keyErr := firstKey(left.Page)
	oldLevel := left.Page.Header.Level
	if err := idx.pool.Unpin(leftID, false); err != nil {
		return err
	}
	if keyErr != nil {
		return keyErr
	}

	root, err := idx.pool.Alloc()
	if err != nil {
		return err
	}
	view := page.NewInternal(root.Page)
	root.Page.Header.Level = oldLevel + 1
	root.Page.Header.ParentPage = page.NoPage

	c1, err := view.Insert(leftMinKey, leftID)
	if err != nil {
		idx.pool.Unpin(root.PageID(), true)
		return err
	}
	c2, err := view.Insert(sepKey, rightID)
	if err != nil {
		idx.pool.Unpin(root.PageID(), true)
		return err
	}
	if err := idx.retargetChild(leftID, root.PageID(), c1.Offset()); err != nil {
		idx.pool.Unpin(root.PageID(), true)
		return err
	}
	if err := idx.retargetChild(rightID, root.PageID(), c2.Offset()); err != nil {
		idx.pool.Unpin(root.PageID(), true)
		return err
	}

	idx.meta.RootPageID = root.PageID()
	idx.meta.Depth++
	return idx.pool.Unpin(root.PageID(), true)
}

// firstKey returns a node's own minimum key: a leaf's first record's key,
// or (recursively, by construction) an internal node's first record's key.
func firstKey(p *page.Page) (kv.Key, error) {
	if p.Header.IsLeaf {
		c := page.OpenLeaf(p).FirstUserCursor()
		if c.IsSupremum() {
			return kv.Key{}, dberr.Errorf(dberr.PopEmptyNode, "page %d is an empty leaf", p.Header.PageID)
		}
		return c.Key(), nil
	}
	c := page.OpenInternal(p).FirstUserCursor()
	if c.IsSupremum() {
		return kv.Key{}, dberr.Errorf(dberr.PopEmptyNode, "page %d is an empty internal node", p.Header.PageID)
	}
	return c.Key(), nil
}
