package btree

import (
	"github.com/ffuko/minidb/bufferpool"
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
)

// rebalance restores nodeID's minimum occupancy by borrowing a record from
// a sibling, or merging with one if no sibling has enough to spare,
// propagating underflow up to the grandparent on merge. Left siblings are
// preferred over right, per spec.md §4.5's borrow/merge order.
func (idx *Index) rebalance(nodeID, parentID uint32) error {
	if parentID == page.NoPage {
		return idx.maybeShrinkRoot(nodeID)
	}

	parent, err := idx.pool.Fetch(parentID)
	if err != nil {
		return err
	}
	pview := page.OpenInternal(parent.Page)

	node, err := idx.pool.Fetch(nodeID)
	if err != nil {
		idx.pool.Unpin(parentID, false)
		return err
	}
	// node receives the record of either borrow below; compact it first so
	// tombstones from earlier removes cannot make that push overflow.
	if node.Page.Header.IsLeaf {
		err = page.CompactLeafInPlace(page.OpenLeaf(node.Page))
	} else {
		survivors, cerr := page.CompactInternalInPlace(page.OpenInternal(node.Page))
		for i := 0; cerr == nil && i < len(survivors); i++ {
			cerr = idx.retargetChild(survivors[i].ChildPageID, nodeID, survivors[i].NewParentOffset)
		}
		err = cerr
	}
	if err != nil {
		idx.pool.Unpin(nodeID, true)
		idx.pool.Unpin(parentID, false)
		return err
	}
	self, err := pview.CursorAt(int(node.Page.Header.ParentRecordOff))
	if err != nil {
		idx.pool.Unpin(nodeID, false)
		idx.pool.Unpin(parentID, false)
		return err
	}
	leftCur, err := pview.PrevCursor(self)
	if err != nil {
		idx.pool.Unpin(nodeID, false)
		idx.pool.Unpin(parentID, false)
		return err
	}
	rightCur, err := pview.NextCursor(self)
	if err != nil {
		idx.pool.Unpin(nodeID, false)
		idx.pool.Unpin(parentID, false)
		return err
	}

	if !leftCur.IsInfimum() {
		leftID := pview.Child(leftCur)
		left, err := idx.pool.Fetch(leftID)
		if err != nil {
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if int(left.Page.Header.NumberOfRecords) > int(idx.meta.MinFill) {
			if err := idx.borrowFromLeft(left, node, nodeID); err != nil {
				idx.pool.Unpin(leftID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, false)
				return err
			}
			// node just gained a new, smaller minimum key, so the parent
			// record naming it (self) no longer matches node's own minimum.
			newKey, err := firstKey(node.Page)
			if err != nil {
				idx.pool.Unpin(leftID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, true)
				return err
			}
			if err := idx.rewriteSeparator(pview, parentID, self.Key(), newKey, nodeID); err != nil {
				idx.pool.Unpin(leftID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, true)
				return err
			}
			idx.pool.Unpin(leftID, true)
			idx.pool.Unpin(nodeID, true)
			return idx.pool.Unpin(parentID, true)
		}
		if err := idx.pool.Unpin(leftID, false); err != nil {
			return err
		}
	}

	if !rightCur.IsSupremum() {
		rightID := pview.Child(rightCur)
		right, err := idx.pool.Fetch(rightID)
		if err != nil {
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if int(right.Page.Header.NumberOfRecords) > int(idx.meta.MinFill) {
			if err := idx.borrowFromRight(node, right, rightID); err != nil {
				idx.pool.Unpin(rightID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, false)
				return err
			}
			// right just lost its smallest record, raising its minimum
			// key, so the parent record naming it (rightCur) is stale.
			newKey, err := firstKey(right.Page)
			if err != nil {
				idx.pool.Unpin(rightID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, true)
				return err
			}
			if err := idx.rewriteSeparator(pview, parentID, rightCur.Key(), newKey, rightID); err != nil {
				idx.pool.Unpin(rightID, true)
				idx.pool.Unpin(nodeID, true)
				idx.pool.Unpin(parentID, true)
				return err
			}
			idx.pool.Unpin(rightID, true)
			idx.pool.Unpin(nodeID, true)
			return idx.pool.Unpin(parentID, true)
		}
		if err := idx.pool.Unpin(rightID, false); err != nil {
			return err
		}
	}

	if !leftCur.IsInfimum() {
		leftID := pview.Child(leftCur)
		left, err := idx.pool.Fetch(leftID)
		if err != nil {
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if err := idx.mergeInto(left, node); err != nil {
			idx.pool.Unpin(leftID, true)
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if err := pview.Remove(self.Key()); err != nil {
			idx.pool.Unpin(leftID, true)
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, true)
			return err
		}
		if err := idx.pool.Unpin(leftID, true); err != nil {
			return err
		}
		if err := idx.pool.Unpin(nodeID, false); err != nil {
			return err
		}
		return idx.finishMergeUp(nodeID, parent, parentID)
	}

	if !rightCur.IsSupremum() {
		rightID := pview.Child(rightCur)
		right, err := idx.pool.Fetch(rightID)
		if err != nil {
			idx.pool.Unpin(nodeID, false)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if err := idx.mergeInto(node, right); err != nil {
			idx.pool.Unpin(rightID, false)
			idx.pool.Unpin(nodeID, true)
			idx.pool.Unpin(parentID, false)
			return err
		}
		if err := pview.Remove(rightCur.Key()); err != nil {
			idx.pool.Unpin(rightID, false)
			idx.pool.Unpin(nodeID, true)
			idx.pool.Unpin(parentID, true)
			return err
		}
		if err := idx.pool.Unpin(nodeID, true); err != nil {
			return err
		}
		if err := idx.pool.Unpin(rightID, false); err != nil {
			return err
		}
		return idx.finishMergeUp(rightID, parent, parentID)
	}

	// No siblings at all: node is an only child of a non-root parent,
	// which MinFill's accounting never produces in practice, but leave it
	// as-is rather than guessing.
	idx.pool.Unpin(nodeID, true)
	return idx.pool.Unpin(parentID, false)
}

// finishMergeUp frees the absorbed page, checks whether the parent itself
// now underflows, and recurses upward if so.
func (idx *Index) finishMergeUp(absorbedID uint32, parent *bufferpool.Frame, parentID uint32) error {
	if err := idx.pool.Remove(absorbedID); err != nil {
		idx.pool.Unpin(parentID, true)
		return err
	}
	if err := idx.file.FreePage(absorbedID); err != nil {
		idx.pool.Unpin(parentID, true)
		return err
	}

	grandparent := parent.Page.Header.ParentPage
	parentUnderflowed := int(parent.Page.Header.NumberOfRecords) < int(idx.meta.MinFill) && grandparent != page.NoPage
	rootMustCheck := grandparent == page.NoPage
	if err := idx.pool.Unpin(parentID, true); err != nil {
		return err
	}
	if parentUnderflowed {
		return idx.rebalance(parentID, grandparent)
	}
	if rootMustCheck {
		return idx.maybeShrinkRoot(parentID)
	}
	return nil
}

func (idx *Index) borrowFromLeft(left, node *bufferpool.Frame, nodeID uint32) error {
	if node.Page.Header.IsLeaf {
		return page.MoveNRightLeaf(page.OpenLeaf(left.Page), page.OpenLeaf(node.Page), 1)
	}
	moved, err := page.MoveNRightInternal(page.OpenInternal(left.Page), page.OpenInternal(node.Page), 1)
	if err != nil {
		return err
	}
	for _, m := range moved {
		if err := idx.retargetChild(m.ChildPageID, nodeID, m.NewParentOffset); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) borrowFromRight(node, right *bufferpool.Frame, nodeID uint32) error {
	if node.Page.Header.IsLeaf {
		return page.MoveNLeftLeaf(page.OpenLeaf(right.Page), page.OpenLeaf(node.Page), 1)
	}
	moved, err := page.MoveNLeftInternal(page.OpenInternal(right.Page), page.OpenInternal(node.Page), 1)
	if err != nil {
		return err
	}
	for _, m := range moved {
		if err := idx.retargetChild(m.ChildPageID, nodeID, m.NewParentOffset); err != nil {
			return err
		}
	}
	return nil
}

// rewriteSeparator fixes the parent record naming childID after a borrow
// changes that child's minimum key. Each internal record's key is defined
// to be its child subtree's own minimum key, and the variable-length key
// encoding can't be overwritten in place when the new key's length differs
// from the old one's, so the old record is removed and a new one carrying
// childID is inserted in its place, retargeting childID to wherever it
// lands.
func (idx *Index) rewriteSeparator(pview *page.InternalView, parentID uint32, oldKey, newKey kv.Key, childID uint32) error {
	cmp, err := kv.Compare(oldKey, newKey)
	if err != nil {
		return err
	}
	if cmp == 0 {
		return nil
	}
	if err := pview.Remove(oldKey); err != nil {
		return err
	}
	cur, err := pview.Insert(newKey, childID)
	if isOverflow(err) {
		survivors, compactErr := page.CompactInternalInPlace(pview)
		if compactErr != nil {
			return compactErr
		}
		for _, m := range survivors {
			if err := idx.retargetChild(m.ChildPageID, parentID, m.NewParentOffset); err != nil {
				return err
			}
		}
		cur, err = pview.Insert(newKey, childID)
	}
	if err != nil {
		return err
	}
	return idx.retargetChild(childID, parentID, cur.Offset())
}

// mergeInto absorbs src's user records into dst (dst keeps its page,
// src's page is freed by the caller), relinking the leaf sibling chain
// when applicable. dst is compacted first: rebalance only merges once
// dst's and src's live record counts together fit in one page, but dst's
// own bump allocator may still be carrying the high-water mark of records
// a prior split or borrow already popped off it, which would make a
// union that should fit overflow anyway.
func (idx *Index) mergeInto(dst, src *bufferpool.Frame) error {
	if dst.Page.Header.IsLeaf {
		dstView := page.OpenLeaf(dst.Page)
		if err := page.CompactLeafInPlace(dstView); err != nil {
			return err
		}
		if err := page.UnionLeaf(dstView, page.OpenLeaf(src.Page)); err != nil {
			return err
		}
		dst.Page.Header.NextPage = src.Page.Header.NextPage
		if dst.Page.Header.NextPage != page.NoPage {
			nf, err := idx.pool.Fetch(dst.Page.Header.NextPage)
			if err != nil {
				return err
			}
			nf.Page.Header.PrevPage = dst.PageID()
			if err := idx.pool.Unpin(nf.PageID(), true); err != nil {
				return err
			}
		}
		return nil
	}
	dstView := page.OpenInternal(dst.Page)
	survivors, err := page.CompactInternalInPlace(dstView)
	if err != nil {
		return err
	}
	for _, m := range survivors {
		if err := idx.retargetChild(m.ChildPageID, dst.PageID(), m.NewParentOffset); err != nil {
			return err
		}
	}
	moved, err := page.UnionInternal(dstView, page.OpenInternal(src.Page))
	if err != nil {
		return err
	}
	for _, m := range moved {
		if err := idx.retargetChild(m.ChildPageID, dst.PageID(), m.NewParentOffset); err != nil {
			return err
		}
	}
	return nil
}

// maybeShrinkRoot collapses an internal root with exactly one remaining
// child into that child, per spec.md §4.5's single-remaining-child rule.
func (idx *Index) maybeShrinkRoot(rootID uint32) error {
	root, err := idx.pool.Fetch(rootID)
	if err != nil {
		return err
	}
	if root.Page.Header.IsLeaf || root.Page.Header.NumberOfRecords != 1 {
		return idx.pool.Unpin(rootID, false)
	}
	view := page.OpenInternal(root.Page)
	only := view.FirstUserCursor()
	childID := view.Child(only)
	if err := idx.pool.Unpin(rootID, false); err != nil {
		return err
	}
	if err := idx.pool.Remove(rootID); err != nil {
		return err
	}
	if err := idx.file.FreePage(rootID); err != nil {
		return err
	}

	child, err := idx.pool.Fetch(childID)
	if err != nil {
		return err
	}
	child.Page.Header.ParentPage = page.NoPage
	if err := idx.pool.Unpin(childID, true); err != nil {
		return err
	}

	idx.meta.RootPageID = childID
	idx.meta.Depth--
	return nil
}
