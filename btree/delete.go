package btree

import (
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
)

// Remove deletes the record with the given key, rebalancing the tree on
// underflow. KeyNotFound if key is absent. Grounded on
// bplustree/deletion.go's deleteRecursive, adapted to this package's
// pin-per-level descent and borrow-left-first convention.
func (idx *Index) Remove(key kv.Key) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	leaf, err := idx.descendToLeaf(key)
	if err != nil {
		return err
	}
	view := page.OpenLeaf(leaf.Page)
	if err := view.Remove(key); err != nil {
		idx.pool.Unpin(leaf.PageID(), false)
		return err
	}
	idx.meta.NumberOfRecords--

	underflowed := view.NumberOfRecords() < int(idx.meta.MinFill) && leaf.Page.Header.ParentPage != page.NoPage
	leafID := leaf.PageID()
	parentID := leaf.Page.Header.ParentPage
	if err := idx.pool.Unpin(leafID, true); err != nil {
		return err
	}

	if underflowed {
		if err := idx.rebalance(leafID, parentID); err != nil {
			return err
		}
	}
	return idx.flushMeta()
}
