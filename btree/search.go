package btree

import (
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
)

// Search returns the value stored under key, or KeyNotFound.
func (idx *Index) Search(key kv.Key) (kv.Column, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	leaf, err := idx.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	defer idx.pool.Unpin(leaf.PageID(), false)

	view := page.OpenLeaf(leaf.Page)
	cur, err := view.Search(key)
	if err != nil {
		return nil, err
	}
	return view.Value(cur)
}
