package btree

import (
	"fmt"
	"io"

	"github.com/ffuko/minidb/page"
)

// Inspect writes a human-readable BFS dump of the tree's page structure to
// w: one line per page, grouped by level, showing each internal node's
// routing keys and children, or each leaf's keys and sibling links.
// Grounded on bplustree/inspect.go's InspectIndexFileTo.
func (idx *Index) Inspect(w io.Writer) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fmt.Fprintf(w, "index %d (primary=%v): depth=%d records=%d root=page(%d)\n",
		idx.meta.IndexID, idx.meta.IsPrimary, idx.meta.Depth, idx.meta.NumberOfRecords, idx.meta.RootPageID)
	fmt.Fprintf(w, "pool: %s\n", idx.pool.Stats())

	queue := []uint32{idx.meta.RootPageID}
	level := 0
	for len(queue) > 0 {
		fmt.Fprintf(w, "level %d:\n", level)
		var next []uint32
		for _, id := range queue {
			f, err := idx.pool.Fetch(id)
			if err != nil {
				fmt.Fprintf(w, "  [page %d] read error: %v\n", id, err)
				continue
			}
			if f.Page.Header.IsLeaf {
				view := page.OpenLeaf(f.Page)
				keys := make([]string, 0, view.NumberOfRecords())
				for c := view.FirstUserCursor(); !c.IsSupremum(); {
					keys = append(keys, c.Key().String())
					c, err = view.NextCursor(c)
					if err != nil {
						break
					}
				}
				fmt.Fprintf(w, "  [page %d] LEAF keys=%v prev=%d next=%d\n",
					id, keys, f.Page.Header.PrevPage, f.Page.Header.NextPage)
			} else {
				view := page.OpenInternal(f.Page)
				for c := view.FirstUserCursor(); !c.IsSupremum(); {
					child := view.Child(c)
					fmt.Fprintf(w, "  [page %d] INTERNAL key=%s -> page(%d)\n", id, c.Key(), child)
					next = append(next, child)
					c, err = view.NextCursor(c)
					if err != nil {
						break
					}
				}
			}
			if err := idx.pool.Unpin(id, false); err != nil {
				return err
			}
		}
		queue = next
		level++
	}
	return nil
}
