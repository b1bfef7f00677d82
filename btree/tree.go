// Package btree implements C5 (B+tree Index): the clustered, disk-backed
// B+tree built on top of pagefile's paged file, bufferpool's pin-aware
// cache, and page's node views.
//
// Grounded on bplustree/insertion.go, deletion.go, split_internal.go,
// find_leaf.go and parent_insert.go for the overall descend/split/merge
// shape, and original_source/storage/include/index/index.h for the
// metadata (index_id, is_primary, root_page_id, depth, number_of_records)
// this package persists alongside the tree.
package btree

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ffuko/minidb/bufferpool"
	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
	"github.com/ffuko/minidb/page"
	"github.com/ffuko/minidb/pagefile"
)

// DefaultMinFill is the minimum number of user records a non-root node may
// hold before Remove triggers a borrow or merge. Chosen as a small,
// record-count threshold rather than a byte-occupancy fraction because
// pages hold variable-length records; see DESIGN.md's Open Question entry.
const DefaultMinFill = 2

// Index is one clustered B+tree index, backed by its own single file.
type Index struct {
	mu   sync.Mutex
	file *pagefile.File
	pool *bufferpool.Pool
	log  *zap.Logger
	meta meta
}

// MakeIndex formats a brand-new file at path as an empty index: a file
// header, a metadata page, and a single empty leaf root.
func MakeIndex(path string, cfg page.Config, poolCapacity int, indexID uint8, isPrimary bool, keySchema kv.KeySchema, fieldSchema []kv.FieldSchema, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pf, err := pagefile.Open(path, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pf.TotalPages() != 1 {
		pf.Close()
		return nil, dberr.Errorf(dberr.InvalidPageNum, "%s already contains an index", path)
	}

	pool := bufferpool.New(pf, poolCapacity, logger)

	metaFrame, err := pool.Alloc()
	if err != nil {
		return nil, err
	}
	if metaFrame.PageID() != metaPageID {
		return nil, dberr.Errorf(dberr.InvalidPageNum, "expected metadata page %d, got %d", metaPageID, metaFrame.PageID())
	}
	if err := pool.Unpin(metaFrame.PageID(), false); err != nil {
		return nil, err
	}

	rootFrame, err := pool.Alloc()
	if err != nil {
		return nil, err
	}
	page.NewLeaf(rootFrame.Page)
	rootFrame.Page.Header.Level = 0
	rootFrame.Page.Header.ParentPage = page.NoPage

	idx := &Index{
		file: pf,
		pool: pool,
		log:  logger,
		meta: meta{
			IndexID:     indexID,
			IsPrimary:   isPrimary,
			RootPageID:  rootFrame.PageID(),
			Depth:       1,
			MinFill:     DefaultMinFill,
			KeySchema:   keySchema,
			FieldSchema: fieldSchema,
		},
	}

	if err := pool.Unpin(rootFrame.PageID(), true); err != nil {
		return nil, err
	}
	if err := idx.flushMeta(); err != nil {
		return nil, err
	}
	if err := pool.FlushAll(); err != nil {
		return nil, err
	}
	logger.Info("created index", zap.String("path", path), zap.Uint8("index_id", indexID))
	return idx, nil
}

// OpenIndex reopens an index previously created by MakeIndex.
func OpenIndex(path string, cfg page.Config, poolCapacity int, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pf, err := pagefile.Open(path, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pf.TotalPages() < 2 {
		pf.Close()
		return nil, dberr.Errorf(dberr.GetRootPage, "%s has no index metadata to open", path)
	}

	pool := bufferpool.New(pf, poolCapacity, logger)
	metaFrame, err := pool.Fetch(metaPageID)
	if err != nil {
		return nil, err
	}
	m, err := decodeMeta(metaFrame.Page.Payload)
	if err != nil {
		pool.Unpin(metaPageID, false)
		return nil, err
	}
	if err := pool.Unpin(metaPageID, false); err != nil {
		return nil, err
	}
	logger.Info("opened index", zap.String("path", path), zap.Uint32("root", m.RootPageID), zap.Uint64("records", m.NumberOfRecords))
	return &Index{file: pf, pool: pool, log: logger, meta: m}, nil
}

// Close flushes all dirty frames and the metadata page, then closes the
// backing file.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.flushMeta(); err != nil {
		return err
	}
	if err := idx.pool.FlushAll(); err != nil {
		return err
	}
	return idx.file.Close()
}

// ID returns the index's id.
func (idx *Index) ID() uint8 { return idx.meta.IndexID }

// IsPrimary reports whether this index owns the clustered record storage.
func (idx *Index) IsPrimary() bool { return idx.meta.IsPrimary }

// Depth returns the current height of the tree (1 for a single leaf root).
func (idx *Index) Depth() int { idx.mu.Lock(); defer idx.mu.Unlock(); return int(idx.meta.Depth) }

// NumberOfRecords returns the number of live records in the tree.
func (idx *Index) NumberOfRecords() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return int(idx.meta.NumberOfRecords)
}

// KeySchema returns the tree's key column schema.
func (idx *Index) KeySchema() kv.KeySchema { return idx.meta.KeySchema }

// FieldSchema returns the tree's value column schema.
func (idx *Index) FieldSchema() []kv.FieldSchema { return idx.meta.FieldSchema }

// PoolStats exposes the buffer pool's cache effectiveness, for cmd/demo.
func (idx *Index) PoolStats() bufferpool.Stats { return idx.pool.Stats() }

func (idx *Index) flushMeta() error {
	f, err := idx.pool.Fetch(metaPageID)
	if err != nil {
		return err
	}
	encoded := encodeMeta(idx.meta)
	if len(encoded) > len(f.Page.Payload) {
		idx.pool.Unpin(metaPageID, false)
		return dberr.Errorf(dberr.InvalidPagePayload, "index metadata (%d bytes) too large for one page", len(encoded))
	}
	copy(f.Page.Payload, encoded)
	return idx.pool.Unpin(metaPageID, true)
}

// descendToLeaf fetches and pins the leaf page responsible for key,
// unpinning every internal frame visited along the way. The caller must
// unpin the returned frame.
func (idx *Index) descendToLeaf(key kv.Key) (*bufferpool.Frame, error) {
	pageID := idx.meta.RootPageID
	for {
		f, err := idx.pool.Fetch(pageID)
		if err != nil {
			return nil, err
		}
		if f.Page.Header.IsLeaf {
			return f, nil
		}
		view := page.OpenInternal(f.Page)
		cursor, err := view.GetCursor(key)
		if err != nil {
			idx.pool.Unpin(pageID, false)
			return nil, err
		}
		childID := view.Child(cursor)
		if err := idx.pool.Unpin(pageID, false); err != nil {
			return nil, err
		}
		pageID = childID
	}
}

// retargetChild updates childID's parent back-pointer in place, pinning it
// just long enough to do so.
func (idx *Index) retargetChild(childID, parentID uint32, offset int) error {
	f, err := idx.pool.Fetch(childID)
	if err != nil {
		return err
	}
	f.Page.Header.ParentPage = parentID
	f.Page.Header.ParentRecordOff = uint16(offset)
	return idx.pool.Unpin(childID, true)
}

func isOverflow(err error) bool { return errors.Is(err, dberr.RecoverableOverflow) }
