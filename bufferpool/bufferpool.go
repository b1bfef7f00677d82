// Package bufferpool implements C3 (Frame & Buffer Pool): a fixed-size
// cache of page frames over a pagefile.File, with pin-aware deterministic
// LRU eviction.
//
// Grounded on bplustree/buffer_pool.go's BufferPool (map of pages +
// pin counts + dirty flag + evictLRU-skip-pinned), restructured to use a
// container/list for the LRU order instead of a slice scanned and spliced
// on every access — the same fix sushant-115-gojodb/core/indexing/btree/
// page.go applies to an almost identical teacher-shaped access-order
// slice.
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/page"
	"github.com/ffuko/minidb/pagefile"
)

// Frame is one cached page and its buffer-pool bookkeeping, the GLOSSARY's
// Frame — (frame_id, page, pin_count, dirty).
type Frame struct {
	Page    *page.Page
	pinCnt  int
	dirty   bool
	lruElem *list.Element // nil while pinned (removed from the LRU list)
}

func (f *Frame) PageID() uint32 { return f.Page.Header.PageID }
func (f *Frame) Dirty() bool    { return f.dirty }
func (f *Frame) PinCount() int  { return f.pinCnt }

// Pool is a fixed-capacity cache of Frames backed by a pagefile.File.
// Pinned frames are never chosen for eviction; among unpinned frames the
// least recently touched is evicted first, per spec.md §5's deterministic
// LRU requirement.
type Pool struct {
	mu       sync.Mutex
	file     *pagefile.File
	capacity int
	frames   map[uint32]*Frame
	lru      *list.List // unpinned frames only, front = least recently used
	log      *zap.Logger

	hits   uint64
	misses uint64
}

// New creates a pool of the given frame capacity over file.
func New(file *pagefile.File, capacity int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		file:     file,
		capacity: capacity,
		frames:   make(map[uint32]*Frame, capacity),
		lru:      list.New(),
		log:      logger,
	}
}

// Fetch returns the frame for pageID, loading it from disk and evicting a
// victim if necessary, and pins it. Callers must Unpin when done.
func (p *Pool) Fetch(pageID uint32) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[pageID]; ok {
		p.hits++
		p.pinLocked(f)
		return f, nil
	}
	p.misses++

	if len(p.frames) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	pg, err := p.file.ReadPage(pageID)
	if err != nil {
		return nil, err
	}
	f := &Frame{Page: pg}
	p.frames[pageID] = f
	p.pinLocked(f)
	return f, nil
}

// Alloc allocates a fresh page via the backing file, wraps it in a pinned
// frame, and returns it. The caller initializes the page's contents.
func (p *Pool) Alloc() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.frames) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	pg, err := p.file.AllocatePage()
	if err != nil {
		return nil, err
	}
	f := &Frame{Page: pg, dirty: true}
	p.frames[pg.Header.PageID] = f
	p.pinLocked(f)
	return f, nil
}

func (p *Pool) pinLocked(f *Frame) {
	if f.lruElem != nil {
		p.lru.Remove(f.lruElem)
		f.lruElem = nil
	}
	f.pinCnt++
}

// Pin increments a resident frame's pin count.
func (p *Pool) Pin(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok {
		return dberr.Errorf(dberr.CacheEntryNotFound, "page %d not resident", pageID)
	}
	p.pinLocked(f)
	return nil
}

// Unpin decrements pageID's pin count, making it eligible for eviction
// again once it reaches zero. markDirty is OR'd into the frame's dirty
// flag.
func (p *Pool) Unpin(pageID uint32, markDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.frames[pageID]
	if !ok {
		return dberr.Errorf(dberr.CacheEntryNotFound, "page %d not resident", pageID)
	}
	if f.pinCnt == 0 {
		return dberr.Errorf(dberr.FrameNotPinned, "page %d is not pinned", pageID)
	}
	if markDirty {
		f.dirty = true
	}
	f.pinCnt--
	if f.pinCnt == 0 {
		f.lruElem = p.lru.PushBack(pageID)
	}
	return nil
}

// evictLocked evicts the least-recently-used unpinned frame, flushing it
// first if dirty. CacheNoMoreVictim if every frame is pinned.
func (p *Pool) evictLocked() error {
	elem := p.lru.Front()
	if elem == nil {
		return dberr.CacheNoMoreVictim
	}
	victimID := elem.Value.(uint32)
	p.lru.Remove(elem)

	f := p.frames[victimID]
	if f.dirty {
		if err := p.file.WritePage(f.Page); err != nil {
			return err
		}
	}
	delete(p.frames, victimID)
	p.log.Debug("evicted frame", zap.Uint32("page_id", victimID), zap.Bool("was_dirty", f.dirty))
	return nil
}

// GetResident returns pageID's frame without fetching from disk or
// affecting pin count; ok is false if the page isn't currently resident.
func (p *Pool) GetResident(pageID uint32) (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	return f, ok
}

// Remove drops pageID's frame without flushing it (the page's bytes on
// disk are about to be overwritten or freed by the caller, e.g. after a
// node_move compaction retires it). The frame must be unpinned first:
// calling Remove while pins remain returns a FrameNotPinned-coded error.
func (p *Pool) Remove(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok {
		return nil
	}
	if f.pinCnt > 0 {
		return dberr.Errorf(dberr.FrameNotPinned, "page %d still has %d pins", pageID, f.pinCnt)
	}
	if f.lruElem != nil {
		p.lru.Remove(f.lruElem)
	}
	delete(p.frames, pageID)
	return nil
}

// FlushAll writes every dirty resident frame to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.dirty {
			if err := p.file.WritePage(f.Page); err != nil {
				return err
			}
			f.dirty = false
		}
	}
	return nil
}

// FlushFrame writes pageID's frame to disk if dirty, without evicting it.
// Per spec.md §4.3's flush_frame: a durability-minded caller uses this to
// persist a frame ahead of an unpin+Remove it knows will retire the page.
func (p *Pool) FlushFrame(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok {
		return dberr.Errorf(dberr.CacheEntryNotFound, "page %d not resident", pageID)
	}
	if !f.dirty {
		return nil
	}
	if err := p.file.WritePage(f.Page); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Stats is a human-readable snapshot of the pool's cache effectiveness,
// formatted with go-humanize for cmd/inspect.
type Stats struct {
	Resident int
	Capacity int
	Hits     uint64
	Misses   uint64
}

func (s Stats) String() string {
	return humanize.Comma(int64(s.Hits)) + " hits, " + humanize.Comma(int64(s.Misses)) + " misses, " +
		humanize.Comma(int64(s.Resident)) + "/" + humanize.Comma(int64(s.Capacity)) + " frames resident"
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Resident: len(p.frames), Capacity: p.capacity, Hits: p.hits, Misses: p.misses}
}
