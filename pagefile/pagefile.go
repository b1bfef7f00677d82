// Package pagefile implements C1 (Paged File): the single on-disk file a
// clustered index lives in, split into fixed-size pages, with page 0
// reserved for a file header that tracks which pages are in use.
//
// Grounded on bplustree/disk_pager.go's OnDiskPager (file handle,
// ReadPage/WritePage by byte offset, allocate-by-growing) and
// original_source/storage/include/disk/disk_manager.h, which additionally
// tracks free pages in a bitmap instead of only ever growing the file.
package pagefile

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/page"
)

// headerPageID is the fixed page id of the file header; it is always
// in-use and never handed out by AllocatePage.
const headerPageID uint32 = 0

// bitmapOffset/totalCountOffset/inUseCountOffset lay out the header page's
// payload: a 4-byte total page count, a 4-byte in-use count, then the
// free-page bitmap filling the rest.
const (
	totalCountOffset = 0
	inUseCountOffset = 4
	bitmapOffset     = 8
)

// File is a single clustered index's backing store: one OS file, paged at
// cfg.PageSize, with an in-memory mirror of the free-page bitmap kept in
// sync with the on-disk header page.
type File struct {
	mu   sync.Mutex
	f    *os.File
	cfg  page.Config
	log  *zap.Logger
	path string

	totalPages uint32
	inUse      uint32
	bitmap     []byte
}

// Open opens path, creating and formatting it with a fresh header page if
// it doesn't already exist.
func Open(path string, cfg page.Config, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Errorf(dberr.DiskReadError, "open %s: %v", path, err)
	}

	pf := &File{f: f, cfg: cfg, log: logger, path: path}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Errorf(dberr.DiskReadError, "stat %s: %v", path, err)
	}

	if stat.Size() == 0 {
		if err := pf.format(); err != nil {
			f.Close()
			return nil, err
		}
		logger.Info("formatted new page file", zap.String("path", path), zap.Int("page_size", cfg.PageSize))
		return pf, nil
	}

	if err := pf.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("opened page file", zap.String("path", path), zap.Uint32("total_pages", pf.totalPages), zap.Uint32("in_use", pf.inUse))
	return pf, nil
}

func (pf *File) format() error {
	pf.totalPages = 1
	pf.inUse = 1
	pf.bitmap = make([]byte, page.PayloadSize(pf.cfg)-bitmapOffset)
	pf.setBit(headerPageID)
	return pf.flushHeader()
}

func (pf *File) loadHeader() error {
	hp, err := pf.readPageAt(headerPageID)
	if err != nil {
		return err
	}
	pf.totalPages = le32(hp.Payload[totalCountOffset:])
	pf.inUse = le32(hp.Payload[inUseCountOffset:])
	pf.bitmap = append([]byte(nil), hp.Payload[bitmapOffset:]...)
	return nil
}

func (pf *File) flushHeader() error {
	hp := page.New(pf.cfg, headerPageID)
	putLE32(hp.Payload[totalCountOffset:], pf.totalPages)
	putLE32(hp.Payload[inUseCountOffset:], pf.inUse)
	copy(hp.Payload[bitmapOffset:], pf.bitmap)
	return pf.writePageAt(hp)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (pf *File) bitCapacity() uint32 { return uint32(len(pf.bitmap)) * 8 }

func (pf *File) bitSet(id uint32) bool {
	return pf.bitmap[id/8]&(1<<(id%8)) != 0
}

func (pf *File) setBit(id uint32) { pf.bitmap[id/8] |= 1 << (id % 8) }
func (pf *File) clearBit(id uint32) { pf.bitmap[id/8] &^= 1 << (id % 8) }

// ReadPage reads and deserializes page id.
func (pf *File) ReadPage(id uint32) (*page.Page, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.readPageAt(id)
}

func (pf *File) readPageAt(id uint32) (*page.Page, error) {
	buf := make([]byte, pf.cfg.PageSize)
	n, err := pf.f.ReadAt(buf, int64(id)*int64(pf.cfg.PageSize))
	if err != nil && n != len(buf) {
		return nil, dberr.Errorf(dberr.DiskReadError, "read page %d: %v", id, err)
	}
	return page.Deserialize(pf.cfg, buf)
}

// WritePage serializes and writes p at its own PageID.
func (pf *File) WritePage(p *page.Page) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.writePageAt(p)
}

func (pf *File) writePageAt(p *page.Page) error {
	buf, err := p.Serialize(pf.cfg)
	if err != nil {
		return err
	}
	if _, err := pf.f.WriteAt(buf, int64(p.Header.PageID)*int64(pf.cfg.PageSize)); err != nil {
		return dberr.Errorf(dberr.DiskWriteError, "write page %d: %v", p.Header.PageID, err)
	}
	return nil
}

// AllocatePage claims the lowest-numbered free page, growing the file if
// every tracked page is in use, and returns a zeroed page.Page ready for
// the caller to initialize.
func (pf *File) AllocatePage() (*page.Page, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	var id uint32
	found := false
	for i := uint32(1); i < pf.totalPages; i++ {
		if !pf.bitSet(i) {
			id = i
			found = true
			break
		}
	}
	if !found {
		if pf.totalPages >= pf.bitCapacity() {
			return nil, dberr.Errorf(dberr.PoolNoFreeFrame, "page file %s has no room left in its free-page bitmap", pf.path)
		}
		id = pf.totalPages
		pf.totalPages++
	}

	pf.setBit(id)
	pf.inUse++
	if err := pf.flushHeader(); err != nil {
		return nil, err
	}

	p := page.New(pf.cfg, id)
	if err := pf.writePageAt(p); err != nil {
		return nil, err
	}
	pf.log.Debug("allocated page", zap.Uint32("page_id", id))
	return p, nil
}

// FreePage releases id back to the pool; it must not be read or written
// again until reallocated.
func (pf *File) FreePage(id uint32) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if id == headerPageID {
		return dberr.Errorf(dberr.InvalidPageNum, "page 0 is the file header and cannot be freed")
	}
	if !pf.bitSet(id) {
		return dberr.Errorf(dberr.DeletedPageNotExist, "page %d is already free", id)
	}
	pf.clearBit(id)
	pf.inUse--
	pf.log.Debug("freed page", zap.Uint32("page_id", id))
	return pf.flushHeader()
}

// TotalPages reports the file's current page count, including freed but
// not-yet-reclaimed pages and the header page itself.
func (pf *File) TotalPages() uint32 { return pf.totalPages }

// InUsePages reports the number of currently allocated pages.
func (pf *File) InUsePages() uint32 { return pf.inUse }

// Config returns the page layout this file was opened with.
func (pf *File) Config() page.Config { return pf.cfg }

// Close flushes the header and closes the underlying file.
func (pf *File) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if err := pf.flushHeader(); err != nil {
		return err
	}
	return pf.f.Close()
}
