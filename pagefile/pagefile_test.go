package pagefile

import (
	"path/filepath"
	"testing"

	"github.com/ffuko/minidb/page"
)

func TestFormatNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	pf, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	if pf.TotalPages() != 1 {
		t.Errorf("TotalPages() on a fresh file = %d, want 1", pf.TotalPages())
	}
	if pf.InUsePages() != 1 {
		t.Errorf("InUsePages() on a fresh file = %d, want 1", pf.InUsePages())
	}
}

func TestAllocateAndFreePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.db")
	pf, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	p1, err := pf.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if p1.Header.PageID != 1 {
		t.Errorf("first allocated page id = %d, want 1", p1.Header.PageID)
	}

	p2, err := pf.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if p2.Header.PageID != 2 {
		t.Errorf("second allocated page id = %d, want 2", p2.Header.PageID)
	}
	if pf.TotalPages() != 3 {
		t.Errorf("TotalPages() = %d, want 3", pf.TotalPages())
	}

	if err := pf.FreePage(p1.Header.PageID); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if pf.InUsePages() != 2 {
		t.Errorf("InUsePages() after free = %d, want 2", pf.InUsePages())
	}

	// The freed slot is reused before the file grows again.
	p3, err := pf.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage (reuse): %v", err)
	}
	if p3.Header.PageID != 1 {
		t.Errorf("reused page id = %d, want 1", p3.Header.PageID)
	}
	if pf.TotalPages() != 3 {
		t.Errorf("TotalPages() after reuse = %d, want 3 (no growth)", pf.TotalPages())
	}
}

func TestFreePageRejectsHeaderAndDoubleFree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "free_errors.db")
	pf, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	if err := pf.FreePage(0); err == nil {
		t.Error("expected an error freeing the header page")
	}

	p, err := pf.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := pf.FreePage(p.Header.PageID); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if err := pf.FreePage(p.Header.PageID); err == nil {
		t.Error("expected an error double-freeing a page")
	}
}

func TestReadWritePageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.db")
	pf, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	p, err := pf.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	copy(p.Payload, []byte("round trip"))
	p.Header.NumberOfRecords = 3
	if err := pf.WritePage(p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := pf.ReadPage(p.Header.PageID)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(got.Payload[:10]) != "round trip" {
		t.Errorf("payload round trip: got %q", got.Payload[:10])
	}
	if got.Header.NumberOfRecords != 3 {
		t.Errorf("NumberOfRecords round trip: got %d, want 3", got.Header.NumberOfRecords)
	}
}

func TestReopenPersistsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	pf, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := pf.AllocatePage(); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if _, err := pf.AllocatePage(); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, page.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.TotalPages() != 3 {
		t.Errorf("TotalPages() after reopen = %d, want 3", reopened.TotalPages())
	}
	if reopened.InUsePages() != 3 {
		t.Errorf("InUsePages() after reopen = %d, want 3", reopened.InUsePages())
	}
}
