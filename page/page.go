// Package page implements C2 (Page Image) and C4 (Node View) of the
// storage engine: the fixed-size on-disk page layout, and the
// sentinel-delimited doubly linked record list that gives every page's
// payload its logical structure.
//
// Grounded on heapfile_manager/page_header.go's writePageHeader/
// readPageHeader (fixed binary.LittleEndian field offsets) and
// original_source/storage/include/disk/page.h's PageHdr field set.
package page

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ffuko/minidb/dberr"
)

// Config sizes every page in a file. PageSize defaults to 1024 bytes per
// spec.md §6.
type Config struct {
	PageSize int
}

func DefaultConfig() Config { return Config{PageSize: 1024} }

// HeaderSize is the fixed byte width of Header on disk: 4 (PageID) + 1
// (IndexID) + 1 (Level) + 1 (IsLeaf) + 2 (NumberOfRecords) + 2
// (LastInsertedOff) + 4 (PrevPage) + 4 (NextPage) + 4 (ParentPage) + 2
// (ParentRecordOff) = 25 bytes, rounded up to 32 like the teacher's
// PageHeaderSize in heapfile_manager/struct.go, leaving reserved bytes.
const HeaderSize = 32

// ChecksumSize is the trailing xxhash64 of the page, the domain-stack
// addition described in SPEC_FULL.md §B.
const ChecksumSize = 8

// PayloadSize returns the number of payload bytes available for a page's
// record list, after the header and checksum trailer are carved out.
func PayloadSize(cfg Config) int { return cfg.PageSize - HeaderSize - ChecksumSize }

// NoPage is the sentinel value for a page-id field that names no page
// (page 0 is reserved for the file header, so 0 doubles as "none").
const NoPage uint32 = 0

// Header is the common header for every non-file-header page, per
// spec.md §3.
type Header struct {
	PageID          uint32
	IndexID         uint8
	Level           uint8
	IsLeaf          bool
	NumberOfRecords uint16
	LastInsertedOff uint16
	PrevPage        uint32
	NextPage        uint32
	ParentPage      uint32
	ParentRecordOff uint16
}

// Page is the in-memory representation of one page: a fixed header plus a
// flat payload buffer. It serializes/deserializes itself to/from a
// PageSize byte block; the structure of the payload is C4's concern.
type Page struct {
	Header  Header
	Payload []byte
}

// New allocates a zeroed page of the given id, ready to be initialized by
// btree (sentinels written, level/leaf flags set) before first use.
func New(cfg Config, id uint32) *Page {
	return &Page{
		Header:  Header{PageID: id},
		Payload: make([]byte, PayloadSize(cfg)),
	}
}

// Serialize renders p into exactly cfg.PageSize bytes: header, payload,
// then an xxhash64 checksum of everything preceding it.
func (p *Page) Serialize(cfg Config) ([]byte, error) {
	if p.Payload == nil {
		return nil, dberr.Errorf(dberr.InvalidPagePayload, "page %d has no payload", p.Header.PageID)
	}
	if len(p.Payload) != PayloadSize(cfg) {
		return nil, dberr.Errorf(dberr.InvalidPagePayload, "page %d payload is %d bytes, want %d", p.Header.PageID, len(p.Payload), PayloadSize(cfg))
	}

	buf := make([]byte, cfg.PageSize)
	writeHeader(buf[:HeaderSize], p.Header)
	copy(buf[HeaderSize:HeaderSize+len(p.Payload)], p.Payload)

	sum := xxhash.Sum64(buf[:cfg.PageSize-ChecksumSize])
	binary.LittleEndian.PutUint64(buf[cfg.PageSize-ChecksumSize:], sum)
	return buf, nil
}

// Deserialize parses a PageSize byte block produced by Serialize, verifying
// the trailing checksum first.
func Deserialize(cfg Config, raw []byte) (*Page, error) {
	if len(raw) != cfg.PageSize {
		return nil, dberr.Errorf(dberr.InvalidPagePayload, "got %d bytes, want a %d-byte page", len(raw), cfg.PageSize)
	}
	want := binary.LittleEndian.Uint64(raw[cfg.PageSize-ChecksumSize:])
	got := xxhash.Sum64(raw[:cfg.PageSize-ChecksumSize])
	if want != got {
		return nil, dberr.Errorf(dberr.ChecksumMismatch, "page checksum mismatch: stored %x, computed %x", want, got)
	}

	hdr := readHeader(raw[:HeaderSize])
	payload := make([]byte, PayloadSize(cfg))
	copy(payload, raw[HeaderSize:HeaderSize+len(payload)])
	return &Page{Header: hdr, Payload: payload}, nil
}

func writeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.PageID)
	buf[4] = h.IndexID
	buf[5] = h.Level
	if h.IsLeaf {
		buf[6] = 1
	} else {
		buf[6] = 0
	}
	binary.LittleEndian.PutUint16(buf[7:9], h.NumberOfRecords)
	binary.LittleEndian.PutUint16(buf[9:11], h.LastInsertedOff)
	binary.LittleEndian.PutUint32(buf[11:15], h.PrevPage)
	binary.LittleEndian.PutUint32(buf[15:19], h.NextPage)
	binary.LittleEndian.PutUint32(buf[19:23], h.ParentPage)
	binary.LittleEndian.PutUint16(buf[23:25], h.ParentRecordOff)
	// bytes 25:32 reserved.
}

func readHeader(buf []byte) Header {
	return Header{
		PageID:          binary.LittleEndian.Uint32(buf[0:4]),
		IndexID:         buf[4],
		Level:           buf[5],
		IsLeaf:          buf[6] != 0,
		NumberOfRecords: binary.LittleEndian.Uint16(buf[7:9]),
		LastInsertedOff: binary.LittleEndian.Uint16(buf[9:11]),
		PrevPage:        binary.LittleEndian.Uint32(buf[11:15]),
		NextPage:        binary.LittleEndian.Uint32(buf[15:19]),
		ParentPage:      binary.LittleEndian.Uint32(buf[19:23]),
		ParentRecordOff: binary.LittleEndian.Uint16(buf[23:25]),
	}
}
