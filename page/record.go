package page

import (
	"encoding/binary"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
)

// RecordStatus is the status byte shared by every intra-page record,
// spec.md §3's RecordHdr.status.
type RecordStatus uint8

const (
	StatusLive     RecordStatus = iota
	StatusDeleted               // lazy-delete tombstone; bytes stay, list unlinks it
	StatusInfimum                // the fixed low sentinel
	StatusSupremum                // the fixed high sentinel
)

// RecordHeaderSize is the fixed on-disk width of a record header: status(1)
// + prev_offset(4) + next_offset(4) + length(2).
const RecordHeaderSize = 11

// sentinelLen is the total encoded size of an infimum/supremum record: just
// the header, no key or value.
const sentinelLen = RecordHeaderSize

// RecordHeader mirrors spec.md §3's shared record header. PrevOffset and
// NextOffset are signed deltas between this record's start offset and its
// neighbors' start offsets (start-to-start, not the spec prose's
// "trailing edge to trailing edge" — see DESIGN.md for why: a record's
// length lives inside its own header, so a distance that can be resolved
// without first decoding the target record has to be anchored at a
// position that doesn't depend on that record's length, i.e. its start).
// This preserves every property the spec asks of the encoding (relocation
// of a record doesn't require rewriting distant offsets; navigation is
// O(1) given a cursor) without the chicken-and-egg problem.
type RecordHeader struct {
	Status     RecordStatus
	PrevOffset int32
	NextOffset int32
	Length     uint16
}

func putRecordHeader(buf []byte, h RecordHeader) {
	buf[0] = byte(h.Status)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.PrevOffset))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(h.NextOffset))
	binary.LittleEndian.PutUint16(buf[9:11], h.Length)
}

func getRecordHeader(buf []byte) RecordHeader {
	return RecordHeader{
		Status:     RecordStatus(buf[0]),
		PrevOffset: int32(binary.LittleEndian.Uint32(buf[1:5])),
		NextOffset: int32(binary.LittleEndian.Uint32(buf[5:9])),
		Length:     binary.LittleEndian.Uint16(buf[9:11]),
	}
}

// rawRecord is a decoded record at some offset: its header, key (zero value
// for sentinels), and whatever value bytes follow the key (a Column for a
// leaf record, a 4-byte child page id for an internal record — recordList
// doesn't care which).
type rawRecord struct {
	Offset    int
	Header    RecordHeader
	Key       kv.Key
	ValueOff  int // offset of the first value byte within the page payload
	ValueLen  int
}

// Cursor identifies a record's position within a page, per the GLOSSARY:
// (page_id, offset, decoded_record).
type Cursor struct {
	PageID uint32
	rec    rawRecord
}

func (c Cursor) Key() kv.Key { return c.rec.Key }
func (c Cursor) Offset() int { return c.rec.Offset }
func (c Cursor) IsInfimum() bool { return c.rec.Header.Status == StatusInfimum }
func (c Cursor) IsSupremum() bool { return c.rec.Header.Status == StatusSupremum }
func (c Cursor) IsDeleted() bool  { return c.rec.Header.Status == StatusDeleted }

// recordList is the sentinel-delimited doubly linked list over a page's
// payload: every navigation, bump-allocation, and lazy-delete primitive
// C4 needs, independent of whether records carry a Column or a child page
// id as their value. LeafView and InternalView are thin codecs built on
// top of it.
type recordList struct {
	hdr     *Header
	payload []byte
}

func newRecordList(p *Page) *recordList {
	return &recordList{hdr: &p.Header, payload: p.Payload}
}

// initSentinels writes the infimum/supremum pair at the fixed prefix of an
// empty page's payload and sets LastInsertedOff to the start of the
// bump-allocated region, per spec.md §3.
func (l *recordList) initSentinels() {
	infi := RecordHeader{Status: StatusInfimum, Length: sentinelLen, NextOffset: sentinelLen}
	supre := RecordHeader{Status: StatusSupremum, Length: sentinelLen, PrevOffset: -sentinelLen}
	putRecordHeader(l.payload[0:sentinelLen], infi)
	putRecordHeader(l.payload[sentinelLen:2*sentinelLen], supre)
	l.hdr.LastInsertedOff = 2 * sentinelLen
	l.hdr.NumberOfRecords = 0
}

func (l *recordList) readAt(offset int) (rawRecord, error) {
	if offset < 0 || offset+RecordHeaderSize > len(l.payload) {
		return rawRecord{}, dberr.Errorf(dberr.InvalidPagePayload, "record offset %d out of range", offset)
	}
	h := getRecordHeader(l.payload[offset : offset+RecordHeaderSize])
	if h.Status == StatusInfimum || h.Status == StatusSupremum {
		return rawRecord{Offset: offset, Header: h}, nil
	}
	keyOff := offset + RecordHeaderSize
	key, keyLen, err := kv.DecodeKey(l.payload[keyOff:])
	if err != nil {
		return rawRecord{}, err
	}
	valOff := keyOff + keyLen
	valLen := int(h.Length) - RecordHeaderSize - keyLen
	if valLen < 0 || valOff+valLen > len(l.payload) {
		return rawRecord{}, dberr.Errorf(dberr.InvalidPagePayload, "record at %d has invalid value length", offset)
	}
	return rawRecord{Offset: offset, Header: h, Key: key, ValueOff: valOff, ValueLen: valLen}, nil
}

func (l *recordList) cursorAt(offset int) (Cursor, error) {
	rec, err := l.readAt(offset)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{PageID: l.hdr.PageID, rec: rec}, nil
}

func (l *recordList) infimumCursor() Cursor {
	c, _ := l.cursorAt(0)
	return c
}

func (l *recordList) supremumCursor() Cursor {
	c, _ := l.cursorAt(sentinelLen)
	return c
}

// FirstUserCursor returns the cursor immediately after infimum. If the
// node is empty this is the supremum cursor.
func (l *recordList) FirstUserCursor() Cursor {
	infi := l.infimumCursor()
	c, _ := l.cursorAt(infi.rec.Offset + int(infi.rec.Header.NextOffset))
	return c
}

// LastUserCursor returns the cursor immediately before supremum. If the
// node is empty this is the infimum cursor.
func (l *recordList) LastUserCursor() Cursor {
	supre := l.supremumCursor()
	c, _ := l.cursorAt(supre.rec.Offset + int(supre.rec.Header.PrevOffset))
	return c
}

func (l *recordList) NextCursor(c Cursor) (Cursor, error) {
	return l.cursorAt(c.rec.Offset + int(c.rec.Header.NextOffset))
}

func (l *recordList) PrevCursor(c Cursor) (Cursor, error) {
	return l.cursorAt(c.rec.Offset + int(c.rec.Header.PrevOffset))
}

// firstGreater scans forward from the first user record and returns the
// cursor of the first record whose key is > key, or the exact match if one
// exists (found=true), or supremum if every record's key is <= key (or the
// node is empty).
func (l *recordList) firstGreater(key kv.Key) (cur Cursor, found bool, err error) {
	cur = l.FirstUserCursor()
	for i := 0; i < int(l.hdr.NumberOfRecords); i++ {
		cmp, cerr := kv.Compare(cur.rec.Key, key)
		if cerr != nil {
			return Cursor{}, false, cerr
		}
		if cmp == 0 {
			return cur, true, nil
		}
		if cmp > 0 {
			return cur, false, nil
		}
		next, nerr := l.NextCursor(cur)
		if nerr != nil {
			return Cursor{}, false, nerr
		}
		cur = next
	}
	return cur, false, nil
}

// GetCursor implements spec.md §4.4's get_cursor: the cursor whose key
// equals key, else the greatest key <= key, else the first user cursor.
// Grounded on original_source's IndexNode::get_cursor.
func (l *recordList) GetCursor(key kv.Key) (Cursor, error) {
	first := l.FirstUserCursor()
	greater, found, err := l.firstGreater(key)
	if err != nil {
		return Cursor{}, err
	}
	if found {
		return greater, nil
	}
	if greater.rec.Offset == first.rec.Offset {
		// Nothing in the node is <= key (including an empty node).
		return first, nil
	}
	return l.PrevCursor(greater)
}

// SearchRecord implements spec.md §4.4's search_record: exact match or
// KeyNotFound.
func (l *recordList) SearchRecord(key kv.Key) (Cursor, error) {
	cur, found, err := l.firstGreater(key)
	if err != nil {
		return Cursor{}, err
	}
	if !found {
		return Cursor{}, dberr.Errorf(dberr.KeyNotFound, "key %s not found", key)
	}
	return cur, nil
}

// InsertionPoint returns the cursor of the record a new (key, value) pair
// should be inserted before, or (cursor, true) if key already exists.
func (l *recordList) InsertionPoint(key kv.Key) (Cursor, bool, error) {
	cur, found, err := l.firstGreater(key)
	return cur, found, err
}

// encodedLen returns the total on-disk length of a record with the given
// key and valueBytes, header included.
func encodedLen(key kv.Key, valueBytes []byte) int {
	return RecordHeaderSize + key.EncodedLen() + len(valueBytes)
}

// insertBefore bump-allocates a new record with the given key/value just
// before target, relinking target's predecessor and target. Returns
// RecoverableOverflow if the bump allocator has no room left, per
// spec.md §4.4's "serialization behavior on overflow".
func (l *recordList) insertBefore(target Cursor, key kv.Key, valueBytes []byte) (Cursor, error) {
	length := encodedLen(key, valueBytes)
	start := int(l.hdr.LastInsertedOff)
	if start+length > len(l.payload) {
		return Cursor{}, dberr.RecoverableOverflow
	}

	prev, err := l.PrevCursor(target)
	if err != nil {
		return Cursor{}, err
	}

	newHdr := RecordHeader{
		Status:     StatusLive,
		Length:     uint16(length),
		PrevOffset: int32(prev.rec.Offset - start),
		NextOffset: int32(target.rec.Offset - start),
	}
	putRecordHeader(l.payload[start:start+RecordHeaderSize], newHdr)
	keyBytes := kv.AppendKey(nil, key)
	copy(l.payload[start+RecordHeaderSize:], keyBytes)
	copy(l.payload[start+RecordHeaderSize+len(keyBytes):start+length], valueBytes)

	// relink neighbors to point through the new record.
	l.rewriteOffset(prev, start-prev.rec.Offset, true)
	l.rewriteOffset(target, start-target.rec.Offset, false)

	l.hdr.LastInsertedOff = uint16(start + length)
	l.hdr.NumberOfRecords++

	return l.cursorAt(start)
}

// rewriteOffset patches the prev/next pointer of an already-written record
// in place (next if isNext, else prev) to delta, re-encoding only the
// header bytes.
func (l *recordList) rewriteOffset(c Cursor, delta int, isNext bool) {
	h := c.rec.Header
	if isNext {
		h.NextOffset = int32(delta)
	} else {
		h.PrevOffset = int32(delta)
	}
	putRecordHeader(l.payload[c.rec.Offset:c.rec.Offset+RecordHeaderSize], h)
}

// unlink removes c from the doubly linked list in place (splicing its
// neighbors together) without touching its bytes.
func (l *recordList) unlink(c Cursor) error {
	prev, err := l.PrevCursor(c)
	if err != nil {
		return err
	}
	next, err := l.NextCursor(c)
	if err != nil {
		return err
	}
	l.rewriteOffset(prev, next.rec.Offset-prev.rec.Offset, true)
	l.rewriteOffset(next, prev.rec.Offset-next.rec.Offset, false)
	return nil
}

// removeRecord lazy-deletes the record whose key == key: sets its status
// flag and splices it out of the list, per spec.md §4.4's remove_record.
func (l *recordList) removeRecord(key kv.Key) error {
	cur, err := l.SearchRecord(key)
	if err != nil {
		return err
	}
	if err := l.unlink(cur); err != nil {
		return err
	}
	cur.rec.Header.Status = StatusDeleted
	putRecordHeader(l.payload[cur.rec.Offset:cur.rec.Offset+RecordHeaderSize], cur.rec.Header)
	l.hdr.NumberOfRecords--
	return nil
}

// pushBack inserts a record immediately before supremum.
func (l *recordList) pushBack(key kv.Key, valueBytes []byte) (Cursor, error) {
	return l.insertBefore(l.supremumCursor(), key, valueBytes)
}

// pushFront inserts a record immediately after infimum.
func (l *recordList) pushFront(key kv.Key, valueBytes []byte) (Cursor, error) {
	return l.insertBefore(l.FirstUserCursor(), key, valueBytes)
}

// popBack unlinks and returns the last user record, PopEmptyNode if none.
func (l *recordList) popBack() (rawRecord, error) {
	last := l.LastUserCursor()
	if last.IsInfimum() {
		return rawRecord{}, dberr.PopEmptyNode
	}
	if err := l.unlink(last); err != nil {
		return rawRecord{}, err
	}
	l.hdr.NumberOfRecords--
	return last.rec, nil
}

// popFront unlinks and returns the first user record, PopEmptyNode if none.
func (l *recordList) popFront() (rawRecord, error) {
	first := l.FirstUserCursor()
	if first.IsSupremum() {
		return rawRecord{}, dberr.PopEmptyNode
	}
	if err := l.unlink(first); err != nil {
		return rawRecord{}, err
	}
	l.hdr.NumberOfRecords--
	return first.rec, nil
}

func (l *recordList) valueBytes(rec rawRecord) []byte {
	return l.payload[rec.ValueOff : rec.ValueOff+rec.ValueLen]
}

func (l *recordList) isFull(maxRecords int) bool {
	return int(l.hdr.NumberOfRecords) >= maxRecords
}
