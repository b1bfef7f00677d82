package btree

import (
	"encoding/binary"

	"github.com/ffuko/minidb/dberr"
	"github.com/ffuko/minidb/kv"
)

// metaPageID is the fixed page id of an index's metadata page: page 0 is
// pagefile's file header, so the first page AllocatePage ever hands out is
// page 1, and MakeIndex claims it for metadata before anything else.
const metaPageID uint32 = 1

// meta is the persisted shape of IndexMeta, spec.md §3's index metadata:
// (index_id, is_primary, root_page_id, depth, number_of_records,
// record_schema).
type meta struct {
	IndexID         uint8
	IsPrimary       bool
	RootPageID      uint32
	Depth           uint32
	NumberOfRecords uint64
	MinFill         uint16
	KeySchema       kv.KeySchema
	FieldSchema     []kv.FieldSchema
}

func encodeMeta(m meta) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, m.IndexID)
	if m.IsPrimary {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, m.RootPageID)
	buf = binary.LittleEndian.AppendUint32(buf, m.Depth)
	buf = binary.LittleEndian.AppendUint64(buf, m.NumberOfRecords)
	buf = binary.LittleEndian.AppendUint16(buf, m.MinFill)
	buf = appendSchemaEntry(buf, m.KeySchema.Name, m.KeySchema.Tag)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.FieldSchema)))
	for _, f := range m.FieldSchema {
		buf = appendSchemaEntry(buf, f.Name, f.Tag)
	}
	return buf
}

func appendSchemaEntry(buf []byte, name string, tag kv.Tag) []byte {
	buf = append(buf, byte(tag))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	return buf
}

func readSchemaEntry(buf []byte) (name string, tag kv.Tag, n int, err error) {
	if len(buf) < 3 {
		return "", 0, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated schema entry")
	}
	tag = kv.Tag(buf[0])
	nameLen := int(binary.LittleEndian.Uint16(buf[1:3]))
	if len(buf) < 3+nameLen {
		return "", 0, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated schema entry name")
	}
	return string(buf[3 : 3+nameLen]), tag, 3 + nameLen, nil
}

func decodeMeta(buf []byte) (meta, error) {
	if len(buf) < 1+1+4+4+8+2 {
		return meta{}, dberr.Errorf(dberr.InvalidPagePayload, "truncated index metadata page")
	}
	m := meta{IndexID: buf[0], IsPrimary: buf[1] != 0}
	off := 2
	m.RootPageID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.Depth = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.NumberOfRecords = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	m.MinFill = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	name, tag, n, err := readSchemaEntry(buf[off:])
	if err != nil {
		return meta{}, err
	}
	m.KeySchema = kv.KeySchema{Name: name, Tag: tag}
	off += n

	if len(buf) < off+2 {
		return meta{}, dberr.Errorf(dberr.InvalidPagePayload, "truncated field schema count")
	}
	count := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	m.FieldSchema = make([]kv.FieldSchema, 0, count)
	for i := 0; i < count; i++ {
		name, tag, n, err := readSchemaEntry(buf[off:])
		if err != nil {
			return meta{}, err
		}
		m.FieldSchema = append(m.FieldSchema, kv.FieldSchema{Name: name, Tag: tag})
		off += n
	}
	return m, nil
}
