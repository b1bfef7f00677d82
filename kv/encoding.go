package kv

import (
	"encoding/binary"
	"math"

	"github.com/ffuko/minidb/dberr"
)

// Encoding follows the teacher's node_codec.go idiom throughout: a one-byte
// tag, then fixed-width little-endian fields for int/float/bool, or a
// uint16 length prefix followed by raw bytes for strings. This is the
// "deterministic and self-delimiting" contract spec.md §6 requires of the
// serialization layer.

// EncodedLen returns the number of bytes Key would occupy when encoded.
func (k Key) EncodedLen() int {
	switch k.Tag {
	case TagInt, TagFloat:
		return 1 + 8
	case TagString:
		return 1 + 2 + len(k.S)
	default:
		return 1
	}
}

// AppendKey appends the encoded form of k to buf and returns the result.
func AppendKey(buf []byte, k Key) []byte {
	buf = append(buf, byte(k.Tag))
	switch k.Tag {
	case TagInt:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(k.I))
	case TagFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(k.F))
	case TagString:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(k.S)))
		buf = append(buf, k.S...)
	}
	return buf
}

// DecodeKey reads a Key from the front of buf and returns it along with the
// number of bytes consumed.
func DecodeKey(buf []byte) (Key, int, error) {
	if len(buf) < 1 {
		return Key{}, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated key")
	}
	tag := Tag(buf[0])
	switch tag {
	case TagInt:
		if len(buf) < 9 {
			return Key{}, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated int key")
		}
		return Key{Tag: TagInt, I: int64(binary.LittleEndian.Uint64(buf[1:9]))}, 9, nil
	case TagFloat:
		if len(buf) < 9 {
			return Key{}, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated float key")
		}
		return Key{Tag: TagFloat, F: math.Float64frombits(binary.LittleEndian.Uint64(buf[1:9]))}, 9, nil
	case TagString:
		if len(buf) < 3 {
			return Key{}, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated string key length")
		}
		n := int(binary.LittleEndian.Uint16(buf[1:3]))
		if len(buf) < 3+n {
			return Key{}, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated string key data")
		}
		s := string(buf[3 : 3+n])
		return Key{Tag: TagString, S: s}, 3 + n, nil
	default:
		return Key{}, 0, dberr.Errorf(dberr.InvalidKeyType, "unknown key tag %d", tag)
	}
}

func fieldEncodedLen(f Field) int {
	switch f.Tag {
	case TagInt, TagFloat:
		return 1 + 8
	case TagBool:
		return 1 + 1
	case TagString:
		return 1 + 2 + len(f.S)
	default:
		return 1
	}
}

// ColumnEncodedLen returns the number of bytes Column would occupy when
// encoded (a uint16 field count followed by each field).
func ColumnEncodedLen(c Column) int {
	n := 2
	for _, f := range c {
		n += fieldEncodedLen(f)
	}
	return n
}

// AppendColumn appends the encoded form of c to buf and returns the result.
func AppendColumn(buf []byte, c Column) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c)))
	for _, f := range c {
		buf = append(buf, byte(f.Tag))
		switch f.Tag {
		case TagInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(f.I))
		case TagFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f.F))
		case TagBool:
			if f.B {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case TagString:
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.S)))
			buf = append(buf, f.S...)
		}
	}
	return buf
}

// DecodeColumn reads a Column from the front of buf and returns it along
// with the number of bytes consumed.
func DecodeColumn(buf []byte) (Column, int, error) {
	if len(buf) < 2 {
		return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated column field count")
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	off := 2
	col := make(Column, 0, n)
	for i := 0; i < n; i++ {
		if off >= len(buf) {
			return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated column field %d", i)
		}
		tag := Tag(buf[off])
		off++
		switch tag {
		case TagInt:
			if off+8 > len(buf) {
				return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated int field %d", i)
			}
			col = append(col, Field{Tag: TagInt, I: int64(binary.LittleEndian.Uint64(buf[off : off+8]))})
			off += 8
		case TagFloat:
			if off+8 > len(buf) {
				return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated float field %d", i)
			}
			col = append(col, Field{Tag: TagFloat, F: math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))})
			off += 8
		case TagBool:
			if off+1 > len(buf) {
				return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated bool field %d", i)
			}
			col = append(col, Field{Tag: TagBool, B: buf[off] != 0})
			off++
		case TagString:
			if off+2 > len(buf) {
				return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated string field %d length", i)
			}
			slen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
			off += 2
			if off+slen > len(buf) {
				return nil, 0, dberr.Errorf(dberr.InvalidPagePayload, "truncated string field %d data", i)
			}
			col = append(col, Field{Tag: TagString, S: string(buf[off : off+slen])})
			off += slen
		default:
			return nil, 0, dberr.Errorf(dberr.InvalidKeyType, "unknown field tag %d in column %d", tag, i)
		}
	}
	return col, off, nil
}
