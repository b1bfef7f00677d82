// Package kv defines the tagged-value types the B+tree index is built on:
// Key (the ordered comparison type) and Value/Column (the opaque leaf
// payload). It mirrors original_source/common/types.h's
// std::variant<bool,int,double,string,Record*>, restricted to the storable
// tag set spec.md §3 names, plus the named-field schema of
// original_source/storage/include/table/record_meta.h (KeyMeta/FieldMeta).
package kv

import (
	"fmt"

	"github.com/ffuko/minidb/dberr"
)

// Tag identifies which variant of Key/Value is populated. Keys use
// TagInt/TagFloat/TagString; Value additionally allows TagBool.
type Tag uint8

const (
	TagInvalid Tag = iota
	TagInt
	TagFloat
	TagString
	TagBool
)

func (t Tag) String() string {
	switch t {
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagString:
		return "string"
	case TagBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Key is a tagged union over {signed integer, double, string}. Two keys
// are comparable only when their tags agree.
type Key struct {
	Tag Tag
	I   int64
	F   float64
	S   string
}

func IntKey(v int64) Key    { return Key{Tag: TagInt, I: v} }
func FloatKey(v float64) Key { return Key{Tag: TagFloat, F: v} }
func StringKey(v string) Key { return Key{Tag: TagString, S: v} }

// Compare returns -1, 0, 1 for a<b, a==b, a>b. It returns InvalidKeyType
// when the tags disagree, per spec.md §3's "mismatched tags cause an
// InvalidKeyType failure".
func Compare(a, b Key) (int, error) {
	if a.Tag != b.Tag {
		return 0, dberr.Errorf(dberr.InvalidKeyType, "compare %s key against %s key", a.Tag, b.Tag)
	}
	switch a.Tag {
	case TagInt:
		switch {
		case a.I < b.I:
			return -1, nil
		case a.I > b.I:
			return 1, nil
		default:
			return 0, nil
		}
	case TagFloat:
		switch {
		case a.F < b.F:
			return -1, nil
		case a.F > b.F:
			return 1, nil
		default:
			return 0, nil
		}
	case TagString:
		switch {
		case a.S < b.S:
			return -1, nil
		case a.S > b.S:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, dberr.Errorf(dberr.InvalidKeyType, "unsupported key tag %s", a.Tag)
	}
}

func (k Key) String() string {
	switch k.Tag {
	case TagInt:
		return fmt.Sprintf("%d", k.I)
	case TagFloat:
		return fmt.Sprintf("%g", k.F)
	case TagString:
		return fmt.Sprintf("%q", k.S)
	default:
		return "<invalid key>"
	}
}

// Field is one tagged value inside a Column (Value). It extends Key's tag
// set with TagBool, matching common/types.h's Value variant.
type Field struct {
	Tag Tag
	I   int64
	F   float64
	S   string
	B   bool
}

func IntField(v int64) Field     { return Field{Tag: TagInt, I: v} }
func FloatField(v float64) Field { return Field{Tag: TagFloat, F: v} }
func StringField(v string) Field { return Field{Tag: TagString, S: v} }
func BoolField(v bool) Field     { return Field{Tag: TagBool, B: v} }

// Column is an ordered sequence of Fields, the leaf record payload. It is
// opaque to the tree: insert/search/delete never look inside it.
type Column []Field

// KeySchema names and tags the index's key column, following
// original_source/storage/include/table/record_meta.h's KeyMeta.
type KeySchema struct {
	Name string
	Tag  Tag
}

// FieldSchema names and tags one value column. Used only by Validate on
// insert (field count, tags, and the name in its error message), never for
// comparison.
type FieldSchema struct {
	Name string
	Tag  Tag
}

// Validate checks that value's field count and tags match schema, raising
// InvalidKeyType (the closest fit in the closed taxonomy — the original's
// equivalent is a schema mismatch, which spec.md folds into the same
// logical-error family as tag mismatches) on the first disagreement.
func Validate(schema []FieldSchema, value Column) error {
	if len(schema) != len(value) {
		return dberr.Errorf(dberr.InvalidKeyType, "value has %d fields, schema wants %d", len(value), len(schema))
	}
	for i, f := range schema {
		if value[i].Tag != f.Tag {
			return dberr.Errorf(dberr.InvalidKeyType, "field %q: got %s, want %s", f.Name, value[i].Tag, f.Tag)
		}
	}
	return nil
}
