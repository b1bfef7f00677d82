package btree

import (
	"testing"

	"github.com/ffuko/minidb/kv"
)

func TestEncodeDecodeMetaRoundTrip(t *testing.T) {
	m := meta{
		IndexID:         3,
		IsPrimary:       true,
		RootPageID:      7,
		Depth:           2,
		NumberOfRecords: 1234,
		MinFill:         DefaultMinFill,
		KeySchema:       kv.KeySchema{Name: "student_id", Tag: kv.TagString},
		FieldSchema: []kv.FieldSchema{
			{Name: "name", Tag: kv.TagString},
			{Name: "grade", Tag: kv.TagInt},
		},
	}

	got, err := decodeMeta(encodeMeta(m))
	if err != nil {
		t.Fatalf("decodeMeta: %v", err)
	}
	if got.IndexID != m.IndexID || got.IsPrimary != m.IsPrimary || got.RootPageID != m.RootPageID ||
		got.Depth != m.Depth || got.NumberOfRecords != m.NumberOfRecords || got.MinFill != m.MinFill {
		t.Errorf("scalar fields round trip: got %+v, want %+v", got, m)
	}
	if got.KeySchema != m.KeySchema {
		t.Errorf("KeySchema round trip: got %+v, want %+v", got.KeySchema, m.KeySchema)
	}
	if len(got.FieldSchema) != len(m.FieldSchema) {
		t.Fatalf("FieldSchema length: got %d, want %d", len(got.FieldSchema), len(m.FieldSchema))
	}
	for i := range m.FieldSchema {
		if got.FieldSchema[i] != m.FieldSchema[i] {
			t.Errorf("FieldSchema[%d]: got %+v, want %+v", i, got.FieldSchema[i], m.FieldSchema[i])
		}
	}
}

func TestDecodeMetaRejectsTruncated(t *testing.T) {
	if _, err := decodeMeta(make([]byte, 4)); err == nil {
		t.Error("expected an error decoding a truncated metadata buffer")
	}
}
