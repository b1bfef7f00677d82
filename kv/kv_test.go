package kv

import "testing"

func TestCompareInt(t *testing.T) {
	cases := []struct {
		a, b Key
		want int
	}{
		{IntKey(1), IntKey(2), -1},
		{IntKey(2), IntKey(1), 1},
		{IntKey(5), IntKey(5), 0},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		if err != nil {
			t.Fatalf("Compare(%v, %v): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestCompareString(t *testing.T) {
	got, err := Compare(StringKey("abc"), StringKey("abd"))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got != -1 {
		t.Errorf("Compare(abc, abd) = %d, want -1", got)
	}
}

func TestCompareMismatchedTags(t *testing.T) {
	_, err := Compare(IntKey(1), StringKey("1"))
	if err == nil {
		t.Fatal("expected an error comparing mismatched key tags")
	}
}

func TestValidate(t *testing.T) {
	schema := []FieldSchema{
		{Name: "name", Tag: TagString},
		{Name: "age", Tag: TagInt},
	}
	ok := Column{StringField("alice"), IntField(30)}
	if err := Validate(schema, ok); err != nil {
		t.Fatalf("Validate(valid column): %v", err)
	}

	wrongArity := Column{StringField("alice")}
	if err := Validate(schema, wrongArity); err == nil {
		t.Error("expected error for wrong field count")
	}

	wrongTag := Column{StringField("alice"), StringField("thirty")}
	if err := Validate(schema, wrongTag); err == nil {
		t.Error("expected error for mismatched field tag")
	}
}

func TestKeyEncodeDecodeRoundTrip(t *testing.T) {
	keys := []Key{IntKey(-42), FloatKey(3.25), StringKey("hello world")}
	for _, k := range keys {
		buf := AppendKey(nil, k)
		if len(buf) != k.EncodedLen() {
			t.Errorf("EncodedLen(%v) = %d, AppendKey wrote %d bytes", k, k.EncodedLen(), len(buf))
		}
		got, n, err := DecodeKey(buf)
		if err != nil {
			t.Fatalf("DecodeKey(%v): %v", k, err)
		}
		if n != len(buf) {
			t.Errorf("DecodeKey consumed %d bytes, want %d", n, len(buf))
		}
		if got != k {
			t.Errorf("DecodeKey round trip: got %v, want %v", got, k)
		}
	}
}

func TestColumnEncodeDecodeRoundTrip(t *testing.T) {
	col := Column{IntField(7), FloatField(1.5), BoolField(true), StringField("row")}
	buf := AppendColumn(nil, col)
	if len(buf) != ColumnEncodedLen(col) {
		t.Errorf("ColumnEncodedLen = %d, AppendColumn wrote %d bytes", ColumnEncodedLen(col), len(buf))
	}
	got, n, err := DecodeColumn(buf)
	if err != nil {
		t.Fatalf("DecodeColumn: %v", err)
	}
	if n != len(buf) {
		t.Errorf("DecodeColumn consumed %d bytes, want %d", n, len(buf))
	}
	if len(got) != len(col) {
		t.Fatalf("decoded %d fields, want %d", len(got), len(col))
	}
	for i := range col {
		if got[i] != col[i] {
			t.Errorf("field %d: got %v, want %v", i, got[i], col[i])
		}
	}
}

func TestDecodeKeyTruncated(t *testing.T) {
	buf := AppendKey(nil, StringKey("abc"))
	if _, _, err := DecodeKey(buf[:len(buf)-1]); err == nil {
		t.Error("expected error decoding a truncated string key")
	}
}
