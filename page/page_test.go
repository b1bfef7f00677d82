package page

import "testing"

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, 3)
	p.Header.IndexID = 1
	p.Header.Level = 2
	p.Header.IsLeaf = true
	p.Header.NumberOfRecords = 7
	p.Header.PrevPage = 2
	p.Header.NextPage = 4
	p.Header.ParentPage = 9
	p.Header.ParentRecordOff = 64
	copy(p.Payload, []byte("hello payload"))

	raw, err := p.Serialize(cfg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(raw) != cfg.PageSize {
		t.Fatalf("Serialize produced %d bytes, want %d", len(raw), cfg.PageSize)
	}

	got, err := Deserialize(cfg, raw)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Header != p.Header {
		t.Errorf("header round trip: got %+v, want %+v", got.Header, p.Header)
	}
	if string(got.Payload[:13]) != "hello payload" {
		t.Errorf("payload round trip: got %q", got.Payload[:13])
	}
}

func TestDeserializeChecksumMismatch(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, 1)
	raw, err := p.Serialize(cfg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	raw[0] ^= 0xFF // corrupt a header byte without touching the checksum
	if _, err := Deserialize(cfg, raw); err == nil {
		t.Error("expected a checksum mismatch error")
	}
}

func TestSerializeRejectsWrongPayloadSize(t *testing.T) {
	cfg := DefaultConfig()
	p := &Page{Header: Header{PageID: 1}, Payload: make([]byte, 3)}
	if _, err := p.Serialize(cfg); err == nil {
		t.Error("expected an error serializing a page with the wrong payload size")
	}
}

func TestDeserializeRejectsWrongLength(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := Deserialize(cfg, make([]byte, cfg.PageSize-1)); err == nil {
		t.Error("expected an error deserializing a short buffer")
	}
}
