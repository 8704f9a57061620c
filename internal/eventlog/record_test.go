package eventlog

import "testing"

func TestRecordChecksumDetectsFlip(t *testing.T) {
	enc := EncodeRecord([]byte("hdr"), []byte("payload"))
	dec, ok := DecodeRecord(enc)
	if !ok || string(dec.Header) != "hdr" || string(dec.Payload) != "payload" {
		t.Fatalf("decode failed: %+v %v", dec, ok)
	}
	enc[2] ^= 0xff
	if _, ok := DecodeRecord(enc); ok {
		t.Fatalf("expected checksum failure")
	}
	if _, ok := DecodeRecord([]byte{0x7f, 0, 0, 0, 0}); ok {
		t.Fatalf("expected length failure")
	}
}

func TestKeysOrderByIndex(t *testing.T) {
	a := KeyLogEntry("s", 255)
	b := KeyLogEntry("s", 256)
	if string(a) >= string(b) {
		t.Fatalf("entry keys must sort by index")
	}
	low, high := entryBounds("s")
	if string(low) > string(a) || string(b) >= string(high) {
		t.Fatalf("bounds do not cover entries")
	}
	if string(KeyLogMeta("s")) >= string(low) && string(KeyLogMeta("s")) < string(high) {
		t.Fatalf("meta key must be outside entry bounds")
	}
}
