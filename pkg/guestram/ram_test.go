package guestram

import "testing"

func TestLoadAndByteAt(t *testing.T) {
	r := New(16)
	if err := r.Load(4, []byte{0xA9, 0x01}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, ok := r.ByteAt(4)
	if !ok || b != 0xA9 {
		t.Errorf("expected byte 0xA9 at addr 4, got %#x ok=%v", b, ok)
	}
	if _, ok := r.ByteAt(16); ok {
		t.Errorf("expected out-of-range read at addr 16 to report ok=false")
	}
}

func TestLoadOverrunRejected(t *testing.T) {
	r := New(4)
	if err := r.Load(2, []byte{1, 2, 3}); err == nil {
		t.Errorf("expected error loading past end of image")
	}
}

func TestStoreByte(t *testing.T) {
	r := New(4)
	if !r.StoreByte(2, 0x42) {
		t.Fatalf("expected StoreByte at addr 2 to succeed")
	}
	if r.StoreByte(4, 0x42) {
		t.Errorf("expected StoreByte at addr 4 (out of range) to fail")
	}
	b, _ := r.ByteAt(2)
	if b != 0x42 {
		t.Errorf("expected 0x42 at addr 2, got %#x", b)
	}
}

func TestRange(t *testing.T) {
	r := NewFromImage([]byte{1, 2, 3, 4})
	v, ok := r.Range(1, 3)
	if !ok || len(v) != 2 || v[0] != 2 || v[1] != 3 {
		t.Errorf("unexpected range result %v ok=%v", v, ok)
	}
	if _, ok := r.Range(0, 5); ok {
		t.Errorf("expected out-of-range slice to report ok=false")
	}
}
