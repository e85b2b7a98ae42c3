// Package guestram provides the flat, bounds-checked guest memory image a
// translation unit operates over. Unlike the paged, access-controlled RAM
// model it is descended from, this is deliberately a single contiguous
// []byte: the core's non-goals exclude modeling privileged or
// memory-mapped I/O, so there is no page table, no per-page access mode,
// and no wraparound addressing to get right.
package guestram

import "fmt"

// RAM is a fixed-size guest memory image. It is safe for concurrent reads
// but, like the rest of this module, assumes a single writer: the tagger
// and recompiler only ever read through it, and a host embedding a
// translation unit is expected to serialize its own writes against runs.
type RAM struct {
	bytes []byte
}

// New allocates a zeroed RAM image of size bytes.
func New(size int) *RAM {
	return &RAM{bytes: make([]byte, size)}
}

// NewFromImage wraps an existing byte slice directly, without copying.
// Mutations through the returned RAM are visible in image and vice versa.
func NewFromImage(image []byte) *RAM {
	return &RAM{bytes: image}
}

// Len reports the size of the image in bytes.
func (r *RAM) Len() int { return len(r.bytes) }

// Bytes returns the backing slice, for passing directly to a compiled
// function's ram argument.
func (r *RAM) Bytes() []byte { return r.bytes }

// ByteAt reads one byte, reporting whether addr fell inside the image.
// This satisfies the read signature every tagger, recompiler and
// arch.UnitView expects: (byte, ok), never a panic on an out-of-range
// address, since the tagger probes speculatively past the region it has
// confirmed is code.
func (r *RAM) ByteAt(addr uint64) (byte, bool) {
	if addr >= uint64(len(r.bytes)) {
		return 0, false
	}
	return r.bytes[addr], true
}

// Load copies img into the image starting at offset, returning an error
// instead of panicking if img would run past the end of the image — the
// guest program image is host-supplied, and a too-large image is a
// caller mistake, not a guest fault.
func (r *RAM) Load(offset uint64, img []byte) error {
	end := offset + uint64(len(img))
	if end > uint64(len(r.bytes)) {
		return fmt.Errorf("guestram: load of %d byte(s) at %#x overruns %d byte image", len(img), offset, len(r.bytes))
	}
	copy(r.bytes[offset:end], img)
	return nil
}

// StoreByte writes a single byte at addr, reporting whether addr fell
// inside the image.
func (r *RAM) StoreByte(addr uint64, v byte) bool {
	if addr >= uint64(len(r.bytes)) {
		return false
	}
	r.bytes[addr] = v
	return true
}

// Range returns a view (not a copy) of the image from start to end.
func (r *RAM) Range(start, end uint64) ([]byte, bool) {
	if end > uint64(len(r.bytes)) || start > end {
		return nil, false
	}
	return r.bytes[start:end], true
}
