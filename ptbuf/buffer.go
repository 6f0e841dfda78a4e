package ptbuf

import (
	"errors"
	"fmt"
)

var (
	ErrBufferFull    = errors.New("ptbuf: buffer capacity exceeded")
	ErrOutOfRange    = errors.New("ptbuf: position out of range")
	ErrBadHandle     = errors.New("ptbuf: reserved field handle invalid")
	ErrFieldOverflow = errors.New("ptbuf: value does not fit the reserved field width")
	ErrBadCapacity   = errors.New("ptbuf: capacity invalid")
)

// MaxCapacity is the largest arena size addressable by a 32 bit position
// (the all-ones value is reserved as the "no position" sentinel).
const MaxCapacity = int(^uint32(0) - 1)

// Buffer is an append-only arena with a fixed capacity.
type Buffer struct {
	data []byte
	tail uint32
}

// New returns an empty buffer able to hold capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity < 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrBadCapacity, capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Clone returns an independent copy of the used region, with the same capacity.
func (b *Buffer) Clone() *Buffer {
	data := make([]byte, len(b.data))
	copy(data, b.data[:b.tail])
	return &Buffer{data: data, tail: b.tail}
}

// Tail returns the position the next append will write at.
func (b *Buffer) Tail() uint32 { return b.tail }

// Remaining returns the number of bytes that can still be appended.
func (b *Buffer) Remaining() int { return len(b.data) - int(b.tail) }

// Bytes returns the used region. The slice aliases the arena.
func (b *Buffer) Bytes() []byte { return b.data[:b.tail] }

// Append copies p to the tail and returns the position it was written at.
func (b *Buffer) Append(p []byte) (uint32, error) {
	pos := b.tail
	if len(p) > b.Remaining() {
		return pos, fmt.Errorf("%w: need=%d, remaining=%d", ErrBufferFull, len(p), b.Remaining())
	}
	copy(b.data[pos:], p)
	b.tail += uint32(len(p))
	return pos, nil
}

// AppendUint32 appends v big-endian.
func (b *Buffer) AppendUint32(v uint32) (uint32, error) {
	var tmp [4]byte
	writeU32BE(tmp[:], v)
	return b.Append(tmp[:])
}

// Slice returns n used bytes starting at pos. The slice aliases the arena.
func (b *Buffer) Slice(pos uint32, n int) ([]byte, error) {
	if err := b.checkRange(pos, n); err != nil {
		return nil, err
	}
	return b.data[pos : pos+uint32(n)], nil
}

// Uint8 reads the byte at pos.
func (b *Buffer) Uint8(pos uint32) (uint8, error) {
	if err := b.checkRange(pos, 1); err != nil {
		return 0, err
	}
	return b.data[pos], nil
}

// Uint16 reads a big-endian uint16 at pos.
func (b *Buffer) Uint16(pos uint32) (uint16, error) {
	if err := b.checkRange(pos, 2); err != nil {
		return 0, err
	}
	return readU16BE(b.data[pos:]), nil
}

// Uint32 reads a big-endian uint32 at pos.
func (b *Buffer) Uint32(pos uint32) (uint32, error) {
	if err := b.checkRange(pos, 4); err != nil {
		return 0, err
	}
	return readU32BE(b.data[pos:]), nil
}

// PutUint8 overwrites the byte at pos.
func (b *Buffer) PutUint8(pos uint32, v uint8) error {
	if err := b.checkRange(pos, 1); err != nil {
		return err
	}
	b.data[pos] = v
	return nil
}

// PutUint16 overwrites a big-endian uint16 at pos.
func (b *Buffer) PutUint16(pos uint32, v uint16) error {
	if err := b.checkRange(pos, 2); err != nil {
		return err
	}
	writeU16BE(b.data[pos:], v)
	return nil
}

// PutUint32 overwrites a big-endian uint32 at pos.
func (b *Buffer) PutUint32(pos uint32, v uint32) error {
	if err := b.checkRange(pos, 4); err != nil {
		return err
	}
	writeU32BE(b.data[pos:], v)
	return nil
}

// PutBytes overwrites len(p) used bytes starting at pos.
func (b *Buffer) PutBytes(pos uint32, p []byte) error {
	if err := b.checkRange(pos, len(p)); err != nil {
		return err
	}
	copy(b.data[pos:], p)
	return nil
}

func (b *Buffer) checkRange(pos uint32, n int) error {
	if n < 0 || uint64(pos)+uint64(n) > uint64(b.tail) {
		return fmt.Errorf("%w: pos=%d, n=%d, tail=%d", ErrOutOfRange, pos, n, b.tail)
	}
	return nil
}
