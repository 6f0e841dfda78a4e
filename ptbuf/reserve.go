package ptbuf

import "fmt"

// Handle identifies a fixed-width field written ahead of its value.
type Handle struct {
	Pos   uint32
	Width int
}

// Reserve appends a zero-filled field of width bytes (1, 2 or 4) and returns
// a handle for patching it later.
func (b *Buffer) Reserve(width int) (Handle, error) {
	if !validWidth(width) {
		return Handle{}, fmt.Errorf("%w: width=%d", ErrBadHandle, width)
	}
	var zero [4]byte
	pos, err := b.Append(zero[:width])
	if err != nil {
		return Handle{}, err
	}
	return Handle{Pos: pos, Width: width}, nil
}

// Patch writes v into the field identified by h.
func (b *Buffer) Patch(h Handle, v uint32) error {
	if !validWidth(h.Width) {
		return fmt.Errorf("%w: width=%d", ErrBadHandle, h.Width)
	}
	if h.Width < 4 && v>>(8*uint(h.Width)) != 0 {
		return fmt.Errorf("%w: value=%d, width=%d", ErrFieldOverflow, v, h.Width)
	}
	switch h.Width {
	case 1:
		return b.PutUint8(h.Pos, uint8(v))
	case 2:
		return b.PutUint16(h.Pos, uint16(v))
	default:
		return b.PutUint32(h.Pos, v)
	}
}

func validWidth(width int) bool {
	return width == 1 || width == 2 || width == 4
}
