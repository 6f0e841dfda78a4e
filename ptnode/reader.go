package ptnode

import (
	"fmt"

	"github.com/forestrie/go-dictgc/ptbuf"
)

// Reader decodes PtNode arrays and records from a buffer.
type Reader struct {
	buf *ptbuf.Buffer
}

func NewReader(buf *ptbuf.Buffer) *Reader {
	return &Reader{buf: buf}
}

// Buffer returns the underlying buffer.
func (r *Reader) Buffer() *ptbuf.Buffer { return r.buf }

// Contains reports whether pos is inside the used region of the buffer.
func (r *Reader) Contains(pos Pos) bool {
	return pos != NotADictPos && uint32(pos) < r.buf.Tail()
}

// ReadArraySize returns the node count of the array at arrayPos and the head
// position of its first node.
func (r *Reader) ReadArraySize(arrayPos Pos) (int, Pos, error) {
	n, err := r.buf.Uint16(uint32(arrayPos))
	if err != nil {
		return 0, NotADictPos, fmt.Errorf("%w: array size at %d: %v", ErrBadArray, arrayPos, err)
	}
	return int(n), arrayPos + ArraySizeBytes, nil
}

// ReadForwardLink reads the forward-link field at pos.
func (r *Reader) ReadForwardLink(pos Pos) (Pos, error) {
	v, err := r.buf.Uint32(uint32(pos))
	if err != nil {
		return NotADictPos, fmt.Errorf("%w: forward link at %d: %v", ErrBadArray, pos, err)
	}
	return Pos(v), nil
}

// ReadNode decodes the record whose head is at headPos.
func (r *Reader) ReadNode(headPos Pos) (*Params, error) {
	p := &Params{HeadPos: headPos, Probability: NotAProbability}
	pos := uint32(headPos)

	flags, err := r.buf.Uint8(pos)
	if err != nil {
		return nil, r.recordErr(headPos, err)
	}
	p.Flags = Flags(flags)
	pos += flagsBytes

	parent, err := r.buf.Uint32(pos)
	if err != nil {
		return nil, r.recordErr(headPos, err)
	}
	p.ParentPos = Pos(parent)
	pos += posBytes

	labelLen, err := r.buf.Uint8(pos)
	if err != nil {
		return nil, r.recordErr(headPos, err)
	}
	if labelLen == 0 {
		return nil, fmt.Errorf("%w: empty label at %d", ErrBadRecord, headPos)
	}
	pos += labelLenBytes
	label, err := r.buf.Slice(pos, int(labelLen))
	if err != nil {
		return nil, r.recordErr(headPos, err)
	}
	p.Label = string(label)
	pos += uint32(labelLen)

	if p.IsTerminal() {
		prob, err := r.buf.Uint16(pos)
		if err != nil {
			return nil, r.recordErr(headPos, err)
		}
		p.probabilityPos = Pos(pos)
		p.Probability = int(int16(prob))
		pos += probabilityBytes
	}

	children, err := r.buf.Uint32(pos)
	if err != nil {
		return nil, r.recordErr(headPos, err)
	}
	p.childrenPosPos = Pos(pos)
	p.ChildrenPos = Pos(children)
	pos += posBytes

	p.bigramPos = NotADictPos
	if p.Flags&FlagHasBigrams != 0 {
		p.bigramPos = Pos(pos)
		capacity, err := r.buf.Uint8(pos)
		if err != nil {
			return nil, r.recordErr(headPos, err)
		}
		count, err := r.buf.Uint8(pos + 1)
		if err != nil {
			return nil, r.recordErr(headPos, err)
		}
		if count > capacity {
			return nil, fmt.Errorf("%w: bigram count %d exceeds capacity %d at %d",
				ErrBadRecord, count, capacity, headPos)
		}
		pos += bigramHdrBytes
		p.BigramCapacity = int(capacity)
		p.Bigrams = make([]BigramEntry, 0, count)
		for i := 0; i < int(count); i++ {
			e, err := r.readBigramEntry(pos + uint32(i*BigramEntryBytes))
			if err != nil {
				return nil, r.recordErr(headPos, err)
			}
			p.Bigrams = append(p.Bigrams, e)
		}
		pos += uint32(int(capacity) * BigramEntryBytes)
		if pos > r.buf.Tail() {
			return nil, fmt.Errorf("%w: bigram slots overrun the buffer at %d", ErrBadRecord, headPos)
		}
	}

	p.Size = int(pos - uint32(headPos))
	return p, nil
}

func (r *Reader) readBigramEntry(pos uint32) (BigramEntry, error) {
	target, err := r.buf.Uint32(pos)
	if err != nil {
		return BigramEntry{}, err
	}
	prob, err := r.buf.Uint16(pos + posBytes)
	if err != nil {
		return BigramEntry{}, err
	}
	return BigramEntry{TargetPos: Pos(target), Probability: int(int16(prob))}, nil
}

func (r *Reader) recordErr(headPos Pos, err error) error {
	return fmt.Errorf("%w: record at %d: %v", ErrBadRecord, headPos, err)
}

// ForEachNode calls fn for every record of the array chain starting at
// arrayPos, following forward links. The records are read one at a time, so
// fn may update the record it is given in place.
func (r *Reader) ForEachNode(arrayPos Pos, fn func(p *Params) error) error {
	// every array costs at least its header, so a chain longer than the buffer is a loop
	maxLinks := int(r.buf.Tail())/(ArraySizeBytes+ForwardLinkBytes) + 1
	for links := 0; arrayPos != NotADictPos; links++ {
		if links > maxLinks {
			return fmt.Errorf("%w: starting at %d", ErrForwardLinkLoop, arrayPos)
		}
		count, pos, err := r.ReadArraySize(arrayPos)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			p, err := r.ReadNode(pos)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
			pos = p.NextSiblingPos()
		}
		arrayPos, err = r.ReadForwardLink(pos)
		if err != nil {
			return err
		}
	}
	return nil
}
