package ptnode

import (
	"fmt"

	"github.com/forestrie/go-dictgc/ptbuf"
)

// BigramFilter decides the fate of one bigram entry during a list rewrite.
// It returns the (possibly updated) entry and whether to keep it.
type BigramFilter func(e BigramEntry) (BigramEntry, bool, error)

// PositionMapper translates pre-compaction positions to post-compaction positions.
type PositionMapper interface {
	NodePos(old Pos) (Pos, error)
	ArrayPos(old Pos) (Pos, error)
}

// Writer encodes PtNode records into a buffer and updates them in place.
type Writer struct {
	buf *ptbuf.Buffer
}

func NewWriter(buf *ptbuf.Buffer) *Writer {
	return &Writer{buf: buf}
}

// Buffer returns the underlying buffer.
func (w *Writer) Buffer() *ptbuf.Buffer { return w.buf }

// ReserveArraySize appends a zero node-count field for an array whose size
// is not yet known.
func (w *Writer) ReserveArraySize() (ptbuf.Handle, error) {
	return w.buf.Reserve(ArraySizeBytes)
}

// PatchArraySize fills a reserved node-count field.
func (w *Writer) PatchArraySize(h ptbuf.Handle, count int) error {
	if count < 0 || count > MaxArrayNodes {
		return fmt.Errorf("%w: %d", ErrTooManyNodes, count)
	}
	return w.buf.Patch(h, uint32(count))
}

// AppendForwardLink appends the forward-link field that ends an array.
func (w *Writer) AppendForwardLink(next Pos) (Pos, error) {
	pos, err := w.buf.AppendUint32(uint32(next))
	return Pos(pos), err
}

// WriteNode appends the record described by p at the tail and returns its
// head position. The bigram list is written compact (capacity == count) and
// the deleted flag is never carried over.
func (w *Writer) WriteNode(p *Params) (Pos, error) {
	rec, err := encodeRecord(p.Flags&^FlagDeleted, p.ParentPos, p.Label, p.Probability, p.ChildrenPos, p.Bigrams, len(p.Bigrams))
	if err != nil {
		return NotADictPos, err
	}
	pos, err := w.buf.Append(rec)
	return Pos(pos), err
}

// UpdateProbability overwrites the probability of a terminal record.
func (w *Writer) UpdateProbability(p *Params, probability int) error {
	if !p.IsTerminal() {
		return fmt.Errorf("%w: at %d", ErrNotTerminal, p.HeadPos)
	}
	if err := checkProbability(probability); err != nil {
		return err
	}
	if err := w.buf.PutUint16(uint32(p.probabilityPos), uint16(int16(probability))); err != nil {
		return err
	}
	p.Probability = probability
	return nil
}

// UpdateChildrenPosition overwrites the children position of a record.
func (w *Writer) UpdateChildrenPosition(p *Params, childrenPos Pos) error {
	if err := w.buf.PutUint32(uint32(p.childrenPosPos), uint32(childrenPos)); err != nil {
		return err
	}
	p.ChildrenPos = childrenPos
	return nil
}

// UpdateParentPosition overwrites the parent position of a record.
func (w *Writer) UpdateParentPosition(p *Params, parentPos Pos) error {
	if err := w.buf.PutUint32(uint32(p.HeadPos)+flagsBytes, uint32(parentPos)); err != nil {
		return err
	}
	p.ParentPos = parentPos
	return nil
}

// MarkDeleted sets the deleted flag of a record.
func (w *Writer) MarkDeleted(p *Params) error {
	flags := p.Flags | FlagDeleted
	if err := w.buf.PutUint8(uint32(p.HeadPos), uint8(flags)); err != nil {
		return err
	}
	p.Flags = flags
	return nil
}

// UpdateBigramList rewrites the bigram list of p in place, keeping the
// entries accepted by keep (in their original order). The list capacity is
// unchanged; freed slots are zeroed. It returns the number of surviving entries.
func (w *Writer) UpdateBigramList(p *Params, keep BigramFilter) (int, error) {
	if p.bigramPos == NotADictPos {
		return 0, fmt.Errorf("%w: at %d", ErrNoBigramList, p.HeadPos)
	}
	kept := make([]BigramEntry, 0, len(p.Bigrams))
	for _, e := range p.Bigrams {
		updated, ok, err := keep(e)
		if err != nil {
			return 0, err
		}
		if ok {
			kept = append(kept, updated)
		}
	}
	if err := w.writeBigramSlots(p, kept); err != nil {
		return 0, err
	}
	p.Bigrams = kept
	return len(kept), nil
}

// UpdateAllPositionFields rewrites the parent, children and bigram target
// positions of p through m. It returns the number of bigram entries.
func (w *Writer) UpdateAllPositionFields(p *Params, m PositionMapper) (int, error) {
	if p.ParentPos != NotADictPos {
		parent, err := m.NodePos(p.ParentPos)
		if err != nil {
			return 0, fmt.Errorf("parent of %d: %w", p.HeadPos, err)
		}
		if err := w.UpdateParentPosition(p, parent); err != nil {
			return 0, err
		}
	}
	if p.ChildrenPos != NotADictPos {
		children, err := m.ArrayPos(p.ChildrenPos)
		if err != nil {
			return 0, fmt.Errorf("children of %d: %w", p.HeadPos, err)
		}
		if err := w.UpdateChildrenPosition(p, children); err != nil {
			return 0, err
		}
	}
	if p.bigramPos == NotADictPos {
		return 0, nil
	}
	entries := make([]BigramEntry, len(p.Bigrams))
	for i, e := range p.Bigrams {
		target, err := m.NodePos(e.TargetPos)
		if err != nil {
			return 0, fmt.Errorf("bigram %d of %d: %w", i, p.HeadPos, err)
		}
		entries[i] = BigramEntry{TargetPos: target, Probability: e.Probability}
	}
	if err := w.writeBigramSlots(p, entries); err != nil {
		return 0, err
	}
	p.Bigrams = entries
	return len(entries), nil
}

func (w *Writer) writeBigramSlots(p *Params, entries []BigramEntry) error {
	if len(entries) > p.BigramCapacity {
		return fmt.Errorf("%w: %d entries, capacity %d", ErrTooManyBigrams, len(entries), p.BigramCapacity)
	}
	slots := make([]byte, bigramHdrBytes+p.BigramCapacity*BigramEntryBytes)
	slots[0] = uint8(p.BigramCapacity)
	slots[1] = uint8(len(entries))
	for i, e := range entries {
		if err := checkProbability(e.Probability); err != nil {
			return err
		}
		putBigramEntry(slots[bigramHdrBytes+i*BigramEntryBytes:], e)
	}
	return w.buf.PutBytes(uint32(p.bigramPos), slots)
}

func checkProbability(probability int) error {
	if probability < NotAProbability || probability > MaxProbability {
		return fmt.Errorf("%w: %d", ErrProbabilityBits, probability)
	}
	return nil
}
