package ptnode

import (
	"encoding/binary"
	"fmt"
)

// encodeRecord returns the encoded record. capacity >= len(bigrams) slots are
// allocated for the bigram list; a zero capacity omits the list (and clears
// FlagHasBigrams).
func encodeRecord(
	flags Flags, parent Pos, label string, probability int, children Pos,
	bigrams []BigramEntry, capacity int) ([]byte, error) {

	if len(label) == 0 || len(label) > MaxLabelBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrLabelSize, len(label))
	}
	if capacity < len(bigrams) || capacity > MaxBigramEntries {
		return nil, fmt.Errorf("%w: %d entries, capacity %d", ErrTooManyBigrams, len(bigrams), capacity)
	}
	if capacity > 0 {
		flags |= FlagHasBigrams
	} else {
		flags &^= FlagHasBigrams
	}
	terminal := flags&FlagTerminal != 0
	if terminal {
		if err := checkProbability(probability); err != nil {
			return nil, err
		}
	}

	rec := make([]byte, RecordBytes(len(label), terminal, capacity, capacity > 0))
	off := 0
	rec[off] = uint8(flags)
	off += flagsBytes
	binary.BigEndian.PutUint32(rec[off:], uint32(parent))
	off += posBytes
	rec[off] = uint8(len(label))
	off += labelLenBytes
	off += copy(rec[off:], label)
	if terminal {
		binary.BigEndian.PutUint16(rec[off:], uint16(int16(probability)))
		off += probabilityBytes
	}
	binary.BigEndian.PutUint32(rec[off:], uint32(children))
	off += posBytes
	if capacity > 0 {
		rec[off] = uint8(capacity)
		rec[off+1] = uint8(len(bigrams))
		off += bigramHdrBytes
		for i, e := range bigrams {
			if err := checkProbability(e.Probability); err != nil {
				return nil, err
			}
			putBigramEntry(rec[off+i*BigramEntryBytes:], e)
		}
	}
	return rec, nil
}

func putBigramEntry(dst []byte, e BigramEntry) {
	binary.BigEndian.PutUint32(dst, uint32(e.TargetPos))
	binary.BigEndian.PutUint16(dst[posBytes:], uint16(int16(e.Probability)))
}

// childrenFieldOffset returns the offset of the children-position field
// within a record.
func childrenFieldOffset(labelBytes int, terminal bool) int {
	off := flagsBytes + posBytes + labelLenBytes + labelBytes
	if terminal {
		off += probabilityBytes
	}
	return off
}

// bigramSlotOffset returns the offset of bigram slot i within a record.
func bigramSlotOffset(labelBytes int, terminal bool, i int) int {
	return childrenFieldOffset(labelBytes, terminal) + posBytes + bigramHdrBytes + i*BigramEntryBytes
}
