package ptnode

// Params is a decoded PtNode record together with the positions of its
// mutable fields. It is a snapshot: writers update both the buffer and the
// snapshot they were given, but a Params read before another writer touched
// the record is stale.
type Params struct {
	HeadPos     Pos
	Flags       Flags
	ParentPos   Pos
	Label       string
	Probability int
	ChildrenPos Pos

	BigramCapacity int
	Bigrams        []BigramEntry

	// Size is the encoded size of the record in bytes.
	Size int

	probabilityPos Pos
	childrenPosPos Pos
	bigramPos      Pos
}

func (p *Params) IsTerminal() bool  { return p.Flags&FlagTerminal != 0 }
func (p *Params) IsDeleted() bool   { return p.Flags&FlagDeleted != 0 }
func (p *Params) HasBigrams() bool  { return p.Flags&FlagHasBigrams != 0 && len(p.Bigrams) > 0 }
func (p *Params) HasChildren() bool { return p.ChildrenPos != NotADictPos }

// NextSiblingPos returns the position immediately after the record.
func (p *Params) NextSiblingPos() Pos { return p.HeadPos + Pos(p.Size) }

// RecordBytes returns the encoded size of a record with the given shape.
func RecordBytes(labelBytes int, terminal bool, bigramCapacity int, hasBigramList bool) int {
	n := flagsBytes + posBytes + labelLenBytes + labelBytes + posBytes
	if terminal {
		n += probabilityBytes
	}
	if hasBigramList {
		n += bigramHdrBytes + bigramCapacity*BigramEntryBytes
	}
	return n
}
