package ptnode

import "errors"

// Pos is a byte offset into a trie buffer.
type Pos uint32

// NotADictPos is the "no position" sentinel (absent parent, no children, end of a forward-link chain).
const NotADictPos = ^Pos(0)

// NotAProbability is the invalid probability sentinel.
const NotAProbability = -1

// Flags is the per-record flag byte.
type Flags uint8

const (
	FlagTerminal   Flags = 0x01
	FlagHasBigrams Flags = 0x02
	FlagDeleted    Flags = 0x80
)

const (
	// ArraySizeBytes is the width of the node-count field that heads a PtNode array.
	ArraySizeBytes = 2
	// ForwardLinkBytes is the width of the forward-link field that ends a PtNode array.
	ForwardLinkBytes = 4

	// MaxArrayNodes is the largest node count an array header can carry.
	MaxArrayNodes = 1<<(8*ArraySizeBytes) - 1
	// MaxLabelBytes is the largest encoded label.
	MaxLabelBytes = 255
	// MaxBigramEntries is the largest bigram list capacity.
	MaxBigramEntries = 255

	// MaxProbability is the largest probability the int16 field can carry.
	MaxProbability = 1<<15 - 1

	// MaxWordLength bounds trie depth (one node per character at worst).
	MaxWordLength = 48

	flagsBytes       = 1
	posBytes         = 4
	labelLenBytes    = 1
	probabilityBytes = 2
	bigramHdrBytes   = 2

	// BigramEntryBytes is the width of one bigram list slot (target pos + probability).
	BigramEntryBytes = posBytes + probabilityBytes
)

var (
	ErrBadRecord       = errors.New("ptnode: malformed PtNode record")
	ErrBadArray        = errors.New("ptnode: malformed PtNode array")
	ErrLabelSize       = errors.New("ptnode: label size invalid")
	ErrTooManyNodes    = errors.New("ptnode: too many nodes for one PtNode array")
	ErrTooManyBigrams  = errors.New("ptnode: too many bigram entries for one PtNode")
	ErrNotTerminal     = errors.New("ptnode: PtNode is not a terminal")
	ErrNoBigramList    = errors.New("ptnode: PtNode has no bigram list")
	ErrProbabilityBits = errors.New("ptnode: probability does not fit the probability field")
	ErrForwardLinkLoop = errors.New("ptnode: forward-link chain does not terminate")

	ErrEmptyWord     = errors.New("ptnode: empty word")
	ErrInvalidWord   = errors.New("ptnode: word is not valid UTF-8 or is too long")
	ErrDuplicateWord = errors.New("ptnode: duplicate word")
	ErrUnknownWord   = errors.New("ptnode: bigram target is not a known word")
	ErrWordNotFound  = errors.New("ptnode: word not found")
)

// BigramEntry is one slot of a bigram list.
type BigramEntry struct {
	TargetPos   Pos
	Probability int
}
