package ptnode

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/forestrie/go-dictgc/ptbuf"
)

// WordEntry is a unigram and its outgoing bigrams, as given to Build.
type WordEntry struct {
	Word        string
	Probability int
	Bigrams     []BigramSpec
}

// BigramSpec names a bigram target by its word.
type BigramSpec struct {
	Word        string
	Probability int
}

type BuilderOptions struct {
	maxArrayNodes int
	bigramSlack   int
}

type BuilderOption func(*BuilderOptions)

// WithMaxArrayNodes splits sibling runs longer than n into arrays chained by
// forward links, the shape the update path produces when it extends an array.
func WithMaxArrayNodes(n int) BuilderOption {
	return func(opts *BuilderOptions) {
		opts.maxArrayNodes = n
	}
}

// WithBigramSlack allocates n unused bigram slots on every terminal that has
// bigrams, the shape left behind when entries are removed in place.
func WithBigramSlack(n int) BuilderOption {
	return func(opts *BuilderOptions) {
		opts.bigramSlack = n
	}
}

type memNode struct {
	label    string
	entry    *WordEntry
	children []*memNode

	headPos Pos
}

type pendingBigram struct {
	slotPos Pos
	target  string
}

// Builder serializes a word list as a patricia trie, appending to a buffer.
//
// Arrays are emitted in array-level preorder: a whole sibling array first,
// then the children arrays of each of its nodes in turn. Positions that are
// not known when a record is written (children arrays, bigram targets) are
// written as placeholders and patched once known.
type Builder struct {
	w    *Writer
	opts BuilderOptions

	byWord  map[string]*memNode
	pending []pendingBigram
}

func NewBuilder(buf *ptbuf.Buffer, opts ...BuilderOption) *Builder {
	b := &Builder{
		w:      NewWriter(buf),
		opts:   BuilderOptions{maxArrayNodes: MaxArrayNodes},
		byWord: map[string]*memNode{},
	}
	for _, o := range opts {
		o(&b.opts)
	}
	if b.opts.maxArrayNodes <= 0 || b.opts.maxArrayNodes > MaxArrayNodes {
		b.opts.maxArrayNodes = MaxArrayNodes
	}
	return b
}

// Build is a convenience for NewBuilder(buf, opts...).Build(words).
func Build(buf *ptbuf.Buffer, words []WordEntry, opts ...BuilderOption) (Pos, error) {
	return NewBuilder(buf, opts...).Build(words)
}

// Build writes the trie for words and returns the position of its root array.
func (b *Builder) Build(words []WordEntry) (Pos, error) {
	items := make([]suffix, 0, len(words))
	seen := make(map[string]bool, len(words))
	for i := range words {
		e := &words[i]
		if err := checkWord(e.Word); err != nil {
			return NotADictPos, err
		}
		if seen[e.Word] {
			return NotADictPos, fmt.Errorf("%w: %q", ErrDuplicateWord, e.Word)
		}
		if e.Probability < 0 || e.Probability > MaxProbability {
			return NotADictPos, fmt.Errorf("%w: %q: %d", ErrProbabilityBits, e.Word, e.Probability)
		}
		seen[e.Word] = true
		items = append(items, suffix{rest: e.Word, entry: e})
	}
	for _, e := range words {
		for _, bg := range e.Bigrams {
			if !seen[bg.Word] {
				return NotADictPos, fmt.Errorf("%w: %q -> %q", ErrUnknownWord, e.Word, bg.Word)
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].rest < items[j].rest })

	root, err := b.writeArray(buildLevel(items), NotADictPos)
	if err != nil {
		return NotADictPos, err
	}

	buf := b.w.Buffer()
	for _, pb := range b.pending {
		if err := buf.PutUint32(uint32(pb.slotPos), uint32(b.byWord[pb.target].headPos)); err != nil {
			return NotADictPos, err
		}
	}
	return root, nil
}

func (b *Builder) writeArray(nodes []*memNode, parent Pos) (Pos, error) {
	first := NotADictPos
	var link *ptbuf.Handle

	for start := 0; start == 0 || start < len(nodes); start += b.opts.maxArrayNodes {
		end := min(start+b.opts.maxArrayNodes, len(nodes))

		sizeField, err := b.w.ReserveArraySize()
		if err != nil {
			return NotADictPos, err
		}
		arrayPos := Pos(sizeField.Pos)
		if link != nil {
			if err := b.w.Buffer().Patch(*link, uint32(arrayPos)); err != nil {
				return NotADictPos, err
			}
		} else {
			first = arrayPos
		}
		for _, n := range nodes[start:end] {
			if err := b.writeNode(n, parent); err != nil {
				return NotADictPos, err
			}
		}
		if err := b.w.PatchArraySize(sizeField, end-start); err != nil {
			return NotADictPos, err
		}
		l, err := b.w.Buffer().Reserve(ForwardLinkBytes)
		if err != nil {
			return NotADictPos, err
		}
		link = &l
	}
	if err := b.w.Buffer().Patch(*link, uint32(NotADictPos)); err != nil {
		return NotADictPos, err
	}

	for _, n := range nodes {
		if len(n.children) == 0 {
			continue
		}
		childrenPos, err := b.writeArray(n.children, n.headPos)
		if err != nil {
			return NotADictPos, err
		}
		field := ptbuf.Handle{
			Pos:   uint32(n.headPos) + uint32(childrenFieldOffset(len(n.label), n.entry != nil)),
			Width: posBytes,
		}
		if err := b.w.Buffer().Patch(field, uint32(childrenPos)); err != nil {
			return NotADictPos, err
		}
	}
	return first, nil
}

func (b *Builder) writeNode(n *memNode, parent Pos) error {
	var flags Flags
	probability := NotAProbability
	var bigrams []BigramEntry
	capacity := 0
	if n.entry != nil {
		flags |= FlagTerminal
		probability = n.entry.Probability
		if len(n.entry.Bigrams) > 0 {
			bigrams = make([]BigramEntry, len(n.entry.Bigrams))
			for i, bg := range n.entry.Bigrams {
				bigrams[i] = BigramEntry{TargetPos: NotADictPos, Probability: bg.Probability}
			}
			capacity = min(len(bigrams)+b.opts.bigramSlack, MaxBigramEntries)
		}
	}
	rec, err := encodeRecord(flags, parent, n.label, probability, NotADictPos, bigrams, capacity)
	if err != nil {
		return err
	}
	head, err := b.w.Buffer().Append(rec)
	if err != nil {
		return err
	}
	n.headPos = Pos(head)
	if n.entry == nil {
		return nil
	}
	b.byWord[n.entry.Word] = n
	for i, bg := range n.entry.Bigrams {
		b.pending = append(b.pending, pendingBigram{
			slotPos: n.headPos + Pos(bigramSlotOffset(len(n.label), true, i)),
			target:  bg.Word,
		})
	}
	return nil
}

type suffix struct {
	rest  string
	entry *WordEntry
}

// buildLevel groups sorted suffixes by their first character into sibling nodes.
func buildLevel(items []suffix) []*memNode {
	var nodes []*memNode
	for i := 0; i < len(items); {
		r, _ := utf8.DecodeRuneInString(items[i].rest)
		j := i + 1
		for j < len(items) {
			rj, _ := utf8.DecodeRuneInString(items[j].rest)
			if rj != r {
				break
			}
			j++
		}
		nodes = append(nodes, buildNode(items[i:j]))
		i = j
	}
	return nodes
}

func buildNode(group []suffix) *memNode {
	label := commonPrefix(group)
	n := &memNode{label: label}
	var rest []suffix
	for _, it := range group {
		tail := it.rest[len(label):]
		if tail == "" {
			n.entry = it.entry
			continue
		}
		rest = append(rest, suffix{rest: tail, entry: it.entry})
	}
	n.children = buildLevel(rest)
	return n
}

// commonPrefix returns the longest common prefix of the group, cut to a
// character boundary and to MaxLabelBytes.
func commonPrefix(group []suffix) string {
	prefix := group[0].rest
	for _, it := range group[1:] {
		n := 0
		for n < len(prefix) && n < len(it.rest) && prefix[n] == it.rest[n] {
			n++
		}
		prefix = prefix[:n]
	}
	if len(prefix) > MaxLabelBytes {
		prefix = prefix[:MaxLabelBytes]
	}
	for len(prefix) > 0 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func checkWord(word string) error {
	if word == "" {
		return ErrEmptyWord
	}
	if !utf8.ValidString(word) || utf8.RuneCountInString(word) > MaxWordLength {
		return fmt.Errorf("%w: %q", ErrInvalidWord, word)
	}
	return nil
}
