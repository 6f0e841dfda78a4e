package gctesting

import (
	"errors"
	"fmt"
	"slices"

	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/stretchr/testify/require"
)

var (
	ErrDanglingReference = errors.New("gctesting: position field does not reference a live node")
	ErrBadLayout         = errors.New("gctesting: array layout is not compact")
)

// Entry is one live word found by Dump.
type Entry struct {
	Word        string
	Probability int
	HeadPos     ptnode.Pos
	// Bigrams maps target words to bigram probabilities.
	Bigrams map[string]int
}

// Dump returns every live terminal reachable from root, keyed by word.
// Deleted nodes and their subtrees are skipped.
func Dump(buf *ptbuf.Buffer, root ptnode.Pos) (map[string]Entry, error) {
	r := ptnode.NewReader(buf)
	out := map[string]Entry{}
	var walk func(arrayPos ptnode.Pos, prefix string, depth int) error
	walk = func(arrayPos ptnode.Pos, prefix string, depth int) error {
		if depth > ptnode.MaxWordLength {
			return fmt.Errorf("%w: trie deeper than %d", ErrBadLayout, ptnode.MaxWordLength)
		}
		return r.ForEachNode(arrayPos, func(p *ptnode.Params) error {
			if p.IsDeleted() {
				return nil
			}
			word := prefix + p.Label
			if p.IsTerminal() {
				e := Entry{Word: word, Probability: p.Probability, HeadPos: p.HeadPos, Bigrams: map[string]int{}}
				for _, b := range p.Bigrams {
					target, err := ptnode.WordAt(r, b.TargetPos)
					if err != nil {
						return fmt.Errorf("%w: bigram %q -> %d: %v", ErrDanglingReference, word, b.TargetPos, err)
					}
					e.Bigrams[target] = b.Probability
				}
				out[word] = e
			}
			if !p.HasChildren() {
				return nil
			}
			return walk(p.ChildrenPos, word, depth+1)
		})
	}
	if err := walk(root, "", 0); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckReferentialIntegrity verifies that every parent, children and bigram
// target position of a live node is either NotADictPos or references a live
// node (or, for children, a non-empty array) actually present in buf.
func CheckReferentialIntegrity(buf *ptbuf.Buffer, root ptnode.Pos) error {
	r := ptnode.NewReader(buf)
	heads := map[ptnode.Pos]*ptnode.Params{}
	var nodes []*ptnode.Params

	var walk func(arrayPos, parent ptnode.Pos, depth int) error
	walk = func(arrayPos, parent ptnode.Pos, depth int) error {
		if depth > ptnode.MaxWordLength {
			return fmt.Errorf("%w: trie deeper than %d", ErrBadLayout, ptnode.MaxWordLength)
		}
		count := 0
		err := r.ForEachNode(arrayPos, func(p *ptnode.Params) error {
			count++
			if p.IsDeleted() {
				return nil
			}
			if p.ParentPos != parent {
				return fmt.Errorf("%w: node %d has parent %d, owned by %d",
					ErrDanglingReference, p.HeadPos, p.ParentPos, parent)
			}
			heads[p.HeadPos] = p
			nodes = append(nodes, p)
			if !p.HasChildren() {
				return nil
			}
			return walk(p.ChildrenPos, p.HeadPos, depth+1)
		})
		if err != nil {
			return err
		}
		if parent != ptnode.NotADictPos && count == 0 {
			return fmt.Errorf("%w: node %d references an empty children array %d",
				ErrDanglingReference, parent, arrayPos)
		}
		return nil
	}
	if err := walk(root, ptnode.NotADictPos, 0); err != nil {
		return err
	}

	for _, p := range nodes {
		for _, b := range p.Bigrams {
			t, ok := heads[b.TargetPos]
			if !ok {
				return fmt.Errorf("%w: bigram of %d targets %d", ErrDanglingReference, p.HeadPos, b.TargetPos)
			}
			if !t.IsTerminal() {
				return fmt.Errorf("%w: bigram of %d targets non-terminal %d",
					ErrDanglingReference, p.HeadPos, b.TargetPos)
			}
		}
	}
	return nil
}

type span struct{ start, end uint32 }

// CheckCompacted verifies the shape compaction produces: every array's node
// count matches the records between its header and its forward link, the
// arrays tile the used region with no gaps, every forward link terminates,
// no record is flagged deleted and no bigram list carries slack.
func CheckCompacted(buf *ptbuf.Buffer, root ptnode.Pos) error {
	r := ptnode.NewReader(buf)
	var spans []span

	var walk func(arrayPos ptnode.Pos, depth int) error
	walk = func(arrayPos ptnode.Pos, depth int) error {
		if depth > ptnode.MaxWordLength {
			return fmt.Errorf("%w: trie deeper than %d", ErrBadLayout, ptnode.MaxWordLength)
		}
		count, pos, err := r.ReadArraySize(arrayPos)
		if err != nil {
			return err
		}
		var children []ptnode.Pos
		for i := 0; i < count; i++ {
			p, err := r.ReadNode(pos)
			if err != nil {
				return err
			}
			if p.IsDeleted() {
				return fmt.Errorf("%w: deleted node %d survived", ErrBadLayout, p.HeadPos)
			}
			if p.Flags&ptnode.FlagHasBigrams != 0 && p.BigramCapacity != len(p.Bigrams) {
				return fmt.Errorf("%w: node %d bigram capacity %d holds %d entries",
					ErrBadLayout, p.HeadPos, p.BigramCapacity, len(p.Bigrams))
			}
			if p.HasChildren() {
				children = append(children, p.ChildrenPos)
			}
			pos = p.NextSiblingPos()
		}
		link, err := r.ReadForwardLink(pos)
		if err != nil {
			return err
		}
		if link != ptnode.NotADictPos {
			return fmt.Errorf("%w: array %d is forward linked to %d", ErrBadLayout, arrayPos, link)
		}
		spans = append(spans, span{start: uint32(arrayPos), end: uint32(pos) + ptnode.ForwardLinkBytes})
		for _, c := range children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return err
	}

	slices.SortFunc(spans, func(a, b span) int { return int(a.start) - int(b.start) })
	next := uint32(0)
	for _, s := range spans {
		if s.start != next {
			return fmt.Errorf("%w: gap or overlap at %d, next array at %d", ErrBadLayout, next, s.start)
		}
		next = s.end
	}
	if next != buf.Tail() {
		return fmt.Errorf("%w: arrays end at %d, buffer tail is %d", ErrBadLayout, next, buf.Tail())
	}
	return nil
}

// RequireCompacted fails the test unless buf passes every structural check.
func (c *TestContext) RequireCompacted(buf *ptbuf.Buffer, root ptnode.Pos) {
	require.NoError(c.T, CheckReferentialIntegrity(buf, root))
	require.NoError(c.T, CheckCompacted(buf, root))
}

// Dump returns the live words of buf, failing the test on error.
func (c *TestContext) Dump(buf *ptbuf.Buffer, root ptnode.Pos) map[string]Entry {
	entries, err := Dump(buf, root)
	require.NoError(c.T, err)
	return entries
}
