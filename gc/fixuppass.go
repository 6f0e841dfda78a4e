package gc

import (
	"github.com/forestrie/go-dictgc/ptnode"
)

// FixupPass rewrites the parent, children and bigram target positions of
// every node in the write buffer through the relocation mapping, and totals
// the unigrams and bigram entries that made it across.
type FixupPass struct {
	w *ptnode.Writer
	m ptnode.PositionMapper

	UnigramCount int
	BigramCount  int
}

func NewFixupPass(w *ptnode.Writer, m ptnode.PositionMapper) *FixupPass {
	return &FixupPass{w: w, m: m}
}

func (*FixupPass) Kind() PassKind { return PassFixup }

func (*FixupPass) OnDescend(arrayPos ptnode.Pos) error { return nil }
func (*FixupPass) OnAscend() error                     { return nil }
func (*FixupPass) OnArrayTail() error                  { return nil }

func (f *FixupPass) OnVisitNode(n *ptnode.Params) error {
	bigrams, err := f.w.UpdateAllPositionFields(n, f.m)
	if err != nil {
		return err
	}
	if n.IsTerminal() {
		f.UnigramCount++
	}
	f.BigramCount += bigrams
	return nil
}
