package gc

import (
	"cmp"
	"slices"

	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/forestrie/go-dictgc/traverse"
)

// unigramCandidate is a childless live terminal that truncation may delete.
type unigramCandidate struct {
	pos         ptnode.Pos
	probability int
}

// collectListener gathers nodes from an array-level preorder walk, which
// never enters the subtree of a deleted node.
type collectListener struct {
	visit func(n *ptnode.Params) error
}

func (collectListener) OnDescend(arrayPos ptnode.Pos) error  { return nil }
func (collectListener) OnAscend() error                      { return nil }
func (collectListener) OnArrayTail() error                   { return nil }
func (c collectListener) OnVisitNode(n *ptnode.Params) error { return c.visit(n) }

// TruncateUnigrams deletes the lowest-probability childless terminals until
// at most limit terminals with a valid probability would remain, ties going
// to the lower position. valid is that count as left by pass 1. It returns
// the number of nodes deleted. Callers re-run ProbabilityPass in
// ProbabilityRevalidate mode afterwards so that ancestors left without live
// children are deleted too.
func TruncateUnigrams(r *ptnode.Reader, w *ptnode.Writer, root ptnode.Pos, valid, limit int) (int, error) {
	excess := valid - limit
	if limit < 0 || excess <= 0 {
		return 0, nil
	}
	var candidates []unigramCandidate
	err := traverse.NewWalker(r).ArrayLevelPreorderDepthFirst(root, collectListener{
		visit: func(n *ptnode.Params) error {
			if !n.IsDeleted() && n.IsTerminal() && !n.HasChildren() {
				candidates = append(candidates, unigramCandidate{pos: n.HeadPos, probability: n.Probability})
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	slices.SortFunc(candidates, func(a, b unigramCandidate) int {
		if c := cmp.Compare(a.probability, b.probability); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	deleted := 0
	for _, c := range candidates[:min(excess, len(candidates))] {
		n, err := r.ReadNode(c.pos)
		if err != nil {
			return deleted, err
		}
		if err := w.MarkDeleted(n); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// bigramSlot identifies one entry of one bigram list.
type bigramSlot struct {
	source      ptnode.Pos
	index       int
	target      ptnode.Pos
	probability int
}

// TruncateBigrams removes the lowest-probability bigram entries of live nodes
// until at most limit remain, ties broken by source then target position. It
// returns the number of entries removed.
func TruncateBigrams(r *ptnode.Reader, w *ptnode.Writer, root ptnode.Pos, valid, limit int) (int, error) {
	excess := valid - limit
	if limit < 0 || excess <= 0 {
		return 0, nil
	}
	var slots []bigramSlot
	err := traverse.NewWalker(r).ArrayLevelPreorderDepthFirst(root, collectListener{
		visit: func(n *ptnode.Params) error {
			if n.IsDeleted() || !n.HasBigrams() {
				return nil
			}
			for i, e := range n.Bigrams {
				slots = append(slots, bigramSlot{
					source: n.HeadPos, index: i, target: e.TargetPos, probability: e.Probability})
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	slices.SortFunc(slots, func(a, b bigramSlot) int {
		if c := cmp.Compare(a.probability, b.probability); c != 0 {
			return c
		}
		if c := cmp.Compare(a.source, b.source); c != 0 {
			return c
		}
		if c := cmp.Compare(a.target, b.target); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})

	drop := make(map[ptnode.Pos]map[int]bool)
	for _, s := range slots[:min(excess, len(slots))] {
		if drop[s.source] == nil {
			drop[s.source] = make(map[int]bool)
		}
		drop[s.source][s.index] = true
	}

	sources := make([]ptnode.Pos, 0, len(drop))
	for pos := range drop {
		sources = append(sources, pos)
	}
	slices.Sort(sources)

	removed := 0
	for _, pos := range sources {
		n, err := r.ReadNode(pos)
		if err != nil {
			return removed, err
		}
		i := 0
		before := len(n.Bigrams)
		kept, err := w.UpdateBigramList(n, func(e ptnode.BigramEntry) (ptnode.BigramEntry, bool, error) {
			keep := !drop[pos][i]
			i++
			return e, keep, nil
		})
		if err != nil {
			return removed, err
		}
		removed += before - kept
	}
	return removed, nil
}
