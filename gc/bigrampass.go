package gc

import (
	"fmt"

	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptnode"
)

// BigramPass drops bigram entries whose target is gone or invalid and counts
// the survivors. It must run after ProbabilityPass has committed its deletions.
type BigramPass struct {
	r        *ptnode.Reader
	w        *ptnode.Writer
	policy   decay.Policy
	header   *decay.HeaderPolicy
	decaying bool

	ValidBigramCount int
	Dropped          int
}

func NewBigramPass(r *ptnode.Reader, w *ptnode.Writer, policy decay.Policy, header *decay.HeaderPolicy) *BigramPass {
	return &BigramPass{
		r:        r,
		w:        w,
		policy:   policy,
		header:   header,
		decaying: header.IsDecayingDict(),
	}
}

func (*BigramPass) Kind() PassKind { return PassBigram }

func (*BigramPass) OnDescend(arrayPos ptnode.Pos) error { return nil }
func (*BigramPass) OnAscend() error                     { return nil }
func (*BigramPass) OnArrayTail() error                  { return nil }

func (b *BigramPass) OnVisitNode(n *ptnode.Params) error {
	if n.IsDeleted() || !n.HasBigrams() {
		return nil
	}
	before := len(n.Bigrams)
	kept, err := b.w.UpdateBigramList(n, b.keepEntry)
	if err != nil {
		return err
	}
	b.Dropped += before - kept
	b.ValidBigramCount += kept
	return nil
}

func (b *BigramPass) keepEntry(e ptnode.BigramEntry) (ptnode.BigramEntry, bool, error) {
	alive, err := b.targetAlive(e.TargetPos)
	if err != nil || !alive {
		return e, false, err
	}
	if !b.decaying {
		return e, true, nil
	}
	prob, err := b.policy.ComputeDecayedProbability(e.Probability, b.header)
	if err != nil {
		return e, false, fmt.Errorf("%w: bigram to %d: %w", ErrPolicyFailure, e.TargetPos, err)
	}
	if !b.policy.IsValidProbability(prob) {
		return e, false, nil
	}
	e.Probability = prob
	return e, true, nil
}

// targetAlive reports whether a bigram target is a live terminal. A target
// outside the buffer is treated as gone; a target that cannot be decoded is corruption.
func (b *BigramPass) targetAlive(pos ptnode.Pos) (bool, error) {
	if !b.r.Contains(pos) {
		return false, nil
	}
	t, err := b.r.ReadNode(pos)
	if err != nil {
		return false, fmt.Errorf("%w: bigram target %d: %w", ErrCorruption, pos, err)
	}
	if t.IsDeleted() || !t.IsTerminal() {
		return false, nil
	}
	if b.decaying {
		return b.policy.IsValidProbability(t.Probability), nil
	}
	return t.Probability != ptnode.NotAProbability, nil
}
