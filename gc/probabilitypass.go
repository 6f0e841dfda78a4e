package gc

import (
	"fmt"

	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptnode"
)

// ProbabilityMode selects how pass 1 treats terminal probabilities.
type ProbabilityMode int

const (
	// ProbabilityStatic leaves probabilities untouched; only non-terminals
	// without live children are useless.
	ProbabilityStatic ProbabilityMode = iota
	// ProbabilityDecay recomputes each terminal probability with the policy
	// and writes it back.
	ProbabilityDecay
	// ProbabilityRevalidate judges the stored, already decayed, probability
	// without decaying it again. Used after truncation.
	ProbabilityRevalidate
)

// ProbabilityPass decays terminal probabilities, marks useless nodes deleted
// and prunes terminal nodes whose children are all dead.
//
// A node is useless when it is not a terminal, or when its probability is
// invalid. Live children always make it useful.
type ProbabilityPass struct {
	w      *ptnode.Writer
	policy decay.Policy
	header *decay.HeaderPolicy
	mode   ProbabilityMode
	ctx    *LivenessContext

	// ValidUnigramCount counts every kept terminal, including structural
	// terminals kept only for their live children.
	ValidUnigramCount int
	// ScoredUnigramCount counts kept terminals whose probability is valid.
	ScoredUnigramCount int
	Deleted            int
}

func NewProbabilityPass(w *ptnode.Writer, policy decay.Policy, header *decay.HeaderPolicy, mode ProbabilityMode) *ProbabilityPass {
	return &ProbabilityPass{
		w:      w,
		policy: policy,
		header: header,
		mode:   mode,
		ctx:    NewLivenessContext(),
	}
}

func (*ProbabilityPass) Kind() PassKind { return PassProbability }

func (p *ProbabilityPass) OnDescend(arrayPos ptnode.Pos) error {
	p.ctx.Descend()
	return nil
}

func (p *ProbabilityPass) OnAscend() error {
	p.ctx.Ascend()
	return nil
}

func (p *ProbabilityPass) OnArrayTail() error { return nil }

func (p *ProbabilityPass) OnVisitNode(n *ptnode.Params) error {
	liveChildren := p.ctx.ChildrenLive()

	if n.IsDeleted() {
		if liveChildren > 0 {
			return fmt.Errorf("%w: deleted node %d has %d live children", ErrCorruption, n.HeadPos, liveChildren)
		}
		return nil
	}

	useless := !n.IsTerminal()
	scored := n.IsTerminal()
	if n.IsTerminal() && p.mode != ProbabilityStatic {
		prob := n.Probability
		if p.mode == ProbabilityDecay {
			var err error
			if prob, err = p.policy.ComputeDecayedProbability(n.Probability, p.header); err != nil {
				return fmt.Errorf("%w: node %d: %w", ErrPolicyFailure, n.HeadPos, err)
			}
			if err := p.w.UpdateProbability(n, prob); err != nil {
				return err
			}
		}
		if !p.policy.IsValidProbability(prob) {
			useless = true
			scored = false
		}
	}

	if liveChildren > 0 {
		useless = false
	} else if n.IsTerminal() && n.HasChildren() {
		if err := p.w.UpdateChildrenPosition(n, ptnode.NotADictPos); err != nil {
			return err
		}
	}

	if useless {
		p.Deleted++
		return p.w.MarkDeleted(n)
	}
	p.ctx.MarkLive()
	if n.IsTerminal() {
		p.ValidUnigramCount++
		if scored {
			p.ScoredUnigramCount++
		}
	}
	return nil
}
