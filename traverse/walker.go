package traverse

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-dictgc/ptnode"
)

var (
	ErrTooDeep = errors.New("traverse: trie deeper than the maximum word length")
	ErrLoop    = errors.New("traverse: node visit count exceeds what the buffer can hold")
)

// Listener receives traversal events. A non-nil error from any hook aborts
// the traversal immediately and is returned by the Walker unchanged.
type Listener interface {
	// OnDescend is called before the nodes of the array chain at arrayPos are visited.
	OnDescend(arrayPos ptnode.Pos) error
	// OnAscend is called after a children array chain has been fully handled,
	// on the way back to the parent level. It is not called for the root array.
	OnAscend() error
	// OnArrayTail is called once the last node of an array chain has been visited.
	OnArrayTail() error
	// OnVisitNode is called once per node.
	OnVisitNode(p *ptnode.Params) error
}

// Walker drives depth-first traversals of a trie over a ptnode.Reader.
type Walker struct {
	r        *ptnode.Reader
	maxDepth int

	visits    int
	maxVisits int
}

func NewWalker(r *ptnode.Reader) *Walker {
	return &Walker{r: r, maxDepth: ptnode.MaxWordLength}
}

func (w *Walker) reset() {
	w.visits = 0
	// the smallest record is larger than one byte, so this bounds any acyclic trie
	w.maxVisits = int(w.r.Buffer().Tail())
}

// PostorderDepthFirst visits each node after its children array chain.
//
// Event order for an array chain: OnDescend, then per node (children first:
// OnDescend ... OnArrayTail, OnAscend for the children chain, then
// OnVisitNode for the node), then OnArrayTail. Children of deleted nodes are
// still visited.
func (w *Walker) PostorderDepthFirst(root ptnode.Pos, l Listener) error {
	w.reset()
	return w.postorder(root, l, 0)
}

func (w *Walker) postorder(arrayPos ptnode.Pos, l Listener, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: at array %d", ErrTooDeep, arrayPos)
	}
	if err := l.OnDescend(arrayPos); err != nil {
		return err
	}
	err := w.r.ForEachNode(arrayPos, func(p *ptnode.Params) error {
		if err := w.count(); err != nil {
			return err
		}
		if p.HasChildren() {
			if err := w.postorder(p.ChildrenPos, l, depth+1); err != nil {
				return err
			}
			if err := l.OnAscend(); err != nil {
				return err
			}
		}
		return l.OnVisitNode(p)
	})
	if err != nil {
		return err
	}
	return l.OnArrayTail()
}

// ArrayLevelPreorderDepthFirst visits every node of an array chain, then
// signals the tail, then descends into the children of each node in order.
//
// Children positions are re-read after the whole array has been visited, so
// a listener that rewrites children positions during OnVisitNode steers the
// descent. Children of deleted nodes are not visited.
func (w *Walker) ArrayLevelPreorderDepthFirst(root ptnode.Pos, l Listener) error {
	w.reset()
	return w.preorder(root, l, 0)
}

func (w *Walker) preorder(arrayPos ptnode.Pos, l Listener, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: at array %d", ErrTooDeep, arrayPos)
	}
	if err := l.OnDescend(arrayPos); err != nil {
		return err
	}
	err := w.r.ForEachNode(arrayPos, func(p *ptnode.Params) error {
		if err := w.count(); err != nil {
			return err
		}
		return l.OnVisitNode(p)
	})
	if err != nil {
		return err
	}
	if err := l.OnArrayTail(); err != nil {
		return err
	}
	return w.r.ForEachNode(arrayPos, func(p *ptnode.Params) error {
		if p.IsDeleted() || !p.HasChildren() {
			return nil
		}
		if err := w.preorder(p.ChildrenPos, l, depth+1); err != nil {
			return err
		}
		return l.OnAscend()
	})
}

func (w *Walker) count() error {
	w.visits++
	if w.visits > w.maxVisits {
		return fmt.Errorf("%w: %d visits", ErrLoop, w.visits)
	}
	return nil
}
