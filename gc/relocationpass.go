package gc

import (
	"fmt"

	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
)

// RelocationPass copies every live node of the read buffer into a fresh
// write buffer, one array per chain, and records where everything went.
//
// The array-level preorder traversal closes each array chain (OnArrayTail)
// before opening the next, so a single pending size field is enough.
type RelocationPass struct {
	w *ptnode.Writer
	m *RelocationMap

	pending   ptbuf.Handle
	open      bool
	liveNodes int
}

func NewRelocationPass(w *ptnode.Writer, m *RelocationMap) *RelocationPass {
	return &RelocationPass{w: w, m: m}
}

func (*RelocationPass) Kind() PassKind { return PassRelocation }

func (r *RelocationPass) OnDescend(arrayPos ptnode.Pos) error {
	if r.open {
		return fmt.Errorf("%w: array %d opened before the previous array was closed", ErrCorruption, arrayPos)
	}
	r.liveNodes = 0
	if err := r.m.InsertArray(arrayPos, ptnode.Pos(r.w.Buffer().Tail())); err != nil {
		return err
	}
	h, err := r.w.ReserveArraySize()
	if err != nil {
		return err
	}
	r.pending = h
	r.open = true
	return nil
}

func (r *RelocationPass) OnAscend() error { return nil }

func (r *RelocationPass) OnVisitNode(n *ptnode.Params) error {
	if n.IsDeleted() {
		return r.m.InsertNode(n.HeadPos, NotPresent)
	}
	if err := r.m.InsertNode(n.HeadPos, ptnode.Pos(r.w.Buffer().Tail())); err != nil {
		return err
	}
	r.liveNodes++
	_, err := r.w.WriteNode(n)
	return err
}

func (r *RelocationPass) OnArrayTail() error {
	if !r.open {
		return fmt.Errorf("%w: array tail without an open array", ErrCorruption)
	}
	if _, err := r.w.AppendForwardLink(ptnode.NotADictPos); err != nil {
		return err
	}
	if err := r.w.PatchArraySize(r.pending, r.liveNodes); err != nil {
		return err
	}
	r.open = false
	return nil
}
