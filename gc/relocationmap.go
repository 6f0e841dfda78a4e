package gc

import (
	"fmt"

	"github.com/forestrie/go-dictgc/ptnode"
)

// NotPresent is the relocation target of a node that was dropped.
const NotPresent = ptnode.NotADictPos

// RelocationMap translates pre-compaction array and node positions to their
// post-compaction positions. It is built by RelocationPass and read by
// FixupPass, and it is never reused across runs.
type RelocationMap struct {
	arrays map[ptnode.Pos]ptnode.Pos
	nodes  map[ptnode.Pos]ptnode.Pos

	// new positions already handed out, to catch two old positions sharing one
	arrayTargets map[ptnode.Pos]struct{}
	nodeTargets  map[ptnode.Pos]struct{}
}

func NewRelocationMap() *RelocationMap {
	return &RelocationMap{
		arrays:       make(map[ptnode.Pos]ptnode.Pos),
		nodes:        make(map[ptnode.Pos]ptnode.Pos),
		arrayTargets: make(map[ptnode.Pos]struct{}),
		nodeTargets:  make(map[ptnode.Pos]struct{}),
	}
}

// InsertArray records that the array chain at from now starts at to.
func (m *RelocationMap) InsertArray(from, to ptnode.Pos) error {
	return insert(m.arrays, m.arrayTargets, "array", from, to)
}

// InsertNode records that the node headed at from now heads at to, or that
// it was dropped when to is NotPresent.
func (m *RelocationMap) InsertNode(from, to ptnode.Pos) error {
	return insert(m.nodes, m.nodeTargets, "node", from, to)
}

func insert(
	entries map[ptnode.Pos]ptnode.Pos, targets map[ptnode.Pos]struct{},
	what string, from, to ptnode.Pos) error {

	if from == ptnode.NotADictPos {
		return fmt.Errorf("%w: %s relocation from the no-position sentinel", ErrCorruption, what)
	}
	if _, ok := entries[from]; ok {
		return fmt.Errorf("%w: %s %d relocated twice", ErrCorruption, what, from)
	}
	if to != NotPresent {
		if _, ok := targets[to]; ok {
			return fmt.Errorf("%w: two %ss relocated to %d", ErrCorruption, what, to)
		}
		targets[to] = struct{}{}
	}
	entries[from] = to
	return nil
}

// NodePos returns the new head position for old. NotADictPos maps to itself
// and a dropped node maps to NotADictPos. A position never recorded is corruption.
func (m *RelocationMap) NodePos(old ptnode.Pos) (ptnode.Pos, error) {
	return lookup(m.nodes, "node", old)
}

// ArrayPos returns the new position of the array chain at old, with the same
// rules as NodePos.
func (m *RelocationMap) ArrayPos(old ptnode.Pos) (ptnode.Pos, error) {
	return lookup(m.arrays, "array", old)
}

func lookup(entries map[ptnode.Pos]ptnode.Pos, what string, old ptnode.Pos) (ptnode.Pos, error) {
	if old == ptnode.NotADictPos {
		return ptnode.NotADictPos, nil
	}
	to, ok := entries[old]
	if !ok {
		return ptnode.NotADictPos, fmt.Errorf("%w: no relocation for %s %d", ErrCorruption, what, old)
	}
	return to, nil
}

// Arrays returns the number of relocated arrays.
func (m *RelocationMap) Arrays() int { return len(m.arrays) }

// Nodes returns the number of relocated nodes, dropped ones excluded.
func (m *RelocationMap) Nodes() int { return len(m.nodeTargets) }

// Dropped returns the number of nodes recorded as not present.
func (m *RelocationMap) Dropped() int { return len(m.nodes) - len(m.nodeTargets) }

var _ ptnode.PositionMapper = (*RelocationMap)(nil)
