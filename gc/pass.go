package gc

import (
	"fmt"

	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/forestrie/go-dictgc/traverse"
)

// PassKind identifies one of the four compaction passes.
type PassKind int

const (
	PassProbability PassKind = iota
	PassBigram
	PassRelocation
	PassFixup
)

func (k PassKind) String() string {
	switch k {
	case PassProbability:
		return "probability"
	case PassBigram:
		return "bigram"
	case PassRelocation:
		return "relocation"
	case PassFixup:
		return "fixup"
	}
	return fmt.Sprintf("PassKind(%d)", int(k))
}

// Pass is a traversal listener that knows which pass it implements.
type Pass interface {
	traverse.Listener
	Kind() PassKind
}

// Walk drives p over the trie rooted at root with the traversal order its
// kind requires. Probability resolution needs children before parents, so it
// runs postorder; the other passes run array-level preorder. Errors are
// classified into the package taxonomy.
func Walk(w *traverse.Walker, root ptnode.Pos, p Pass) error {
	var err error
	switch p.Kind() {
	case PassProbability:
		err = w.PostorderDepthFirst(root, p)
	case PassBigram, PassRelocation, PassFixup:
		err = w.ArrayLevelPreorderDepthFirst(root, p)
	default:
		return fmt.Errorf("%w: unknown pass %v", ErrCorruption, p.Kind())
	}
	if err != nil {
		return classify(fmt.Errorf("%v pass: %w", p.Kind(), err))
	}
	return nil
}
