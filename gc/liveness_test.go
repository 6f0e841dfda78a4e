package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLivenessContext(t *testing.T) {
	c := NewLivenessContext()
	assert.Equal(t, -1, c.Depth())
	assert.Equal(t, 0, c.ChildrenLive())

	// postorder events for root [x -> {y, z}, w]
	c.Descend() // root
	assert.Equal(t, 0, c.Depth())
	c.Descend()  // children of x
	c.MarkLive() // y
	c.MarkLive() // z
	assert.Equal(t, 2, c.LiveAtDepth())
	c.Ascend()

	// visiting x reads and consumes its children count
	assert.Equal(t, 2, c.ChildrenLive())
	c.MarkLive()
	// w is childless and must not see x's children
	assert.Equal(t, 0, c.ChildrenLive())
	assert.Equal(t, 1, c.LiveAtDepth())

	c.Reset()
	assert.Equal(t, -1, c.Depth())
	assert.Equal(t, 0, c.LiveAtDepth())
}

func TestLivenessContextDeadSubtree(t *testing.T) {
	c := NewLivenessContext()
	c.Descend()
	c.Descend()
	c.Descend() // grandchildren, none live
	c.Ascend()
	assert.Equal(t, 0, c.ChildrenLive())
	c.Ascend()
	assert.Equal(t, 0, c.ChildrenLive())

	// a fresh descent at the same depth starts from zero
	c.Descend()
	assert.Equal(t, 0, c.LiveAtDepth())
}
