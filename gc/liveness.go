package gc

// LivenessContext holds the per-depth running counts a postorder traversal
// uses to resolve subtree liveness bottom up.
//
// Slot d of the value stack counts the live nodes kept so far in the array
// chain currently open at depth d. When a node at depth d is visited in
// postorder, slot d+1 holds the live count of its own children chain.
type LivenessContext struct {
	depth      int
	valueStack []int
}

func NewLivenessContext() *LivenessContext {
	c := &LivenessContext{}
	c.Reset()
	return c
}

// Reset discards all state. The next Descend opens depth 0.
func (c *LivenessContext) Reset() {
	c.depth = -1
	c.valueStack = c.valueStack[:0]
}

// Depth returns the depth of the array chain currently open, -1 before the root.
func (c *LivenessContext) Depth() int { return c.depth }

// Descend opens an array chain one level deeper with a zero live count.
func (c *LivenessContext) Descend() {
	c.depth++
	for len(c.valueStack) <= c.depth+1 {
		c.valueStack = append(c.valueStack, 0)
	}
	c.valueStack[c.depth] = 0
}

// Ascend returns to the parent level. The closed level's count is kept until
// the parent node consumes it with ChildrenLive.
func (c *LivenessContext) Ascend() {
	if c.depth >= 0 {
		c.depth--
	}
}

// MarkLive counts one more live node at the current depth.
func (c *LivenessContext) MarkLive() {
	if c.depth < 0 {
		return
	}
	c.valueStack[c.depth]++
}

// LiveAtDepth returns the live count recorded so far at the current depth.
func (c *LivenessContext) LiveAtDepth() int {
	if c.depth < 0 {
		return 0
	}
	return c.valueStack[c.depth]
}

// ChildrenLive returns the live count of the children chain of the node
// being visited and clears it, so a childless sibling visited next reads zero.
func (c *LivenessContext) ChildrenLive() int {
	i := c.depth + 1
	if i < 0 || i >= len(c.valueStack) {
		return 0
	}
	n := c.valueStack[i]
	c.valueStack[i] = 0
	return n
}
