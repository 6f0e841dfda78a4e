package gctesting

import (
	"testing"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/stretchr/testify/require"
)

// DefaultStart is the fixed clock reading tests start from, so that decay
// arithmetic is the same from run to run.
var DefaultStart = time.Unix(1_700_000_000, 0)

type TestContext struct {
	Log    logger.Logger
	T      *testing.T
	Config decay.Config

	now time.Time
}

type TestConfig struct {
	TestLabelPrefix string
	// LogLevel defaults to "NOOP".
	LogLevel string
	// Start defaults to DefaultStart.
	Start time.Time
	// Decay defaults to decay.DefaultConfig().
	Decay *decay.Config
}

func NewTestContext(t *testing.T, cfg TestConfig) *TestContext {
	c := &TestContext{
		T:      t,
		Config: decay.DefaultConfig(),
		now:    DefaultStart,
	}
	level := cfg.LogLevel
	if level == "" {
		level = "NOOP"
	}
	logger.New(level)
	c.Log = logger.Sugar.WithServiceName(cfg.TestLabelPrefix)

	if !cfg.Start.IsZero() {
		c.now = cfg.Start
	}
	if cfg.Decay != nil {
		c.Config = *cfg.Decay
	}
	return c
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

// Now is the test clock.
func (c *TestContext) Now() time.Time { return c.now }

// Advance moves the test clock forward.
func (c *TestContext) Advance(d time.Duration) { c.now = c.now.Add(d) }

// AdvanceIntervals moves the test clock forward by n decay intervals.
func (c *TestContext) AdvanceIntervals(n int) {
	c.Advance(time.Duration(n) * c.Config.DecayInterval())
}

// Header returns a header last decayed at the current test time.
func (c *TestContext) Header(decaying bool) decay.HeaderPolicy {
	return decay.NewHeaderPolicy(decaying, c.Config, c.now)
}

// Policy returns a forgetting curve reading the test clock.
func (c *TestContext) Policy() *decay.ForgettingCurve {
	p, err := decay.NewForgettingCurve(c.Config, decay.WithClock(c.Now))
	require.NoError(c.T, err)
	return p
}

// BuildTrie serializes words into a buffer sized generously for them.
func (c *TestContext) BuildTrie(words []ptnode.WordEntry, opts ...ptnode.BuilderOption) (*ptbuf.Buffer, ptnode.Pos) {
	size := ptnode.ArraySizeBytes + ptnode.ForwardLinkBytes
	for _, w := range words {
		size += 2 * (ptnode.ArraySizeBytes + ptnode.ForwardLinkBytes +
			ptnode.RecordBytes(len(w.Word), true, len(w.Bigrams)+ptnode.MaxBigramEntries, true))
	}
	buf, err := ptbuf.New(size)
	require.NoError(c.T, err)
	root, err := ptnode.Build(buf, words, opts...)
	require.NoError(c.T, err)
	return buf, root
}

// Find returns the live terminal for word, failing the test if it is absent.
func (c *TestContext) Find(buf *ptbuf.Buffer, root ptnode.Pos, word string) *ptnode.Params {
	p, err := ptnode.FindWord(ptnode.NewReader(buf), root, word)
	require.NoError(c.T, err, word)
	return p
}

// SetProbability overwrites the probability of word in place.
func (c *TestContext) SetProbability(buf *ptbuf.Buffer, root ptnode.Pos, word string, probability int) {
	p := c.Find(buf, root, word)
	require.NoError(c.T, ptnode.NewWriter(buf).UpdateProbability(p, probability))
}

// Delete marks word deleted in place, as the update path does on removal.
func (c *TestContext) Delete(buf *ptbuf.Buffer, root ptnode.Pos, word string) {
	p := c.Find(buf, root, word)
	require.NoError(c.T, ptnode.NewWriter(buf).MarkDeleted(p))
}
