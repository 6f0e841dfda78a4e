package gc

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/forestrie/go-dictgc/traverse"
	"github.com/google/uuid"
)

type CompactorOptions struct {
	now           func() time.Time
	writeCapacity int
	truncate      bool
}

type CompactorOption func(*CompactorOptions)

// WithClock sets the clock used to advance the header's last decayed time.
// It should agree with the clock of the decay policy.
func WithClock(now func() time.Time) CompactorOption {
	return func(o *CompactorOptions) {
		o.now = now
	}
}

// WithWriteCapacity fixes the capacity of the write buffer. By default it is
// the used size of the read buffer, which compaction never exceeds.
func WithWriteCapacity(capacity int) CompactorOption {
	return func(o *CompactorOptions) {
		o.writeCapacity = capacity
	}
}

// WithoutTruncation disables the post-decay count caps.
func WithoutTruncation() CompactorOption {
	return func(o *CompactorOptions) {
		o.truncate = false
	}
}

// Result describes a successful compaction run.
type Result struct {
	RunID uuid.UUID

	// Buffer holds the compacted trie, with its root array at RootPos.
	Buffer  *ptbuf.Buffer
	RootPos ptnode.Pos
	// Header is the input header with updated counts and, for a decaying
	// dictionary, an advanced last decayed time.
	Header decay.HeaderPolicy

	ValidUnigramCount int
	ValidBigramCount  int
	UnigramCount      int
	BigramCount       int

	UnigramsTruncated int
	BigramsTruncated  int
	NodesRelocated    int
	NodesDropped      int
	ArraysRelocated   int

	BytesReclaimed int
	// Fingerprint is the xxhash64 of the compacted trie bytes.
	Fingerprint uint64
}

// headerChecker is implemented by policies that carry their own parameters
// and can tell whether a header agrees with them.
type headerChecker interface {
	CheckHeader(header *decay.HeaderPolicy) error
}

// Compactor runs the four compaction passes over a trie buffer.
type Compactor struct {
	log    logger.Logger
	policy decay.Policy
	opts   CompactorOptions
}

func NewCompactor(log logger.Logger, policy decay.Policy, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		log:    log,
		policy: policy,
		opts:   CompactorOptions{now: time.Now, truncate: true},
	}
	for _, o := range opts {
		o(&c.opts)
	}
	return c
}

// Run compacts the trie rooted at root in buf and returns the new buffer.
//
// The first two passes work on a private copy of buf, so buf is unchanged
// whether or not the run succeeds. On failure no buffer is returned and the
// error matches one of ErrWriteFailure, ErrCorruption or ErrPolicyFailure.
func (c *Compactor) Run(buf *ptbuf.Buffer, root ptnode.Pos, header decay.HeaderPolicy) (*Result, error) {
	res := &Result{RunID: uuid.New(), Header: header}
	decaying := header.IsDecayingDict()
	if hc, ok := c.policy.(headerChecker); ok {
		if err := hc.CheckHeader(&header); err != nil {
			return nil, c.fail(res.RunID, err)
		}
	}

	work := buf.Clone()
	r := ptnode.NewReader(work)
	w := ptnode.NewWriter(work)
	c.log.Debugf("gc %s: start, used=%d, decaying=%v", res.RunID, work.Tail(), decaying)

	mode := ProbabilityStatic
	if decaying {
		mode = ProbabilityDecay
	}
	probability := NewProbabilityPass(w, c.policy, &header, mode)
	if err := c.walk(res.RunID, r, root, probability); err != nil {
		return nil, err
	}
	res.ValidUnigramCount = probability.ValidUnigramCount

	if limit := header.Config.MaxUnigramCountAfterGC; decaying && c.opts.truncate && limit > 0 {
		n, err := TruncateUnigrams(r, w, root, probability.ScoredUnigramCount, limit)
		if err != nil {
			return nil, c.fail(res.RunID, err)
		}
		if n > 0 {
			res.UnigramsTruncated = n
			// resolve the ancestors of the truncated nodes, probabilities are already decayed
			probability = NewProbabilityPass(w, c.policy, &header, ProbabilityRevalidate)
			if err := c.walk(res.RunID, r, root, probability); err != nil {
				return nil, err
			}
			res.ValidUnigramCount = probability.ValidUnigramCount
		}
	}

	bigrams := NewBigramPass(r, w, c.policy, &header)
	if err := c.walk(res.RunID, r, root, bigrams); err != nil {
		return nil, err
	}
	res.ValidBigramCount = bigrams.ValidBigramCount

	if limit := header.Config.MaxBigramCountAfterGC; decaying && c.opts.truncate && limit > 0 {
		n, err := TruncateBigrams(r, w, root, res.ValidBigramCount, limit)
		if err != nil {
			return nil, c.fail(res.RunID, err)
		}
		res.BigramsTruncated = n
		res.ValidBigramCount -= n
	}

	capacity := c.opts.writeCapacity
	if capacity == 0 {
		capacity = int(work.Tail())
	}
	out, err := ptbuf.New(capacity)
	if err != nil {
		return nil, c.fail(res.RunID, fmt.Errorf("%w: %w", ErrWriteFailure, err))
	}

	m := NewRelocationMap()
	if err := c.walk(res.RunID, r, root, NewRelocationPass(ptnode.NewWriter(out), m)); err != nil {
		return nil, err
	}
	res.RootPos, err = m.ArrayPos(root)
	if err != nil {
		return nil, c.fail(res.RunID, err)
	}

	fixup := NewFixupPass(ptnode.NewWriter(out), m)
	if err := c.walk(res.RunID, ptnode.NewReader(out), res.RootPos, fixup); err != nil {
		return nil, err
	}

	res.Buffer = out
	res.UnigramCount = fixup.UnigramCount
	res.BigramCount = fixup.BigramCount
	res.NodesRelocated = m.Nodes()
	res.NodesDropped = m.Dropped()
	res.ArraysRelocated = m.Arrays()
	res.BytesReclaimed = int(buf.Tail()) - int(out.Tail())
	res.Fingerprint = xxhash.Sum64(out.Bytes())

	res.Header.UnigramCount = res.UnigramCount
	res.Header.BigramCount = res.BigramCount
	if decaying {
		res.Header.AdvanceLastDecayed(c.opts.now())
	}

	c.log.Infof("gc %s: done, %d -> %d bytes, nodes kept=%d dropped=%d, unigrams=%d, bigrams=%d",
		res.RunID, buf.Tail(), out.Tail(), res.NodesRelocated, res.NodesDropped,
		res.UnigramCount, res.BigramCount)
	return res, nil
}

func (c *Compactor) walk(id uuid.UUID, r *ptnode.Reader, root ptnode.Pos, p Pass) error {
	c.log.Debugf("gc %s: %v pass", id, p.Kind())
	if err := Walk(traverse.NewWalker(r), root, p); err != nil {
		c.log.Infof("gc %s: aborted: %v", id, err)
		return err
	}
	return nil
}

func (c *Compactor) fail(id uuid.UUID, err error) error {
	err = classify(err)
	c.log.Infof("gc %s: aborted: %v", id, err)
	return err
}

// NeedsCompaction reports whether a buffer using used of capacity bytes has
// crossed threshold, a fill ratio in (0, 1].
func NeedsCompaction(used, capacity int, threshold float64) bool {
	if capacity <= 0 || threshold <= 0 {
		return false
	}
	return float64(used) >= threshold*float64(capacity)
}
