package gc

import (
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/gctesting"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/forestrie/go-dictgc/traverse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *gctesting.TestContext {
	return gctesting.NewTestContext(t, gctesting.TestConfig{TestLabelPrefix: "gc"})
}

func newCompactor(tc *gctesting.TestContext, opts ...CompactorOption) *Compactor {
	return NewCompactor(tc.Log, tc.Policy(), append([]CompactorOption{WithClock(tc.Now)}, opts...)...)
}

// probabilities maps each live word to its stored probability.
func probabilities(entries map[string]gctesting.Entry) map[string]int {
	out := make(map[string]int, len(entries))
	for w, e := range entries {
		out[w] = e.Probability
	}
	return out
}

func rootArray(t *testing.T, res *Result) []*ptnode.Params {
	var nodes []*ptnode.Params
	require.NoError(t, ptnode.NewReader(res.Buffer).ForEachNode(res.RootPos, func(p *ptnode.Params) error {
		nodes = append(nodes, p)
		return nil
	}))
	return nodes
}

func TestCompactLivenessUnderDecay(t *testing.T) {
	// root [alp -> {ha, s}, bet -> {a}, gam -> {ma}]
	words := []ptnode.WordEntry{
		{Word: "alpha", Probability: 255},
		{Word: "alps", Probability: 20},
		{Word: "beta", Probability: 17},
		{Word: "bet", Probability: 40},
		{Word: "gamma", Probability: 1000},
		{Word: "gam", Probability: 16},
	}
	tests := []struct {
		name      string
		intervals int
		want      map[string]int
	}{
		{
			name:      "no interval elapsed clamps only",
			intervals: 0,
			want:      map[string]int{"alpha": 255, "alps": 20, "beta": 17, "bet": 40, "gamma": 255, "gam": 16},
		},
		{
			// gam expires but stays, with the invalid probability, as the parent of gamma
			name:      "one interval",
			intervals: 1,
			want:      map[string]int{"alpha": 239, "alps": 4, "beta": 1, "bet": 24, "gamma": 239, "gam": -1},
		},
		{
			name:      "two intervals",
			intervals: 2,
			want:      map[string]int{"alpha": 223, "bet": 8, "gamma": 223, "gam": -1},
		},
		{
			name:      "everything expired",
			intervals: 20,
			want:      map[string]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestContext(t)
			buf, root := tc.BuildTrie(words)
			header := tc.Header(true)
			tc.AdvanceIntervals(tt.intervals)

			res, err := newCompactor(tc).Run(buf, root, header)
			require.NoError(t, err)
			tc.RequireCompacted(res.Buffer, res.RootPos)

			assert.Equal(t, tt.want, probabilities(tc.Dump(res.Buffer, res.RootPos)))
			assert.Equal(t, len(tt.want), res.UnigramCount)
			assert.Equal(t, res.UnigramCount, res.Header.UnigramCount)
			assert.Equal(t, header.LastDecayedTime+int64(tt.intervals)*header.Config.DecayIntervalSeconds,
				res.Header.LastDecayedTime)
		})
	}
}

func TestCompactScenarioSingleExpiredWord(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{{Word: "ephemeral", Probability: 10}})
	header := tc.Header(true)
	tc.AdvanceIntervals(1)

	res, err := newCompactor(tc).Run(buf, root, header)
	require.NoError(t, err)

	assert.Equal(t, ptnode.Pos(0), res.RootPos)
	assert.Equal(t, uint32(ptnode.ArraySizeBytes+ptnode.ForwardLinkBytes), res.Buffer.Tail())
	count, _, err := ptnode.NewReader(res.Buffer).ReadArraySize(res.RootPos)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, res.UnigramCount)
	assert.Equal(t, 1, res.NodesDropped)
	tc.RequireCompacted(res.Buffer, res.RootPos)
}

func TestCompactScenarioBranchWithOneExpiredChild(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "cat", Probability: 10, Bigrams: []ptnode.BigramSpec{{Word: "car", Probability: 50}}},
		{Word: "car", Probability: 200, Bigrams: []ptnode.BigramSpec{{Word: "cat", Probability: 60}}},
	})
	header := tc.Header(true)
	tc.AdvanceIntervals(1)

	res, err := newCompactor(tc).Run(buf, root, header)
	require.NoError(t, err)
	tc.RequireCompacted(res.Buffer, res.RootPos)

	nodes := rootArray(t, res)
	require.Len(t, nodes, 1)
	branch := nodes[0]
	assert.Equal(t, "ca", branch.Label)
	assert.False(t, branch.IsTerminal())

	count, _, err := ptnode.NewReader(res.Buffer).ReadArraySize(branch.ChildrenPos)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries := tc.Dump(res.Buffer, res.RootPos)
	require.Contains(t, entries, "car")
	assert.NotContains(t, entries, "cat")
	assert.Equal(t, 184, entries["car"].Probability)
	assert.Empty(t, entries["car"].Bigrams)

	car := tc.Find(res.Buffer, res.RootPos, "car")
	assert.False(t, car.HasBigrams())
	assert.Zero(t, car.Flags&ptnode.FlagHasBigrams)

	assert.Equal(t, 0, res.ValidBigramCount)
	assert.Equal(t, 0, res.BigramCount)
	assert.Equal(t, 1, res.NodesDropped)
}

func TestCompactScenarioBigramTargetDeletedInSamePass(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "go", Probability: 200, Bigrams: []ptnode.BigramSpec{
			{Word: "a", Probability: 100},
			{Word: "b", Probability: 100},
			{Word: "c", Probability: 100},
		}},
		{Word: "a", Probability: 200},
		{Word: "b", Probability: 200},
		{Word: "c", Probability: 5},
	})
	header := tc.Header(true)
	tc.AdvanceIntervals(1)

	res, err := newCompactor(tc).Run(buf, root, header)
	require.NoError(t, err)
	tc.RequireCompacted(res.Buffer, res.RootPos)

	assert.Equal(t, 2, res.ValidBigramCount)
	assert.Equal(t, 2, res.BigramCount)
	assert.Equal(t, 2, res.Header.BigramCount)

	entries := tc.Dump(res.Buffer, res.RootPos)
	assert.NotContains(t, entries, "c")
	assert.Equal(t, map[string]int{"a": 84, "b": 84}, entries["go"].Bigrams)
}

func TestCompactFreshTrieIsUnchanged(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "the", Probability: 120, Bigrams: []ptnode.BigramSpec{{Word: "then", Probability: 30}}},
		{Word: "then", Probability: 90},
		{Word: "there", Probability: 80, Bigrams: []ptnode.BigramSpec{{Word: "the", Probability: 12}}},
		{Word: "this", Probability: 70},
		{Word: "a", Probability: 200},
	})

	res, err := newCompactor(tc).Run(buf, root, tc.Header(false))
	require.NoError(t, err)

	assert.Equal(t, buf.Bytes(), res.Buffer.Bytes())
	assert.Equal(t, 0, res.BytesReclaimed)
	assert.Equal(t, 5, res.UnigramCount)
	assert.Equal(t, 2, res.BigramCount)
}

func TestCompactIsIdempotent(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "north", Probability: 90, Bigrams: []ptnode.BigramSpec{
			{Word: "south", Probability: 40}, {Word: "nor", Probability: 3}}},
		{Word: "nor", Probability: 12},
		{Word: "northern", Probability: 60},
		{Word: "south", Probability: 33, Bigrams: []ptnode.BigramSpec{{Word: "north", Probability: 70}}},
		{Word: "sou", Probability: 2},
	}, ptnode.WithBigramSlack(2), ptnode.WithMaxArrayNodes(1))
	header := tc.Header(true)
	tc.AdvanceIntervals(1)
	c := newCompactor(tc)

	first, err := c.Run(buf, root, header)
	require.NoError(t, err)
	assert.Positive(t, first.BytesReclaimed)

	second, err := c.Run(first.Buffer, first.RootPos, first.Header)
	require.NoError(t, err)

	assert.Equal(t, first.Buffer.Bytes(), second.Buffer.Bytes())
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 0, second.BytesReclaimed)
	assert.Equal(t, first.Header, second.Header)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestCompactWithoutDecay(t *testing.T) {
	tc := newTestContext(t)
	words := []ptnode.WordEntry{
		{Word: "alpha", Probability: 1000, Bigrams: []ptnode.BigramSpec{{Word: "alps", Probability: 9}}},
		{Word: "alps", Probability: 20},
		{Word: "beta", Probability: 17, Bigrams: []ptnode.BigramSpec{{Word: "alpha", Probability: 9}}},
		{Word: "bet", Probability: 40},
	}

	tests := []struct {
		name    string
		opts    []ptnode.BuilderOption
		delete  []string
		dropped int
		want    map[string]int
	}{
		{
			name: "nothing deleted",
			want: map[string]int{"alpha": 1000, "alps": 20, "beta": 17, "bet": 40},
		},
		{
			// beta's array is pruned from bet before relocation, so only alps is seen dropped
			name:    "deleted leaves dropped",
			delete:  []string{"alps", "beta"},
			dropped: 1,
			want:    map[string]int{"alpha": 1000, "bet": 40},
		},
		{
			name:    "forward linked arrays merged",
			opts:    []ptnode.BuilderOption{ptnode.WithMaxArrayNodes(1)},
			delete:  []string{"alps"},
			dropped: 1,
			want:    map[string]int{"alpha": 1000, "beta": 17, "bet": 40},
		},
		{
			name: "bigram slack reclaimed",
			opts: []ptnode.BuilderOption{ptnode.WithBigramSlack(4)},
			want: map[string]int{"alpha": 1000, "alps": 20, "beta": 17, "bet": 40},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc.T = t
			buf, root := tc.BuildTrie(words, tt.opts...)
			for _, w := range tt.delete {
				tc.Delete(buf, root, w)
			}
			// decay never applies to a static dictionary
			tc.AdvanceIntervals(100)

			res, err := newCompactor(tc).Run(buf, root, tc.Header(false))
			require.NoError(t, err)
			tc.RequireCompacted(res.Buffer, res.RootPos)

			entries := tc.Dump(res.Buffer, res.RootPos)
			assert.Equal(t, tt.want, probabilities(entries))
			for _, e := range entries {
				for target := range e.Bigrams {
					assert.Contains(t, tt.want, target, "bigram %s -> %s", e.Word, target)
				}
			}
			assert.Equal(t, res.UnigramCount, res.ValidUnigramCount)
			assert.Equal(t, res.BigramCount, res.ValidBigramCount)
			assert.Equal(t, tt.dropped, res.NodesDropped)
		})
	}
}

func TestCompactTruncatesUnigrams(t *testing.T) {
	cfg := decay.DefaultConfig()
	cfg.MaxUnigramCountAfterGC = 2
	tc := gctesting.NewTestContext(t, gctesting.TestConfig{TestLabelPrefix: "gc", Decay: &cfg})

	// "ab" and "ac" are the two weakest, so their branch goes with them
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "ab", Probability: 10},
		{Word: "ac", Probability: 20},
		{Word: "d", Probability: 100},
		{Word: "e", Probability: 100},
	})

	res, err := newCompactor(tc).Run(buf, root, tc.Header(true))
	require.NoError(t, err)
	tc.RequireCompacted(res.Buffer, res.RootPos)

	assert.Equal(t, 2, res.UnigramsTruncated)
	assert.Equal(t, 2, res.ValidUnigramCount)
	assert.Equal(t, map[string]int{"d": 100, "e": 100}, probabilities(tc.Dump(res.Buffer, res.RootPos)))
	assert.Len(t, rootArray(t, res), 2)

	res, err = newCompactor(tc, WithoutTruncation()).Run(buf, root, tc.Header(true))
	require.NoError(t, err)
	assert.Equal(t, 4, res.UnigramCount)

	// a static dictionary is never truncated
	res, err = newCompactor(tc).Run(buf, root, tc.Header(false))
	require.NoError(t, err)
	assert.Equal(t, 4, res.UnigramCount)
}

func TestCompactTruncationDropsExpiredBranchTerminal(t *testing.T) {
	cfg := decay.DefaultConfig()
	cfg.MaxUnigramCountAfterGC = 2
	tc := gctesting.NewTestContext(t, gctesting.TestConfig{TestLabelPrefix: "gc", Decay: &cfg})

	// root [gam -> {ma}, x, y]; gam expires but is kept for gamma until
	// truncation removes gamma
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "gam", Probability: 10},
		{Word: "gamma", Probability: 100},
		{Word: "x", Probability: 200},
		{Word: "y", Probability: 200},
	})
	header := tc.Header(true)
	tc.AdvanceIntervals(1)

	res, err := newCompactor(tc).Run(buf, root, header)
	require.NoError(t, err)
	tc.RequireCompacted(res.Buffer, res.RootPos)
	require.NoError(t, gctesting.CheckReferentialIntegrity(res.Buffer, res.RootPos))

	step := cfg.ProbabilityStep
	assert.Equal(t, 1, res.UnigramsTruncated)
	assert.Equal(t, 2, res.ValidUnigramCount)
	assert.Equal(t, 2, res.UnigramCount)
	assert.Equal(t, map[string]int{"x": 200 - step, "y": 200 - step},
		probabilities(tc.Dump(res.Buffer, res.RootPos)))
}

func TestProbabilityPassRevalidateDeletesInvalidTerminal(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "gam", Probability: 10},
		{Word: "gamma", Probability: 100},
		{Word: "x", Probability: 50},
	})
	tc.SetProbability(buf, root, "gam", ptnode.NotAProbability)
	header := tc.Header(true)
	r := ptnode.NewReader(buf)

	tests := []struct {
		name   string
		mode   ProbabilityMode
		valid  int
		scored int
	}{
		{"structural terminal kept while its child lives", ProbabilityRevalidate, 3, 2},
		{"static mode ignores probabilities", ProbabilityStatic, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := buf.Clone()
			p := NewProbabilityPass(ptnode.NewWriter(work), tc.Policy(), &header, tt.mode)
			require.NoError(t, Walk(traverse.NewWalker(ptnode.NewReader(work)), root, p))
			assert.Equal(t, tt.valid, p.ValidUnigramCount)
			assert.Equal(t, tt.scored, p.ScoredUnigramCount)
		})
	}

	// once gamma is gone nothing keeps gam alive
	tc.Delete(buf, root, "gamma")
	p := NewProbabilityPass(ptnode.NewWriter(buf), tc.Policy(), &header, ProbabilityRevalidate)
	require.NoError(t, Walk(traverse.NewWalker(r), root, p))
	assert.Equal(t, 1, p.ValidUnigramCount)
	assert.Equal(t, 1, p.ScoredUnigramCount)
	assert.Equal(t, 1, p.Deleted)
	_, err := ptnode.FindWord(r, root, "gam")
	assert.Error(t, err)
}

func TestTruncateUnigramsTiesGoToLowerPosition(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "x", Probability: 50},
		{Word: "y", Probability: 50},
		{Word: "z", Probability: 50},
	})
	r, w := ptnode.NewReader(buf), ptnode.NewWriter(buf)

	n, err := TruncateUnigrams(r, w, root, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"z"}, slices.Sorted(maps.Keys(tc.Dump(buf, root))))

	n, err = TruncateUnigrams(r, w, root, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCompactTruncatesBigrams(t *testing.T) {
	cfg := decay.DefaultConfig()
	cfg.MaxBigramCountAfterGC = 2
	tc := gctesting.NewTestContext(t, gctesting.TestConfig{TestLabelPrefix: "gc", Decay: &cfg})

	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "x", Probability: 100, Bigrams: []ptnode.BigramSpec{
			{Word: "a", Probability: 50},
			{Word: "b", Probability: 10},
			{Word: "c", Probability: 30},
		}},
		{Word: "a", Probability: 100},
		{Word: "b", Probability: 100},
		{Word: "c", Probability: 100},
	})

	res, err := newCompactor(tc).Run(buf, root, tc.Header(true))
	require.NoError(t, err)
	tc.RequireCompacted(res.Buffer, res.RootPos)

	assert.Equal(t, 1, res.BigramsTruncated)
	assert.Equal(t, 2, res.ValidBigramCount)
	assert.Equal(t, 2, res.BigramCount)
	assert.Equal(t, map[string]int{"a": 50, "c": 30}, tc.Dump(res.Buffer, res.RootPos)["x"].Bigrams)
}

func TestCompactFailureLeavesInputUnchanged(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "keep", Probability: 200, Bigrams: []ptnode.BigramSpec{{Word: "lose", Probability: 20}}},
		{Word: "lose", Probability: 3},
		{Word: "kept", Probability: 150},
	})
	before := slices.Clone(buf.Bytes())
	header := tc.Header(true)
	tc.AdvanceIntervals(1)

	res, err := newCompactor(tc, WithWriteCapacity(12)).Run(buf, root, header)
	require.ErrorIs(t, err, ErrWriteFailure)
	require.ErrorIs(t, err, ptbuf.ErrBufferFull)
	assert.Nil(t, res)
	assert.Equal(t, before, buf.Bytes())

	// the same input compacts once the write buffer is large enough
	res, err = newCompactor(tc).Run(buf, root, header)
	require.NoError(t, err)
	assert.Equal(t, before, buf.Bytes())
	assert.Equal(t, 2, res.UnigramCount)
}

func TestCompactDetectsDeletedNodeWithLiveChildren(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "ab", Probability: 10},
		{Word: "ac", Probability: 10},
	})
	r := ptnode.NewReader(buf)
	_, first, err := r.ReadArraySize(root)
	require.NoError(t, err)
	branch, err := r.ReadNode(first)
	require.NoError(t, err)
	require.NoError(t, ptnode.NewWriter(buf).MarkDeleted(branch))

	_, err = newCompactor(tc).Run(buf, root, tc.Header(false))
	require.ErrorIs(t, err, ErrCorruption)
}

func TestFixupDetectsMissingRelocation(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "ab", Probability: 10},
		{Word: "ac", Probability: 10},
	})
	r := ptnode.NewReader(buf)
	err := Walk(traverse.NewWalker(r), root, NewFixupPass(ptnode.NewWriter(buf), NewRelocationMap()))
	require.ErrorIs(t, err, ErrCorruption)
}

type rejectingPolicy struct{}

func (rejectingPolicy) ComputeDecayedProbability(current int, header *decay.HeaderPolicy) (int, error) {
	return 0, decay.ErrProbabilityOutOfContract
}

func (rejectingPolicy) IsValidProbability(value int) bool { return true }

func TestCompactPolicyFailure(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{{Word: "w", Probability: 10}})
	before := slices.Clone(buf.Bytes())

	_, err := NewCompactor(tc.Log, rejectingPolicy{}).Run(buf, root, tc.Header(true))
	require.ErrorIs(t, err, ErrPolicyFailure)
	require.ErrorIs(t, err, decay.ErrProbabilityOutOfContract)
	assert.False(t, errors.Is(err, ErrWriteFailure))
	assert.Equal(t, before, buf.Bytes())
}

func TestCompactRejectsHeaderWithForeignPolicy(t *testing.T) {
	tc := newTestContext(t)
	buf, root := tc.BuildTrie([]ptnode.WordEntry{{Word: "w", Probability: 10}})
	before := slices.Clone(buf.Bytes())

	for _, decaying := range []bool{true, false} {
		header := tc.Header(decaying)
		header.Config.MinValidProbability = 50

		_, err := newCompactor(tc).Run(buf, root, header)
		require.ErrorIs(t, err, ErrPolicyFailure)
		require.ErrorIs(t, err, decay.ErrConfigMismatch)
		assert.Equal(t, before, buf.Bytes())
	}
}

func TestNeedsCompaction(t *testing.T) {
	tests := []struct {
		name      string
		used      int
		capacity  int
		threshold float64
		want      bool
	}{
		{"below threshold", 50, 100, 0.9, false},
		{"at threshold", 90, 100, 0.9, true},
		{"full", 100, 100, 0.9, true},
		{"no capacity", 0, 0, 0.9, false},
		{"disabled", 100, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsCompaction(tt.used, tt.capacity, tt.threshold))
		})
	}
}
