package dictfile

import (
	"path/filepath"
	"testing"

	"github.com/forestrie/go-dictgc/gctesting"
	"github.com/forestrie/go-dictgc/ptnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDictionary(t *testing.T) (*gctesting.TestContext, *Dictionary) {
	tc := gctesting.NewTestContext(t, gctesting.TestConfig{TestLabelPrefix: "dictfile"})
	buf, root := tc.BuildTrie([]ptnode.WordEntry{
		{Word: "hello", Probability: 120, Bigrams: []ptnode.BigramSpec{{Word: "world", Probability: 40}}},
		{Word: "help", Probability: 80},
		{Word: "world", Probability: 60},
	})
	h := tc.Header(true)
	h.UnigramCount = 3
	h.BigramCount = 1
	return tc, &Dictionary{Header: h, Root: root, Trie: buf}
}

func TestEncodeDecodeV1(t *testing.T) {
	tc, d := sampleDictionary(t)
	codec, err := NewCodec()
	require.NoError(t, err)

	data, err := EncodeV1(codec, d)
	require.NoError(t, err)
	assert.Equal(t, MagicV1, string(data[0:4]))
	assert.Equal(t, VersionV1, data[4])

	got, ok, err := DecodeV1(codec, data, 64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.Header, got.Header)
	assert.Equal(t, d.Root, got.Root)
	assert.Equal(t, d.Trie.Bytes(), got.Trie.Bytes())
	assert.Equal(t, 64, got.Trie.Remaining())

	assert.Equal(t, tc.Dump(d.Trie, d.Root), tc.Dump(got.Trie, got.Root))
}

func TestDecodeV1Rejects(t *testing.T) {
	_, d := sampleDictionary(t)
	codec, err := NewCodec()
	require.NoError(t, err)
	good, err := EncodeV1(codec, d)
	require.NoError(t, err)

	corrupt := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short", good[:PreambleBytesV1-1], ErrBadRegionSize},
		{"magic", corrupt(func(b []byte) []byte { b[0] = 'X'; return b }), ErrBadMagic},
		{"version", corrupt(func(b []byte) []byte { b[4] = 9; return b }), ErrBadVersion},
		{"truncated trie", good[:len(good)-1], ErrBadRegionSize},
		{"flipped trie byte", corrupt(func(b []byte) []byte { b[len(b)-5] ^= 0xff; return b }), ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeV1(codec, tt.data, 0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, ok, err := DecodeV1(codec, make([]byte, PreambleBytesV1), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveLoad(t *testing.T) {
	tc, d := sampleDictionary(t)
	path := filepath.Join(t.TempDir(), "user.dict")

	require.NoError(t, Save(path, d))
	got, err := Load(path, WithSpareCapacity(128))
	require.NoError(t, err)
	assert.Equal(t, d.Header, got.Header)
	assert.Equal(t, d.Trie.Bytes(), got.Trie.Bytes())

	p := tc.Find(got.Trie, got.Root, "help")
	assert.Equal(t, 80, p.Probability)

	// overwrite in place
	d.Header.BigramCount = 0
	require.NoError(t, Save(path, d))
	got, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Header.BigramCount)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
