package dictfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
)

const (
	MagicV1   = "DGC1"
	VersionV1 uint8 = 1

	// PreambleBytesV1 is the fixed size of the preamble that precedes the
	// CBOR header and the trie region.
	//
	//	[0:4)   magic
	//	[4]     version
	//	[5:8)   reserved, zero
	//	[8:12)  header length
	//	[12:16) trie length
	//	[16:20) root array position
	//	[20:28) xxhash64 of header and trie bytes
	PreambleBytesV1 = 28
)

var (
	ErrBadMagic       = errors.New("dictfile: magic invalid")
	ErrBadVersion     = errors.New("dictfile: version unsupported")
	ErrBadRegionSize  = errors.New("dictfile: region size does not match the preamble")
	ErrChecksum       = errors.New("dictfile: checksum mismatch")
	ErrBadHeader      = errors.New("dictfile: header invalid")
	ErrBadRoot        = errors.New("dictfile: root position outside the trie")
	ErrNotInitialized = errors.New("dictfile: file is zero-filled")
)

// Dictionary is a decoded dictionary file.
type Dictionary struct {
	Header decay.HeaderPolicy
	Root   ptnode.Pos
	Trie   *ptbuf.Buffer
}

// NewCodec returns the deterministic CBOR codec used for headers.
func NewCodec() (cbor.CBORCodec, error) {
	codec, err := cbor.NewCBORCodec(
		cbor.NewDeterministicEncOpts(),
		cbor.NewDeterministicDecOpts(),
	)
	if err != nil {
		return cbor.CBORCodec{}, err
	}
	return codec, nil
}

// EncodeV1 returns the file image of d.
func EncodeV1(codec cbor.CBORCodec, d *Dictionary) ([]byte, error) {
	header, err := codec.MarshalCBOR(d.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	trie := d.Trie.Bytes()
	if len(trie) > 0 && uint32(d.Root) >= d.Trie.Tail() {
		return nil, fmt.Errorf("%w: %d", ErrBadRoot, d.Root)
	}

	out := make([]byte, PreambleBytesV1, PreambleBytesV1+len(header)+len(trie))
	copy(out[0:4], []byte(MagicV1))
	out[4] = VersionV1
	binary.BigEndian.PutUint32(out[8:12], uint32(len(header)))
	binary.BigEndian.PutUint32(out[12:16], uint32(len(trie)))
	binary.BigEndian.PutUint32(out[16:20], uint32(d.Root))
	out = append(out, header...)
	out = append(out, trie...)
	binary.BigEndian.PutUint64(out[20:28], xxhash.Sum64(out[PreambleBytesV1:]))
	return out, nil
}

// DecodeV1 decodes a file image. The trie is copied into a buffer with
// spare bytes of capacity beyond its used size, so the update path can
// append to it.
//
// ok=false indicates the image is zero-filled / uninitialized.
func DecodeV1(codec cbor.CBORCodec, src []byte, spare int) (d *Dictionary, ok bool, err error) {
	if len(src) < PreambleBytesV1 {
		return nil, false, ErrBadRegionSize
	}
	if bytes.Equal(src[0:4], []byte{0, 0, 0, 0}) {
		return nil, false, nil
	}
	if string(src[0:4]) != MagicV1 {
		return nil, false, ErrBadMagic
	}
	if src[4] != VersionV1 {
		return nil, false, ErrBadVersion
	}

	headerLen := int(binary.BigEndian.Uint32(src[8:12]))
	trieLen := int(binary.BigEndian.Uint32(src[12:16]))
	root := ptnode.Pos(binary.BigEndian.Uint32(src[16:20]))
	if len(src) != PreambleBytesV1+headerLen+trieLen {
		return nil, false, fmt.Errorf("%w: have %d, want %d", ErrBadRegionSize, len(src), PreambleBytesV1+headerLen+trieLen)
	}
	if xxhash.Sum64(src[PreambleBytesV1:]) != binary.BigEndian.Uint64(src[20:28]) {
		return nil, false, ErrChecksum
	}

	d = &Dictionary{Root: root}
	headerBytes := src[PreambleBytesV1 : PreambleBytesV1+headerLen]
	if err := codec.UnmarshalInto(headerBytes, &d.Header); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if err := d.Header.Config.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}

	d.Trie, err = ptbuf.New(trieLen + max(spare, 0))
	if err != nil {
		return nil, false, err
	}
	if _, err := d.Trie.Append(src[PreambleBytesV1+headerLen:]); err != nil {
		return nil, false, err
	}
	if trieLen > 0 && uint32(root) >= d.Trie.Tail() {
		return nil, false, fmt.Errorf("%w: %d", ErrBadRoot, root)
	}
	return d, true, nil
}
