package dictfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/datatrails/go-datatrails-common/cbor"
)

type FileOptions struct {
	codec *cbor.CBORCodec
	spare int
}

type FileOption func(*FileOptions)

// WithCodec supplies the header codec, otherwise NewCodec is used.
func WithCodec(codec cbor.CBORCodec) FileOption {
	return func(o *FileOptions) {
		o.codec = &codec
	}
}

// WithSpareCapacity leaves n bytes of room after the loaded trie.
func WithSpareCapacity(n int) FileOption {
	return func(o *FileOptions) {
		o.spare = n
	}
}

func resolve(opts []FileOption) (FileOptions, cbor.CBORCodec, error) {
	var o FileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec != nil {
		return o, *o.codec, nil
	}
	codec, err := NewCodec()
	return o, codec, err
}

// Load reads and decodes the dictionary file at path.
func Load(path string, opts ...FileOption) (*Dictionary, error) {
	o, codec, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, ok, err := DecodeV1(codec, data, o.spare)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotInitialized)
	}
	return d, nil
}

// Save writes d to path. The image is written to a temporary file in the
// same directory and renamed into place, so a reader never sees a partial file.
func Save(path string, d *Dictionary, opts ...FileOption) error {
	_, codec, err := resolve(opts)
	if err != nil {
		return err
	}
	data, err := EncodeV1(codec, d)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
