package gc

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-dictgc/decay"
	"github.com/forestrie/go-dictgc/ptbuf"
	"github.com/forestrie/go-dictgc/ptnode"
)

// Every error returned by a compaction run matches exactly one of these with
// errors.Is. The underlying cause stays in the chain.
var (
	// ErrWriteFailure means a buffer write could not complete, typically
	// because the write buffer is too small.
	ErrWriteFailure = errors.New("gc: buffer write failed")
	// ErrCorruption means an internal invariant of the trie or of the
	// relocation mapping does not hold.
	ErrCorruption = errors.New("gc: dictionary corruption detected")
	// ErrPolicyFailure means the decay policy rejected a probability or the
	// header it was asked to apply.
	ErrPolicyFailure = errors.New("gc: decay policy failure")
)

// classify wraps err with the taxonomy sentinel matching its cause.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWriteFailure), errors.Is(err, ErrCorruption), errors.Is(err, ErrPolicyFailure):
		return err
	case errors.Is(err, ptbuf.ErrBufferFull),
		errors.Is(err, ptbuf.ErrFieldOverflow),
		errors.Is(err, ptbuf.ErrBadHandle),
		errors.Is(err, ptnode.ErrTooManyNodes):
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	case errors.Is(err, decay.ErrProbabilityOutOfContract),
		errors.Is(err, decay.ErrConfigMismatch),
		errors.Is(err, ptnode.ErrProbabilityBits):
		return fmt.Errorf("%w: %w", ErrPolicyFailure, err)
	}
	// malformed records, positions outside the buffer, traversal loops
	return fmt.Errorf("%w: %w", ErrCorruption, err)
}
