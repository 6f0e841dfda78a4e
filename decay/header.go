package decay

import (
	"errors"
	"time"
)

const (
	DefaultMaxUnigramCount        = 12000
	DefaultMaxBigramCount         = 12000
	DefaultMaxUnigramCountAfterGC = 10000
	DefaultMaxBigramCountAfterGC  = 10000

	DefaultMaxProbability      = 255
	DefaultProbabilityStep     = 16
	DefaultMinValidProbability = 1
	DefaultDecayInterval       = 8 * time.Hour
)

var (
	ErrProbabilityOutOfContract = errors.New("decay: probability outside the policy contract")
	ErrBadConfig                = errors.New("decay: configuration invalid")
	ErrConfigMismatch           = errors.New("decay: header and policy parameters differ")
)

// Config holds the forgetting-curve parameters.
type Config struct {
	DecayIntervalSeconds int64 `cbor:"1,keyasint" toml:"decay_interval_seconds"`
	MaxProbability       int   `cbor:"2,keyasint" toml:"max_probability"`
	ProbabilityStep      int   `cbor:"3,keyasint" toml:"probability_step"`
	MinValidProbability  int   `cbor:"4,keyasint" toml:"min_valid_probability"`

	MaxUnigramCount        int `cbor:"5,keyasint" toml:"max_unigram_count"`
	MaxBigramCount         int `cbor:"6,keyasint" toml:"max_bigram_count"`
	MaxUnigramCountAfterGC int `cbor:"7,keyasint" toml:"max_unigram_count_after_gc"`
	MaxBigramCountAfterGC  int `cbor:"8,keyasint" toml:"max_bigram_count_after_gc"`
}

// DefaultConfig returns the parameters used when a dictionary does not carry its own.
func DefaultConfig() Config {
	return Config{
		DecayIntervalSeconds:   int64(DefaultDecayInterval / time.Second),
		MaxProbability:         DefaultMaxProbability,
		ProbabilityStep:        DefaultProbabilityStep,
		MinValidProbability:    DefaultMinValidProbability,
		MaxUnigramCount:        DefaultMaxUnigramCount,
		MaxBigramCount:         DefaultMaxBigramCount,
		MaxUnigramCountAfterGC: DefaultMaxUnigramCountAfterGC,
		MaxBigramCountAfterGC:  DefaultMaxBigramCountAfterGC,
	}
}

// Validate checks the parameters are usable by the forgetting curve.
func (c Config) Validate() error {
	switch {
	case c.DecayIntervalSeconds <= 0:
		return errors.Join(ErrBadConfig, errors.New("decay interval must be positive"))
	case c.MaxProbability <= 0 || c.MaxProbability > MaxEncodableProbability:
		return errors.Join(ErrBadConfig, errors.New("max probability out of range"))
	case c.ProbabilityStep < 0:
		return errors.Join(ErrBadConfig, errors.New("probability step must not be negative"))
	case c.MinValidProbability < 0 || c.MinValidProbability > c.MaxProbability:
		return errors.Join(ErrBadConfig, errors.New("min valid probability out of range"))
	case c.MaxUnigramCountAfterGC < 0 || c.MaxBigramCountAfterGC < 0:
		return errors.Join(ErrBadConfig, errors.New("count caps must not be negative"))
	}
	return nil
}

// DecayInterval returns the interval as a duration.
func (c Config) DecayInterval() time.Duration {
	return time.Duration(c.DecayIntervalSeconds) * time.Second
}

// HeaderPolicy is the part of the dictionary header the compaction core
// depends on: the decay mode, the curve parameters and the counts.
type HeaderPolicy struct {
	DecayingDict    bool   `cbor:"1,keyasint"`
	LastDecayedTime int64  `cbor:"2,keyasint"` // unix seconds
	UnigramCount    int    `cbor:"3,keyasint"`
	BigramCount     int    `cbor:"4,keyasint"`
	Config          Config `cbor:"5,keyasint"`
}

// NewHeaderPolicy returns a header for a fresh dictionary.
func NewHeaderPolicy(decaying bool, cfg Config, now time.Time) HeaderPolicy {
	return HeaderPolicy{
		DecayingDict:    decaying,
		LastDecayedTime: now.Unix(),
		Config:          cfg,
	}
}

// IsDecayingDict reports whether probabilities decay at compaction time.
func (h *HeaderPolicy) IsDecayingDict() bool { return h.DecayingDict }

// LastDecayed returns the time probabilities were last decayed.
func (h *HeaderPolicy) LastDecayed() time.Time { return time.Unix(h.LastDecayedTime, 0) }

// NeedsToDecay reports whether a decaying dictionary is due for a decaying
// compaction: either count limit is reached, or a full decay interval has
// passed since the last decay.
func NeedsToDecay(h *HeaderPolicy, now time.Time) bool {
	if !h.DecayingDict {
		return false
	}
	if h.Config.MaxUnigramCount > 0 && h.UnigramCount >= h.Config.MaxUnigramCount {
		return true
	}
	if h.Config.MaxBigramCount > 0 && h.BigramCount >= h.Config.MaxBigramCount {
		return true
	}
	return now.Sub(h.LastDecayed()) >= h.Config.DecayInterval()
}

// AdvanceLastDecayed moves LastDecayedTime forward by the whole decay
// intervals elapsed before now and returns how many there were. The partial
// interval carries over to the next decay.
func (h *HeaderPolicy) AdvanceLastDecayed(now time.Time) int64 {
	interval := h.Config.DecayIntervalSeconds
	if interval <= 0 {
		return 0
	}
	elapsed := now.Unix() - h.LastDecayedTime
	if elapsed <= 0 {
		return 0
	}
	n := elapsed / interval
	h.LastDecayedTime += n * interval
	return n
}
