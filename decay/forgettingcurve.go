package decay

import (
	"fmt"
	"time"
)

// NotAProbability is the invalid probability sentinel (matches ptnode.NotAProbability).
const NotAProbability = -1

// MaxEncodableProbability is the largest probability a PtNode field can carry.
const MaxEncodableProbability = 1<<15 - 1

// Policy recomputes stored probabilities and judges their validity.
type Policy interface {
	// ComputeDecayedProbability returns the probability to save for current
	// under header. An invalid result is reported as NotAProbability.
	ComputeDecayedProbability(current int, header *HeaderPolicy) (int, error)
	// IsValidProbability reports whether value is a live probability.
	IsValidProbability(value int) bool
}

type ForgettingCurveOption func(*ForgettingCurve)

// WithClock replaces time.Now, for tests and replays.
func WithClock(now func() time.Time) ForgettingCurveOption {
	return func(c *ForgettingCurve) {
		c.now = now
	}
}

// ForgettingCurve decays a probability by a fixed step for every full decay
// interval elapsed since the header's last decay. A probability that falls
// below the minimum valid probability becomes NotAProbability.
type ForgettingCurve struct {
	cfg Config
	now func() time.Time
}

func NewForgettingCurve(cfg Config, opts ...ForgettingCurveOption) (*ForgettingCurve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &ForgettingCurve{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CheckHeader returns ErrConfigMismatch unless header carries the curve's
// own parameters. Every decision the curve makes reads its own Config.
func (c *ForgettingCurve) CheckHeader(header *HeaderPolicy) error {
	if header.Config != c.cfg {
		return fmt.Errorf("%w: header %+v, curve %+v", ErrConfigMismatch, header.Config, c.cfg)
	}
	return nil
}

// ElapsedIntervals returns the number of full decay intervals since the
// header's last decay. A clock behind the header counts as zero.
func (c *ForgettingCurve) ElapsedIntervals(header *HeaderPolicy) int64 {
	elapsed := c.now().Sub(header.LastDecayed())
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed / c.cfg.DecayInterval())
}

func (c *ForgettingCurve) ComputeDecayedProbability(current int, header *HeaderPolicy) (int, error) {
	if err := c.CheckHeader(header); err != nil {
		return NotAProbability, err
	}
	if current == NotAProbability {
		return NotAProbability, nil
	}
	if current < 0 || current > MaxEncodableProbability {
		return NotAProbability, fmt.Errorf("%w: %d", ErrProbabilityOutOfContract, current)
	}
	p := min(current, c.cfg.MaxProbability)
	if !header.IsDecayingDict() {
		return p, nil
	}

	steps := c.ElapsedIntervals(header)
	if c.cfg.ProbabilityStep > 0 {
		// p is at most MaxEncodableProbability, so more steps than that cannot matter
		steps = min(steps, int64(MaxEncodableProbability))
		p -= int(steps) * c.cfg.ProbabilityStep
	}
	if p < c.cfg.MinValidProbability {
		return NotAProbability, nil
	}
	return p, nil
}

func (c *ForgettingCurve) IsValidProbability(value int) bool {
	return value >= c.cfg.MinValidProbability && value <= c.cfg.MaxProbability
}

// Config returns the curve parameters.
func (c *ForgettingCurve) Config() Config { return c.cfg }
