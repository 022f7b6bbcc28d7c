package backoff

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Mode is the pacing regime a loop is currently in.
type Mode int

const (
	ModeIdle Mode = iota
	ModeBusy
	ModeRateLimited
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeBusy:
		return "busy"
	case ModeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// State is the transient pacing state of one loop. It is never persisted.
type State struct {
	CurrentWait time.Duration
	Mode        Mode
}

// Pacer picks the delay between poll iterations. It backs off on volume, not
// on failure: both delays are fixed.
type Pacer struct {
	BusyWait time.Duration
	IdleWait time.Duration
}

// Next returns the delay after a batch. A full page means more events are
// probably waiting, so the short busy delay is used.
func (p Pacer) Next(fullPage bool) State {
	if fullPage {
		return State{CurrentWait: p.BusyWait, Mode: ModeBusy}
	}
	return State{CurrentWait: p.IdleWait, Mode: ModeIdle}
}

// Policy configures a Controller.
type Policy struct {
	// BaseInterval is the pause after every successful write.
	BaseInterval time.Duration
	// InitialPenalty is the wait after the first quota rejection in a row.
	InitialPenalty time.Duration
	// MaxJitter bounds the random amount added on each escalation.
	MaxJitter time.Duration
	// MaxPenalty caps the penalty. Zero leaves it uncapped.
	MaxPenalty time.Duration
}

// Validate checks that rejections always produce a real, growing wait.
func (p Policy) Validate() error {
	switch {
	case p.BaseInterval < 0:
		return errors.New("base interval must not be negative")
	case p.InitialPenalty <= 0:
		return errors.New("initial penalty must be positive")
	case p.MaxJitter < 0:
		return errors.New("max jitter must not be negative")
	case p.MaxPenalty != 0 && p.MaxPenalty < p.InitialPenalty:
		return errors.New("max penalty must be zero or at least the initial penalty")
	}
	return nil
}

// Controller paces write-heavy work. Consecutive quota rejections double the
// penalty (plus jitter); the next success resets it.
type Controller struct {
	policy  Policy
	penalty time.Duration
	state   State
	jitter  func(max time.Duration) time.Duration
}

// NewController creates a controller in idle mode.
func NewController(policy Policy) *Controller {
	return &Controller{
		policy:  policy,
		penalty: policy.InitialPenalty,
		jitter:  randomJitter,
	}
}

// WithJitter replaces the jitter source. Used by tests for determinism.
func (c *Controller) WithJitter(fn func(max time.Duration) time.Duration) *Controller {
	c.jitter = fn
	return c
}

// Succeeded records a successful write and returns the pause before the next.
func (c *Controller) Succeeded() time.Duration {
	c.penalty = c.policy.InitialPenalty
	c.state = State{CurrentWait: c.policy.BaseInterval, Mode: ModeBusy}
	return c.policy.BaseInterval
}

// Rejected records a quota rejection and returns the wait before retrying the
// same write.
func (c *Controller) Rejected() time.Duration {
	wait := c.penalty
	c.state = State{CurrentWait: wait, Mode: ModeRateLimited}

	next := c.penalty*2 + c.jitter(c.policy.MaxJitter)
	if next < c.penalty {
		// Overflowed; saturate instead of wrapping negative.
		next = math.MaxInt64
	}
	if c.policy.MaxPenalty > 0 && next > c.policy.MaxPenalty {
		next = c.policy.MaxPenalty
	}
	c.penalty = next
	return wait
}

// State returns the current pacing state.
func (c *Controller) State() State {
	return c.state
}

// NextPenalty returns the wait the next rejection would produce.
func (c *Controller) NextPenalty() time.Duration {
	return c.penalty
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
