// Package bulk executes an ordered plan of write jobs against a rate-limited
// API, one at a time. A quota rejection retries the same job after an
// escalating penalty; any other error stops the plan and returns what
// completed. Nothing is rolled back.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/backoff"
)

// Job is one write operation. Do may run more than once if the API rejects
// it for quota.
type Job struct {
	Name string
	Do   func(ctx context.Context) (any, error)
}

// Plan is an ordered list of jobs. The runner never reorders it.
type Plan []Job

// Outcome records a completed job.
type Outcome struct {
	Index    int
	Name     string
	Value    any
	Attempts int
}

// Result holds outcomes in plan order.
type Result struct {
	Planned   int
	Outcomes  []Outcome
	Retries   int
	StartedAt time.Time
	Duration  time.Duration
}

// Completed returns the number of jobs that succeeded.
func (r *Result) Completed() int {
	return len(r.Outcomes)
}

// JobError is the terminal error of a plan.
type JobError struct {
	Index    int
	Name     string
	Attempts int
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s) failed after %d attempt(s): %v", e.Index+1, e.Name, e.Attempts, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// IsQuotaExceeded reports whether err is a quota rejection. It is the default
// retry predicate.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, api.ErrQuotaExceeded)
}

// Runner runs plans sequentially.
type Runner struct {
	policy  backoff.Policy
	clock   backoff.Clock
	logger  *zap.Logger
	retryIf func(error) bool
	jitter  func(time.Duration) time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithRetryIf replaces the predicate that marks an error as a quota rejection.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Runner) { r.retryIf = fn }
}

// WithJitter replaces the random jitter source of each run's controller.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(r *Runner) { r.jitter = fn }
}

// NewRunner creates a runner. Each Run gets a fresh backoff controller.
func NewRunner(policy backoff.Policy, clock backoff.Clock, logger *zap.Logger, opts ...Option) *Runner {
	if clock == nil {
		clock = backoff.SystemClock{}
	}
	r := &Runner{
		policy:  policy,
		clock:   clock,
		logger:  logger,
		retryIf: IsQuotaExceeded,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes plan in order. On a terminal error it returns the outcomes
// collected so far together with a *JobError.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Result, error) {
	ctrl := backoff.NewController(r.policy)
	if r.jitter != nil {
		ctrl.WithJitter(r.jitter)
	}

	result := &Result{
		Planned:   len(plan),
		Outcomes:  make([]Outcome, 0, len(plan)),
		StartedAt: r.clock.Now(),
	}
	finish := func(err error) (*Result, error) {
		result.Duration = r.clock.Now().Sub(result.StartedAt)
		return result, err
	}

	for i, job := range plan {
		attempts := 0
		for {
			if err := ctx.Err(); err != nil {
				return finish(&JobError{Index: i, Name: job.Name, Attempts: attempts, Err: err})
			}

			attempts++
			value, err := job.Do(ctx)
			if err == nil {
				result.Outcomes = append(result.Outcomes, Outcome{Index: i, Name: job.Name, Value: value, Attempts: attempts})
				r.logger.Debug("job completed", zap.Int("index", i), zap.String("job", job.Name), zap.Int("attempts", attempts))

				wait := ctrl.Succeeded()
				if i == len(plan)-1 {
					break
				}
				if err := r.clock.Sleep(ctx, wait); err != nil {
					return finish(&JobError{Index: i + 1, Name: plan[i+1].Name, Err: err})
				}
				break
			}

			if !r.retryIf(err) {
				r.logger.Warn("job failed",
					zap.Int("index", i),
					zap.String("job", job.Name),
					zap.Int("completed", len(result.Outcomes)),
					zap.Error(err))
				return finish(&JobError{Index: i, Name: job.Name, Attempts: attempts, Err: err})
			}

			penalty := ctrl.Rejected()
			result.Retries++
			r.logger.Info("rate limited, retrying same job",
				zap.Int("index", i),
				zap.String("job", job.Name),
				zap.Int("attempt", attempts),
				zap.Duration("penalty", penalty))
			if err := r.clock.Sleep(ctx, penalty); err != nil {
				return finish(&JobError{Index: i, Name: job.Name, Attempts: attempts, Err: err})
			}
		}
	}

	return finish(nil)
}
