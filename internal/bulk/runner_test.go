package bulk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/testutil"
)

var testPolicy = backoff.Policy{
	BaseInterval:   600 * time.Millisecond,
	InitialPenalty: time.Minute,
	MaxJitter:      time.Second,
}

func noJitter(time.Duration) time.Duration { return 0 }

func quotaErr() error {
	return &api.Error{Kind: api.KindQuotaExceeded, Status: 429, Op: "listings.create"}
}

// recorder builds jobs that log each invocation.
type recorder struct {
	calls []string
}

func (r *recorder) job(name string, results ...error) Job {
	n := 0
	return Job{
		Name: name,
		Do: func(context.Context) (any, error) {
			r.calls = append(r.calls, name)
			var err error
			if n < len(results) {
				err = results[n]
			}
			n++
			if err != nil {
				return nil, err
			}
			return "O" + name[1:], nil
		},
	}
}

func newTestRunner(clock backoff.Clock) *Runner {
	return NewRunner(testPolicy, clock, zap.NewNop(), WithJitter(noJitter))
}

func TestRun_PreservesOrder(t *testing.T) {
	rec := &recorder{}
	plan := Plan{rec.job("J1"), rec.job("J2"), rec.job("J3"), rec.job("J4")}
	clock := testutil.NewFakeClock(time.Now())

	result, err := newTestRunner(clock).Run(context.Background(), plan)
	require.NoError(t, err)

	var values []any
	for i, o := range result.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, 1, o.Attempts)
		values = append(values, o.Value)
	}
	assert.Equal(t, []any{"O1", "O2", "O3", "O4"}, values)
	assert.Equal(t, []string{"J1", "J2", "J3", "J4"}, rec.calls)
	assert.Equal(t, 4, result.Planned)
	assert.Equal(t, 4, result.Completed())

	// Base interval between jobs, none after the last.
	assert.Equal(t, []time.Duration{testPolicy.BaseInterval, testPolicy.BaseInterval, testPolicy.BaseInterval}, clock.Sleeps())
	assert.Equal(t, 3*testPolicy.BaseInterval, result.Duration)
}

func TestRun_PartialFailure(t *testing.T) {
	rec := &recorder{}
	invalid := &api.Error{Kind: api.KindValidation, Status: 400, Op: "listings.create"}
	plan := Plan{rec.job("J1"), rec.job("J2"), rec.job("J3", invalid), rec.job("J4"), rec.job("J5")}

	result, err := newTestRunner(testutil.NewFakeClock(time.Now())).Run(context.Background(), plan)

	var jerr *JobError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, 2, jerr.Index)
	assert.Equal(t, "J3", jerr.Name)
	assert.Equal(t, 1, jerr.Attempts)
	assert.ErrorIs(t, err, api.ErrValidation)

	require.NotNil(t, result)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "O1", result.Outcomes[0].Value)
	assert.Equal(t, "O2", result.Outcomes[1].Value)

	assert.Equal(t, []string{"J1", "J2", "J3"}, rec.calls, "J4 and later must never run")
}

func TestRun_TransientErrorIsNotRetried(t *testing.T) {
	rec := &recorder{}
	plan := Plan{rec.job("J1", &api.Error{Kind: api.KindTransient, Status: 502})}

	result, err := newTestRunner(testutil.NewFakeClock(time.Now())).Run(context.Background(), plan)
	assert.ErrorIs(t, err, api.ErrTransient)
	assert.Empty(t, result.Outcomes)
	assert.Equal(t, []string{"J1"}, rec.calls)
}

func TestRun_QuotaRejectionRetriesSameJob(t *testing.T) {
	rec := &recorder{}
	plan := Plan{
		rec.job("J1"),
		rec.job("J2", quotaErr(), quotaErr(), quotaErr()),
		rec.job("J3", quotaErr()),
	}
	clock := testutil.NewFakeClock(time.Now())

	result, err := newTestRunner(clock).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"J1", "J2", "J2", "J2", "J2", "J3", "J3"}, rec.calls)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, 4, result.Outcomes[1].Attempts)
	assert.Equal(t, 2, result.Outcomes[2].Attempts)
	assert.Equal(t, 4, result.Retries)

	base, p := testPolicy.BaseInterval, testPolicy.InitialPenalty
	assert.Equal(t, []time.Duration{
		base,            // after J1
		p, 2 * p, 4 * p, // J2 rejected three times
		base, // after J2, penalty reset
		p,    // J3 rejected once, starts from the initial penalty again
	}, clock.Sleeps())
}

func TestRun_JitterIsAddedOnEscalation(t *testing.T) {
	rec := &recorder{}
	plan := Plan{rec.job("J1", quotaErr(), quotaErr(), quotaErr())}
	clock := testutil.NewFakeClock(time.Now())

	runner := NewRunner(testPolicy, clock, zap.NewNop(), WithJitter(func(time.Duration) time.Duration {
		return 100 * time.Millisecond
	}))
	_, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)

	p, j := testPolicy.InitialPenalty, 100*time.Millisecond
	assert.Equal(t, []time.Duration{p, 2*p + j, 2*(2*p+j) + j}, clock.Sleeps())
}

func TestRun_CustomRetryPredicate(t *testing.T) {
	busy := errors.New("busy")
	rec := &recorder{}
	plan := Plan{rec.job("J1", busy)}

	runner := NewRunner(testPolicy, testutil.NewFakeClock(time.Now()), zap.NewNop(),
		WithJitter(noJitter),
		WithRetryIf(func(err error) bool { return errors.Is(err, busy) }))

	result, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)
}

func TestRun_CancelledDuringPenalty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	plan := Plan{rec.job("J1"), rec.job("J2", quotaErr(), quotaErr()), rec.job("J3")}

	clock := testutil.NewFakeClock(time.Now())
	clock.OnSleep = func(n int, _ time.Duration) error {
		if n == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	result, err := newTestRunner(clock).Run(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)

	var jerr *JobError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, "J2", jerr.Name)
	assert.Equal(t, 1, jerr.Attempts)
	assert.Len(t, result.Outcomes, 1)
	assert.Equal(t, []string{"J1", "J2"}, rec.calls)
}

func TestRun_EmptyPlan(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	result, err := newTestRunner(clock).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Completed())
	assert.Empty(t, clock.Sleeps())
}

// Property: with no rejections the outcomes come back in plan order; with
// a terminal failure at index k exactly k outcomes come back.
func TestRun_OrderAndPartialFailureProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("outcomes are the plan prefix before the first failure", prop.ForAll(
		func(n int, failAt int) bool {
			var invoked []int
			plan := make(Plan, n)
			for i := range plan {
				i := i
				plan[i] = Job{Name: fmt.Sprintf("J%d", i+1), Do: func(context.Context) (any, error) {
					invoked = append(invoked, i)
					if i == failAt {
						return nil, errors.New("validation")
					}
					return i, nil
				}}
			}

			result, err := newTestRunner(testutil.NewFakeClock(time.Now())).Run(context.Background(), plan)

			want := n
			if failAt < n {
				want = failAt
				if err == nil || len(invoked) != failAt+1 {
					return false
				}
			} else if err != nil {
				return false
			}
			if len(result.Outcomes) != want {
				return false
			}
			for i, o := range result.Outcomes {
				if o.Index != i || o.Value != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}
