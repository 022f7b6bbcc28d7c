// Package poller drives the durable event-polling loop: fetch a batch after
// the stored cursor, classify and emit each event in order, persist the last
// sequence ID, then wait a busy or idle delay depending on page fullness.
//
// Delivery is at-least-once. Notifications for a batch are emitted before
// its cursor is saved, so a crash in between replays that batch on restart.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/cursor"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

// ErrSequenceViolation means the API returned events out of order.
var ErrSequenceViolation = errors.New("event sequence violation")

// PersistenceError is returned when the cursor could not be saved. Polling
// must stop: continuing on an unsaved cursor would replay the batch later.
type PersistenceError struct {
	SequenceID int64
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("saving cursor %d: %v", e.SequenceID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// EventSource fetches one ordered batch of events.
type EventSource interface {
	QueryEvents(ctx context.Context, q events.Query) (events.Batch, error)
}

// Sink receives notifications in event order.
type Sink interface {
	Notify(ctx context.Context, n events.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n events.Notification) error

func (f SinkFunc) Notify(ctx context.Context, n events.Notification) error { return f(ctx, n) }

// Config wires a Poller.
type Config struct {
	Source     EventSource
	Store      cursor.Store
	Classifier *events.Classifier
	Sink       Sink
	Clock      backoff.Clock
	Pacer      backoff.Pacer

	EventTypes []string
	PageSize   int
}

// Stats counts what the poller has processed since construction.
type Stats struct {
	Iterations    int
	Events        int
	Notifications int
}

// Poller is single-goroutine; Step and Run must not be called concurrently.
type Poller struct {
	cfg    Config
	logger *zap.Logger

	startTime time.Time
	loaded    bool
	cursor    int64
	hasCursor bool
	stats     Stats
}

// New creates a poller. The cold-start timestamp is captured here, once.
func New(cfg Config, logger *zap.Logger) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = backoff.SystemClock{}
	}
	return &Poller{
		cfg:       cfg,
		logger:    logger,
		startTime: cfg.Clock.Now(),
	}
}

// Cursor returns the current cursor and whether one is known.
func (p *Poller) Cursor() (int64, bool) {
	return p.cursor, p.hasCursor
}

// Stats returns processing counters.
func (p *Poller) Stats() Stats {
	return p.stats
}

// StartTime is the cold-start timestamp.
func (p *Poller) StartTime() time.Time {
	return p.startTime
}

// load reads the stored cursor once. A read failure is returned, never
// treated as absent.
func (p *Poller) load(ctx context.Context) error {
	if p.loaded {
		return nil
	}

	seq, ok, err := p.cfg.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading cursor: %w", err)
	}
	p.cursor, p.hasCursor, p.loaded = seq, ok, true
	if p.hasCursor {
		p.logger.Info("resuming from stored cursor", zap.Int64("sequenceId", p.cursor))
	} else {
		p.logger.Info("no stored cursor, starting from current time", zap.Time("createdAtStart", p.startTime))
	}
	return nil
}

func (p *Poller) query() events.Query {
	q := events.Query{
		EventTypes: p.cfg.EventTypes,
		PerPage:    p.cfg.PageSize,
	}
	if p.hasCursor {
		q.StartAfterSequenceID = p.cursor
		q.HasCursor = true
	} else {
		q.CreatedAtStart = p.startTime
	}
	return q
}

// Step runs one iteration and returns the delay before the next one.
func (p *Poller) Step(ctx context.Context) (backoff.State, error) {
	if err := p.load(ctx); err != nil {
		return backoff.State{}, err
	}
	p.stats.Iterations++

	q := p.query()
	batch, err := p.cfg.Source.QueryEvents(ctx, q)
	if err != nil {
		return backoff.State{}, fmt.Errorf("querying events: %w", err)
	}
	if batch.PerPage <= 0 {
		batch.PerPage = q.PerPage
	}

	if err := verifyOrder(q, batch.Events); err != nil {
		return backoff.State{}, err
	}

	for _, e := range batch.Events {
		p.stats.Events++
		n, ok := p.cfg.Classifier.Classify(e)
		if !ok {
			continue
		}
		if err := p.cfg.Sink.Notify(ctx, n); err != nil {
			return backoff.State{}, fmt.Errorf("emitting notification for event %d: %w", e.SequenceID, err)
		}
		p.stats.Notifications++
	}

	if last, ok := batch.Last(); ok {
		if err := p.cfg.Store.Save(ctx, last.SequenceID); err != nil {
			return backoff.State{}, &PersistenceError{SequenceID: last.SequenceID, Err: err}
		}
		p.cursor = last.SequenceID
		p.hasCursor = true
	}

	state := p.cfg.Pacer.Next(batch.FullPage())
	p.logger.Debug("poll iteration complete",
		zap.Int("events", len(batch.Events)),
		zap.Int64("sequenceId", p.cursor),
		zap.Stringer("mode", state.Mode),
		zap.Duration("delay", state.CurrentWait))
	return state, nil
}

// Run loops until an error or context cancellation. It never returns nil.
func (p *Poller) Run(ctx context.Context) error {
	for {
		state, err := p.Step(ctx)
		if err != nil {
			return err
		}
		if err := p.cfg.Clock.Sleep(ctx, state.CurrentWait); err != nil {
			return err
		}
	}
}

// verifyOrder checks that sequence IDs strictly increase within the batch and
// start after the requested cursor.
func verifyOrder(q events.Query, batch []events.Event) error {
	prev, bounded := q.StartAfterSequenceID, q.HasCursor
	for _, e := range batch {
		if bounded && e.SequenceID <= prev {
			return fmt.Errorf("%w: sequenceId %d after %d", ErrSequenceViolation, e.SequenceID, prev)
		}
		prev, bounded = e.SequenceID, true
	}
	return nil
}
