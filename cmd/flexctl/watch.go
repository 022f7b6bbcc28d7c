package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/config"
	"github.com/dgnsrekt/flex-integration/internal/cursor"
	"github.com/dgnsrekt/flex-integration/internal/events"
	"github.com/dgnsrekt/flex-integration/internal/feed"
	"github.com/dgnsrekt/flex-integration/internal/notify"
	"github.com/dgnsrekt/flex-integration/internal/poller"
	"github.com/dgnsrekt/flex-integration/internal/server"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll marketplace events and report listings that need attention",
		Long: `Polls the event stream after the stored cursor and prints a line for
every listing that is pending approval, newly published or approved.

Without a stored cursor polling starts from the current time. The cursor is
saved after every batch, so a restart resumes where the last run stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidatePollerConfig(cfg.Poller, cfg.Cursor, cfg.Feed); err != nil {
				return err
			}
			store, err := cursor.Open(cmd.Context(), cfg.Cursor.Options(), logger)
			if err != nil {
				return fmt.Errorf("opening cursor store: %w", err)
			}
			defer func() { _ = store.Close() }()

			return runWatch(cmd.Context(), watchDeps{
				source: newAPIClient(),
				store:  store,
				clock:  backoff.SystemClock{},
				out:    cmd.OutOrStdout(),
			}, cfg, logger)
		},
	}
}

type watchDeps struct {
	source poller.EventSource
	store  cursor.Store
	clock  backoff.Clock
	out    io.Writer
}

// runWatch polls until ctx is cancelled or the poller hits a fatal error.
func runWatch(ctx context.Context, deps watchDeps, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks := notify.Fanout{notify.NewPrinter(deps.out)}
	if cfg.Notify.Enabled {
		sinks = append(sinks, notify.NewClient(&cfg.Notify, logger))
	}

	feedErr := make(chan error, 1)
	if cfg.Feed.Enabled {
		hub, err := feed.NewHub(logger)
		if err != nil {
			return fmt.Errorf("creating feed hub: %w", err)
		}
		defer hub.Close()
		go hub.Run(ctx)
		go func() {
			feedErr <- server.Serve(ctx, cfg.Feed.Addr, feed.NewRouter(hub, logger), logger)
		}()
		sinks = append(sinks, hub)
	}

	p := poller.New(poller.Config{
		Source:     deps.source,
		Store:      deps.store,
		Classifier: events.NewClassifier(cfg.Poller.ResourceType, events.ListingRules),
		Sink:       sinks,
		Clock:      deps.clock,
		Pacer:      cfg.Poller.Pacer(),
		EventTypes: cfg.Poller.EventTypes,
		PageSize:   cfg.Poller.PageSize,
	}, logger)

	_, _ = fmt.Fprintln(deps.out, "Press <CTRL>+C to quit.")

	pollErr := make(chan error, 1)
	go func() { pollErr <- p.Run(ctx) }()

	var err error
	select {
	case err = <-pollErr:
	case err = <-feedErr:
		cancel()
		if pollResult := <-pollErr; err == nil {
			err = pollResult
		}
	}

	stats := p.Stats()
	seq, _ := p.Cursor()
	logger.Info("watch stopped",
		zap.Int("iterations", stats.Iterations),
		zap.Int("events", stats.Events),
		zap.Int("notifications", stats.Notifications),
		zap.Int64("sequenceId", seq),
	)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
