package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/bulk"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

// Sink receives listing notifications in event order.
type Sink interface {
	Notify(ctx context.Context, n events.Notification) error
}

// Notifier delivers listing notifications and bulk run summaries.
type Notifier interface {
	Sink
	SendSuccess(ctx context.Context, name string, result *bulk.Result) error
	SendFailure(ctx context.Context, name string, result *bulk.Result, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// Notify pushes one listing notification.
func (c *Client) Notify(ctx context.Context, n events.Notification) error {
	if !c.config.Enabled {
		return nil
	}

	tags := c.config.Tags + "," + kindTag(n.Kind)
	return c.send(ctx, FormatNotificationTitle(n), n.Message, tags, c.config.Priority)
}

// SendSuccess sends a bulk run success summary.
func (c *Client) SendSuccess(ctx context.Context, name string, result *bulk.Result) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("Bulk Complete: %s", name)
	message := FormatSuccessMessage(result)
	tags := c.config.Tags + ",white_check_mark"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

// SendFailure sends a bulk run failure summary.
func (c *Client) SendFailure(ctx context.Context, name string, result *bulk.Result, err error) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("Bulk Failed: %s", name)
	message := FormatFailureMessage(result, err)
	tags := c.config.Tags + ",x"
	priority := "high" // Override to high priority for failures

	return c.send(ctx, title, message, tags, priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

func kindTag(k events.Kind) string {
	switch k {
	case events.KindPendingApproval:
		return "hourglass"
	case events.KindApproved:
		return "heavy_check_mark"
	default:
		return "loudspeaker"
	}
}

// Printer writes one line per notification, and the bulk summaries, to w.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a console printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Notify(_ context.Context, n events.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, n.Message)
	return err
}

func (p *Printer) SendSuccess(_ context.Context, name string, result *bulk.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s: done\n%s\n", name, FormatSuccessMessage(result))
	return err
}

func (p *Printer) SendFailure(_ context.Context, name string, result *bulk.Result, runErr error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s: stopped\n%s\n", name, FormatFailureMessage(result, runErr))
	return err
}

// Multi fans every call out to all notifiers, in order. Every notifier is
// called even if an earlier one fails; the errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n events.Notification) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Notify(ctx, n))
	}
	return errors.Join(errs...)
}

func (m Multi) SendSuccess(ctx context.Context, name string, result *bulk.Result) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SendSuccess(ctx, name, result))
	}
	return errors.Join(errs...)
}

func (m Multi) SendFailure(ctx context.Context, name string, result *bulk.Result, err error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SendFailure(ctx, name, result, err))
	}
	return errors.Join(errs...)
}

// Fanout delivers notifications to several sinks in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n events.Notification) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Notify(ctx, n))
	}
	return errors.Join(errs...)
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// Notify is a no-op.
func (n *NoopNotifier) Notify(_ context.Context, _ events.Notification) error {
	return nil
}

// SendSuccess is a no-op.
func (n *NoopNotifier) SendSuccess(_ context.Context, _ string, _ *bulk.Result) error {
	return nil
}

// SendFailure is a no-op.
func (n *NoopNotifier) SendFailure(_ context.Context, _ string, _ *bulk.Result, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
