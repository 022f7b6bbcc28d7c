package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgnsrekt/flex-integration/internal/cursor"
)

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidEventTypes []string
	InvalidResource   string
	Problems          []string
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidEventTypes) > 0 || e.InvalidResource != "" || len(e.Problems) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidEventTypes) > 0 {
		sb.WriteString("\nInvalid event types:\n")
		for _, t := range e.InvalidEventTypes {
			sb.WriteString(fmt.Sprintf("  - %s\n", t))
		}
		sb.WriteString("\nEvent types look like resource/action, e.g. listing/created\n")
	}

	if e.InvalidResource != "" {
		sb.WriteString(fmt.Sprintf("\nInvalid resource type: %s\n", e.InvalidResource))
		sb.WriteString(fmt.Sprintf("Valid resource types: %s\n", strings.Join(ResourceTypes, ", ")))
	}

	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("\n%s\n", p))
	}

	return sb.String()
}

// ValidatePollerConfig checks the poller, cursor and feed sections together
// and reports every problem at once.
func ValidatePollerConfig(poller PollerConfig, cur CursorConfig, feed FeedConfig) error {
	errs := &ValidationErrors{}

	if !slices.Contains(ResourceTypes, poller.ResourceType) {
		errs.InvalidResource = poller.ResourceType
	}
	for _, et := range poller.EventTypes {
		if !ValidEventTypes[et] {
			errs.InvalidEventTypes = append(errs.InvalidEventTypes, et)
		}
	}

	if poller.PageSize < 1 || poller.PageSize > MaxPageSize {
		errs.Problems = append(errs.Problems, fmt.Sprintf("poller.page_size must be between 1 and %d, got %d", MaxPageSize, poller.PageSize))
	}
	checkPositive(errs, "poller.busy_wait", poller.BusyWait)
	checkPositive(errs, "poller.idle_wait", poller.IdleWait)

	switch {
	case !slices.Contains(cursor.Backends, cur.Backend):
		errs.Problems = append(errs.Problems, fmt.Sprintf("cursor.backend %q is not one of %s", cur.Backend, strings.Join(cursor.Backends, ", ")))
	case (cur.Backend == cursor.BackendFile || cur.Backend == cursor.BackendSQLite) && cur.Path == "":
		errs.Problems = append(errs.Problems, fmt.Sprintf("cursor.path is required for the %s backend", cur.Backend))
	case cur.Backend == cursor.BackendPostgres && cur.DSN == "":
		errs.Problems = append(errs.Problems, "cursor.dsn is required for the postgres backend")
	case cur.Backend == cursor.BackendRedis && cur.RedisAddr == "":
		errs.Problems = append(errs.Problems, "cursor.redis_addr is required for the redis backend")
	}

	if feed.Enabled && feed.Addr == "" {
		errs.Problems = append(errs.Problems, "feed.addr is required when feed.enabled=true")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func checkPositive(errs *ValidationErrors, name string, d time.Duration) {
	if d <= 0 {
		errs.Problems = append(errs.Problems, fmt.Sprintf("%s must be positive, got %s", name, d))
	}
}
