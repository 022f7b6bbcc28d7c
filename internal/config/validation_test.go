package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validPoller() PollerConfig {
	return PollerConfig{
		ResourceType: "listing",
		EventTypes:   []string{"listing/created", "listing/updated"},
		PageSize:     100,
		BusyWait:     250 * time.Millisecond,
		IdleWait:     10 * time.Second,
	}
}

func TestValidatePollerConfig_ValidConfig(t *testing.T) {
	err := ValidatePollerConfig(validPoller(), CursorConfig{Backend: "file", Path: "state"}, FeedConfig{})
	if err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidatePollerConfig_InvalidEventType(t *testing.T) {
	p := validPoller()
	p.EventTypes = []string{"listing/created", "listing/exploded"}

	err := ValidatePollerConfig(p, CursorConfig{Backend: "file", Path: "state"}, FeedConfig{})
	if err == nil {
		t.Fatal("expected error for invalid event type")
	}
	if !strings.Contains(err.Error(), "listing/exploded") {
		t.Errorf("error should mention invalid event type, got: %v", err)
	}
}

func TestValidatePollerConfig_CursorBackends(t *testing.T) {
	tests := []struct {
		name string
		cur  CursorConfig
		want string
	}{
		{"unknown backend", CursorConfig{Backend: "etcd"}, `cursor.backend "etcd"`},
		{"file without path", CursorConfig{Backend: "file"}, "cursor.path is required"},
		{"sqlite without path", CursorConfig{Backend: "sqlite"}, "cursor.path is required"},
		{"postgres without dsn", CursorConfig{Backend: "postgres"}, "cursor.dsn is required"},
		{"redis without addr", CursorConfig{Backend: "redis"}, "cursor.redis_addr is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePollerConfig(validPoller(), tt.cur, FeedConfig{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidatePollerConfig_MultipleErrors(t *testing.T) {
	p := PollerConfig{
		ResourceType: "spaceship",
		EventTypes:   []string{"INVALID1", "INVALID2"},
		PageSize:     500,
	}

	err := ValidatePollerConfig(p, CursorConfig{Backend: "file", Path: "s"}, FeedConfig{Enabled: true})
	if err == nil {
		t.Fatal("expected error for multiple issues")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}

	errStr := err.Error()
	for _, want := range []string{
		"INVALID1", "INVALID2", "spaceship",
		"page_size must be between 1 and 100",
		"poller.busy_wait must be positive",
		"poller.idle_wait must be positive",
		"feed.addr is required",
	} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidEventTypes(t *testing.T) {
	for _, et := range []string{"listing/created", "user/updated", "stockReservation/deleted"} {
		if !ValidEventTypes[et] {
			t.Errorf("%s should be valid", et)
		}
	}
	if ValidEventTypes["listing"] {
		t.Error("bare resource type should not be valid")
	}
}
