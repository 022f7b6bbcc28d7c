package config

import (
	"github.com/dgnsrekt/flex-integration/internal/events"
)

// ResourceTypes lists every resource type the event stream carries.
var ResourceTypes = []string{
	events.ResourceListing,
	events.ResourceUser,
	events.ResourceAvailabilityException,
	events.ResourceMessage,
	events.ResourceTransaction,
	events.ResourceBooking,
	events.ResourceReview,
	events.ResourceStockAdjustment,
	events.ResourceStockReservation,
}

// Actions lists the event type verbs.
var Actions = []string{events.ActionCreated, events.ActionUpdated, events.ActionDeleted}

// ValidEventTypes maps every "resource/action" combination to true.
var ValidEventTypes = func() map[string]bool {
	m := make(map[string]bool, len(ResourceTypes)*len(Actions))
	for _, r := range ResourceTypes {
		for _, a := range Actions {
			m[events.EventType(r, a)] = true
		}
	}
	return m
}()

// MaxPageSize is the largest perPage the Integration API accepts.
const MaxPageSize = 100
