package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource types the marketplace emits events for.
const (
	ResourceListing               = "listing"
	ResourceUser                  = "user"
	ResourceAvailabilityException = "availabilityException"
	ResourceMessage               = "message"
	ResourceTransaction           = "transaction"
	ResourceBooking               = "booking"
	ResourceReview                = "review"
	ResourceStockAdjustment       = "stockAdjustment"
	ResourceStockReservation      = "stockReservation"
)

// Actions are the verb half of an event type ("listing/created" -> "created").
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Listing states.
const (
	StateDraft           = "draft"
	StatePendingApproval = "pendingApproval"
	StatePublished       = "published"
	StateClosed          = "closed"
)

// Snapshot is the part of a resource the classifier looks at. An empty State
// means the attribute was not present.
type Snapshot struct {
	State    string
	AuthorID string
}

// Event is a single entry of the marketplace event stream.
type Event struct {
	SequenceID   int64
	ResourceType string
	ResourceID   uuid.UUID
	EventType    string
	CreatedAt    time.Time
	Resource     Snapshot
	Previous     Snapshot
}

// Action returns the verb part of the event type.
func (e Event) Action() string {
	if i := strings.IndexByte(e.EventType, '/'); i >= 0 {
		return e.EventType[i+1:]
	}
	return e.EventType
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s %s", e.SequenceID, e.EventType, e.ResourceID)
}

// Query selects the next batch of events. When HasCursor is false the batch
// starts at CreatedAtStart instead.
type Query struct {
	StartAfterSequenceID int64
	HasCursor            bool
	CreatedAtStart       time.Time
	EventTypes           []string
	PerPage              int
}

// Batch is one page of events in sequence order.
type Batch struct {
	Events  []Event
	PerPage int
}

// FullPage reports whether the page was filled, which means more events are
// probably already waiting.
func (b Batch) FullPage() bool {
	return b.PerPage > 0 && len(b.Events) == b.PerPage
}

// Last returns the final event of the batch.
func (b Batch) Last() (Event, bool) {
	if len(b.Events) == 0 {
		return Event{}, false
	}
	return b.Events[len(b.Events)-1], true
}

// EventType joins a resource type and an action.
func EventType(resourceType, action string) string {
	return resourceType + "/" + action
}
