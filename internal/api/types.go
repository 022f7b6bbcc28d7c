package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/flex-integration/internal/events"
)

// Meta is the pagination block of a query response.
type Meta struct {
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
}

// Ref is a JSON:API resource identifier.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// Relationship wraps a single related resource.
type Relationship struct {
	Data *Ref `json:"data"`
}

// Money is an amount in minor units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// AvailabilityEntry is one weekly slot of an availability plan.
type AvailabilityEntry struct {
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Seats     int    `json:"seats"`
}

// AvailabilityPlan describes when a listing can be booked.
type AvailabilityPlan struct {
	Type     string              `json:"type"`
	Timezone string              `json:"timezone,omitempty"`
	Entries  []AvailabilityEntry `json:"entries"`
}

const (
	PlanTypeDay  = "availability-plan/day"
	PlanTypeTime = "availability-plan/time"
)

// ListingAttributes are the listing fields the toolkit reads and writes.
type ListingAttributes struct {
	Title            string            `json:"title,omitempty"`
	Description      string            `json:"description,omitempty"`
	State            string            `json:"state,omitempty"`
	Price            *Money            `json:"price,omitempty"`
	AvailabilityPlan *AvailabilityPlan `json:"availabilityPlan,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt,omitzero"`
}

// Listing is a marketplace listing.
type Listing struct {
	ID            uuid.UUID            `json:"id"`
	Type          string               `json:"type"`
	Attributes    ListingAttributes    `json:"attributes"`
	Relationships ListingRelationships `json:"relationships"`
}

// ListingRelationships links a listing to its author.
type ListingRelationships struct {
	Author Relationship `json:"author"`
}

// AuthorID returns the author's user ID, if the relationship was included.
func (l Listing) AuthorID() (uuid.UUID, bool) {
	if l.Relationships.Author.Data == nil {
		return uuid.Nil, false
	}
	return l.Relationships.Author.Data.ID, true
}

// Profile is the public part of a user.
type Profile struct {
	DisplayName string         `json:"displayName,omitempty"`
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// User is a marketplace user.
type User struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	Attributes UserAttributes `json:"attributes"`
}

// UserAttributes are the user fields the toolkit reads.
type UserAttributes struct {
	Email     string    `json:"email,omitempty"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Image is an uploaded image.
type Image struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// Marketplace describes the marketplace itself.
type Marketplace struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

// ListingCreate is the body of a listings/create command.
type ListingCreate struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AuthorID    uuid.UUID      `json:"authorId"`
	State       string         `json:"state,omitempty"`
	Price       *Money         `json:"price,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListingUpdate is the body of a listings/update command.
type ListingUpdate struct {
	ID               uuid.UUID         `json:"id"`
	Title            string            `json:"title,omitempty"`
	AvailabilityPlan *AvailabilityPlan `json:"availabilityPlan,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// ProfileUpdate is the body of a users/update_profile command.
type ProfileUpdate struct {
	ID             uuid.UUID      `json:"id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ProfileImageID *uuid.UUID     `json:"profileImageId,omitempty"`
}

// ListingQuery filters listings/query.
type ListingQuery struct {
	AuthorID       uuid.UUID
	States         []string
	CreatedAtStart time.Time
	Fields         []string
	PerPage        int
}

// UserQuery filters users/query.
type UserQuery struct {
	CreatedAtStart time.Time
	Fields         []string
	PerPage        int
}

// wire format of an event resource

type eventResource struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Attributes struct {
		SequenceID     int64           `json:"sequenceId"`
		ResourceType   string          `json:"resourceType"`
		ResourceID     uuid.UUID       `json:"resourceId"`
		EventType      string          `json:"eventType"`
		CreatedAt      time.Time       `json:"createdAt"`
		Resource       json.RawMessage `json:"resource"`
		PreviousValues json.RawMessage `json:"previousValues"`
	} `json:"attributes"`
}

type snapshotWire struct {
	Attributes struct {
		State string `json:"state"`
	} `json:"attributes"`
	Relationships struct {
		Author Relationship `json:"author"`
	} `json:"relationships"`
}

func decodeSnapshot(raw json.RawMessage) events.Snapshot {
	if len(raw) == 0 || string(raw) == "null" {
		return events.Snapshot{}
	}
	var w snapshotWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return events.Snapshot{}
	}
	s := events.Snapshot{State: w.Attributes.State}
	if w.Relationships.Author.Data != nil {
		s.AuthorID = w.Relationships.Author.Data.ID.String()
	}
	return s
}

func (r eventResource) toEvent() events.Event {
	a := r.Attributes
	return events.Event{
		SequenceID:   a.SequenceID,
		ResourceType: a.ResourceType,
		ResourceID:   a.ResourceID,
		EventType:    a.EventType,
		CreatedAt:    a.CreatedAt,
		Resource:     decodeSnapshot(a.Resource),
		Previous:     decodeSnapshot(a.PreviousValues),
	}
}

type errorBody struct {
	Errors []struct {
		Status int    `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
	} `json:"errors"`
}
