package events

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind names a business notification produced from an event.
type Kind string

const (
	KindPendingApproval Kind = "pending_approval"
	KindPublished       Kind = "published"
	KindApproved        Kind = "approved"
)

// Notification is the classifier output for a single event.
type Notification struct {
	Kind         Kind      `json:"kind"`
	SequenceID   int64     `json:"sequenceId"`
	EventType    string    `json:"eventType"`
	ResourceType string    `json:"resourceType"`
	ResourceID   uuid.UUID `json:"resourceId"`
	AuthorID     string    `json:"authorId,omitempty"`
	Message      string    `json:"message"`
}

// Rule maps an action and a state transition to a notification kind. An empty
// PreviousState matches regardless of the previous value.
type Rule struct {
	Action        string
	State         string
	PreviousState string
	Kind          Kind
}

func (r Rule) matches(e Event) bool {
	if e.Action() != r.Action || e.Resource.State != r.State {
		return false
	}
	return r.PreviousState == "" || e.Previous.State == r.PreviousState
}

// ListingRules is the transition table for listing approval flows.
var ListingRules = []Rule{
	{Action: ActionCreated, State: StatePendingApproval, Kind: KindPendingApproval},
	{Action: ActionCreated, State: StatePublished, Kind: KindPublished},
	{Action: ActionUpdated, State: StatePublished, PreviousState: StatePendingApproval, Kind: KindApproved},
	{Action: ActionUpdated, State: StatePublished, PreviousState: StateDraft, Kind: KindPublished},
	{Action: ActionUpdated, State: StatePendingApproval, PreviousState: StateDraft, Kind: KindPendingApproval},
}

// Classifier turns events of one resource type into notifications. It holds
// no state, so classifying the same event twice gives the same result.
type Classifier struct {
	resourceType string
	rules        []Rule
}

// NewClassifier creates a classifier for resourceType using rules in order;
// the first matching rule wins.
func NewClassifier(resourceType string, rules []Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{resourceType: resourceType, rules: cp}
}

// NewListingClassifier returns the classifier for listing events.
func NewListingClassifier() *Classifier {
	return NewClassifier(ResourceListing, ListingRules)
}

// Classify returns the notification for e, if any.
func (c *Classifier) Classify(e Event) (Notification, bool) {
	if e.ResourceType != c.resourceType {
		return Notification{}, false
	}
	for _, r := range c.rules {
		if r.matches(e) {
			return Notification{
				Kind:         r.Kind,
				SequenceID:   e.SequenceID,
				EventType:    e.EventType,
				ResourceType: e.ResourceType,
				ResourceID:   e.ResourceID,
				AuthorID:     e.Resource.AuthorID,
				Message:      describe(r.Kind, e),
			}, true
		}
	}
	return Notification{}, false
}

func describe(kind Kind, e Event) string {
	details := fmt.Sprintf("%s ID %s, author ID: %s", e.ResourceType, e.ResourceID, e.Resource.AuthorID)
	switch kind {
	case KindPendingApproval:
		return fmt.Sprintf("A new %s is pending approval: %s", e.ResourceType, details)
	case KindPublished:
		return fmt.Sprintf("A new %s has been published: %s", e.ResourceType, details)
	case KindApproved:
		return fmt.Sprintf("A %s has been approved by operator: %s", e.ResourceType, details)
	default:
		return fmt.Sprintf("%s: %s", kind, details)
	}
}
