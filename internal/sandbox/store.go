// Package sandbox is an in-memory stand-in for the marketplace Integration
// API. It speaks the same wire format as internal/api expects, emits events
// for every write and rejects commands over its quota with 429s.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

var (
	errNotFound = errors.New("resource not found")
	errInvalid  = errors.New("invalid request")
	errConflict = errors.New("conflicting state")
)

// Event is a stored marketplace event.
type Event struct {
	ID             uuid.UUID
	SequenceID     int64
	ResourceType   string
	ResourceID     uuid.UUID
	EventType      string
	CreatedAt      time.Time
	Resource       json.RawMessage
	PreviousValues json.RawMessage
}

type transaction struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Store holds marketplace state. All methods are safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	marketplace  api.Marketplace
	users        map[uuid.UUID]*api.User
	usersByEmail map[string]uuid.UUID
	listings     map[uuid.UUID]*api.Listing
	images       map[uuid.UUID]api.Image
	transactions []transaction
	events       []Event
	seq          int64
}

// NewStore creates an empty store. now defaults to time.Now.
func NewStore(marketplaceName string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		now:          now,
		users:        make(map[uuid.UUID]*api.User),
		usersByEmail: make(map[string]uuid.UUID),
		listings:     make(map[uuid.UUID]*api.Listing),
		images:       make(map[uuid.UUID]api.Image),
	}
	s.marketplace.ID = uuid.New()
	s.marketplace.Type = "marketplace"
	s.marketplace.Attributes.Name = marketplaceName
	return s
}

// Marketplace returns the marketplace resource.
func (s *Store) Marketplace() api.Marketplace {
	return s.marketplace
}

// AddUser registers a user and emits user/created.
func (s *Store) AddUser(email string, profile api.Profile) (api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email == "" {
		return api.User{}, fmt.Errorf("%w: email is required", errInvalid)
	}
	if _, ok := s.usersByEmail[email]; ok {
		return api.User{}, fmt.Errorf("%w: email %s already taken", errConflict, email)
	}

	u := &api.User{
		ID:   uuid.New(),
		Type: "user",
		Attributes: api.UserAttributes{
			Email:     email,
			Profile:   profile,
			CreatedAt: s.now().UTC(),
		},
	}
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	s.emit(events.ResourceUser, u.ID, events.ActionCreated, *u, struct{}{})
	return cloneUser(u), nil
}

// ShowUser finds a user by email or by ID string.
func (s *Store) ShowUser(email, id string) (api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uid uuid.UUID
	switch {
	case email != "":
		found, ok := s.usersByEmail[email]
		if !ok {
			return api.User{}, fmt.Errorf("%w: user %s", errNotFound, email)
		}
		uid = found
	case id != "":
		parsed, err := uuid.Parse(id)
		if err != nil {
			return api.User{}, fmt.Errorf("%w: bad user id", errInvalid)
		}
		uid = parsed
	default:
		return api.User{}, fmt.Errorf("%w: email or id is required", errInvalid)
	}

	u, ok := s.users[uid]
	if !ok {
		return api.User{}, fmt.Errorf("%w: user %s", errNotFound, uid)
	}
	return cloneUser(u), nil
}

// QueryUsers returns users created at or after since, newest first.
func (s *Store) QueryUsers(since time.Time, page, perPage int) ([]api.User, api.Meta) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []api.User
	for _, u := range s.users {
		if !since.IsZero() && u.Attributes.CreatedAt.Before(since) {
			continue
		}
		all = append(all, cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Attributes.CreatedAt.After(all[j].Attributes.CreatedAt)
	})
	return paginate(all, page, perPage)
}

// UpdateProfile merges metadata into the user's profile and optionally sets
// the profile image.
func (s *Store) UpdateProfile(u api.ProfileUpdate) (api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[u.ID]
	if !ok {
		return api.User{}, fmt.Errorf("%w: user %s", errNotFound, u.ID)
	}
	if u.ProfileImageID != nil {
		if _, ok := s.images[*u.ProfileImageID]; !ok {
			return api.User{}, fmt.Errorf("%w: image %s", errNotFound, *u.ProfileImageID)
		}
	}

	previous := map[string]any{}
	if len(u.Metadata) > 0 {
		previous["metadata"] = maps.Clone(user.Attributes.Profile.Metadata)
		if user.Attributes.Profile.Metadata == nil {
			user.Attributes.Profile.Metadata = make(map[string]any)
		}
		maps.Copy(user.Attributes.Profile.Metadata, u.Metadata)
	}

	s.emit(events.ResourceUser, user.ID, events.ActionUpdated, *user, map[string]any{
		"attributes": map[string]any{"profile": previous},
	})
	return cloneUser(user), nil
}

// AddImage stores an uploaded image.
func (s *Store) AddImage() api.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := api.Image{ID: uuid.New(), Type: "image"}
	s.images[img.ID] = img
	return img
}

// AddTransaction records a transaction at the current time.
func (s *Store) AddTransaction() {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := transaction{ID: uuid.New(), CreatedAt: s.now().UTC()}
	s.transactions = append(s.transactions, t)
	s.emit(events.ResourceTransaction, t.ID, events.ActionCreated, map[string]any{"id": t.ID, "type": "transaction"}, struct{}{})
}

// CountTransactions returns transactions created at or after since.
func (s *Store) CountTransactions(since time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.transactions {
		if since.IsZero() || !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

var creatableStates = []string{events.StateDraft, events.StatePendingApproval, events.StatePublished}

// CreateListing creates a listing for an existing author.
func (s *Store) CreateListing(c api.ListingCreate) (api.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Title == "" {
		return api.Listing{}, fmt.Errorf("%w: title is required", errInvalid)
	}
	if _, ok := s.users[c.AuthorID]; !ok {
		return api.Listing{}, fmt.Errorf("%w: author %s", errNotFound, c.AuthorID)
	}
	state := c.State
	if state == "" {
		state = events.StatePublished
	}
	if !slices.Contains(creatableStates, state) {
		return api.Listing{}, fmt.Errorf("%w: state %q", errInvalid, state)
	}

	l := &api.Listing{
		ID:   uuid.New(),
		Type: "listing",
		Attributes: api.ListingAttributes{
			Title:       c.Title,
			Description: c.Description,
			State:       state,
			Price:       c.Price,
			Metadata:    maps.Clone(c.Metadata),
			CreatedAt:   s.now().UTC(),
		},
		Relationships: api.ListingRelationships{
			Author: api.Relationship{Data: &api.Ref{ID: c.AuthorID, Type: "user"}},
		},
	}
	s.listings[l.ID] = l
	s.emit(events.ResourceListing, l.ID, events.ActionCreated, *l, struct{}{})
	return cloneListing(l), nil
}

// UpdateListing applies the non-empty fields of u.
func (s *Store) UpdateListing(u api.ListingUpdate) (api.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[u.ID]
	if !ok {
		return api.Listing{}, fmt.Errorf("%w: listing %s", errNotFound, u.ID)
	}

	previous := map[string]any{}
	if u.Title != "" && u.Title != l.Attributes.Title {
		previous["title"] = l.Attributes.Title
		l.Attributes.Title = u.Title
	}
	if u.AvailabilityPlan != nil {
		previous["availabilityPlan"] = l.Attributes.AvailabilityPlan
		plan := *u.AvailabilityPlan
		l.Attributes.AvailabilityPlan = &plan
	}
	if len(u.Metadata) > 0 {
		previous["metadata"] = maps.Clone(l.Attributes.Metadata)
		if l.Attributes.Metadata == nil {
			l.Attributes.Metadata = make(map[string]any)
		}
		maps.Copy(l.Attributes.Metadata, u.Metadata)
	}

	s.emit(events.ResourceListing, l.ID, events.ActionUpdated, *l, map[string]any{"attributes": previous})
	return cloneListing(l), nil
}

// SetListingState moves a listing to state, as an operator or author would.
func (s *Store) SetListingState(id uuid.UUID, state string) (api.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return api.Listing{}, fmt.Errorf("%w: listing %s", errNotFound, id)
	}
	return s.transitionLocked(l, state), nil
}

// ApproveListing publishes a listing that is pending approval.
func (s *Store) ApproveListing(id uuid.UUID) (api.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return api.Listing{}, fmt.Errorf("%w: listing %s", errNotFound, id)
	}
	if l.Attributes.State != events.StatePendingApproval {
		return api.Listing{}, fmt.Errorf("%w: listing %s is %s", errConflict, id, l.Attributes.State)
	}
	return s.transitionLocked(l, events.StatePublished), nil
}

func (s *Store) transitionLocked(l *api.Listing, state string) api.Listing {
	prev := l.Attributes.State
	if prev == state {
		return cloneListing(l)
	}
	l.Attributes.State = state
	s.emit(events.ResourceListing, l.ID, events.ActionUpdated, *l, map[string]any{
		"attributes": map[string]any{"state": prev},
	})
	return cloneListing(l)
}

// ListingFilter narrows QueryListings.
type ListingFilter struct {
	AuthorID       uuid.UUID
	States         []string
	CreatedAtStart time.Time
}

// QueryListings returns matching listings, newest first.
func (s *Store) QueryListings(f ListingFilter, page, perPage int) ([]api.Listing, api.Meta) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []api.Listing
	for _, l := range s.listings {
		if f.AuthorID != uuid.Nil {
			if author, ok := l.AuthorID(); !ok || author != f.AuthorID {
				continue
			}
		}
		if len(f.States) > 0 && !slices.Contains(f.States, l.Attributes.State) {
			continue
		}
		if !f.CreatedAtStart.IsZero() && l.Attributes.CreatedAt.Before(f.CreatedAtStart) {
			continue
		}
		all = append(all, cloneListing(l))
	}
	sort.Slice(all, func(i, j int) bool {
		ai, aj := all[i].Attributes.CreatedAt, all[j].Attributes.CreatedAt
		if ai.Equal(aj) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return ai.After(aj)
	})
	return paginate(all, page, perPage)
}

// EventFilter narrows QueryEvents. HasCursor selects StartAfterSequenceID
// over CreatedAtStart.
type EventFilter struct {
	StartAfterSequenceID int64
	HasCursor            bool
	CreatedAtStart       time.Time
	EventTypes           []string
}

// QueryEvents returns up to perPage events in sequence order.
func (s *Store) QueryEvents(f EventFilter, perPage int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if f.HasCursor && e.SequenceID <= f.StartAfterSequenceID {
			continue
		}
		if !f.HasCursor && !f.CreatedAtStart.IsZero() && e.CreatedAt.Before(f.CreatedAtStart) {
			continue
		}
		if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
			continue
		}
		out = append(out, e)
		if len(out) == perPage {
			break
		}
	}
	return out
}

// LastSequenceID returns the sequence ID of the newest event, or 0.
func (s *Store) LastSequenceID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// emit appends an event. Snapshots are encoded immediately so later writes
// cannot change them. Callers hold s.mu.
func (s *Store) emit(resourceType string, id uuid.UUID, action string, resource, previous any) {
	res, _ := json.Marshal(resource)
	prev, _ := json.Marshal(previous)

	s.seq++
	s.events = append(s.events, Event{
		ID:             uuid.New(),
		SequenceID:     s.seq,
		ResourceType:   resourceType,
		ResourceID:     id,
		EventType:      events.EventType(resourceType, action),
		CreatedAt:      s.now().UTC(),
		Resource:       res,
		PreviousValues: prev,
	})
}

// cloneListing copies l deeply enough that callers may read it without the
// store lock.
func cloneListing(l *api.Listing) api.Listing {
	c := *l
	c.Attributes.Metadata = maps.Clone(l.Attributes.Metadata)
	if l.Attributes.AvailabilityPlan != nil {
		plan := *l.Attributes.AvailabilityPlan
		plan.Entries = slices.Clone(plan.Entries)
		c.Attributes.AvailabilityPlan = &plan
	}
	return c
}

func cloneUser(u *api.User) api.User {
	c := *u
	c.Attributes.Profile.Metadata = maps.Clone(u.Attributes.Profile.Metadata)
	return c
}

func paginate[T any](all []T, page, perPage int) ([]T, api.Meta) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if page <= 0 {
		page = 1
	}

	meta := api.Meta{
		TotalItems: len(all),
		TotalPages: (len(all) + perPage - 1) / perPage,
		Page:       page,
		PerPage:    perPage,
	}

	start := (page - 1) * perPage
	if start >= len(all) {
		return []T{}, meta
	}
	end := min(start+perPage, len(all))
	return all[start:end], meta
}
