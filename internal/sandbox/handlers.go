package sandbox

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/api"
)

const (
	defaultPerPage = 100
	maxPerPage     = 100

	maxUploadBytes = 20 << 20
)

type handlers struct {
	store  *Store
	logger *zap.Logger
}

func (h *handlers) routes(r chi.Router) {
	r.Get("/marketplace/show", h.showMarketplace)
	r.Get("/events/query", h.queryEvents)
	r.Get("/listings/query", h.queryListings)
	r.Get("/users/show", h.showUser)
	r.Get("/users/query", h.queryUsers)
	r.Get("/transactions/query", h.queryTransactions)
}

func (h *handlers) commandRoutes(r chi.Router) {
	r.Post("/listings/create", h.createListing)
	r.Post("/listings/update", h.updateListing)
	r.Post("/listings/approve", h.approveListing)
	r.Post("/users/update_profile", h.updateProfile)
	r.Post("/images/upload", h.uploadImage)
}

type eventAttributes struct {
	SequenceID     int64           `json:"sequenceId"`
	ResourceType   string          `json:"resourceType"`
	ResourceID     uuid.UUID       `json:"resourceId"`
	EventType      string          `json:"eventType"`
	CreatedAt      time.Time       `json:"createdAt"`
	Resource       json.RawMessage `json:"resource"`
	PreviousValues json.RawMessage `json:"previousValues"`
}

type eventResource struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Attributes eventAttributes `json:"attributes"`
}

func (h *handlers) showMarketplace(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.store.Marketplace(), nil)
}

func (h *handlers) queryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perPage, err := perPageParam(q.Get("perPage"))
	if err != nil {
		writeError(w, err)
		return
	}

	var f EventFilter
	if v := q.Get("startAfterSequenceId"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
		f.StartAfterSequenceID = seq
		f.HasCursor = true
	} else if v := q.Get("createdAtStart"); v != "" {
		if f.CreatedAtStart, err = time.Parse(time.RFC3339Nano, v); err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
	}
	f.EventTypes = listParam(q.Get("eventTypes"))

	stored := h.store.QueryEvents(f, perPage)
	out := make([]eventResource, 0, len(stored))
	for _, e := range stored {
		out = append(out, eventResource{
			ID:   e.ID,
			Type: "event",
			Attributes: eventAttributes{
				SequenceID:     e.SequenceID,
				ResourceType:   e.ResourceType,
				ResourceID:     e.ResourceID,
				EventType:      e.EventType,
				CreatedAt:      e.CreatedAt,
				Resource:       e.Resource,
				PreviousValues: e.PreviousValues,
			},
		})
	}
	writeData(w, out, &api.Meta{PerPage: perPage})
}

func (h *handlers) queryListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, err := pageParams(q.Get("page"), q.Get("perPage"))
	if err != nil {
		writeError(w, err)
		return
	}

	var f ListingFilter
	if v := q.Get("authorId"); v != "" {
		if f.AuthorID, err = uuid.Parse(v); err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
	}
	f.States = listParam(q.Get("states"))
	if v := q.Get("createdAtStart"); v != "" {
		if f.CreatedAtStart, err = time.Parse(time.RFC3339Nano, v); err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
	}

	listings, meta := h.store.QueryListings(f, page, perPage)
	writeData(w, listings, &meta)
}

func (h *handlers) showUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, err := h.store.ShowUser(q.Get("email"), q.Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, u, nil)
}

func (h *handlers) queryUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, err := pageParams(q.Get("page"), q.Get("perPage"))
	if err != nil {
		writeError(w, err)
		return
	}
	var since time.Time
	if v := q.Get("createdAtStart"); v != "" {
		if since, err = time.Parse(time.RFC3339Nano, v); err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
	}

	users, meta := h.store.QueryUsers(since, page, perPage)
	writeData(w, users, &meta)
}

func (h *handlers) queryTransactions(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("createdAtStart"); v != "" {
		var err error
		if since, err = time.Parse(time.RFC3339Nano, v); err != nil {
			writeError(w, errors.Join(errInvalid, err))
			return
		}
	}

	n := h.store.CountTransactions(since)
	writeData(w, []struct{}{}, &api.Meta{TotalItems: n, TotalPages: n, Page: 1, PerPage: 1})
}

func (h *handlers) createListing(w http.ResponseWriter, r *http.Request) {
	var body api.ListingCreate
	if !decodeBody(w, r, &body) {
		return
	}
	l, err := h.store.CreateListing(body)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Debug("listing created", zap.Stringer("id", l.ID), zap.String("state", l.Attributes.State))
	writeData(w, l, nil)
}

func (h *handlers) updateListing(w http.ResponseWriter, r *http.Request) {
	var body api.ListingUpdate
	if !decodeBody(w, r, &body) {
		return
	}
	l, err := h.store.UpdateListing(body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, l, nil)
}

func (h *handlers) approveListing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID uuid.UUID `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	l, err := h.store.ApproveListing(body.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Debug("listing approved", zap.Stringer("id", l.ID))
	writeData(w, l, nil)
}

func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body api.ProfileUpdate
	if !decodeBody(w, r, &body) {
		return
	}
	u, err := h.store.UpdateProfile(body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, u, nil)
}

func (h *handlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, errors.Join(errInvalid, err))
		return
	}
	defer func() { _ = file.Close() }()

	n, err := io.Copy(io.Discard, file)
	if err != nil {
		writeError(w, errors.Join(errInvalid, err))
		return
	}
	if n == 0 {
		writeError(w, errors.Join(errInvalid, errors.New("empty image")))
		return
	}

	img := h.store.AddImage()
	h.logger.Debug("image uploaded", zap.String("filename", header.Filename), zap.Int64("bytes", n))
	writeData(w, img, nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.Join(errInvalid, err))
		return false
	}
	return true
}

func listParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func perPageParam(v string) (int, error) {
	if v == "" {
		return defaultPerPage, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxPerPage {
		return 0, errors.Join(errInvalid, errors.New("perPage must be between 1 and 100"))
	}
	return n, nil
}

func pageParams(pageValue, perPageValue string) (int, int, error) {
	perPage, err := perPageParam(perPageValue)
	if err != nil {
		return 0, 0, err
	}
	if pageValue == "" {
		return 1, perPage, nil
	}
	page, err := strconv.Atoi(pageValue)
	if err != nil || page < 1 {
		return 0, 0, errors.Join(errInvalid, errors.New("page must be positive"))
	}
	return page, perPage, nil
}

type dataBody struct {
	Data any       `json:"data"`
	Meta *api.Meta `json:"meta,omitempty"`
}

func writeData(w http.ResponseWriter, data any, meta *api.Meta) {
	writeJSON(w, http.StatusOK, dataBody{Data: data, Meta: meta})
}

type apiError struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal-error"
	switch {
	case errors.Is(err, errNotFound):
		status, code = http.StatusNotFound, "not-found"
	case errors.Is(err, errInvalid):
		status, code = http.StatusBadRequest, "validation-invalid-params"
	case errors.Is(err, errConflict):
		status, code = http.StatusConflict, "conflict-invalid-state"
	}
	writeStatus(w, status, code, err.Error())
}

func writeStatus(w http.ResponseWriter, status int, code, title string) {
	writeJSON(w, status, map[string][]apiError{
		"errors": {{Status: status, Code: code, Title: title}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
