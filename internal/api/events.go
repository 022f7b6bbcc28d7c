package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/dgnsrekt/flex-integration/internal/events"
)

// QueryEvents fetches one page of events after the cursor in q, or created at
// or after q.CreatedAtStart when q has no cursor.
func (c *HTTPClient) QueryEvents(ctx context.Context, q events.Query) (events.Batch, error) {
	params := url.Values{}
	if q.HasCursor {
		params.Set("startAfterSequenceId", strconv.FormatInt(q.StartAfterSequenceID, 10))
	} else if !q.CreatedAtStart.IsZero() {
		params.Set("createdAtStart", formatTime(q.CreatedAtStart))
	}
	if len(q.EventTypes) > 0 {
		params.Set("eventTypes", strings.Join(q.EventTypes, ","))
	}
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}

	var resp envelope[[]eventResource]
	if err := c.query(ctx, "events.query", "/events/query", params, &resp); err != nil {
		return events.Batch{}, err
	}

	batch := events.Batch{
		Events:  make([]events.Event, 0, len(resp.Data)),
		PerPage: resp.Meta.PerPage,
	}
	if batch.PerPage == 0 {
		batch.PerPage = q.PerPage
	}
	for _, r := range resp.Data {
		batch.Events = append(batch.Events, r.toEvent())
	}
	return batch, nil
}
