package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (q ListingQuery) values(page int) url.Values {
	params := url.Values{}
	if q.AuthorID != uuid.Nil {
		params.Set("authorId", q.AuthorID.String())
	}
	if len(q.States) > 0 {
		params.Set("states", strings.Join(q.States, ","))
	}
	if !q.CreatedAtStart.IsZero() {
		params.Set("createdAtStart", formatTime(q.CreatedAtStart))
	}
	if len(q.Fields) > 0 {
		params.Set("fields.listing", strings.Join(q.Fields, ","))
	}
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	return params
}

// QueryListings fetches one page of listings.
func (c *HTTPClient) QueryListings(ctx context.Context, q ListingQuery, page int) ([]Listing, Meta, error) {
	var resp envelope[[]Listing]
	if err := c.query(ctx, "listings.query", "/listings/query", q.values(page), &resp); err != nil {
		return nil, Meta{}, err
	}
	return resp.Data, resp.Meta, nil
}

// ListAllListings walks every page of a listings query.
func (c *HTTPClient) ListAllListings(ctx context.Context, q ListingQuery) ([]Listing, error) {
	var all []Listing
	for page := 1; ; page++ {
		listings, meta, err := c.QueryListings(ctx, q, page)
		if err != nil {
			return all, err
		}
		all = append(all, listings...)
		if page >= meta.TotalPages || len(listings) == 0 {
			return all, nil
		}
	}
}

// CountListings returns the total number of listings matching states and
// created at or after since. Either filter may be empty.
func (c *HTTPClient) CountListings(ctx context.Context, states []string, since time.Time) (int, error) {
	q := ListingQuery{States: states, CreatedAtStart: since, Fields: []string{"none"}, PerPage: 1}
	_, meta, err := c.QueryListings(ctx, q, 0)
	if err != nil {
		return 0, err
	}
	return meta.TotalItems, nil
}

// CreateListing creates a listing and returns it expanded.
func (c *HTTPClient) CreateListing(ctx context.Context, l ListingCreate) (Listing, error) {
	var resp envelope[Listing]
	err := c.command(ctx, "listings.create", "/listings/create", expand(), l, &resp)
	return resp.Data, err
}

// UpdateListing updates a listing and returns it expanded.
func (c *HTTPClient) UpdateListing(ctx context.Context, l ListingUpdate) (Listing, error) {
	var resp envelope[Listing]
	err := c.command(ctx, "listings.update", "/listings/update", expand(), l, &resp)
	return resp.Data, err
}

// ApproveListing moves a pendingApproval listing to published.
func (c *HTTPClient) ApproveListing(ctx context.Context, id uuid.UUID) (Listing, error) {
	var resp envelope[Listing]
	body := map[string]uuid.UUID{"id": id}
	err := c.command(ctx, "listings.approve", "/listings/approve", expand(), body, &resp)
	return resp.Data, err
}

func expand() url.Values {
	return url.Values{"expand": {"true"}}
}
