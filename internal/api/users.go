package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ShowUser looks a user up by email address.
func (c *HTTPClient) ShowUser(ctx context.Context, email string) (User, error) {
	var resp envelope[User]
	err := c.query(ctx, "users.show", "/users/show", url.Values{"email": {email}}, &resp)
	return resp.Data, err
}

// QueryUsers fetches the first page of users matching q.
func (c *HTTPClient) QueryUsers(ctx context.Context, q UserQuery) ([]User, Meta, error) {
	params := url.Values{}
	if !q.CreatedAtStart.IsZero() {
		params.Set("createdAtStart", formatTime(q.CreatedAtStart))
	}
	if len(q.Fields) > 0 {
		params.Set("fields.user", strings.Join(q.Fields, ","))
	}
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}

	var resp envelope[[]User]
	if err := c.query(ctx, "users.query", "/users/query", params, &resp); err != nil {
		return nil, Meta{}, err
	}
	return resp.Data, resp.Meta, nil
}

// CountUsers returns the number of users created at or after since.
func (c *HTTPClient) CountUsers(ctx context.Context, since time.Time) (int, error) {
	_, meta, err := c.QueryUsers(ctx, UserQuery{CreatedAtStart: since, Fields: []string{"none"}, PerPage: 1})
	if err != nil {
		return 0, err
	}
	return meta.TotalItems, nil
}

// UpdateUserProfile updates profile metadata and/or the profile image.
func (c *HTTPClient) UpdateUserProfile(ctx context.Context, u ProfileUpdate) (User, error) {
	var resp envelope[User]
	err := c.command(ctx, "users.update_profile", "/users/update_profile", expand(), u, &resp)
	return resp.Data, err
}

// UploadImage uploads an image as multipart form data.
func (c *HTTPClient) UploadImage(ctx context.Context, filename string, r io.Reader) (Image, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("image", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	var resp envelope[Image]
	if err := c.post(ctx, "images.upload", "/images/upload", nil, mw.FormDataContentType(), pr, &resp); err != nil {
		_ = pr.Close()
		return Image{}, fmt.Errorf("uploading %s: %w", filename, err)
	}
	return resp.Data, nil
}

// ShowMarketplace returns the marketplace resource.
func (c *HTTPClient) ShowMarketplace(ctx context.Context) (Marketplace, error) {
	var resp envelope[Marketplace]
	err := c.query(ctx, "marketplace.show", "/marketplace/show", nil, &resp)
	return resp.Data, err
}

// CountTransactions returns the number of transactions created at or after
// since.
func (c *HTTPClient) CountTransactions(ctx context.Context, since time.Time) (int, error) {
	params := url.Values{"perPage": {"1"}, "fields.transaction": {"none"}}
	if !since.IsZero() {
		params.Set("createdAtStart", formatTime(since))
	}

	var resp envelope[[]struct{}]
	if err := c.query(ctx, "transactions.query", "/transactions/query", params, &resp); err != nil {
		return 0, err
	}
	return resp.Meta.TotalItems, nil
}
