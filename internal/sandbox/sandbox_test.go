package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/bulk"
	"github.com/dgnsrekt/flex-integration/internal/cursor"
	"github.com/dgnsrekt/flex-integration/internal/events"
	"github.com/dgnsrekt/flex-integration/internal/poller"
	"github.com/dgnsrekt/flex-integration/internal/testutil"
)

const (
	testClientID     = "sandbox-id"
	testClientSecret = "sandbox-secret"
)

func startSandbox(t *testing.T, cfg Config) (*Sandbox, *httptest.Server) {
	t.Helper()
	cfg.ClientID = testClientID
	cfg.ClientSecret = testClientSecret
	if cfg.MarketplaceName == "" {
		cfg.MarketplaceName = "test-marketplace"
	}

	sb, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, sb.Store.Seed(DefaultSeed))

	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)
	return sb, srv
}

func newClient(srv *httptest.Server) *api.HTTPClient {
	return api.NewClient(api.Options{
		BaseURL:      srv.URL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Timeout:      5 * time.Second,
	}, zap.NewNop())
}

func token(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}
	resp, err := http.PostForm(srv.URL+"/v1/auth/token", form)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)
	return tok.AccessToken
}

func get(t *testing.T, srv *httptest.Server, tok, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestToken_RejectsBadCredentials(t *testing.T) {
	_, srv := startSandbox(t, Config{})

	resp, err := http.PostForm(srv.URL+"/v1/auth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {testClientID},
		"client_secret": {"wrong"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.PostForm(srv.URL+"/v1/auth/token", url.Values{"grant_type": {"password"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	_, srv := startSandbox(t, Config{})

	resp, body := get(t, srv, "", "/v1/integration_api/marketplace/show")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "auth-invalid-access-token")

	resp, _ = get(t, srv, "not-issued", "/v1/integration_api/marketplace/show")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = get(t, srv, token(t, srv), "/v1/integration_api/marketplace/show")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test-marketplace")
}

func TestToken_Expires(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	_, srv := startSandbox(t, Config{Now: clock.Now})

	tok := token(t, srv)
	resp, _ := get(t, srv, tok, "/v1/integration_api/marketplace/show")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, clock.Sleep(context.Background(), 2*time.Hour))
	resp, _ = get(t, srv, tok, "/v1/integration_api/marketplace/show")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_ErrorBodies(t *testing.T) {
	_, srv := startSandbox(t, Config{})
	tok := token(t, srv)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/v1/integration_api/users/show?email=nobody@example.com", http.StatusNotFound, "not-found"},
		{"/v1/integration_api/listings/query?perPage=500", http.StatusBadRequest, "validation-invalid-params"},
		{"/v1/integration_api/listings/query?page=0", http.StatusBadRequest, "validation-invalid-params"},
		{"/v1/integration_api/events/query?startAfterSequenceId=abc", http.StatusBadRequest, "validation-invalid-params"},
		{"/v1/integration_api/listings/query?authorId=nope", http.StatusBadRequest, "validation-invalid-params"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, srv, tok, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)

			var eb struct {
				Errors []apiError `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(body, &eb))
			require.Len(t, eb.Errors, 1)
			assert.Equal(t, tt.code, eb.Errors[0].Code)
			assert.Equal(t, tt.status, eb.Errors[0].Status)
		})
	}
}

func TestAPI_EventsQueryShape(t *testing.T) {
	_, srv := startSandbox(t, Config{})

	resp, body := get(t, srv, token(t, srv), "/v1/integration_api/events/query?startAfterSequenceId=0&perPage=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data []eventResource `json:"data"`
		Meta api.Meta        `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Meta.PerPage)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "event", out.Data[0].Type)
	assert.Equal(t, int64(1), out.Data[0].Attributes.SequenceID)
	assert.Equal(t, "user/created", out.Data[0].Attributes.EventType)
	assert.JSONEq(t, `{}`, string(out.Data[0].Attributes.PreviousValues))
}

func TestClient_AgainstSandbox(t *testing.T) {
	_, srv := startSandbox(t, Config{})
	client := newClient(srv)
	ctx := context.Background()

	market, err := client.ShowMarketplace(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-marketplace", market.Attributes.Name)

	provider, err := client.ShowUser(ctx, "provider@example.com")
	require.NoError(t, err)

	_, err = client.ShowUser(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, api.ErrNotFound)

	listings, err := client.ListAllListings(ctx, api.ListingQuery{AuthorID: provider.ID, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, listings, 2)

	pending, err := client.CountListings(ctx, []string{events.StatePendingApproval}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	users, err := client.CountUsers(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	txs, err := client.CountTransactions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, txs)

	img, err := client.UploadImage(ctx, "avatar.png", strings.NewReader("\x89PNG fake image"))
	require.NoError(t, err)

	updated, err := client.UpdateUserProfile(ctx, api.ProfileUpdate{
		ID:             provider.ID,
		Metadata:       map[string]any{"welcomed": true},
		ProfileImageID: &img.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, true, updated.Attributes.Profile.Metadata["welcomed"])

	published := listings[0]
	if published.Attributes.State != events.StatePublished {
		published = listings[1]
	}
	_, err = client.ApproveListing(ctx, published.ID)
	assert.ErrorIs(t, err, api.ErrValidation, "approving a published listing conflicts")
}

func TestPollerAgainstSandbox(t *testing.T) {
	sb, srv := startSandbox(t, Config{})
	client := newClient(srv)
	ctx := context.Background()

	store := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor.state"), zap.NewNop())

	var got []events.Notification
	clock := testutil.NewFakeClock(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	p := poller.New(poller.Config{
		Source:     client,
		Store:      store,
		Classifier: events.NewListingClassifier(),
		Sink: poller.SinkFunc(func(_ context.Context, n events.Notification) error {
			got = append(got, n)
			return nil
		}),
		Clock:      clock,
		Pacer:      backoff.Pacer{BusyWait: 250 * time.Millisecond, IdleWait: 10 * time.Second},
		EventTypes: []string{"listing/created", "listing/updated"},
		PageSize:   100,
	}, zap.NewNop())

	state, err := p.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, backoff.ModeIdle, state.Mode)
	require.Len(t, got, 2)
	assert.Equal(t, events.KindPendingApproval, got[0].Kind)
	assert.Equal(t, events.KindPublished, got[1].Kind)

	seq, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got[1].SequenceID, seq)

	pending, _ := sb.Store.QueryListings(ListingFilter{States: []string{events.StatePendingApproval}}, 1, 10)
	require.Len(t, pending, 1)
	_, err = client.ApproveListing(ctx, pending[0].ID)
	require.NoError(t, err)

	_, err = p.Step(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, events.KindApproved, got[2].Kind)
	assert.Equal(t, pending[0].ID, got[2].ResourceID)

	_, err = p.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3, "nothing new")
}

func TestBulkAgainstSandbox_QuotaStopsPlan(t *testing.T) {
	// Two commands pass, the third is rejected and never refilled in time.
	_, srv := startSandbox(t, Config{CommandRate: 0.0001, CommandBurst: 2})
	client := newClient(srv)
	ctx := context.Background()

	author, err := client.ShowUser(ctx, "operator@example.com")
	require.NoError(t, err)

	var plan bulk.Plan
	for i := 0; i < 3; i++ {
		plan = append(plan, bulk.Job{
			Name: "create",
			Do: func(ctx context.Context) (any, error) {
				return client.CreateListing(ctx, api.ListingCreate{Title: "bulk", AuthorID: author.ID})
			},
		})
	}

	clock := testutil.NewFakeClock(time.Now())
	runner := bulk.NewRunner(backoff.Policy{BaseInterval: time.Second, InitialPenalty: time.Minute}, clock, zap.NewNop(),
		bulk.WithRetryIf(func(error) bool { return false }))

	result, err := runner.Run(ctx, plan)
	require.Error(t, err)
	assert.Equal(t, 2, result.Completed())

	var jobErr *bulk.JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, 2, jobErr.Index)
	assert.ErrorIs(t, err, api.ErrQuotaExceeded)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
}
