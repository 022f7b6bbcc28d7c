package sandbox

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/server"
)

// Config configures a sandbox API.
type Config struct {
	MarketplaceName string
	ClientID        string
	ClientSecret    string

	// Requests per second allowed before answering 429. Zero disables the
	// corresponding quota.
	CommandRate  float64
	CommandBurst int
	QueryRate    float64
	QueryBurst   int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Sandbox is an in-memory marketplace served over HTTP.
type Sandbox struct {
	Store *Store

	handler http.Handler
}

// New builds a sandbox. The store starts empty; call Store.Seed to populate
// it.
func New(cfg Config, logger *zap.Logger) (*Sandbox, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("sandbox needs a client id and secret")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	store := NewStore(cfg.MarketplaceName, now)
	h := &handlers{store: store, logger: logger}
	auth := newTokens(cfg.ClientID, cfg.ClientSecret, now)

	r := server.NewRouter(logger)
	r.Post("/v1/auth/token", auth.handleToken)
	r.Route("/v1/integration_api", func(r chi.Router) {
		r.Use(auth.authorize)
		r.Group(func(r chi.Router) {
			r.Use(quota(newQuotaLimiter(cfg.QueryRate, cfg.QueryBurst)))
			h.routes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(quota(newQuotaLimiter(cfg.CommandRate, cfg.CommandBurst)))
			h.commandRoutes(r)
		})
	})

	logger.Info("sandbox ready",
		zap.String("marketplace", cfg.MarketplaceName),
		zap.Float64("commandRate", cfg.CommandRate),
		zap.Float64("queryRate", cfg.QueryRate),
	)
	return &Sandbox{Store: store, handler: server.Gzip(r)}, nil
}

// Handler returns the HTTP handler serving the token endpoint and the
// Integration API.
func (s *Sandbox) Handler() http.Handler {
	return s.handler
}
