package sandbox

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const tokenTTL = time.Hour

// tokens issues and checks bearer tokens for one client credential pair.
type tokens struct {
	clientID     string
	clientSecret string
	now          func() time.Time

	mu     sync.Mutex
	issued map[string]time.Time
}

func newTokens(clientID, clientSecret string, now func() time.Time) *tokens {
	return &tokens{
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          now,
		issued:       make(map[string]time.Time),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken implements the client_credentials grant.
func (t *tokens) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid-request", err.Error())
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "client_credentials" {
		writeStatus(w, http.StatusBadRequest, "unsupported-grant-type", "grant_type must be client_credentials")
		return
	}

	id, secret := r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	if id == "" {
		id, secret, _ = r.BasicAuth()
	}
	if !t.valid(id, secret) {
		writeStatus(w, http.StatusUnauthorized, "invalid-client", "unknown client credentials")
		return
	}

	token := uuid.NewString()
	t.mu.Lock()
	t.issued[token] = t.now().Add(tokenTTL)
	t.mu.Unlock()

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(tokenTTL.Seconds()),
	})
}

func (t *tokens) valid(id, secret string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(t.clientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(t.clientSecret)) == 1
	return idOK && secretOK
}

// authorize rejects requests without a live bearer token.
func (t *tokens) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(header, "bearer ")
		}
		if !ok || !t.live(token) {
			writeStatus(w, http.StatusUnauthorized, "auth-invalid-access-token", "missing or expired access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *tokens) live(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expires, ok := t.issued[token]
	if !ok {
		return false
	}
	if t.now().After(expires) {
		delete(t.issued, token)
		return false
	}
	return true
}

// quota answers 429 once limiter has no tokens left. A nil limiter never
// rejects.
func quota(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeStatus(w, http.StatusTooManyRequests, "too-many-requests", "request rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newQuotaLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
