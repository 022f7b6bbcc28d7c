package feed

import (
	"encoding/json"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/server"
)

// NewRouter mounts the websocket endpoint at /feed and a small status
// endpoint at /feed/status.
func NewRouter(hub *Hub, logger *zap.Logger) http.Handler {
	r := server.NewRouter(logger)
	r.Get("/feed", hub.HandleFeed)
	r.Get("/feed/status", func(w http.ResponseWriter, _ *http.Request) {
		groups := hub.GetActiveGroups()
		sort.Strings(groups)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clients": hub.ClientCount(),
			"groups":  groups,
		})
	})
	return r
}
