package reports

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/rs/zerolog/log"
)

// streamHeartbeat keeps idle connections open through proxies.
const streamHeartbeat = 25 * time.Second

// HandleStream handles GET /api/v1/orgs/{org_id}/reports/stream. It sends the
// full report list as a server-sent "reports" event on connect and after
// every change.
func HandleStream(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orgID := chi.URLParam(r, "org_id")

		snapshots, err := svc.WatchOrg(ctx, principals.FromContext(ctx), orgID, showDeleted(r))
		if err != nil {
			writeError(w, r, err, "stream reports")
			return
		}

		// Streams outlive the server write timeout.
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Error().Err(err).Msg("Streaming unsupported by response writer")
			return
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				_ = rc.Flush()
			case reports, ok := <-snapshots:
				if !ok {
					return
				}
				data, err := json.Marshal(svc.views(reports))
				if err != nil {
					log.Error().Err(err).Str("org_id", orgID).Msg("Failed to encode report snapshot")
					continue
				}
				if _, err := fmt.Fprintf(w, "event: reports\ndata: %s\n\n", data); err != nil {
					return
				}
				_ = rc.Flush()
			}
		}
	}
}
