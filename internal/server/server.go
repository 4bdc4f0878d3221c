// Package server exposes the daemon's status, metrics and manual sync
// trigger over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

// Syncer is the subset of syncer.Service the server drives.
type Syncer interface {
	SyncNow(ctx context.Context) (syncer.Summary, error)
	RetryAllFailed(ctx context.Context) (syncer.Summary, error)
	Stats() scrobble.Stats
	Filter(f scrobble.StatusFilter) []scrobble.Record
	LastSync() (time.Time, bool, error)
	State() syncer.State
}

// Server serves the daemon HTTP surface.
type Server struct {
	syncer Syncer
	log    zerolog.Logger
	http   *http.Server
}

// New creates a Server for s.
func New(s Syncer) *Server {
	srv := &Server{
		syncer: s,
		log:    logging.With().Str("component", "server").Logger(),
	}
	srv.http = &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/scrobbles", s.handleScrobbles)
	r.Post("/sync", s.handleSync)
	r.Post("/retry", s.handleRetry)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	State    string     `json:"state"`
	LastSync *time.Time `json:"last_sync,omitempty"`
	Total    int        `json:"total"`
	Today    int        `json:"today"`
	Week     int        `json:"week"`
	Pending  int        `json:"pending"`
	Failed   int        `json:"failed"`
}

type scrobbleJSON struct {
	ID        string    `json:"id"`
	Track     string    `json:"track"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Estimated bool      `json:"estimated,omitempty"`
}

type summaryResponse struct {
	Fetched   int    `json:"fetched"`
	New       int    `json:"new"`
	Submitted int    `json:"submitted"`
	Accepted  int    `json:"accepted"`
	Ignored   int    `json:"ignored"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.syncer.Stats()
	resp := statusResponse{
		State:   s.syncer.State().String(),
		Total:   st.Total,
		Today:   st.Today,
		Week:    st.Week,
		Pending: st.Pending,
		Failed:  st.Failed,
	}
	at, ok, err := s.syncer.LastSync()
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if ok {
		resp.LastSync = &at
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScrobbles(w http.ResponseWriter, r *http.Request) {
	f, ok := scrobble.ParseFilter(r.URL.Query().Get("filter"))
	if !ok {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "filter must be all, pending or failed"})
		return
	}
	records := s.syncer.Filter(f)
	out := make([]scrobbleJSON, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, scrobbleJSON{
			ID:        rec.ID,
			Track:     rec.Track,
			Artist:    rec.Artist,
			Album:     rec.Album,
			Timestamp: rec.Timestamp,
			Status:    rec.Status.String(),
			Reason:    scrobble.Reason(rec.Status),
			Estimated: rec.Estimated,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sum, err := s.syncer.SyncNow(r.Context())
	s.respondSummary(w, sum, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sum, err := s.syncer.RetryAllFailed(r.Context())
	s.respondSummary(w, sum, err)
}

func (s *Server) respondSummary(w http.ResponseWriter, sum syncer.Summary, err error) {
	resp := summaryResponse{
		Fetched:   sum.Fetched,
		New:       sum.New,
		Submitted: sum.Submitted,
		Accepted:  sum.Accepted,
		Ignored:   sum.Ignored,
		Failed:    sum.Failed,
	}
	status := http.StatusOK
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		status = http.StatusConflict
	case err != nil:
		status = http.StatusBadGateway
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("failed to write JSON response")
	}
}
