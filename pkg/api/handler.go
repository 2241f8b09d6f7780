// Package api exposes stored records over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/metrics"
	"github.com/Sternrassler/dexmirror/pkg/pagination"
	"github.com/Sternrassler/dexmirror/pkg/record"
	"github.com/Sternrassler/dexmirror/pkg/store"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Route paths.
const (
	PathRecords = "/api/records"
	PathRecord  = "/api/records/{id}"
)

// Query parameter names of the list endpoint. typeFilterParam is accepted
// as an older alias of categoryParam.
const (
	categoryParam   = "category"
	typeFilterParam = "type_filter"
)

const readyTimeout = 2 * time.Second

// RecordReader is the read side of the store.
type RecordReader interface {
	List(ctx context.Context, offset, limit int, category string) ([]record.Record, error)
	Count(ctx context.Context, category string) (int, error)
	Get(ctx context.Context, id int64) (record.Record, error)
	Ping(ctx context.Context) error
}

// Handler builds the HTTP handler serving reader.
func Handler(reader RecordReader, logger zerolog.Logger) http.Handler {
	srv := &server{
		reader: reader,
		logger: logger,
	}

	router := mux.NewRouter()
	router.Use(srv.instrument)

	router.HandleFunc("/health", srv.getHealth).Methods("GET").Name("GetHealth")
	router.HandleFunc("/ready", srv.getReady).Methods("GET").Name("GetReady")
	router.Handle("/metrics", metrics.Handler()).Methods("GET").Name("GetMetrics")

	// record endpoints.
	router.HandleFunc(PathRecords, srv.getRecords).Methods("GET").Name("GetRecords")
	router.HandleFunc(PathRecord, srv.getRecord).Methods("GET").Name("GetRecord")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}

type server struct {
	reader RecordReader
	logger zerolog.Logger
}

// GET /health
func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GET /ready
func (s *server) getReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.reader.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GET /api/records?page=&page_size=&category=
func (s *server) getRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params, err := pagination.FromQuery(query)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	category := query.Get(categoryParam)
	if category == "" {
		category = query.Get(typeFilterParam)
	}

	recs, err := s.reader.List(r.Context(), params.Offset(), params.PageSize, category)
	if err != nil {
		s.logger.Error().Err(err).
			Int("page", params.Page).
			Int("page_size", params.PageSize).
			Str("category", category).
			Msg("Error listing records")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(recs) == 0 {
		writeError(w, http.StatusNotFound, "No records found")
		return
	}

	total, err := s.reader.Count(r.Context(), category)
	if err != nil {
		s.logger.Error().Err(err).Str("category", category).Msg("Error counting records")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	doc := ListDocument{
		Data: make([]Resource, 0, len(recs)),
		Meta: ListMeta{Params: params, Total: total},
	}
	for _, rec := range recs {
		doc.Data = append(doc.Data, toResource(rec))
	}

	writeJSON(w, http.StatusOK, doc)
}

// GET /api/records/{id}
func (s *server) getRecord(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "id must be an integer, got "+strconv.Quote(raw))
		return
	}

	s.logger.Debug().Int64("id", id).Msg("Received request for record")

	rec, err := s.reader.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Error fetching record")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toResource(rec))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorDocument{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
