package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	"github.com/JonMunkholm/nvdsync/internal/core"
)

const (
	// maxSyncBody limits the POST /api/sync request body.
	maxSyncBody = 64 << 10

	defaultCVELimit = 100
	maxCVELimit     = 1000
)

// handleHealth reports liveness and, when configured, cache reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"cache":  "none",
		"syncs":  s.service.Limiter().Status(),
	}

	if s.lookup != nil {
		store := s.lookup.Store()
		resp["cache"] = store.Backend()

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logError(r, err, http.StatusServiceUnavailable, "DB001")
			resp["status"] = "degraded"
			resp["error"] = core.MapError(err).Message
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListTables returns the schema of the selected tables.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	opts, err := parseSyncOptions(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	tables, err := s.service.Tables(opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// handleStreamRows streams one table as newline-delimited JSON, one object
// per row in feed order. Nothing is persisted. Errors before the first row
// get a normal error response; later errors end the stream with an error
// object as the last line.
func (s *Server) handleStreamRows(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sink := newNDJSONSink(w)

	_, err := s.service.Stream(r.Context(), name, sink)
	if err == nil {
		sink.begin()
		return
	}
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// client went away
		return
	}
	if !sink.started() {
		respondError(w, r, err)
		return
	}

	body := newErrorResponse(err)
	logError(r, err, statusFor(err), body.Code)
	sink.trailer(body)
}

// syncRequest is the optional POST /api/sync body.
type syncRequest struct {
	Tables              []string `json:"tables"`
	SkipTables          []string `json:"skip_tables"`
	SkipDependentTables bool     `json:"skip_dependent_tables"`
	Concurrency         int      `json:"concurrency"`
	Persist             *bool    `json:"persist"` // default: persist when a cache is configured
}

// syncResponse carries the run result, plus the error when it failed.
type syncResponse struct {
	Result *core.SyncResult `json:"result"`
	Error  *ErrorResponse   `json:"error,omitempty"`
}

// handleSync runs a sync and returns its result.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, badRequest("invalid sync request: %v", err))
		return
	}
	if req.Concurrency < 0 {
		respondError(w, r, badRequest("concurrency must be non-negative"))
		return
	}

	persist := s.service.CanPersist()
	if req.Persist != nil {
		persist = *req.Persist
	}

	opts := core.SyncOptions{
		Tables:              req.Tables,
		SkipTables:          req.SkipTables,
		SkipDependentTables: req.SkipDependentTables,
		Concurrency:         req.Concurrency,
	}

	result, err := s.service.Sync(r.Context(), opts, nil, persist)
	if err != nil {
		if result == nil {
			respondError(w, r, err)
			return
		}
		status := statusFor(err)
		body := newErrorResponse(err)
		logError(r, err, status, body.Code)
		writeJSON(w, status, syncResponse{Result: result, Error: &body})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Result: result})
}

// handleSyncHistory returns recent sync runs, newest first.
func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"syncs":   s.service.History(),
		"limiter": s.service.Limiter().Status(),
	})
}

// handleGetCVE returns one cached CVE.
func (s *Server) handleGetCVE(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		respondError(w, r, core.ErrPersistenceDisabled)
		return
	}

	entry, err := s.lookup.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleListCVEs returns cached CVEs touched at or after ?since (RFC 3339),
// most recent first, at most ?limit of them.
func (s *Server) handleListCVEs(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		respondError(w, r, core.ErrPersistenceDisabled)
		return
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, r, badRequest("since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries, err := s.lookup.Store().TouchedSince(r.Context(), since, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseSyncOptions reads table selection from query parameters.
func parseSyncOptions(r *http.Request) (core.SyncOptions, error) {
	q := r.URL.Query()
	opts := core.SyncOptions{
		Tables:     parseList(q.Get("tables")),
		SkipTables: parseList(q.Get("skip_tables")),
	}
	if v := q.Get("skip_dependent_tables"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, badRequest("skip_dependent_tables must be a boolean")
		}
		opts.SkipDependentTables = b
	}
	return opts, nil
}

// parseList splits a comma-separated query value, dropping blanks.
func parseList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultCVELimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badRequest("limit must be a positive integer")
	}
	return min(n, maxCVELimit), nil
}

// ndjsonSink writes rows to an HTTP response as newline-delimited JSON.
// Writes are serialized; headers go out with the first row.
type ndjsonSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	enc     *json.Encoder
	written bool
}

func newNDJSONSink(w http.ResponseWriter) *ndjsonSink {
	return &ndjsonSink{
		w:   w,
		rc:  http.NewResponseController(w),
		enc: json.NewEncoder(w),
	}
}

// Write encodes row as one line and flushes it to the client.
func (s *ndjsonSink) Write(_ context.Context, row core.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.beginLocked()
	if err := s.enc.Encode(row); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *ndjsonSink) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// begin sends the headers if no row has been written yet.
func (s *ndjsonSink) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginLocked()
}

func (s *ndjsonSink) beginLocked() {
	if s.written {
		return
	}
	s.written = true
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// trailer writes a final error object after rows were already sent.
func (s *ndjsonSink) trailer(body ErrorResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(map[string]ErrorResponse{"error": body})
	_ = s.flushLocked()
}

func (s *ndjsonSink) flushLocked() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
