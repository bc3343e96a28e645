// Package api provides the HTTP control plane for the campaign scheduler.
// GET endpoints are public (read-only observation).
// POST and DELETE endpoints require the admin bearer token.
// Streams require the relay bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
	"github.com/talgya/hybrid-sim/internal/persistence"
)

const (
	maxStreamConns = 4
	maxBodyBytes   = 1 << 20
)

// Store is the read side of persistence the API serves from, plus the
// schedule flags it records.
type Store interface {
	ListCampaigns(ctx context.Context) ([]persistence.CampaignRecord, error)
	LoadState(ctx context.Context, campaignID string) (campaign.State, error)
	History(ctx context.Context, campaignID string, limit int) ([]persistence.TickRecord, error)
	LatestResults(ctx context.Context, campaignID string) (*hybrid.HybridResults, error)
	RecentEvents(ctx context.Context, campaignID string, limit int) ([]persistence.EventRecord, error)
	RecentMemories(ctx context.Context, campaignID string, limit int) ([]hybrid.TickMemory, error)
	SetActive(ctx context.Context, campaignID string, active bool) error
	SetMode(ctx context.Context, campaignID string, mode campaign.TickMode) error
}

// Server serves the scheduler over HTTP.
type Server struct {
	Sched       *engine.Scheduler
	DB          Store
	Port        int
	AdminKey    string   // Bearer token for POST and DELETE. Empty = writes disabled.
	RelayKey    string   // Bearer token for SSE and websocket streams. Empty = streaming disabled.
	CORSOrigins []string // Extra allowed origins beyond localhost dev servers.

	// ActionsPerMin limits action submissions and manual ticks per IP.
	ActionsPerMin int

	started     time.Time
	streamConns int32
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	perMin := s.ActionsPerMin
	if perMin <= 0 {
		perMin = 60
	}
	limiter := NewRateLimiter(perMin, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/campaigns", s.handleCampaigns)
	mux.HandleFunc("GET /api/v1/campaigns/{id}", s.handleCampaign)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/actions", s.handleQueuedActions)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/state", s.handleState)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/results", s.handleResults)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/memory", s.handleMemory)
	mux.HandleFunc("GET /api/v1/actions/schema", s.handleSchema)

	// Streams (relay key).
	mux.HandleFunc("GET /api/v1/stream", s.relayOnly(s.handleStream))
	mux.HandleFunc("GET /api/v1/ws", s.relayOnly(s.handleWebSocket))

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/campaigns", s.adminOnly(s.handleRegister))
	mux.HandleFunc("DELETE /api/v1/campaigns/{id}", s.adminOnly(s.handleUnregister))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/start", s.adminOnly(s.handleStart))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/stop", s.adminOnly(s.handleStop))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/mode", s.adminOnly(s.handleMode))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/tick", s.adminOnly(RateLimitMiddleware(limiter, s.handleTick)))
	mux.HandleFunc("POST /api/v1/campaigns/{id}/actions", s.adminOnly(RateLimitMiddleware(limiter, s.handleEnqueue)))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server is
// used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reports whether the request carries key as its bearer token.
func bearer(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a write handler to require the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HYBRIDSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !bearer(r, s.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// relayOnly wraps a stream handler to require the relay bearer token and to
// cap concurrent streams.
func (s *Server) relayOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.RelayKey == "" {
			http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
			return
		}
		if !bearer(r, s.RelayKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		current := atomic.AddInt32(&s.streamConns, 1)
		defer atomic.AddInt32(&s.streamConns, -1)
		if current > maxStreamConns {
			http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.Sched.Statuses()
	active, queued := 0, 0
	var ticks uint64
	for _, st := range statuses {
		if st.Active {
			active++
		}
		queued += st.QueuedActions
		ticks += st.TickCount
	}

	writeJSON(w, map[string]any{
		"name":             "hybridsim",
		"campaigns":        len(statuses),
		"active_campaigns": active,
		"queued_actions":   queued,
		"ticks_completed":  ticks,
		"ticks_text":       humanize.Comma(int64(ticks)),
		"started_at":       s.started.UTC().Format(time.RFC3339),
		"up_since":         humanize.Time(s.started),
	})
}

type campaignView struct {
	persistence.CampaignRecord
	Registered bool           `json:"registered"`
	Status     *engine.Status `json:"status,omitempty"`
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	records, err := s.DB.ListCampaigns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]campaignView, 0, len(records))
	for _, rec := range records {
		v := campaignView{CampaignRecord: rec}
		if st, err := s.Sched.Status(rec.ID); err == nil {
			v.Registered = true
			v.Status = &st
		}
		out = append(out, v)
	}
	writeJSON(w, out)
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	st, err := s.Sched.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{
		"status":            st,
		"next_tick":         "",
		"last_tick":         "",
		"average_tick_time": fmt.Sprintf("%.1fms", st.AverageTickTimeMs),
	}
	if !st.NextTickAt.IsZero() {
		resp["next_tick"] = humanize.Time(st.NextTickAt)
	}
	if !st.LastTickAt.IsZero() {
		resp["last_tick"] = humanize.Time(st.LastTickAt)
	}
	writeJSON(w, resp)
}

func (s *Server) handleQueuedActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.Sched.QueuedActions(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, actions)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.DB.LoadState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.DB.History(r.Context(), r.PathValue("id"), queryLimit(r, 20, 500))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, hist)
}

// handleResults serves the latest integrated results, from memory when the
// campaign has ticked since registration and from the database otherwise.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if rep, err := s.Sched.Latest(id); err == nil && rep != nil {
		writeJSON(w, rep.Results)
		return
	}
	res, err := s.DB.LatestResults(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.DB.RecentEvents(r.Context(), r.PathValue("id"), queryLimit(r, 50, 500))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, events)
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	mems, err := s.DB.RecentMemories(r.Context(), r.PathValue("id"), queryLimit(r, hybrid.MemoryWindow, 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, mems)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, campaign.PayloadSchema())
}

type registerRequest struct {
	ID    string            `json:"id"`
	Mode  campaign.TickMode `json:"mode"`
	Start bool              `json:"start"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Sched.Register(r.Context(), req.ID, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	if req.Start {
		if err := s.Sched.Start(req.ID); err != nil {
			writeError(w, err)
			return
		}
		s.recordActive(r.Context(), req.ID, true)
	}
	st, _ := s.Sched.Status(req.ID)
	writeJSONStatus(w, http.StatusCreated, st)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	if r.URL.Query().Get("purge") == "true" {
		err = s.Sched.Delete(r.Context(), id)
	} else {
		err = s.Sched.Unregister(id)
		if err == nil {
			s.recordActive(r.Context(), id, false)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Sched.Start(id); err != nil {
		writeError(w, err)
		return
	}
	s.recordActive(r.Context(), id, true)
	st, _ := s.Sched.Status(id)
	writeJSON(w, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Sched.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	s.recordActive(r.Context(), id, false)
	st, _ := s.Sched.Status(id)
	writeJSON(w, st)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Mode campaign.TickMode `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		http.Error(w, "mode is required", http.StatusBadRequest)
		return
	}
	if err := s.Sched.SetMode(id, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	if err := s.DB.SetMode(r.Context(), id, req.Mode); err != nil {
		slog.Warn("failed to record tick mode", "campaign_id", id, "error", err)
	}
	st, _ := s.Sched.Status(id)
	writeJSON(w, st)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Sched.Tick(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var a campaign.Action
	if !decodeBody(w, r, &a) {
		return
	}
	id := r.PathValue("id")
	// Answers to events and recommendations must match an open offer. The
	// simulator enforces the same check when the tick runs.
	if a.Data != nil {
		st, err := s.DB.LoadState(r.Context(), id)
		switch {
		case err == nil:
			if err := st.CheckOffer(a.Data); err != nil {
				writeError(w, err)
				return
			}
		case !errors.Is(err, persistence.ErrNotFound):
			slog.Warn("offer check skipped", "campaign_id", id, "error", err)
		}
	}
	queued, err := s.Sched.Enqueue(id, a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, queued)
}

func (s *Server) recordActive(ctx context.Context, id string, active bool) {
	if err := s.DB.SetActive(ctx, id, active); err != nil {
		slog.Warn("failed to record campaign schedule", "campaign_id", id, "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, max)
}

// statusFor maps scheduler and storage errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotRegistered), errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyRegistered), errors.Is(err, engine.ErrAlreadyActive),
		errors.Is(err, campaign.ErrOfferClosed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidAction), errors.Is(err, campaign.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrProducerUnavailable), errors.Is(err, engine.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrIntegrationFailure), errors.Is(err, engine.ErrPersistenceFailure):
		return http.StatusInternalServerError
	}
	var te *engine.Error
	if errors.As(err, &te) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
