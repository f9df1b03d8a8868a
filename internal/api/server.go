package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/events"
	"github.com/hypernymai/beacon/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// thresholdConfidence is the aggregate flag cutoff on the detect endpoint.
const thresholdConfidence = 0.85

// PollerState is the slice of the poller the API reads and feeds.
type PollerState interface {
	Online() bool
	Ticker() []events.Event
	Sessions() []autofork.SessionSummary
	Merge(ctx context.Context, evts []events.Event) []events.Event
	MarkForwarded(keys ...string)
}

// ForwardService is the slice of the forwarder the API calls.
type ForwardService interface {
	Forward(ctx context.Context, sessionID string, evts []events.Event, gold bool) (*events.Anchor, error)
	Contributions() []events.Contribution
	Dismiss(ctx context.Context, contributionID string) error
}

// ActivitySource fetches the recent-text window for on-demand detection.
type ActivitySource interface {
	SessionActivity(ctx context.Context, sessionID string, since time.Time) (*autofork.Activity, error)
}

type Server struct {
	store    store.DataStore
	poller   PollerState
	fwd      ForwardService
	activity ActivitySource
	detect   func(user, assistant, tool []string) []events.Event
	router   chi.Router
	port     int
}

func NewServer(s store.DataStore, p PollerState, f ForwardService, a ActivitySource, detect func(user, assistant, tool []string) []events.Event, port int) *Server {
	srv := &Server{
		store:    s,
		poller:   p,
		fwd:      f,
		activity: a,
		detect:   detect,
		port:     port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Get("/sessions", srv.handleListSessions)
		r.Get("/sessions/{sessionID}/events", srv.handleSessionEvents)
		r.Get("/ticker", srv.handleTicker)
		r.Post("/forward", srv.handleForward)
		r.Get("/history", srv.handleHistory)
		r.Get("/anchors/export", srv.handleExportAnchors)
		r.Delete("/anchors/{anchorID}", srv.handleDeleteAnchor)
		r.Post("/anchors/{anchorID}/gold", srv.handleAnchorGold)
		r.Delete("/contributions/{contributionID}", srv.handleDismissContribution)
	})

	srv.router = r
	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "beacon",
		"online":      s.poller.Online(),
		"ticker_size": len(s.poller.Ticker()),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.poller.Sessions()})
}

// handleSessionEvents runs detection on demand for one session and shares
// the poller's admission path so manual checks feed the same ticker.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		since = t
	}

	act, err := s.activity.SessionActivity(r.Context(), sessionID, since)
	if err != nil {
		slog.Warn("detect endpoint: activity fetch failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "session unavailable"})
		return
	}

	detected := s.detect(act.UserMessages, act.AssistantMessages, act.ToolOutputs)
	for i := range detected {
		detected[i].SessionID = sessionID
	}
	s.poller.Merge(r.Context(), detected)

	maxConfidence := 0.0
	for _, e := range detected {
		if e.Confidence > maxConfidence {
			maxConfidence = e.Confidence
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":         detected,
		"max_confidence": maxConfidence,
		"threshold_met":  maxConfidence >= thresholdConfidence,
	})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.poller.Ticker()})
}

type forwardRequest struct {
	SessionID string         `json:"session_id"`
	Events    []events.Event `json:"events"`
	Gold      bool           `json:"gold"`
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.SessionID == "" || len(req.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and events are required"})
		return
	}
	for i := range req.Events {
		if !events.KnownKind(req.Events[i].Kind) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown event kind %q", req.Events[i].Kind)})
			return
		}
		req.Events[i].SessionID = req.SessionID
		req.Events[i].Confidence = events.Confidence(req.Events[i].Kind)
	}

	anchor, err := s.fwd.Forward(r.Context(), req.SessionID, req.Events, req.Gold)
	if err != nil {
		slog.Warn("manual forward failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "forward failed"})
		return
	}

	keys := make([]string, len(req.Events))
	for i, e := range req.Events {
		keys[i] = e.ForwardKey()
	}
	s.poller.MarkForwarded(keys...)

	writeJSON(w, http.StatusAccepted, map[string]any{"anchor": anchor})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	anchors, err := s.store.ListAnchors(r.Context(), 20)
	if err != nil {
		slog.Error("list anchors failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"anchors":       anchors,
		"contributions": s.fwd.Contributions(),
	})
}

// exportRecord is the shape the Weave export script consumes.
type exportRecord struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	SuccessType string `json:"success_type"`
	Tokens      int    `json:"tokens"`
	IsGold      bool   `json:"is_gold"`
	SessionID   string `json:"session_id"`
}

func (s *Server) handleExportAnchors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	anchors, err := s.store.ListAnchors(r.Context(), limit)
	if err != nil {
		slog.Error("export anchors failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	records := make([]exportRecord, len(anchors))
	for i, a := range anchors {
		records[i] = exportRecord{
			Input:       a.Summary,
			Output:      a.ResumePrompt,
			SuccessType: a.Status,
			Tokens:      a.Tokens,
			IsGold:      a.Gold,
			SessionID:   a.SessionID,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"anchors": records})
}

func (s *Server) handleDeleteAnchor(w http.ResponseWriter, r *http.Request) {
	anchorID := chi.URLParam(r, "anchorID")
	if err := s.store.DeleteAnchor(r.Context(), anchorID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "anchor not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type goldRequest struct {
	Gold *bool `json:"gold"`
}

func (s *Server) handleAnchorGold(w http.ResponseWriter, r *http.Request) {
	anchorID := chi.URLParam(r, "anchorID")

	var req goldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Gold == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "gold is required"})
		return
	}

	if err := s.store.SetAnchorGold(r.Context(), anchorID, *req.Gold); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "anchor not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "gold": *req.Gold})
}

func (s *Server) handleDismissContribution(w http.ResponseWriter, r *http.Request) {
	contributionID := chi.URLParam(r, "contributionID")
	if err := s.fwd.Dismiss(r.Context(), contributionID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "contribution not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
