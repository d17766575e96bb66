package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hearthd/hearth/internal/config"
	"github.com/hearthd/hearth/internal/engine"
	"github.com/hearthd/hearth/internal/store"
)

// Server is the hearth HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	cfg     config.Config
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around the store and engine.
func New(db *store.DB, eng *engine.Engine, cfg config.Config, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		cfg:     cfg,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/messages", func(r chi.Router) {
			r.With(s.replayGuard).Post("/", s.handleAppendMessage)
			r.Get("/", s.handleRecentMessages)
			r.Post("/{messageID}/processed", s.handleMarkProcessed)
			r.Post("/{messageID}/escalated", s.handleMarkEscalated)
		})

		r.Route("/facts", func(r chi.Router) {
			r.Post("/", s.handleUpsertFact)
			r.Get("/", s.handleListFacts)
			r.Get("/{category}/{key}", s.handleGetFact)
			r.Post("/{category}/{key}/verify", s.handleVerifyFact)
		})

		r.Route("/topics", func(r chi.Router) {
			r.Post("/", s.handleEnqueueTopic)
			r.Get("/", s.handleDequeueTopics)
			r.Post("/{topicID}/mentioned", s.handleTopicMentioned)
			r.Post("/{topicID}/dismiss", s.handleTopicDismiss)
		})

		r.Route("/events", func(r chi.Router) {
			r.With(s.replayGuard).Post("/", s.handleRecordEvent)
			r.Get("/unmentioned", s.handleUnmentionedEvents)
			r.Post("/{eventID}/mentioned", s.handleEventMentioned)
			r.Post("/{eventID}/ack", s.handleEventAck)
		})

		r.Route("/devices", func(r chi.Router) {
			r.With(s.replayGuard).Post("/report", s.handleDeviceReport)
			r.Get("/", s.handleListDevices)
			r.Post("/{deviceID}/should-alert", s.handleShouldAlert)
			r.Post("/{deviceID}/ack", s.handleDeviceAck)
		})

		r.Route("/summaries", func(r chi.Router) {
			r.Get("/", s.handleRecentSummaries)
			r.Post("/consolidate", s.handleConsolidate)
		})

		r.Post("/purge", s.handlePurge)
	})

	s.router = r
}

// replayGuard rejects requests whose X-Request-Nonce has been seen before.
// A request without a nonce is refused outright on guarded routes.
func (s *Server) replayGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := r.Header.Get("X-Request-Nonce")
		if nonce == "" {
			writeError(w, http.StatusBadRequest, "X-Request-Nonce header required")
			return
		}

		ttl := time.Duration(s.cfg.Replay.WindowMinutes) * time.Minute
		err := s.db.CheckAndRecordNonce(nonce, r.RemoteAddr, time.Now().UnixMilli(), ttl)
		if errors.Is(err, store.ErrReplayDetected) {
			writeError(w, http.StatusConflict, "replay detected")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the store/engine error taxonomy onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateMessage):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrReplayDetected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrConstraintViolation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrValidationRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
