// Package server wires the chi router (spec §4.11/§6.1): the
// WebSocket upgrade endpoint, liveness, and Prometheus exposition.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tourneyforge/livebracket/internal/auth"
	"github.com/tourneyforge/livebracket/internal/live"
	"github.com/tourneyforge/livebracket/internal/session"
	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/system"
)

// Server bundles the collaborators the HTTP layer dispatches to.
type Server struct {
	registry       *live.Registry
	store          store.Store
	auth           *auth.Auth
	sessionCfg     session.Config
	allowedOrigins []string
	log            *zap.Logger
	upgrader       websocket.Upgrader
}

func New(registry *live.Registry, st store.Store, a *auth.Auth, sessionCfg session.Config, allowedOrigins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		registry:       registry,
		store:          st,
		auth:           a,
		sessionCfg:     sessionCfg,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// Handler builds the full router. With no configured allowedOrigins,
// the router is left unwrapped: no Access-Control-* headers are ever
// emitted, so only same-origin requests succeed (spec §4.11 default).
// A non-empty allowedOrigins enables cross-origin access for those
// origins via rs/cors.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/v3/tournaments/{tid}/brackets/{bid}/matches", s.handleMatches)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if len(s.allowedOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
	})
	return c.Handler(r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleMatches upgrades to WebSocket and runs one Session for the
// lifetime of the connection (spec §6.1). Missing tournament/bracket
// → 404; a non-upgrade request → 426 Upgrade Required. If this is the
// bracket's first subscription ever, Acquire's fresh closure loads its
// registration spec and lays out the initial matches (spec §4.4/§6.2
// lazy creation) — Store.BracketExists having already confirmed the
// bracket is registered, this only fails if the spec row disappears
// between the two reads.
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	tid, err := strconv.ParseUint(chi.URLParam(r, "tid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusNotFound)
		return
	}
	bid, err := strconv.ParseUint(chi.URLParam(r, "bid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid bracket id", http.StatusNotFound)
		return
	}
	key := store.BracketKey{TournamentID: tid, BracketID: bid}

	exists, err := s.store.BracketExists(r.Context(), key)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	fresh := func() (uint64, system.Options, []uint64, error) {
		spec, err := s.store.LoadBracketSpec(r.Context(), key)
		if err != nil {
			return 0, nil, nil, err
		}
		return spec.SystemID, spec.Options, spec.EntrantsOrder, nil
	}

	b, err := s.registry.Acquire(r.Context(), key, fresh)
	if err != nil {
		s.log.Error("failed to acquire bracket", zap.Error(err))
		conn.Close()
		return
	}
	defer s.registry.Release(context.Background(), key)

	sess := session.New(conn, b, s.auth, s.sessionCfg, s.log)
	sess.Run(r.Context())
}
