// Package gateway exposes the HTTP and WebSocket surface: the inbound
// webhook, the public search endpoint, processing stats, and the live event
// stream.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/pipeline"
	"github.com/itzamna-labs/chasqui/internal/retrieval"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg           *config.Config
	bus           *bus.MessageBus
	searcher      Searcher
	stats         *pipeline.Stats
	manager       *channels.Manager
	hub           *Hub
	limiters      *phoneLimiters
	conversations store.ConversationStore
	summaries     SummaryCanceller
	location      *time.Location
	mux           *http.ServeMux
	httpSrv       *http.Server
}

// Searcher executes validated query specs; satisfied by retrieval.Retriever.
type Searcher interface {
	Search(ctx context.Context, spec store.QuerySpec) (*retrieval.Result, error)
}

func NewServer(cfg *config.Config, msgBus *bus.MessageBus, searcher Searcher, stats *pipeline.Stats, manager *channels.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		bus:      msgBus,
		searcher: searcher,
		stats:    stats,
		manager:  manager,
		hub:      NewHub(),
		limiters: newPhoneLimiters(cfg.Snapshot().Gateway.RateLimitRPM),
		location: cfg.Location(),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// Hub returns the event hub for wiring into the pipeline broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/messages", s.requireAuth(s.handleWebhook))
	s.mux.HandleFunc("GET /v1/search", s.requireAuth(s.handleSearch))
	s.mux.HandleFunc("GET /v1/stats", s.requireAuth(s.handleStats))
	s.mux.HandleFunc("GET /v1/channels", s.requireAuth(s.handleChannels))
	s.mux.HandleFunc("POST /v1/conversations/{id}/close", s.requireAuth(s.handleConversationClose))
	s.mux.HandleFunc("GET /ws", s.requireAuth(s.hub.handleWS))
}

// Start serves until ctx is done, then drains.
func (s *Server) Start(ctx context.Context) error {
	gw := s.cfg.Snapshot().Gateway
	addr := fmt.Sprintf("%s:%d", gw.Host, gw.Port)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.hub.Close()
	}()

	slog.Info("gateway listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requireAuth enforces the bearer token when one is configured. The token
// may also arrive as ?token= for WebSocket clients.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Snapshot().Gateway.Token
		if token == "" {
			next(w, r)
			return
		}

		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if provided == "" || provided == r.Header.Get("Authorization") {
			provided = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"counters": s.stats.Snapshot(),
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.stats.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   snap,
		"uptime":  snap.Uptime.String(),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"channels": s.manager.Status(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}
