// Package server exposes the publisher's HTTP ingress.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"linkrelay/internal/domain"
	"linkrelay/internal/ports"
	"linkrelay/internal/usecase"
)

const maxIncomingBody = 64 << 10

// Server verifies inbound relay calls, records URL-level dedup, and feeds the
// delivery queue. Everything behind the bearer check is trusted.
type Server struct {
	verifier ports.TokenVerifier
	ledger   ports.PostedLedger
	queue    *usecase.Queue
	log      *slog.Logger
	router   chi.Router
}

// New builds the ingress router.
func New(verifier ports.TokenVerifier, ledger ports.PostedLedger, queue *usecase.Queue, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{verifier: verifier, ledger: ledger, queue: queue, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/incoming", s.handleIncoming)
	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting into an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type incomingItem struct {
	Source      string `json:"source"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorize(w, r)
	if !ok {
		return
	}

	var item incomingItem
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIncomingBody))
	if err := dec.Decode(&item); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON body"})
		return
	}
	if item.Source == "" || item.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "source and url are required"})
		return
	}

	admitted, err := s.ledger.AdmitPosted(r.Context(), item.Source, item.URL, item.Title)
	if err != nil {
		s.log.Error("posted admission failed", "source", item.Source, "url", item.URL, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "storage failure"})
		return
	}
	if !admitted {
		s.log.Info("duplicate url ignored", "source", item.Source, "url", item.URL)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "duplicate"})
		return
	}

	s.queue.Enqueue(domain.RelayMessage{
		Source: item.Source,
		URL:    item.URL,
		Title:  item.Title,
	})
	s.log.Info("item accepted", "source", item.Source, "url", item.URL, "issuer", claims.Issuer)
	writeJSON(w, http.StatusOK, map[string]string{"status": "posted"})
}

// authorize extracts and verifies the bearer token; on failure it writes the
// 401 itself and returns ok=false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (ports.TokenClaims, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "missing bearer token"})
		return ports.TokenClaims{}, false
	}
	claims, err := s.verifier.Verify(parts[1])
	if err != nil {
		s.log.Warn("token rejected", "error", err, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
		return ports.TokenClaims{}, false
	}
	return claims, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
