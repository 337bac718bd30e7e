// Package registry implements the centralised peer directory and
// reputation store (spec §4.3): single authoritative process for
// membership and reputation, exposing the bit-exact HTTP surface in §6.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bftbank/core/internal/logger"
)

const defaultReputation = 100

// Record is one registered node's directory entry.
type Record struct {
	URL        string `json:"url"`
	Reputation int    `json:"reputation"`
}

// Server is the registry's in-memory store plus its HTTP handler.
type Server struct {
	mu    sync.Mutex
	nodes map[string]Record
	log   *slog.Logger
}

// NewServer builds an empty registry.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{nodes: make(map[string]Record), log: log}
}

// Handler returns the net/http.Handler serving the registry's REST API.
// Go 1.22's ServeMux method+pattern routing covers the seven fixed
// endpoints without a third-party router (see DESIGN.md).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /deregister", s.handleDeregister)
	mux.HandleFunc("GET /nodes", s.handleNodes)
	mux.HandleFunc("GET /total_nodes", s.handleTotalNodes)
	mux.HandleFunc("POST /reputation/increase", s.handleReputationIncrease)
	mux.HandleFunc("POST /reputation/decrease", s.handleReputationDecrease)
	mux.HandleFunc("GET /reputation/{node_id}", s.handleReputationGet)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NodeID  string `json:"node_id"`
		NodeURL string `json:"node_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NodeID == "" || body.NodeURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node_id and node_url are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[body.NodeID]; ok {
		if existing.URL == body.NodeURL {
			writeJSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("Node %s already registered with URL %s", body.NodeID, body.NodeURL),
			})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("Node ID %s already registered with a different URL", body.NodeID),
		})
		return
	}

	s.nodes[body.NodeID] = Record{URL: body.NodeURL, Reputation: defaultReputation}
	s.log.Info("node registered", logger.NodeID(body.NodeID))
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("Node %s registered successfully with URL %s", body.NodeID, body.NodeURL),
	})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NodeID string `json:"node_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node_id is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[body.NodeID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Node %s is not registered.", body.NodeID)})
		return
	}
	delete(s.nodes, body.NodeID)
	s.log.Info("node deregistered", logger.NodeID(body.NodeID))
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Node %s deregistered successfully.", body.NodeID)})
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.nodes))
	for id, rec := range s.nodes {
		out[id] = rec
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTotalNodes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"total_nodes": len(s.nodes)})
}

func (s *Server) handleReputationIncrease(w http.ResponseWriter, r *http.Request) {
	s.adjustReputation(w, r, 10)
}

func (s *Server) handleReputationDecrease(w http.ResponseWriter, r *http.Request) {
	s.adjustReputation(w, r, -20)
}

func (s *Server) adjustReputation(w http.ResponseWriter, r *http.Request, defaultDelta int) {
	var body struct {
		NodeID string `json:"node_id"`
		Amount *int   `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node_id is required"})
		return
	}
	delta := defaultDelta
	if body.Amount != nil {
		if defaultDelta < 0 {
			delta = -*body.Amount
		} else {
			delta = *body.Amount
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nodes[body.NodeID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Node %s is not registered.", body.NodeID)})
		return
	}
	rec.Reputation += delta
	if rec.Reputation > 100 {
		rec.Reputation = 100
	}
	if rec.Reputation < 0 {
		rec.Reputation = 0
	}
	s.nodes[body.NodeID] = rec
	s.log.Info("reputation adjusted", logger.NodeID(body.NodeID), logger.Reputation(rec.Reputation))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("Reputation for Node %s adjusted by %d.", body.NodeID, delta),
		"reputation": rec.Reputation,
	})
}

func (s *Server) handleReputationGet(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nodes[nodeID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Node %s is not registered.", nodeID)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node_id": nodeID, "reputation": rec.Reputation})
}
