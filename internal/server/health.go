package server

import (
	"encoding/json"
	"net/http"
)

type phase int32

const (
	phaseStarting phase = iota
	phaseServing
	phaseDraining
	phaseStopped
)

func (p phase) String() string {
	switch p {
	case phaseStarting:
		return "starting"
	case phaseServing:
		return "serving"
	case phaseDraining:
		return "draining"
	default:
		return "stopped"
	}
}

func (s *Server) currentPhase() phase {
	return phase(s.phase.Load())
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("api gateway: okay"))
}

// healthHandler reports liveness: configuration is loaded (it always is once
// a Server exists) and the listener is accepting.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.currentPhase() != phaseServing {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	p := s.currentPhase()
	if p != phaseServing {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": p.String()})
		return
	}
	names := s.registry.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"upstreams": names,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
