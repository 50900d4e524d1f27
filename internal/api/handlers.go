package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/probe"
)

const (
	defaultFaultLimit = 50
	maxFaultLimit     = 1000
)

// handleHealthz handles GET /healthz. A stopped thread degrades health.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Threads.Infos()
	running := 0
	for _, ti := range infos {
		if ti.Running {
			running++
		}
	}

	resp := HealthzResponse{
		Status:         "ok",
		Service:        s.config.Service,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Threads:        len(infos),
		ThreadsRunning: running,
	}
	if s.deps.Probes != nil {
		resp.Probes = len(s.deps.Probes.Stats())
	}

	status := http.StatusOK
	if running < len(infos) {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.writeError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	st := s.deps.Engine.Stats()
	resp := StatsResponse{Registry: st.Registry, Pools: st.Pools}
	if s.deps.Recorder != nil {
		rs := s.deps.Recorder.Stats()
		resp.Recorder = &rs
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleThreads handles GET /threads.
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ThreadsResponse{Threads: s.deps.Threads.Infos()})
}

// handleProbes handles GET /probes.
func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	resp := ProbesResponse{Probes: []probe.Stats{}}
	if s.deps.Probes != nil {
		resp.Probes = s.deps.Probes.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleFaults handles GET /faults?limit=N.
func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Faults == nil {
		s.writeError(w, http.StatusServiceUnavailable, "fault store disabled")
		return
	}

	limit := defaultFaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFaultLimit)
	}

	recs, err := s.deps.Faults.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list faults", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list faults")
		return
	}
	total, err := s.deps.Faults.Count(r.Context())
	if err != nil {
		s.logger.Error("failed to count faults", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count faults")
		return
	}
	if recs == nil {
		recs = []faults.Record{}
	}
	respondJSON(w, http.StatusOK, FaultsResponse{Total: total, Faults: recs})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
