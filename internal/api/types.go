package api

import (
	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/pool"
	"github.com/mattjoyce/sigslot/internal/probe"
	"github.com/mattjoyce/sigslot/internal/rtos"
	"github.com/mattjoyce/sigslot/internal/signal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Threads        int    `json:"threads"`
	ThreadsRunning int    `json:"threads_running"`
	Probes         int    `json:"probes"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Registry signal.RegistryStats `json:"registry"`
	Pools    []pool.Stats         `json:"pools"`
	Recorder *faults.Stats        `json:"recorder,omitempty"`
}

// ThreadsResponse is returned by GET /threads.
type ThreadsResponse struct {
	Threads []rtos.ThreadInfo `json:"threads"`
}

// ProbesResponse is returned by GET /probes.
type ProbesResponse struct {
	Probes []probe.Stats `json:"probes"`
}

// FaultsResponse is returned by GET /faults.
type FaultsResponse struct {
	Total  int             `json:"total"`
	Faults []faults.Record `json:"faults"`
}
