package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"tutor-ai/internal/usecase/resultcache"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service ServiceStatus      `json:"service"`
	Runs    RunStatus          `json:"runs"`
	Agents  AgentStatus        `json:"agents"`
	Cache   *resultcache.Stats `json:"cache,omitempty"`
	Clients int                `json:"clients"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// RunStatus holds run counters.
type RunStatus struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Enriched  int64 `json:"enriched"`
}

// AgentStatus holds per-agent outcome counters.
type AgentStatus struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Fragments int64 `json:"fragments"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	RunsStarted     atomic.Int64
	RunsCompleted   atomic.Int64
	RunsEnriched    atomic.Int64
	AgentsCompleted atomic.Int64
	AgentsFailed    atomic.Int64
	Fragments       atomic.Int64
}

type clientCounter interface {
	ClientCount() int
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, clients clientCounter, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "tutor-ai",
				Version:       deps.Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Runs: RunStatus{
				Started:   metrics.RunsStarted.Load(),
				Completed: metrics.RunsCompleted.Load(),
				Enriched:  metrics.RunsEnriched.Load(),
			},
			Agents: AgentStatus{
				Completed: metrics.AgentsCompleted.Load(),
				Failed:    metrics.AgentsFailed.Load(),
				Fragments: metrics.Fragments.Load(),
			},
		}
		if deps.Cache != nil {
			st := deps.Cache.Stats()
			resp.Cache = &st
		}
		if clients != nil {
			resp.Clients = clients.ClientCount()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
