package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(deps HandlerDeps, clients clientCounter, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n", name, v)
		}
		gauge := func(name, help string, v float64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			fmt.Fprintf(w, "%s %g\n", name, v)
		}

		counter("tutorai_runs_started_total", "Runs dispatched to the agents.", metrics.RunsStarted.Load())
		counter("tutorai_runs_completed_total", "Runs whose agents have all settled.", metrics.RunsCompleted.Load())
		counter("tutorai_runs_enriched_total", "Runs with an attached spoken summary.", metrics.RunsEnriched.Load())
		counter("tutorai_agent_completions_total", "Agent streams that finished successfully.", metrics.AgentsCompleted.Load())
		counter("tutorai_agent_failures_total", "Agent streams that failed.", metrics.AgentsFailed.Load())
		counter("tutorai_agent_fragments_total", "Streamed agent fragments.", metrics.Fragments.Load())

		if deps.Cache != nil {
			st := deps.Cache.Stats()
			counter("tutorai_cache_hits_total", "Result cache hits.", st.Hits)
			counter("tutorai_cache_misses_total", "Result cache misses.", st.Misses)
			gauge("tutorai_cache_text_entries", "Cached agent texts.", float64(st.TextEntries))
			gauge("tutorai_cache_audio_entries", "Cached speech clips.", float64(st.AudioEntries))
		}
		if clients != nil {
			gauge("tutorai_gateway_clients", "Connected WebSocket clients.", float64(clients.ClientCount()))
		}
		gauge("tutorai_uptime_seconds", "Seconds since the gateway started.", float64(int64(time.Since(startTime).Seconds())))

		// Go runtime metrics.
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		gauge("go_goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))
		gauge("go_memstats_alloc_bytes", "Bytes of allocated heap objects.", float64(mem.Alloc))
		gauge("go_memstats_sys_bytes", "Total bytes of memory obtained from the OS.", float64(mem.Sys))
		gauge("go_gc_duration_seconds", "Total GC pause duration.", float64(mem.PauseTotalNs)/1e9)
	}
}
