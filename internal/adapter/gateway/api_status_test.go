package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/usecase/resultcache"
)

type fixedClients int

func (n fixedClients) ClientCount() int { return int(n) }

func apiTestDeps() HandlerDeps {
	cache := resultcache.New()
	cache.PutText("fp-1", "cached answer")
	cache.GetText("fp-1")
	cache.GetText("fp-2")
	return HandlerDeps{Cache: cache, Logger: newTestLogger(), Version: "1.2.3"}
}

func TestStatusHandler_Success(t *testing.T) {
	metrics := &Metrics{}
	metrics.RunsStarted.Store(7)
	metrics.RunsCompleted.Store(6)
	metrics.AgentsFailed.Store(3)

	handler := statusHandler(apiTestDeps(), fixedClients(2), time.Now().Add(-60*time.Second), metrics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Service.Name != "tutor-ai" || resp.Service.Version != "1.2.3" {
		t.Errorf("Service = %+v", resp.Service)
	}
	if resp.Service.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %d, want >= 59", resp.Service.UptimeSeconds)
	}
	if resp.Runs.Started != 7 || resp.Runs.Completed != 6 {
		t.Errorf("Runs = %+v", resp.Runs)
	}
	if resp.Agents.Failed != 3 {
		t.Errorf("Agents.Failed = %d, want 3", resp.Agents.Failed)
	}
	if resp.Cache == nil || resp.Cache.TextEntries != 1 || resp.Cache.Hits != 1 || resp.Cache.Misses != 1 {
		t.Errorf("Cache = %+v", resp.Cache)
	}
	if resp.Clients != 2 {
		t.Errorf("Clients = %d, want 2", resp.Clients)
	}
}

func TestStatusHandler_NoCache(t *testing.T) {
	handler := statusHandler(HandlerDeps{}, nil, time.Now(), &Metrics{})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if strings.Contains(w.Body.String(), `"cache"`) {
		t.Errorf("cache section present without a cache: %s", w.Body.String())
	}
}

func TestStatusHandler_MethodNotAllowed(t *testing.T) {
	handler := statusHandler(apiTestDeps(), nil, time.Now(), &Metrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestMetricsHandler_PrometheusFormat(t *testing.T) {
	metrics := &Metrics{}
	metrics.RunsStarted.Store(10)
	metrics.AgentsCompleted.Store(35)
	metrics.AgentsFailed.Store(5)
	metrics.Fragments.Store(1200)

	handler := metricsHandler(apiTestDeps(), fixedClients(3), time.Now().Add(-120*time.Second), metrics)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	ct := w.Header().Get("Content-Type")
	if ct != "text/plain; version=0.0.4; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"# TYPE tutorai_runs_started_total counter",
		"tutorai_runs_started_total 10",
		"tutorai_agent_completions_total 35",
		"tutorai_agent_failures_total 5",
		"tutorai_agent_fragments_total 1200",
		"tutorai_cache_hits_total 1",
		"tutorai_cache_text_entries 1",
		"tutorai_gateway_clients 3",
		"# TYPE tutorai_uptime_seconds gauge",
		"go_goroutines",
		"go_memstats_alloc_bytes",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}

func TestMetricsHandler_MethodNotAllowed(t *testing.T) {
	handler := metricsHandler(apiTestDeps(), nil, time.Now(), &Metrics{})

	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestRESTAuthMiddleware(t *testing.T) {
	srv := NewServer(nil, newTestAuth(), ":0", newTestLogger())
	RegisterRESTHandlers(srv, apiTestDeps())

	if len(srv.httpRoutes) != 3 {
		t.Fatalf("expected 3 HTTP routes, got %d", len(srv.httpRoutes))
	}

	for _, route := range srv.httpRoutes {
		public := route.pattern == "/healthz"

		req := httptest.NewRequest(http.MethodGet, route.pattern, nil)
		w := httptest.NewRecorder()
		route.handler(w, req)
		if public && w.Code != http.StatusOK {
			t.Errorf("route %s: status = %d, want 200", route.pattern, w.Code)
		}
		if !public && w.Code != http.StatusUnauthorized {
			t.Errorf("route %s without token: status = %d, want 401", route.pattern, w.Code)
		}

		req = httptest.NewRequest(http.MethodGet, route.pattern, nil)
		req.Header.Set("Authorization", "Bearer test-token")
		w = httptest.NewRecorder()
		route.handler(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("route %s with valid token: status = %d, want 200", route.pattern, w.Code)
		}

		req = httptest.NewRequest(http.MethodGet, route.pattern+"?token=test-token", nil)
		w = httptest.NewRecorder()
		route.handler(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("route %s with query token: status = %d, want 200", route.pattern, w.Code)
		}
	}
}

func TestRESTMetricsCountBusEvents(t *testing.T) {
	bus := newTestBus(t)
	deps := apiTestDeps()
	deps.Bus = bus

	srv := NewServer(bus, newTestAuth(), ":0", newTestLogger())
	metrics := RegisterRESTHandlers(srv, deps)

	ctx := context.Background()
	bus.Publish(ctx, domain.NewEvent(domain.EventRunStarted, "r1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventAgentFragment, "r1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventAgentFragment, "r1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventAgentFailed, "r1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventRunCompleted, "r1", nil))
	bus.Close()

	if metrics.RunsStarted.Load() != 1 || metrics.RunsCompleted.Load() != 1 {
		t.Errorf("runs started=%d completed=%d", metrics.RunsStarted.Load(), metrics.RunsCompleted.Load())
	}
	if metrics.Fragments.Load() != 2 || metrics.AgentsFailed.Load() != 1 {
		t.Errorf("fragments=%d failed=%d", metrics.Fragments.Load(), metrics.AgentsFailed.Load())
	}
}
