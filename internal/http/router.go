package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softtouch/api/internal/service/registry"
	"github.com/softtouch/api/internal/service/stats"
	"github.com/softtouch/api/internal/service/telemetry"
	"github.com/softtouch/api/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	telemetry  *telemetry.Service
	snapshots  *stats.Service
	registry   *registry.Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	adminToken string
	apiBaseURL string
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitStatsRead = 120
	rateLimitDocsRead  = 60
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, telemetrySvc *telemetry.Service, snapshotSvc *stats.Service, registrySvc *registry.Service, hub *ws.Hub, limiter RateLimiter, adminToken, apiBaseURL string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		telemetry: telemetrySvc,
		snapshots: snapshotSvc,
		registry:  registrySvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		adminToken: strings.TrimSpace(adminToken),
		apiBaseURL: strings.TrimRight(strings.TrimSpace(apiBaseURL), "/"),
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/statistics", r.logged(r.withRateLimit("statistics", rateLimitStatsRead, rateWindowDefault, r.handleStatistics)))
	r.mux.HandleFunc("/statistics/stream", r.logged(r.handleStatsSSE))
	r.mux.HandleFunc("/ws/stats", r.logged(r.handleStatsWS))
	r.mux.HandleFunc("/admin/stats", r.logged(r.handleAdminStats))
	r.mux.HandleFunc("/admin/requests", r.logged(r.handleAdminRequests))
	r.mux.HandleFunc("/endpoint", r.logged(r.withRateLimit("endpoint", rateLimitDocsRead, rateWindowDefault, r.handleEndpoints)))
	r.mux.HandleFunc("/healthz", r.logged(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
}

// HandleAPI mounts an API handler behind the telemetry gateway. route is the
// logical endpoint identifier used as the aggregation key.
func (r *Router) HandleAPI(route string, handler http.HandlerFunc) {
	r.mux.HandleFunc(route, r.logged(r.instrument(route, handler)))
}

type apiStatPayload struct {
	Name                string  `json:"name"`
	DailyRequests       int64   `json:"dailyRequests"`
	WeeklyRequests      int64   `json:"weeklyRequests"`
	MonthlyRequests     int64   `json:"monthlyRequests"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	SuccessRate         float64 `json:"successRate"`
	Popularity          float64 `json:"popularity"`
}

type statisticsPayload struct {
	TotalRequests int64            `json:"totalRequests"`
	UniqueUsers   int64            `json:"uniqueUsers"`
	Timestamp     string           `json:"timestamp"`
	APIs          []apiStatPayload `json:"apis"`
}

func (r *Router) handleStatistics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.writeSnapshot(w, req, false)
}

func (r *Router) handleAdminStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyAdminToken(w, req) {
		return
	}
	r.writeSnapshot(w, req, true)
}

func (r *Router) writeSnapshot(w http.ResponseWriter, req *http.Request, includeHidden bool) {
	snapshot, err := r.snapshots.Snapshot(req.Context(), includeHidden)
	if err != nil {
		r.logger.Error("statistics snapshot failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "statistics unavailable")
		return
	}
	payload := statisticsPayload{
		TotalRequests: snapshot.Summary.TotalRequests,
		UniqueUsers:   snapshot.Summary.UniqueCallers,
		Timestamp:     snapshot.Summary.Timestamp.UTC().Format(time.RFC3339),
		APIs:          make([]apiStatPayload, 0, len(snapshot.APIs)),
	}
	for _, api := range snapshot.APIs {
		payload.APIs = append(payload.APIs, apiStatPayload{
			Name:                api.Route,
			DailyRequests:       api.DailyRequests,
			WeeklyRequests:      api.WeeklyRequests,
			MonthlyRequests:     api.MonthlyRequests,
			AverageResponseTime: api.AverageResponseMS,
			SuccessRate:         api.SuccessRatePct,
			Popularity:          api.Popularity,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

type requestRecordPayload struct {
	ID         int64   `json:"id"`
	Route      string  `json:"route"`
	DurationMS float64 `json:"duration_ms"`
	StatusCode int     `json:"status_code"`
	Timestamp  string  `json:"timestamp"`
}

// handleAdminRequests reads back the raw request log. The caller id stays
// server-side even here; it exists for uniqueness counting only.
func (r *Router) handleAdminRequests(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.verifyAdminToken(w, req) {
		return
	}
	query := req.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	records, err := r.telemetry.RecentRecords(req.Context(), query.Get("route"), limit, offset)
	if err != nil {
		r.logger.Error("request log read failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "request log unavailable")
		return
	}
	payload := make([]requestRecordPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, requestRecordPayload{
			ID:         record.ID,
			Route:      record.Route,
			DurationMS: record.DurationMS,
			StatusCode: record.StatusCode,
			Timestamp:  record.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

type endpointPayload struct {
	Name            string          `json:"name"`
	Method          string          `json:"method"`
	Endpoint        string          `json:"endpoint"`
	ResponseType    string          `json:"response_type"`
	PartDescription string          `json:"part_description"`
	Description     string          `json:"description"`
	Params          json.RawMessage `json:"params"`
	SampleRequest   json.RawMessage `json:"sample_request"`
	SampleResponse  json.RawMessage `json:"sample_response"`
}

func (r *Router) handleEndpoints(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	endpoints, err := r.registry.ListEnabled(req.Context())
	if err != nil {
		r.logger.Error("endpoint listing failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "endpoint registry unavailable")
		return
	}
	payload := make([]endpointPayload, 0, len(endpoints))
	for _, e := range endpoints {
		payload = append(payload, endpointPayload{
			Name:            e.Name,
			Method:          e.Method,
			Endpoint:        r.apiBaseURL + e.Route,
			ResponseType:    e.ResponseType,
			PartDescription: e.PartDescription,
			Description:     e.Description,
			Params:          rawOrEmptyArray(e.Params),
			SampleRequest:   rawOrEmptyObject(e.SampleRequest),
			SampleResponse:  rawOrEmptyObject(e.SampleResponse),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleStatsWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(telemetry.StreamTopic, client)
	defer r.hub.Unregister(telemetry.StreamTopic, client)

	// Reads are only used to observe the close handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Router) handleStatsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(telemetry.StreamTopic, client)
	defer r.hub.Unregister(telemetry.StreamTopic, client)

	heartbeat := time.NewTicker(sseHeartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// verifyAdminToken fences the unfiltered admin read behind a shared token.
func (r *Router) verifyAdminToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.adminToken
	if expected == "" {
		r.logger.Error("admin token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "admin access misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get("X-Admin-Token"))
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("admin token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func rawOrEmptyArray(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(b)
}

func rawOrEmptyObject(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}
