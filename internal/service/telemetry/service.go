package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/softtouch/api/internal/domain"
	"github.com/softtouch/api/internal/repository"
	"github.com/softtouch/api/internal/ws"
)

const (
	defaultQueueSize = 1024
	updateRetryMax   = 3

	// StreamTopic is the hub topic carrying completed request records.
	StreamTopic = "stats"
)

// Service is the telemetry gateway. It accepts one record per completed API
// request, appends it to the request log and folds it into the per-route and
// global aggregates. Every failure on this path is logged and swallowed: the
// request that produced the record has already been answered and must never
// see a telemetry error.
type Service struct {
	records repository.RequestLogRepository
	stats   repository.EndpointStatRepository
	summary repository.SummaryRepository
	hub     *ws.Hub
	logger  *slog.Logger
	now     func() time.Time

	routes *routeLocks

	// queue is nil in synchronous mode. Otherwise Record enqueues and a
	// single worker drains; a full queue drops the newest record.
	queue   chan domain.RequestRecord
	dropped atomic.Int64
	once    sync.Once
}

// NewService constructs the telemetry gateway. queueSize <= 0 selects the
// synchronous path where Record processes the record before returning;
// otherwise records flow through a bounded queue drained by Run.
func NewService(records repository.RequestLogRepository, stats repository.EndpointStatRepository, summary repository.SummaryRepository, hub *ws.Hub, logger *slog.Logger, queueSize int) *Service {
	if logger != nil {
		logger = logger.With("component", "telemetry")
	} else {
		logger = slog.Default()
	}
	s := &Service{
		records: records,
		stats:   stats,
		summary: summary,
		hub:     hub,
		logger:  logger,
		now:     time.Now,
		routes:  newRouteLocks(),
	}
	if queueSize > 0 {
		if queueSize > defaultQueueSize*16 {
			queueSize = defaultQueueSize * 16
		}
		s.queue = make(chan domain.RequestRecord, queueSize)
	}
	return s
}

// Run drains the record queue until the context is cancelled, then finishes
// whatever is still buffered. It is a no-op in synchronous mode.
func (s *Service) Run(ctx context.Context) {
	if s == nil || s.queue == nil {
		return
	}
	s.once.Do(func() {
		s.logger.Info("telemetry worker started", "queue_cap", cap(s.queue))
	})
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.logger.Info("telemetry worker stopped", "dropped_total", s.dropped.Load())
			return
		case record := <-s.queue:
			s.process(context.Background(), record)
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case record := <-s.queue:
			s.process(context.Background(), record)
		default:
			return
		}
	}
}

// Record submits one completed request. It never blocks on a full queue and
// never returns an error: in asynchronous mode an overflowing queue drops
// the newest record with a logged warning.
func (s *Service) Record(route, callerID string, durationMS float64, statusCode int) {
	if s == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		return
	}
	if durationMS < 0 {
		durationMS = 0
	}
	record := domain.RequestRecord{
		Route:      route,
		CallerID:   strings.TrimSpace(callerID),
		DurationMS: durationMS,
		StatusCode: statusCode,
		Timestamp:  s.now().UTC(),
	}
	if s.queue == nil {
		s.process(context.Background(), record)
		return
	}
	select {
	case s.queue <- record:
	default:
		dropped := s.dropped.Add(1)
		s.logger.Warn("telemetry queue full, dropping record", "route", route, "dropped_total", dropped)
	}
}

// process runs the full pipeline for one record: durable append, per-route
// stat update, global summary update, live broadcast. The append gates the
// aggregates so a lost record never leaves them partially advanced.
func (s *Service) process(ctx context.Context, record domain.RequestRecord) {
	if err := s.records.AppendRequestRecord(ctx, &record); err != nil {
		s.logger.Warn("request log append failed, discarding record", "route", record.Route, "error", err)
		return
	}
	if _, err := s.updateEndpointStat(ctx, record); err != nil {
		s.logger.Warn("endpoint stat update failed", "route", record.Route, "error", err)
	}
	if err := s.summary.RecordSummaryEvent(ctx, record.CallerID); err != nil {
		s.logger.Warn("summary update failed", "route", record.Route, "error", err)
	}
	s.broadcast(record)
}

// updateEndpointStat serializes same-route updates behind a keyed mutex and
// retries a bounded number of times when the store reports a concurrent
// conflict. The store additionally row-locks the stat inside a transaction,
// so concurrent processes cannot lose updates either.
func (s *Service) updateEndpointStat(ctx context.Context, record domain.RequestRecord) (domain.EndpointStat, error) {
	lock := s.routes.get(record.Route)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < updateRetryMax; attempt++ {
		stat, err := s.stats.UpdateEndpointStat(ctx, record.Route, func(existing *domain.EndpointStat) domain.EndpointStat {
			return applyRecord(existing, record, record.Timestamp)
		})
		if err == nil {
			return stat, nil
		}
		lastErr = err
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	return domain.EndpointStat{}, lastErr
}

func (s *Service) broadcast(record domain.RequestRecord) {
	if s.hub == nil {
		return
	}
	payload, err := MarshalRequestRecord(record)
	if err != nil {
		s.logger.Warn("failed to marshal request record", "error", err)
		return
	}
	s.hub.Broadcast(StreamTopic, payload)
}

// RecentRecords reads back recently appended records, newest first. An empty
// route matches every route.
func (s *Service) RecentRecords(ctx context.Context, route string, limit, offset int) ([]domain.RequestRecord, error) {
	return s.records.ListRequestRecords(ctx, strings.TrimSpace(route), limit, offset)
}

// QueueDepth reports the number of buffered records, for metrics.
func (s *Service) QueueDepth() int {
	if s == nil || s.queue == nil {
		return 0
	}
	return len(s.queue)
}

// Dropped reports how many records overflowed the queue since startup.
func (s *Service) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// MarshalRequestRecord encodes a record for streaming clients.
func MarshalRequestRecord(record domain.RequestRecord) ([]byte, error) {
	payload := map[string]any{
		"route":       record.Route,
		"duration_ms": record.DurationMS,
		"status_code": record.StatusCode,
		"timestamp":   record.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
