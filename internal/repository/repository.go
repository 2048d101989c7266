package repository

import (
	"context"

	"github.com/softtouch/api/internal/domain"
)

// RequestLogRepository appends immutable request records. The append is the
// unit of durability for the telemetry pipeline.
type RequestLogRepository interface {
	AppendRequestRecord(ctx context.Context, record *domain.RequestRecord) error
	ListRequestRecords(ctx context.Context, route string, limit, offset int) ([]domain.RequestRecord, error)
}

// EndpointStatRepository gives the stat aggregator atomic access to per-route
// rows. UpdateEndpointStat runs apply inside a per-row transaction: apply
// receives the current row (nil when the route has no row yet) and returns
// the full replacement row, which is persisted before the transaction
// commits. Updates for different routes must not contend with each other.
type EndpointStatRepository interface {
	UpdateEndpointStat(ctx context.Context, route string, apply func(existing *domain.EndpointStat) domain.EndpointStat) (domain.EndpointStat, error)
	GetEndpointStat(ctx context.Context, route string) (*domain.EndpointStat, error)
}

// SummaryRepository maintains the singleton global summary. The strategy is
// incremental: RecordSummaryEvent advances total_requests by one and, when
// callerID has never been seen before, unique_callers by one. The distinct
// caller set is persisted, so both counters stay exact across restarts.
type SummaryRepository interface {
	RecordSummaryEvent(ctx context.Context, callerID string) error
	GetGlobalSummary(ctx context.Context) (*domain.GlobalSummary, error)
}

// SnapshotRepository serves the read-only statistics views.
type SnapshotRepository interface {
	GetGlobalSummary(ctx context.Context) (*domain.GlobalSummary, error)
	ListEndpointStats(ctx context.Context, visibleOnly bool) ([]domain.EndpointStat, error)
}

// EndpointRegistryRepository persists the endpoint registry rows owned by the
// admin panel.
type EndpointRegistryRepository interface {
	UpsertEndpoint(ctx context.Context, endpoint *domain.Endpoint) error
	ListEndpoints(ctx context.Context, enabledOnly bool) ([]domain.Endpoint, error)
}
