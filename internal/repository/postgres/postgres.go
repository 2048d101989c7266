package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softtouch/api/internal/domain"
	"github.com/softtouch/api/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.RequestLogRepository       = (*Repository)(nil)
	_ repository.EndpointStatRepository     = (*Repository)(nil)
	_ repository.SummaryRepository          = (*Repository)(nil)
	_ repository.SnapshotRepository         = (*Repository)(nil)
	_ repository.EndpointRegistryRepository = (*Repository)(nil)
)

// AppendRequestRecord inserts one completed request into the append-only log.
func (r *Repository) AppendRequestRecord(ctx context.Context, record *domain.RequestRecord) error {
	if record == nil {
		return fmt.Errorf("request record required")
	}
	route := strings.TrimSpace(record.Route)
	if route == "" {
		return repository.ErrInvalidArgument
	}
	record.Route = route
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO request_log (route, caller_id, duration_ms, status_code, recorded_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		record.Route,
		record.CallerID,
		record.DurationMS,
		record.StatusCode,
		record.Timestamp.UTC(),
	).Scan(&record.ID)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// ListRequestRecords returns recent records, newest first. An empty route
// matches every route.
func (r *Repository) ListRequestRecords(ctx context.Context, route string, limit, offset int) ([]domain.RequestRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, route, caller_id, duration_ms, status_code, recorded_at
		FROM request_log
		WHERE ($1 = '' OR route = $1)
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, strings.TrimSpace(route), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.RequestRecord, 0)
	for rows.Next() {
		var rec domain.RequestRecord
		if err := rows.Scan(&rec.ID, &rec.Route, &rec.CallerID, &rec.DurationMS, &rec.StatusCode, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateEndpointStat runs apply against the current row for route under a row
// lock and persists the returned row in the same transaction. The row is
// seeded first so a route's very first request still has a row to lock;
// concurrent first requests serialize on the unique index instead of both
// initializing the counters. The lock is per route, so distinct routes never
// contend.
func (r *Repository) UpdateEndpointStat(ctx context.Context, route string, apply func(existing *domain.EndpointStat) domain.EndpointStat) (domain.EndpointStat, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return domain.EndpointStat{}, repository.ErrInvalidArgument
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.EndpointStat{}, mapPgError(err)
	}
	defer tx.Rollback(ctx)

	const seedQuery = `INSERT INTO api_stats (route, last_updated)
		VALUES ($1, NOW()) ON CONFLICT (route) DO NOTHING`
	seedTag, err := tx.Exec(ctx, seedQuery, route)
	if err != nil {
		return domain.EndpointStat{}, mapPgError(err)
	}
	seeded := seedTag.RowsAffected() > 0

	const selectQuery = `SELECT route, daily_requests, weekly_requests, monthly_requests,
			average_response_time_ms, success_rate_pct, popularity, last_updated
		FROM api_stats WHERE route = $1 FOR UPDATE`
	var existing *domain.EndpointStat
	var current domain.EndpointStat
	err = tx.QueryRow(ctx, selectQuery, route).Scan(
		&current.Route,
		&current.DailyRequests,
		&current.WeeklyRequests,
		&current.MonthlyRequests,
		&current.AverageResponseMS,
		&current.SuccessRatePct,
		&current.Popularity,
		&current.LastUpdated,
	)
	switch {
	case err == nil:
		// A seed insert from this transaction is not a real stat row yet;
		// apply sees nil so first-request initialization stays in one place.
		if !seeded {
			existing = &current
		}
	case errors.Is(err, pgx.ErrNoRows):
		existing = nil
	default:
		return domain.EndpointStat{}, mapPgError(err)
	}

	next := apply(existing)
	next.Route = route

	const upsertQuery = `INSERT INTO api_stats (route, daily_requests, weekly_requests, monthly_requests,
			average_response_time_ms, success_rate_pct, popularity, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (route) DO UPDATE SET
			daily_requests = EXCLUDED.daily_requests,
			weekly_requests = EXCLUDED.weekly_requests,
			monthly_requests = EXCLUDED.monthly_requests,
			average_response_time_ms = EXCLUDED.average_response_time_ms,
			success_rate_pct = EXCLUDED.success_rate_pct,
			popularity = EXCLUDED.popularity,
			last_updated = EXCLUDED.last_updated`
	if _, err := tx.Exec(ctx, upsertQuery,
		next.Route,
		next.DailyRequests,
		next.WeeklyRequests,
		next.MonthlyRequests,
		next.AverageResponseMS,
		next.SuccessRatePct,
		next.Popularity,
		next.LastUpdated.UTC(),
	); err != nil {
		return domain.EndpointStat{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.EndpointStat{}, mapPgError(err)
	}
	return next, nil
}

// GetEndpointStat fetches the stat row for one route.
func (r *Repository) GetEndpointStat(ctx context.Context, route string) (*domain.EndpointStat, error) {
	const query = `SELECT route, daily_requests, weekly_requests, monthly_requests,
			average_response_time_ms, success_rate_pct, popularity, last_updated
		FROM api_stats WHERE route = $1`
	row := r.pool.QueryRow(ctx, query, strings.TrimSpace(route))
	var stat domain.EndpointStat
	if err := row.Scan(
		&stat.Route,
		&stat.DailyRequests,
		&stat.WeeklyRequests,
		&stat.MonthlyRequests,
		&stat.AverageResponseMS,
		&stat.SuccessRatePct,
		&stat.Popularity,
		&stat.LastUpdated,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &stat, nil
}

// RecordSummaryEvent advances the singleton summary for one request. The
// caller set insert and both counter updates commit together, so a failure
// leaves the summary untouched rather than partially advanced.
func (r *Repository) RecordSummaryEvent(ctx context.Context, callerID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)

	newCaller := false
	if callerID = strings.TrimSpace(callerID); callerID != "" {
		const callerInsert = `INSERT INTO summary_callers (caller_id, first_seen)
			VALUES ($1, NOW()) ON CONFLICT (caller_id) DO NOTHING`
		tag, err := tx.Exec(ctx, callerInsert, callerID)
		if err != nil {
			return mapPgError(err)
		}
		newCaller = tag.RowsAffected() > 0
	}

	uniqueDelta := 0
	if newCaller {
		uniqueDelta = 1
	}
	const summaryUpdate = `UPDATE statistics_summary
		SET total_requests = total_requests + 1,
			unique_callers = unique_callers + $1,
			updated_at = NOW()
		WHERE id = 1`
	tag, err := tx.Exec(ctx, summaryUpdate, uniqueDelta)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		const summaryInsert = `INSERT INTO statistics_summary (id, total_requests, unique_callers, updated_at)
			VALUES (1, 1, $1, NOW()) ON CONFLICT (id) DO UPDATE SET
				total_requests = statistics_summary.total_requests + 1,
				unique_callers = statistics_summary.unique_callers + $1,
				updated_at = NOW()`
		if _, err := tx.Exec(ctx, summaryInsert, uniqueDelta); err != nil {
			return mapPgError(err)
		}
	}
	return mapPgError(tx.Commit(ctx))
}

// GetGlobalSummary reads the singleton summary row.
func (r *Repository) GetGlobalSummary(ctx context.Context) (*domain.GlobalSummary, error) {
	const query = `SELECT total_requests, unique_callers, updated_at FROM statistics_summary WHERE id = 1`
	row := r.pool.QueryRow(ctx, query)
	var summary domain.GlobalSummary
	if err := row.Scan(&summary.TotalRequests, &summary.UniqueCallers, &summary.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &summary, nil
}

// ListEndpointStats returns stat rows ordered by route. With visibleOnly the
// result is restricted to routes the registry flags as visible; routes with
// no stat row are absent rather than zero-filled.
func (r *Repository) ListEndpointStats(ctx context.Context, visibleOnly bool) ([]domain.EndpointStat, error) {
	const allQuery = `SELECT route, daily_requests, weekly_requests, monthly_requests,
			average_response_time_ms, success_rate_pct, popularity, last_updated
		FROM api_stats ORDER BY route`
	const visibleQuery = `SELECT s.route, s.daily_requests, s.weekly_requests, s.monthly_requests,
			s.average_response_time_ms, s.success_rate_pct, s.popularity, s.last_updated
		FROM api_stats s
		INNER JOIN api_endpoints e ON e.route = s.route
		WHERE e.is_visible_in_stats
		ORDER BY s.route`
	query := allQuery
	if visibleOnly {
		query = visibleQuery
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]domain.EndpointStat, 0)
	for rows.Next() {
		var stat domain.EndpointStat
		if err := rows.Scan(
			&stat.Route,
			&stat.DailyRequests,
			&stat.WeeklyRequests,
			&stat.MonthlyRequests,
			&stat.AverageResponseMS,
			&stat.SuccessRatePct,
			&stat.Popularity,
			&stat.LastUpdated,
		); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// UpsertEndpoint writes a registry row keyed by route.
func (r *Repository) UpsertEndpoint(ctx context.Context, endpoint *domain.Endpoint) error {
	if endpoint == nil {
		return fmt.Errorf("endpoint required")
	}
	const query = `INSERT INTO api_endpoints (id, name, method, route, response_type, part_description,
			description, params, sample_request, sample_response, enabled, is_visible_in_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (route) DO UPDATE SET
			name = EXCLUDED.name,
			method = EXCLUDED.method,
			response_type = EXCLUDED.response_type,
			part_description = EXCLUDED.part_description,
			description = EXCLUDED.description,
			params = EXCLUDED.params,
			sample_request = EXCLUDED.sample_request,
			sample_response = EXCLUDED.sample_response,
			enabled = EXCLUDED.enabled,
			is_visible_in_stats = EXCLUDED.is_visible_in_stats`
	_, err := r.pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.Name,
		endpoint.Method,
		endpoint.Route,
		endpoint.ResponseType,
		endpoint.PartDescription,
		endpoint.Description,
		bytesToNil(endpoint.Params),
		bytesToNil(endpoint.SampleRequest),
		bytesToNil(endpoint.SampleResponse),
		endpoint.Enabled,
		endpoint.VisibleInStats,
	)
	return mapPgError(err)
}

// ListEndpoints enumerates registry rows ordered by name.
func (r *Repository) ListEndpoints(ctx context.Context, enabledOnly bool) ([]domain.Endpoint, error) {
	const query = `SELECT id, name, method, route, response_type, part_description,
			description, params, sample_request, sample_response, enabled, is_visible_in_stats
		FROM api_endpoints
		WHERE ($1 = false OR enabled)
		ORDER BY name`
	rows, err := r.pool.Query(ctx, query, enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make([]domain.Endpoint, 0)
	for rows.Next() {
		var (
			e                                      domain.Endpoint
			params, sampleRequest, sampleResponse []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Method,
			&e.Route,
			&e.ResponseType,
			&e.PartDescription,
			&e.Description,
			&params,
			&sampleRequest,
			&sampleResponse,
			&e.Enabled,
			&e.VisibleInStats,
		); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			e.Params = append([]byte(nil), params...)
		}
		if len(sampleRequest) > 0 {
			e.SampleRequest = append([]byte(nil), sampleRequest...)
		}
		if len(sampleResponse) > 0 {
			e.SampleResponse = append([]byte(nil), sampleResponse...)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02", "23505":
			return repository.ErrInvalidArgument
		case "40001", "40P01", "55P03":
			return repository.ErrConflict
		}
	}
	return err
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
