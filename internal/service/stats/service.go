package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/softtouch/api/internal/domain"
	"github.com/softtouch/api/internal/repository"
)

// Service is the read-only snapshot side of the telemetry core.
type Service struct {
	repo   repository.SnapshotRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs the snapshot reader.
func New(repo repository.SnapshotRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "stats")
	} else {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Snapshot returns the global summary and per-route stat rows. With
// includeHidden false the rows are filtered to routes the endpoint registry
// flags as visible. A missing summary row (no request ever recorded) yields
// zero counters stamped with the current time rather than an error; any
// store failure is returned to the caller, since this is a user-facing read
// with no safe fallback.
func (s *Service) Snapshot(ctx context.Context, includeHidden bool) (*domain.StatsSnapshot, error) {
	summary, err := s.repo.GetGlobalSummary(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		summary = &domain.GlobalSummary{Timestamp: s.now().UTC()}
	}

	apis, err := s.repo.ListEndpointStats(ctx, !includeHidden)
	if err != nil {
		return nil, err
	}
	return &domain.StatsSnapshot{Summary: *summary, APIs: apis}, nil
}
