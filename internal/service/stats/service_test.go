package stats

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/softtouch/api/internal/domain"
	"github.com/softtouch/api/internal/repository"
)

type stubSnapshotRepo struct {
	mu              sync.Mutex
	summary         *domain.GlobalSummary
	summaryErr      error
	stats           []domain.EndpointStat
	statsErr        error
	lastVisibleOnly *bool
}

func (s *stubSnapshotRepo) GetGlobalSummary(context.Context) (*domain.GlobalSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	summary := *s.summary
	return &summary, nil
}

func (s *stubSnapshotRepo) ListEndpointStats(_ context.Context, visibleOnly bool) ([]domain.EndpointStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVisibleOnly = &visibleOnly
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	out := make([]domain.EndpointStat, len(s.stats))
	copy(out, s.stats)
	return out, nil
}

func TestSnapshotReturnsSummaryAndRows(t *testing.T) {
	ts := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	repo := &stubSnapshotRepo{
		summary: &domain.GlobalSummary{TotalRequests: 42, UniqueCallers: 7, Timestamp: ts},
		stats: []domain.EndpointStat{
			{Route: "/api/text/analyze", DailyRequests: 3, WeeklyRequests: 10, MonthlyRequests: 40},
		},
	}
	svc := New(repo, nil)

	snapshot, err := svc.Snapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Summary.TotalRequests != 42 || snapshot.Summary.UniqueCallers != 7 {
		t.Fatalf("unexpected summary %+v", snapshot.Summary)
	}
	if len(snapshot.APIs) != 1 || snapshot.APIs[0].Route != "/api/text/analyze" {
		t.Fatalf("unexpected rows %+v", snapshot.APIs)
	}
	if repo.lastVisibleOnly == nil || !*repo.lastVisibleOnly {
		t.Fatal("expected visible-only listing for the public snapshot")
	}
}

func TestSnapshotIncludeHiddenListsEverything(t *testing.T) {
	repo := &stubSnapshotRepo{summary: &domain.GlobalSummary{}}
	svc := New(repo, nil)

	if _, err := svc.Snapshot(context.Background(), true); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if repo.lastVisibleOnly == nil || *repo.lastVisibleOnly {
		t.Fatal("expected unfiltered listing when hidden rows are included")
	}
}

func TestSnapshotMissingSummaryYieldsZeroCounters(t *testing.T) {
	repo := &stubSnapshotRepo{summaryErr: repository.ErrNotFound}
	svc := New(repo, nil)
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	snapshot, err := svc.Snapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Summary.TotalRequests != 0 || snapshot.Summary.UniqueCallers != 0 {
		t.Fatalf("expected zero counters, got %+v", snapshot.Summary)
	}
	if !snapshot.Summary.Timestamp.Equal(base) {
		t.Fatalf("expected timestamp %v, got %v", base, snapshot.Summary.Timestamp)
	}
}

func TestSnapshotSummaryStoreFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	repo := &stubSnapshotRepo{summaryErr: storeErr}
	svc := New(repo, nil)

	if _, err := svc.Snapshot(context.Background(), false); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

// contendedStore mutates one stat row under its own lock while serving
// snapshot reads, the way the Postgres store isolates row updates from
// single-statement reads.
type contendedStore struct {
	mu  sync.Mutex
	row domain.EndpointStat
}

func (s *contendedStore) GetGlobalSummary(context.Context) (*domain.GlobalSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.GlobalSummary{
		TotalRequests: s.row.MonthlyRequests,
		UniqueCallers: 1,
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (s *contendedStore) ListEndpointStats(context.Context, bool) ([]domain.EndpointStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []domain.EndpointStat{s.row}, nil
}

// update folds one 10ms success into the row, recomputing every derived
// field in the same critical section the way one aggregator cycle does.
func (s *contendedStore) update() {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.row.DailyRequests
	s.row.DailyRequests = before + 1
	s.row.WeeklyRequests++
	s.row.MonthlyRequests++
	s.row.AverageResponseMS = (s.row.AverageResponseMS*float64(before) + 10) / float64(before+1)
	s.row.SuccessRatePct = 100
	s.row.Popularity = math.Min(100, float64(s.row.MonthlyRequests)/10)
	s.row.LastUpdated = time.Now().UTC()
}

func TestSnapshotNeverReturnsTornRows(t *testing.T) {
	const (
		writers          = 8
		updatesPerWriter = 500
		reads            = 400
	)

	store := &contendedStore{row: domain.EndpointStat{Route: "/api/text/analyze"}}
	svc := New(store, nil)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < updatesPerWriter; i++ {
				store.update()
			}
		}()
	}

	for i := 0; i < reads; i++ {
		snapshot, err := svc.Snapshot(context.Background(), false)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(snapshot.APIs) != 1 {
			t.Fatalf("expected 1 row, got %d", len(snapshot.APIs))
		}
		row := snapshot.APIs[0]
		// Every field must belong to the same update cycle: all counters
		// advance together, the average is pinned at 10 and the popularity
		// is a pure function of the monthly counter.
		if row.DailyRequests != row.WeeklyRequests || row.DailyRequests != row.MonthlyRequests {
			t.Fatalf("torn counters: %d/%d/%d", row.DailyRequests, row.WeeklyRequests, row.MonthlyRequests)
		}
		wantPopularity := math.Min(100, float64(row.MonthlyRequests)/10)
		if math.Abs(row.Popularity-wantPopularity) > 1e-9 {
			t.Fatalf("popularity %f does not match monthly counter %d", row.Popularity, row.MonthlyRequests)
		}
		if row.DailyRequests > 0 && math.Abs(row.AverageResponseMS-10) > 1e-9 {
			t.Fatalf("torn average %f at daily count %d", row.AverageResponseMS, row.DailyRequests)
		}
	}
	wg.Wait()

	final, err := svc.Snapshot(context.Background(), false)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := final.APIs[0].DailyRequests; got != writers*updatesPerWriter {
		t.Fatalf("expected %d total updates, got %d", writers*updatesPerWriter, got)
	}
}

func TestSnapshotListFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	repo := &stubSnapshotRepo{
		summary:  &domain.GlobalSummary{},
		statsErr: storeErr,
	}
	svc := New(repo, nil)

	if _, err := svc.Snapshot(context.Background(), false); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
