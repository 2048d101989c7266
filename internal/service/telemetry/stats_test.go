package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/softtouch/api/internal/domain"
)

const floatTolerance = 1e-9

func record(route string, durationMS float64, status int, at time.Time) domain.RequestRecord {
	return domain.RequestRecord{
		Route:      route,
		CallerID:   "10.0.0.1",
		DurationMS: durationMS,
		StatusCode: status,
		Timestamp:  at,
	}
}

func assertFloat(t *testing.T, got, want float64, field string) {
	t.Helper()
	if math.Abs(got-want) > floatTolerance {
		t.Fatalf("expected %s %.6f, got %.6f", field, want, got)
	}
}

func TestApplyRecordFirstRequestInitializesRow(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	stat := applyRecord(nil, record("/api/text/analyze", 120, 200, now), now)

	if stat.Route != "/api/text/analyze" {
		t.Fatalf("unexpected route %q", stat.Route)
	}
	if stat.DailyRequests != 1 || stat.WeeklyRequests != 1 || stat.MonthlyRequests != 1 {
		t.Fatalf("expected all counters 1, got %d/%d/%d", stat.DailyRequests, stat.WeeklyRequests, stat.MonthlyRequests)
	}
	assertFloat(t, stat.AverageResponseMS, 120, "average")
	assertFloat(t, stat.SuccessRatePct, 100, "success rate")
	assertFloat(t, stat.Popularity, 0.1, "popularity")
	if !stat.LastUpdated.Equal(now) {
		t.Fatalf("expected last updated %v, got %v", now, stat.LastUpdated)
	}
}

func TestApplyRecordFirstRequestFailureHasZeroSuccessRate(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	stat := applyRecord(nil, record("/api/text/analyze", 80, 500, now), now)
	assertFloat(t, stat.SuccessRatePct, 0, "success rate")
}

func TestApplyRecordSameDaySequence(t *testing.T) {
	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	durations := []float64{100, 200, 300}

	var stat *domain.EndpointStat
	for i, d := range durations {
		at := base.Add(time.Duration(i) * time.Minute)
		next := applyRecord(stat, record("/api/text/analyze", d, 200, at), at)
		stat = &next
	}

	if stat.DailyRequests != 3 || stat.WeeklyRequests != 3 || stat.MonthlyRequests != 3 {
		t.Fatalf("expected all counters 3, got %d/%d/%d", stat.DailyRequests, stat.WeeklyRequests, stat.MonthlyRequests)
	}
	assertFloat(t, stat.AverageResponseMS, 200, "average")
	assertFloat(t, stat.SuccessRatePct, 100, "success rate")
	assertFloat(t, stat.Popularity, 0.3, "popularity")
}

func TestApplyRecordNextDayResetsDailyWindowOnly(t *testing.T) {
	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	var stat *domain.EndpointStat
	for i, d := range []float64{100, 200, 300} {
		at := base.Add(time.Duration(i) * time.Minute)
		next := applyRecord(stat, record("/api/text/analyze", d, 200, at), at)
		stat = &next
	}

	nextDay := base.Add(24 * time.Hour)
	updated := applyRecord(stat, record("/api/text/analyze", 50, 500, nextDay), nextDay)

	if updated.DailyRequests != 1 {
		t.Fatalf("expected daily reset to 1, got %d", updated.DailyRequests)
	}
	if updated.WeeklyRequests != 4 || updated.MonthlyRequests != 4 {
		t.Fatalf("expected weekly/monthly 4/4, got %d/%d", updated.WeeklyRequests, updated.MonthlyRequests)
	}
	assertFloat(t, updated.AverageResponseMS, 50, "average")
	assertFloat(t, updated.SuccessRatePct, 0, "success rate")
	assertFloat(t, updated.Popularity, 0.4, "popularity")
}

func TestApplyRecordDailyResetsOnCalendarDateNotElapsedTime(t *testing.T) {
	justBeforeMidnight := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)
	stat := applyRecord(nil, record("/api/text/reverse", 10, 200, justBeforeMidnight), justBeforeMidnight)

	twoMinutesLater := justBeforeMidnight.Add(2 * time.Minute)
	updated := applyRecord(&stat, record("/api/text/reverse", 30, 200, twoMinutesLater), twoMinutesLater)

	if updated.DailyRequests != 1 {
		t.Fatalf("expected daily reset across midnight, got %d", updated.DailyRequests)
	}
	if updated.WeeklyRequests != 2 || updated.MonthlyRequests != 2 {
		t.Fatalf("expected weekly/monthly 2/2, got %d/%d", updated.WeeklyRequests, updated.MonthlyRequests)
	}
	assertFloat(t, updated.AverageResponseMS, 30, "average")
}

func TestApplyRecordWeeklyResetLeavesMonthlyCounting(t *testing.T) {
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	stat := applyRecord(nil, record("/api/tools/uuid", 5, 200, base), base)

	eightDaysLater := base.Add(8 * 24 * time.Hour)
	updated := applyRecord(&stat, record("/api/tools/uuid", 5, 200, eightDaysLater), eightDaysLater)

	if updated.WeeklyRequests != 1 {
		t.Fatalf("expected weekly reset to 1, got %d", updated.WeeklyRequests)
	}
	if updated.MonthlyRequests != 2 {
		t.Fatalf("expected monthly 2, got %d", updated.MonthlyRequests)
	}
	if updated.DailyRequests != 1 {
		t.Fatalf("expected daily reset to 1, got %d", updated.DailyRequests)
	}
}

func TestApplyRecordMonthlyResetDropsPopularity(t *testing.T) {
	base := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	stat := domain.EndpointStat{
		Route:             "/api/text/analyze",
		DailyRequests:     40,
		WeeklyRequests:    200,
		MonthlyRequests:   900,
		AverageResponseMS: 75,
		SuccessRatePct:    95,
		Popularity:        90,
		LastUpdated:       base,
	}

	thirtyOneDaysLater := base.Add(31 * 24 * time.Hour)
	updated := applyRecord(&stat, record("/api/text/analyze", 20, 200, thirtyOneDaysLater), thirtyOneDaysLater)

	if updated.MonthlyRequests != 1 || updated.WeeklyRequests != 1 || updated.DailyRequests != 1 {
		t.Fatalf("expected all windows reset, got %d/%d/%d", updated.DailyRequests, updated.WeeklyRequests, updated.MonthlyRequests)
	}
	assertFloat(t, updated.Popularity, 0.1, "popularity")
}

func TestApplyRecordPopularityCapsAtHundred(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	stat := domain.EndpointStat{
		Route:             "/api/text/analyze",
		DailyRequests:     10,
		WeeklyRequests:    500,
		MonthlyRequests:   1200,
		AverageResponseMS: 50,
		SuccessRatePct:    100,
		Popularity:        100,
		LastUpdated:       now.Add(-time.Hour),
	}

	updated := applyRecord(&stat, record("/api/text/analyze", 50, 200, now), now)
	if updated.MonthlyRequests != 1201 {
		t.Fatalf("expected monthly 1201, got %d", updated.MonthlyRequests)
	}
	assertFloat(t, updated.Popularity, 100, "popularity")
}

func TestApplyRecordSuccessRateMixedOutcomes(t *testing.T) {
	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	statuses := []int{200, 200, 503, 200}

	var stat *domain.EndpointStat
	for i, status := range statuses {
		at := base.Add(time.Duration(i) * time.Second)
		next := applyRecord(stat, record("/api/text/analyze", 100, status, at), at)
		stat = &next
	}

	assertFloat(t, stat.SuccessRatePct, 75, "success rate")
	if stat.DailyRequests != 4 {
		t.Fatalf("expected daily 4, got %d", stat.DailyRequests)
	}
}

func TestApplyRecordStatusBoundary(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	ok := applyRecord(nil, record("/api/text/analyze", 10, 399, now), now)
	assertFloat(t, ok.SuccessRatePct, 100, "success rate at 399")

	failed := applyRecord(nil, record("/api/text/analyze", 10, 400, now), now)
	assertFloat(t, failed.SuccessRatePct, 0, "success rate at 400")
}
