package telemetry

import (
	"math"
	"time"

	"github.com/softtouch/api/internal/domain"
)

const (
	weeklyWindow  = 7 * 24 * time.Hour
	monthlyWindow = 30 * 24 * time.Hour
)

// applyRecord folds one request record into the per-route stat row and
// returns the full replacement row. existing is nil when the route has never
// received a request.
//
// The three windows reset independently. Crossing a UTC calendar date
// restarts the daily counter along with the running average and success
// rate, which are defined over the current daily window only. The weekly
// and monthly counters restart only once more than 7 or 30 days have
// elapsed since the previous update.
//
// The success-rate update reconstructs the prior success count from the
// stored rate and daily counter. That reconstruction is exact only while
// every increment of daily_requests flows through this function; any
// out-of-band write to the row silently skews the rate until the next
// daily reset.
func applyRecord(existing *domain.EndpointStat, record domain.RequestRecord, now time.Time) domain.EndpointStat {
	now = now.UTC()

	if existing == nil {
		return domain.EndpointStat{
			Route:             record.Route,
			DailyRequests:     1,
			WeeklyRequests:    1,
			MonthlyRequests:   1,
			AverageResponseMS: record.DurationMS,
			SuccessRatePct:    successPct(record.Succeeded()),
			Popularity:        0.1,
			LastUpdated:       now,
		}
	}

	last := existing.LastUpdated.UTC()
	resetDaily := !sameUTCDate(now, last)
	resetWeekly := now.Sub(last) > weeklyWindow
	resetMonthly := now.Sub(last) > monthlyWindow

	next := *existing
	if resetDaily {
		next.DailyRequests = 1
		next.AverageResponseMS = record.DurationMS
		next.SuccessRatePct = successPct(record.Succeeded())
	} else {
		before := next.DailyRequests
		next.DailyRequests = before + 1
		next.AverageResponseMS = (next.AverageResponseMS*float64(before) + record.DurationMS) / float64(before+1)
		successes := next.SuccessRatePct / 100 * float64(before)
		if record.Succeeded() {
			successes++
		}
		next.SuccessRatePct = successes / float64(before+1) * 100
	}

	if resetWeekly {
		next.WeeklyRequests = 1
	} else {
		next.WeeklyRequests++
	}
	if resetMonthly {
		next.MonthlyRequests = 1
	} else {
		next.MonthlyRequests++
	}

	next.Popularity = math.Min(100.0, float64(next.MonthlyRequests)/10.0)
	next.LastUpdated = now
	return next
}

func successPct(succeeded bool) float64 {
	if succeeded {
		return 100
	}
	return 0
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
