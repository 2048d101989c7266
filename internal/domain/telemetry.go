package domain

import "time"

// RequestRecord is one completed API request, appended to the request log.
// Records are immutable once written; the telemetry core never updates or
// deletes them.
type RequestRecord struct {
	ID         int64
	Route      string
	CallerID   string
	DurationMS float64
	StatusCode int
	Timestamp  time.Time
}

// Succeeded reports whether the request counts toward the success rate.
func (r RequestRecord) Succeeded() bool {
	return r.StatusCode < 400
}

// EndpointStat holds rolling per-route counters. Daily, weekly and monthly
// windows reset independently, so daily_requests is not guaranteed to stay
// below the other two counters; that is an accepted property of the model,
// not a bug. AverageResponseMS and SuccessRatePct are defined over the
// current daily window only.
type EndpointStat struct {
	Route             string
	DailyRequests     int64
	WeeklyRequests    int64
	MonthlyRequests   int64
	AverageResponseMS float64
	SuccessRatePct    float64
	Popularity        float64
	LastUpdated       time.Time
}

// GlobalSummary is the singleton aggregate over every request ever recorded.
type GlobalSummary struct {
	TotalRequests int64
	UniqueCallers int64
	Timestamp     time.Time
}

// StatsSnapshot couples the global summary with the endpoint rows exposed by
// the statistics read path.
type StatsSnapshot struct {
	Summary GlobalSummary
	APIs    []EndpointStat
}
