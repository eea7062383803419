package session

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// StatsReporter periodically scrapes the session's stats and forwards them
// through the dedup pipeline. A rate limiter caps the scrape frequency even
// if the configured interval is aggressive.
type StatsReporter struct {
	session  *Session
	interval time.Duration
	limiter  *rate.Limiter
}

// NewStatsReporter builds a reporter scraping every interval, hard-capped
// at maxPerSecond scrapes with the given burst allowance.
func NewStatsReporter(s *Session, interval time.Duration, maxPerSecond float64, burst int) *StatsReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxPerSecond <= 0 {
		maxPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &StatsReporter{
		session:  s,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(maxPerSecond), burst),
	}
}

// Run scrapes until the context is cancelled.
func (r *StatsReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.limiter.Allow() {
				continue
			}
			r.session.ScrapeAndSendStats(ctx)
		}
	}
}
