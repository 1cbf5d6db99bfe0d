// Package scheduler runs periodic collection and trending alerts.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/elonfeng/mememarket/internal/cache"
	"github.com/elonfeng/mememarket/internal/ingest"
	"github.com/elonfeng/mememarket/pkg/alert"
	"github.com/elonfeng/mememarket/pkg/prediction"
)

const alertedTTL = 24 * time.Hour

// Collector runs one collection pass.
type Collector interface {
	Run(ctx context.Context, subreddits ...string) (*ingest.Report, error)
}

// Predictor answers trending queries.
type Predictor interface {
	Trending(ctx context.Context, hours int) prediction.Result
}

// Scheduler runs periodic collection and trending detection.
type Scheduler struct {
	collector  Collector
	predictor  Predictor
	alertMgr   *alert.Manager
	seen       cache.Cache
	logger     *slog.Logger
	collectInt time.Duration
	trendInt   time.Duration
}

// New creates a new scheduler.
func New(
	c Collector,
	p Predictor,
	alertMgr *alert.Manager,
	seen cache.Cache,
	logger *slog.Logger,
	collectInt, trendInt time.Duration,
) *Scheduler {
	if collectInt == 0 {
		collectInt = 15 * time.Minute
	}
	if trendInt == 0 {
		trendInt = 30 * time.Minute
	}
	if seen == nil {
		seen = cache.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if alertMgr == nil {
		alertMgr = alert.NewManager(nil)
	}
	return &Scheduler{
		collector:  c,
		predictor:  p,
		alertMgr:   alertMgr,
		seen:       seen,
		logger:     logger.With("component", "scheduler"),
		collectInt: collectInt,
		trendInt:   trendInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.collectInt)
	trendTicker := time.NewTicker(s.trendInt)
	defer collectTicker.Stop()
	defer trendTicker.Stop()

	s.collect(ctx)
	s.alertTrending(ctx)

	s.logger.Info("running", "collect_every", s.collectInt, "trends_every", s.trendInt)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopped")
			return ctx.Err()
		case <-collectTicker.C:
			s.collect(ctx)
		case <-trendTicker.C:
			s.alertTrending(ctx)
		}
	}
}

func (s *Scheduler) collect(ctx context.Context) {
	report, err := s.collector.Run(ctx)
	switch {
	case errors.Is(err, ingest.ErrRunning):
		s.logger.Info("collection skipped, previous run still active")
	case err != nil:
		s.logger.Error("collection failed", "error", err)
	default:
		s.logger.Info("collected", "run_id", report.RunID, "posts", report.Collected)
	}
}

// alertTrending notifies about trending posts not alerted in the last day.
// It returns the number of posts alerted.
func (s *Scheduler) alertTrending(ctx context.Context) int {
	if !s.alertMgr.HasNotifiers() {
		return 0
	}

	res := s.predictor.Trending(ctx, prediction.DefaultTrendingHours)
	if res.Outcome != prediction.OutcomeRanked {
		s.logger.Debug("no trending posts", "outcome", res.Outcome)
		return 0
	}

	alerted := 0
	for _, p := range res.Posts {
		key := "alerted:" + p.RedditID
		_, seen, err := s.seen.Get(ctx, key)
		if err != nil {
			s.logger.Warn("alert dedup lookup failed", "reddit_id", p.RedditID, "error", err)
			continue
		}
		if seen {
			continue
		}

		if err := s.alertMgr.Broadcast(ctx, alert.NewPostNotification(p)); err != nil {
			s.logger.Error("alert failed", "reddit_id", p.RedditID, "error", err)
			continue
		}
		if err := s.seen.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), alertedTTL); err != nil {
			s.logger.Warn("alert dedup store failed", "reddit_id", p.RedditID, "error", err)
		}

		alerted++
		s.logger.Info("alerted", "reddit_id", p.RedditID, "subreddit", p.Subreddit, "virality", *p.ViralityScore)
	}
	return alerted
}
