package prediction

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/mememarket/internal/store"
	"github.com/elonfeng/mememarket/pkg/source"
)

// Query parameters of the three prediction variants. Candidates are
// pre-selected by raw score, so each variant over-fetches before ranking.
const (
	DefaultLimit         = 10
	DefaultTrendingHours = 24

	topWindow         = 6 * time.Hour
	topFetchFactor    = 3
	subredditWindow   = 12 * time.Hour
	subredditFactor   = 2
	trendingFetchCap  = 50
	trendingLimit     = 20
	TrendingThreshold = 50.0
)

// Outcome tells how a prediction query ended.
type Outcome int

const (
	// OutcomeRanked means at least one post qualified.
	OutcomeRanked Outcome = iota
	// OutcomeEmpty means the query ran but nothing qualified.
	OutcomeEmpty
	// OutcomeFailed means the store could not be queried. The cause has
	// already been logged.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRanked:
		return "ranked"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the ranked answer to a prediction query.
type Result struct {
	Posts   []source.Post
	Outcome Outcome
}

// Count returns the number of ranked posts.
func (r Result) Count() int { return len(r.Posts) }

// Service answers prediction queries from a shared store.
type Service struct {
	store  store.Store
	scorer *Scorer
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of the scoring instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a prediction service. It is safe for concurrent use.
func NewService(s store.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:  s,
		scorer: NewScorer(logger),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Top ranks posts created in the last 6 hours.
func (s *Service) Top(ctx context.Context, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.run(ctx, "top", store.ListOpts{Limit: limit * topFetchFactor}, topWindow, limit, nil)
}

// Trending returns up to 20 posts from the last hours whose virality score
// is strictly above 50.
func (s *Service) Trending(ctx context.Context, hours int) Result {
	if hours <= 0 {
		hours = DefaultTrendingHours
	}
	threshold := TrendingThreshold
	window := time.Duration(hours) * time.Hour
	return s.run(ctx, "trending", store.ListOpts{Limit: trendingFetchCap}, window, trendingLimit, &threshold)
}

// BySubreddit ranks posts of one subreddit created in the last 12 hours.
func (s *Service) BySubreddit(ctx context.Context, subreddit string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := store.ListOpts{Subreddit: subreddit, Limit: limit * subredditFactor}
	return s.run(ctx, "subreddit", opts, subredditWindow, limit, nil)
}

func (s *Service) run(ctx context.Context, variant string, opts store.ListOpts, window time.Duration, limit int, minScore *float64) Result {
	now := s.now().UTC()
	opts.Since = now.Add(-window)

	candidates, err := s.store.ListPosts(ctx, opts)
	if err != nil {
		s.logger.Error("prediction query failed",
			"variant", variant,
			"subreddit", opts.Subreddit,
			"window", window,
			"fetch_limit", opts.Limit,
			"error", err,
		)
		return Result{Posts: []source.Post{}, Outcome: OutcomeFailed}
	}

	ranked := s.scorer.Rank(candidates, now, limit, minScore)
	if len(ranked) == 0 {
		s.logger.Debug("prediction query returned nothing",
			"variant", variant,
			"subreddit", opts.Subreddit,
			"candidates", len(candidates),
		)
		return Result{Posts: []source.Post{}, Outcome: OutcomeEmpty}
	}
	return Result{Posts: ranked, Outcome: OutcomeRanked}
}
