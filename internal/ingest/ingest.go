// Package ingest pulls hot listings from Reddit into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elonfeng/mememarket/internal/store"
	"github.com/elonfeng/mememarket/pkg/source"
	"github.com/google/uuid"
)

// Collection states reported by Status.
const (
	StateActive = "active"
	StateError  = "error"
)

const defaultPerSubreddit = 50

// Report summarizes one collection run.
type Report struct {
	RunID        string            `json:"run_id"`
	Collected    int               `json:"collected"`
	Dropped      int               `json:"dropped"`
	PerSubreddit map[string]int    `json:"per_subreddit"`
	Errors       map[string]string `json:"errors,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     time.Duration     `json:"duration"`
}

// Status describes what has been collected so far.
type Status struct {
	TotalPosts     int            `json:"total_posts"`
	BySubreddit    map[string]int `json:"by_subreddit"`
	LastCollection *time.Time     `json:"last_collection"`
	Running        bool           `json:"running"`
	State          string         `json:"status"`
	Error          string         `json:"error,omitempty"`
}

// Ingester runs collections. A single Ingester never runs two collections
// at once; a concurrent Run returns ErrRunning.
type Ingester struct {
	collector  source.Collector
	store      store.Store
	logger     *slog.Logger
	subreddits []string
	limit      int

	mu      sync.Mutex
	running bool
}

// ErrRunning is returned when a collection is already in progress.
var ErrRunning = errors.New("collection already running")

// New creates an Ingester. Empty subreddits fall back to the defaults.
func New(c source.Collector, s store.Store, logger *slog.Logger, subreddits []string, limit int) *Ingester {
	if len(subreddits) == 0 {
		subreddits = source.DefaultSubreddits()
	}
	if limit <= 0 {
		limit = defaultPerSubreddit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		collector:  c,
		store:      s,
		logger:     logger.With("component", "ingest"),
		subreddits: subreddits,
		limit:      limit,
	}
}

// Subreddits returns the configured collection set.
func (in *Ingester) Subreddits() []string {
	return append([]string(nil), in.subreddits...)
}

// Running reports whether a collection is in progress.
func (in *Ingester) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.running
}

// Run collects the given subreddits, or the configured set when none are
// given. Failures on one subreddit are logged and do not stop the others.
func (in *Ingester) Run(ctx context.Context, subreddits ...string) (*Report, error) {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return nil, ErrRunning
	}
	in.running = true
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.running = false
		in.mu.Unlock()
	}()

	if len(subreddits) == 0 {
		subreddits = in.subreddits
	}

	report := &Report{
		RunID:        uuid.NewString(),
		PerSubreddit: make(map[string]int, len(subreddits)),
		Errors:       make(map[string]string),
		StartedAt:    time.Now().UTC(),
	}
	log := in.logger.With("run_id", report.RunID, "mode", in.collector.Mode())
	log.Info("collection started", "subreddits", len(subreddits))

	var batch []source.Post
	for _, sub := range subreddits {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		posts, err := in.collector.FetchHot(ctx, sub, in.limit)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Warn("fetch failed", "subreddit", sub, "error", err)
			report.Errors[sub] = err.Error()
			continue
		}

		kept := 0
		for i := range posts {
			if err := posts[i].Validate(); err != nil {
				log.Warn("dropping post", "subreddit", sub, "error", err)
				report.Dropped++
				continue
			}
			batch = append(batch, posts[i])
			kept++
		}
		report.PerSubreddit[sub] = kept
		log.Debug("fetched", "subreddit", sub, "posts", kept)
	}

	if len(batch) > 0 {
		if err := in.store.UpsertPosts(ctx, batch); err != nil {
			return report, fmt.Errorf("store posts: %w", err)
		}
	}
	report.Collected = len(batch)
	report.Duration = time.Since(report.StartedAt)

	log.Info("collection finished",
		"collected", report.Collected,
		"dropped", report.Dropped,
		"failed_subreddits", len(report.Errors),
		"duration", report.Duration.Round(time.Millisecond))

	if len(report.Errors) == len(subreddits) && len(subreddits) > 0 {
		return report, fmt.Errorf("all %d subreddits failed", len(subreddits))
	}
	return report, nil
}

// Status reports stored totals. A store failure yields State "error" rather
// than an error return so callers can surface it as-is.
func (in *Ingester) Status(ctx context.Context) Status {
	st := Status{State: StateActive, Running: in.Running()}

	total, err := in.store.CountPosts(ctx)
	if err != nil {
		in.logger.Error("status count failed", "error", err)
		return Status{State: StateError, Error: err.Error(), Running: st.Running}
	}
	st.TotalPosts = total

	bySub, err := in.store.CountPostsBySubreddit(ctx)
	if err != nil {
		in.logger.Error("status breakdown failed", "error", err)
		return Status{State: StateError, Error: err.Error(), Running: st.Running}
	}
	st.BySubreddit = bySub

	last, err := in.store.LastCollectedAt(ctx)
	if err != nil {
		in.logger.Error("status last collection failed", "error", err)
		return Status{State: StateError, Error: err.Error(), Running: st.Running}
	}
	if !last.IsZero() {
		st.LastCollection = &last
	}
	return st
}
