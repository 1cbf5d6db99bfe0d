// Package server exposes predictions, collection and analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elonfeng/mememarket/internal/ingest"
	"github.com/elonfeng/mememarket/internal/store"
	"github.com/elonfeng/mememarket/pkg/analysis"
	"github.com/elonfeng/mememarket/pkg/prediction"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Collector runs and reports on collections.
type Collector interface {
	Run(ctx context.Context, subreddits ...string) (*ingest.Report, error)
	Status(ctx context.Context) ingest.Status
}

// Analyzer answers AI analysis requests.
type Analyzer interface {
	AnalyzeVirality(ctx context.Context, in analysis.MemeInput) (*analysis.Prediction, error)
	TrendingTopics(ctx context.Context) (*analysis.TrendingTopics, error)
}

// Deps are the services behind the API. Analysis may be nil.
type Deps struct {
	Store       store.Store
	Predictions *prediction.Service
	Collector   Collector
	Analysis    Analyzer
	Logger      *slog.Logger
}

// Options configures the HTTP layer. A zero RateLimitPerMinute selects 60
// requests per client IP; a negative one disables limiting.
type Options struct {
	Port               int
	RateLimitPerMinute int
	CORSOrigins        []string
	LiveInterval       time.Duration
}

// Server provides the HTTP API.
type Server struct {
	deps       Deps
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server

	// bgCtx outlives requests and is cancelled on Shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a new HTTP server.
func New(deps Deps, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 60
	}
	if opts.LiveInterval <= 0 {
		opts.LiveInterval = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With("component", "server"),
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/health", s.handleAPIHealth)
	api.HandleFunc("GET /api/v1/predictions/top", s.handleTop)
	api.HandleFunc("GET /api/v1/predictions/trending", s.handleTrending)
	api.HandleFunc("GET /api/v1/predictions/subreddit/{subreddit}", s.handleSubreddit)
	api.HandleFunc("GET /api/v1/predictions/live", s.handleLive)
	api.HandleFunc("POST /api/v1/reddit/collect", s.handleCollect)
	api.HandleFunc("GET /api/v1/reddit/status", s.handleStatus)
	api.HandleFunc("POST /api/v1/perplexity/analyze-meme", s.handleAnalyzeMeme)
	api.HandleFunc("GET /api/v1/perplexity/trending-now", s.handleTrendingNow)

	limiter := newIPLimiter(s.opts.RateLimitPerMinute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.Handle("/api/v1/", withRateLimit(limiter, api))

	return withLogging(s.logger, withCORS(s.opts.CORSOrigins, mux))
}

// ListenAndServe starts the HTTP server. It blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for background collections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}
