package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/mememarket/internal/cache"
	"github.com/elonfeng/mememarket/internal/config"
	"github.com/elonfeng/mememarket/internal/ingest"
	"github.com/elonfeng/mememarket/internal/logging"
	"github.com/elonfeng/mememarket/internal/scheduler"
	"github.com/elonfeng/mememarket/internal/store"
	"github.com/elonfeng/mememarket/pkg/alert"
	"github.com/elonfeng/mememarket/pkg/analysis"
	"github.com/elonfeng/mememarket/pkg/prediction"
	"github.com/elonfeng/mememarket/pkg/server"
	"github.com/elonfeng/mememarket/pkg/source"
)

type predictVariant int

const (
	predictTop predictVariant = iota
	predictTrending
	predictSubreddit
)

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     store.Store
}

func setup() (*app, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("store opened", "driver", cfg.Database.Driver)

	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

func (a *app) ingester() (*ingest.Ingester, error) {
	c := a.cfg.Collector
	collector, err := source.NewCollector(source.Options{
		Mode:         c.Mode,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Username:     c.Username,
		Password:     c.Password,
		UserAgent:    c.UserAgent,
		RateInterval: c.ParseRateInterval(),
	})
	if err != nil {
		return nil, err
	}
	return ingest.New(collector, a.db, a.logger, c.Subreddits, c.Limit), nil
}

func (a *app) predictions() *prediction.Service {
	return prediction.NewService(a.db, a.logger.With("component", "prediction"))
}

// cache connects to Valkey when configured, otherwise it returns an
// in-process cache.
func (a *app) cache(ctx context.Context) cache.Cache {
	c := a.cfg.Cache
	if c.ValkeyAddress == "" {
		return cache.NewMemory()
	}
	v, err := cache.NewValkey(ctx, cache.ValkeyOptions{
		Address:  c.ValkeyAddress,
		Password: c.ValkeyPassword,
		TLS:      c.ValkeyTLS,
	}, a.logger)
	if err != nil {
		a.logger.Warn("valkey unavailable, using in-process cache", "error", err)
		return cache.NewMemory()
	}
	return v
}

func (a *app) analysis(c cache.Cache) *analysis.Client {
	ac := a.cfg.Analysis
	opts := analysis.Options{
		BaseURL:  ac.BaseURL,
		Model:    ac.Model,
		Timeout:  ac.ParseTimeout(),
		CacheTTL: ac.ParseCacheTTL(),
	}
	if ac.Enabled {
		opts.APIKey = ac.APIKey
	}
	return analysis.New(opts, c, a.logger)
}

func (a *app) alertManager() *alert.Manager {
	cfg := a.cfg.Alerts
	var notifiers []alert.Notifier

	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func (a *app) server(port int, in *ingest.Ingester, c cache.Cache) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(server.Deps{
		Store:       a.db,
		Predictions: a.predictions(),
		Collector:   in,
		Analysis:    a.analysis(c),
		Logger:      a.logger,
	}, server.Options{
		Port:               port,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		LiveInterval:       a.cfg.Server.ParseLiveInterval(),
	})
}

func runCollect(ctx context.Context, subreddits []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	in, err := a.ingester()
	if err != nil {
		return err
	}

	report, err := in.Run(ctx, subreddits...)
	if report != nil {
		w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SUBREDDIT\tPOSTS\tERROR")
		for _, sub := range orDefault(subreddits, in.Subreddits()) {
			fmt.Fprintf(w, "%s\t%d\t%s\n", sub, report.PerSubreddit[sub], report.Errors[sub])
		}
		w.Flush()
		fmt.Fprintf(os.Stderr, "\ntotal: %d posts (%d dropped) in %s\n",
			report.Collected, report.Dropped, report.Duration.Round(time.Millisecond))
	}
	return err
}

func runPredict(ctx context.Context, variant predictVariant, subreddit string, limit, hours int, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	svc := a.predictions()
	var res prediction.Result
	switch variant {
	case predictTop:
		res = svc.Top(ctx, limit)
	case predictTrending:
		res = svc.Trending(ctx, hours)
	case predictSubreddit:
		res = svc.BySubreddit(ctx, subreddit, limit)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"outcome":     res.Outcome.String(),
			"count":       res.Count(),
			"predictions": res.Posts,
		})
	}

	switch res.Outcome {
	case prediction.OutcomeFailed:
		return errors.New("prediction query failed (see log)")
	case prediction.OutcomeEmpty:
		fmt.Println("no qualifying posts (try collecting data first: mememarket collect)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIRALITY\tSCORE\tCOMMENTS\tSUBREDDIT\tAGE\tTITLE")
	now := time.Now()
	for _, p := range res.Posts {
		fmt.Fprintf(w, "%.2f\t%d\t%d\tr/%s\t%s\t%s\n",
			*p.ViralityScore, p.Score, p.NumComments, p.Subreddit,
			p.Age(now).Round(time.Minute), truncate(p.Title, 70))
	}
	return w.Flush()
}

func runExplain(ctx context.Context, redditID string, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.db.GetPost(ctx, redditID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("post %s has not been collected", redditID)
	}
	if err != nil {
		return err
	}

	b, err := prediction.Explain(*p, time.Now())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"post": p, "breakdown": b})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "post\t%s (r/%s)\n", truncate(p.Title, 70), p.Subreddit)
	fmt.Fprintf(w, "age hours\t%.2f\n", b.AgeHours)
	fmt.Fprintf(w, "score velocity\t%.4f\n", b.ScoreVelocity)
	fmt.Fprintf(w, "comment velocity\t%.4f\n", b.CommentVelocity)
	fmt.Fprintf(w, "upvote ratio\t%.4f\n", p.UpvoteRatio)
	fmt.Fprintf(w, "recency\t%.4f\n", b.RecencyScore)
	fmt.Fprintf(w, "engagement rate\t%.4f\n", b.EngagementRate)
	fmt.Fprintf(w, "weighted\t%.4f\n", b.Weighted)
	fmt.Fprintf(w, "virality\t%.2f\n", b.Score)
	return w.Flush()
}

func runStatus(ctx context.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	in, err := a.ingester()
	if err != nil {
		return err
	}
	st := in.Status(ctx)
	if st.State == ingest.StateError {
		return fmt.Errorf("status: %s", st.Error)
	}

	last := "never"
	if st.LastCollection != nil {
		last = st.LastCollection.Local().Format(time.RFC3339)
	}
	fmt.Printf("posts: %d\nlast collection: %s\nmode: %s\n\n", st.TotalPosts, last, a.cfg.Collector.Mode)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBREDDIT\tPOSTS")
	for _, sub := range in.Subreddits() {
		fmt.Fprintf(w, "r/%s\t%d\n", sub, st.BySubreddit[sub])
	}
	return w.Flush()
}

func runServe(port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	in, err := a.ingester()
	if err != nil {
		return err
	}

	c := a.cache(ctx)
	defer c.Close()

	return serveUntilDone(ctx, a.logger, a.server(port, in, c))
}

func runDaemon(port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := a.cache(ctx)
	defer c.Close()

	in, err := a.ingester()
	if err != nil {
		return err
	}
	alertMgr := a.alertManager()
	if !alertMgr.HasNotifiers() {
		a.logger.Info("no alert destinations configured, trending alerts disabled")
	}

	sched := scheduler.New(in, a.predictions(), alertMgr, c, a.logger,
		a.cfg.Schedule.ParseCollectInterval(),
		a.cfg.Schedule.ParseTrendInterval(),
	)

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("scheduler stopped", "error", err)
		}
	}()

	return serveUntilDone(ctx, a.logger, a.server(port, in, c))
}

func serveUntilDone(ctx context.Context, logger *slog.Logger, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
