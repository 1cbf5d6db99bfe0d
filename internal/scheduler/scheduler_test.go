package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/mememarket/internal/cache"
	"github.com/elonfeng/mememarket/internal/ingest"
	"github.com/elonfeng/mememarket/pkg/alert"
	"github.com/elonfeng/mememarket/pkg/prediction"
	"github.com/elonfeng/mememarket/pkg/source"
)

type countingCollector struct {
	mu   sync.Mutex
	runs int
}

func (c *countingCollector) Run(context.Context, ...string) (*ingest.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	return &ingest.Report{RunID: "r"}, nil
}

func (c *countingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

type fixedPredictor struct{ res prediction.Result }

func (f fixedPredictor) Trending(context.Context, int) prediction.Result { return f.res }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, n *alert.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n.Posts[0].RedditID)
	return nil
}

func scored(id string, v float64) source.Post {
	return source.Post{RedditID: id, Subreddit: "memes", Title: id, ViralityScore: &v}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAlertTrendingDeduplicates(t *testing.T) {
	notifier := &recordingNotifier{}
	pred := fixedPredictor{res: prediction.Result{
		Posts:   []source.Post{scored("a", 80), scored("b", 60)},
		Outcome: prediction.OutcomeRanked,
	}}
	s := New(&countingCollector{}, pred, alert.NewManager([]alert.Notifier{notifier}), cache.NewMemory(), quiet(), time.Hour, time.Hour)

	ctx := context.Background()
	if n := s.alertTrending(ctx); n != 2 {
		t.Fatalf("first pass alerted %d, want 2", n)
	}
	if n := s.alertTrending(ctx); n != 0 {
		t.Errorf("second pass alerted %d, want 0", n)
	}
	if len(notifier.sent) != 2 || notifier.sent[0] != "a" {
		t.Errorf("sent = %v", notifier.sent)
	}
}

func TestAlertTrendingRetriesAfterFailure(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("down")}
	pred := fixedPredictor{res: prediction.Result{
		Posts:   []source.Post{scored("a", 80)},
		Outcome: prediction.OutcomeRanked,
	}}
	s := New(&countingCollector{}, pred, alert.NewManager([]alert.Notifier{notifier}), nil, quiet(), time.Hour, time.Hour)

	ctx := context.Background()
	if n := s.alertTrending(ctx); n != 0 {
		t.Fatalf("alerted %d while notifier fails", n)
	}
	notifier.err = nil
	if n := s.alertTrending(ctx); n != 1 {
		t.Errorf("alerted %d after recovery, want 1", n)
	}
}

func TestAlertTrendingSkipsEmptyAndFailed(t *testing.T) {
	notifier := &recordingNotifier{}
	mgr := alert.NewManager([]alert.Notifier{notifier})
	for _, outcome := range []prediction.Outcome{prediction.OutcomeEmpty, prediction.OutcomeFailed} {
		pred := fixedPredictor{res: prediction.Result{Posts: []source.Post{}, Outcome: outcome}}
		s := New(&countingCollector{}, pred, mgr, nil, quiet(), time.Hour, time.Hour)
		if n := s.alertTrending(context.Background()); n != 0 {
			t.Errorf("%s: alerted %d", outcome, n)
		}
	}
}

func TestRunCollectsImmediatelyAndStops(t *testing.T) {
	c := &countingCollector{}
	s := New(c, fixedPredictor{}, nil, nil, quiet(), time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if c.count() != 1 {
		t.Errorf("collector ran %d times, want 1", c.count())
	}
}
