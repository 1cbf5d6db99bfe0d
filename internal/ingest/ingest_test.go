package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/elonfeng/mememarket/internal/store"
	"github.com/elonfeng/mememarket/pkg/source"
)

type fakeCollector struct {
	posts map[string][]source.Post
	fail  map[string]error
}

func (f *fakeCollector) Mode() string { return "fake" }

func (f *fakeCollector) FetchHot(_ context.Context, sub string, limit int) ([]source.Post, error) {
	if err := f.fail[sub]; err != nil {
		return nil, err
	}
	posts := f.posts[sub]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func post(id, sub string, score int) source.Post {
	now := time.Now().UTC()
	return source.Post{
		RedditID:    id,
		Subreddit:   sub,
		Title:       id,
		Score:       score,
		UpvoteRatio: 0.9,
		CreatedUTC:  now.Add(-time.Hour),
		CollectedAt: now,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStoresPostsAndSkipsFailures(t *testing.T) {
	invalid := post("", "memes", 1)
	c := &fakeCollector{
		posts: map[string][]source.Post{
			"memes": {post("m1", "memes", 10), post("m2", "memes", 20), invalid},
			"funny": {post("f1", "funny", 5)},
		},
		fail: map[string]error{"news": errors.New("boom")},
	}
	st := store.NewMemory()
	in := New(c, st, quietLogger(), []string{"memes", "news", "funny"}, 10)

	report, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}
	if report.Collected != 3 {
		t.Errorf("collected = %d, want 3", report.Collected)
	}
	if report.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", report.Dropped)
	}
	if report.PerSubreddit["memes"] != 2 || report.PerSubreddit["funny"] != 1 {
		t.Errorf("per subreddit = %v", report.PerSubreddit)
	}
	if _, ok := report.Errors["news"]; !ok {
		t.Errorf("expected news failure in report, got %v", report.Errors)
	}

	n, _ := st.CountPosts(context.Background())
	if n != 3 {
		t.Errorf("stored %d posts, want 3", n)
	}
}

func TestRunExplicitSubreddits(t *testing.T) {
	c := &fakeCollector{posts: map[string][]source.Post{
		"memes":  {post("m1", "memes", 10)},
		"gaming": {post("g1", "gaming", 10)},
	}}
	st := store.NewMemory()
	in := New(c, st, quietLogger(), []string{"memes"}, 10)

	report, err := in.Run(context.Background(), "gaming")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Collected != 1 || report.PerSubreddit["gaming"] != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, err := st.GetPost(context.Background(), "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("memes should not have been collected, got %v", err)
	}
}

func TestRunAllFailed(t *testing.T) {
	c := &fakeCollector{fail: map[string]error{
		"a": errors.New("down"),
		"b": errors.New("down"),
	}}
	in := New(c, store.NewMemory(), quietLogger(), []string{"a", "b"}, 10)
	if _, err := in.Run(context.Background()); err == nil {
		t.Fatal("expected error when every subreddit fails")
	}
}

func TestRunCancelled(t *testing.T) {
	c := &fakeCollector{}
	in := New(c, store.NewMemory(), quietLogger(), nil, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := in.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if in.Running() {
		t.Error("ingester still marked running")
	}
}

func TestNewDefaults(t *testing.T) {
	in := New(&fakeCollector{}, store.NewMemory(), nil, nil, 0)
	if len(in.Subreddits()) != len(source.DefaultSubreddits()) {
		t.Errorf("subreddits = %v", in.Subreddits())
	}
	if in.limit != defaultPerSubreddit {
		t.Errorf("limit = %d, want %d", in.limit, defaultPerSubreddit)
	}
}

func TestStatus(t *testing.T) {
	st := store.NewMemory()
	in := New(&fakeCollector{}, st, quietLogger(), nil, 10)

	empty := in.Status(context.Background())
	if empty.State != StateActive || empty.TotalPosts != 0 || empty.LastCollection != nil {
		t.Errorf("empty status = %+v", empty)
	}

	ctx := context.Background()
	if err := st.UpsertPosts(ctx, []source.Post{post("a", "memes", 1), post("b", "funny", 2)}); err != nil {
		t.Fatal(err)
	}
	got := in.Status(ctx)
	if got.TotalPosts != 2 {
		t.Errorf("total = %d, want 2", got.TotalPosts)
	}
	if got.BySubreddit["memes"] != 1 {
		t.Errorf("by subreddit = %v", got.BySubreddit)
	}
	if got.LastCollection == nil {
		t.Error("missing last collection")
	}
}

type brokenStore struct{ store.Store }

func (brokenStore) CountPosts(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

func TestStatusStoreError(t *testing.T) {
	in := New(&fakeCollector{}, brokenStore{store.NewMemory()}, quietLogger(), nil, 10)
	got := in.Status(context.Background())
	if got.State != StateError || got.Error == "" {
		t.Errorf("status = %+v, want error state", got)
	}
}
