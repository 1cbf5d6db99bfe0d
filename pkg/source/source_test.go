package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPostValidate(t *testing.T) {
	valid := Post{
		RedditID:    "abc",
		Subreddit:   "memes",
		UpvoteRatio: 0.9,
		CreatedUTC:  time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Post)
	}{
		{"missing id", func(p *Post) { p.RedditID = "" }},
		{"missing subreddit", func(p *Post) { p.Subreddit = "" }},
		{"negative comments", func(p *Post) { p.NumComments = -1 }},
		{"zero created", func(p *Post) { p.CreatedUTC = time.Time{} }},
		{"nan ratio", func(p *Post) { p.UpvoteRatio = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidPost) {
				t.Errorf("Validate() = %v, want ErrInvalidPost", err)
			}
		})
	}
}

func TestPostAllowsNegativeScore(t *testing.T) {
	p := Post{RedditID: "x", Subreddit: "memes", Score: -40, CreatedUTC: time.Now()}
	if err := p.Validate(); err != nil {
		t.Errorf("negative score rejected: %v", err)
	}
}

const listingJSON = `{
  "data": {
    "children": [
      {"data": {"id": "a1", "title": "first", "url": "https://i.redd.it/a1.png",
        "permalink": "/r/memes/comments/a1/first/", "author": "alice",
        "score": 1200, "upvote_ratio": 0.97, "num_comments": 88,
        "created_utc": 1700000000, "is_video": false, "is_self": false}},
      {"data": {"id": "b2", "title": "second", "url": "https://reddit.com/b2",
        "permalink": "/r/memes/comments/b2/second/", "author": "bob",
        "score": 3, "num_comments": 0, "created_utc": 1700000100, "is_self": true}}
    ]
  }
}`

func TestPublicClientFetchHot(t *testing.T) {
	var gotPath, gotAgent, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, listingJSON)
	}))
	defer srv.Close()

	c := NewPublicClient(Options{BaseURL: srv.URL, UserAgent: "test-agent/1.0"})
	posts, err := c.FetchHot(context.Background(), "memes", 25)
	if err != nil {
		t.Fatalf("FetchHot: %v", err)
	}

	if gotPath != "/r/memes/hot.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAgent != "test-agent/1.0" {
		t.Errorf("user agent = %q", gotAgent)
	}
	if gotLimit != "25" {
		t.Errorf("limit = %q", gotLimit)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}

	first := posts[0]
	if first.RedditID != "a1" || first.Score != 1200 || first.NumComments != 88 {
		t.Errorf("unexpected first post: %+v", first)
	}
	if first.UpvoteRatio != 0.97 {
		t.Errorf("ratio = %v, want 0.97", first.UpvoteRatio)
	}
	if !first.CreatedUTC.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("created = %v", first.CreatedUTC)
	}
	if first.Subreddit != "memes" {
		t.Errorf("subreddit = %q", first.Subreddit)
	}
	if posts[1].UpvoteRatio != DefaultUpvoteRatio {
		t.Errorf("missing ratio = %v, want default %v", posts[1].UpvoteRatio, DefaultUpvoteRatio)
	}
	if !posts[1].IsSelf {
		t.Error("second post should be a self post")
	}
}

func TestPublicClientOAuth(t *testing.T) {
	var tokenCalls int
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenCalls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"tok123","token_type":"bearer","expires_in":3600}`)
		case "/r/funny/hot":
			authHeader = r.Header.Get("Authorization")
			fmt.Fprint(w, listingJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewPublicClient(Options{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
	})
	posts, err := c.FetchHot(context.Background(), "funny", 10)
	if err != nil {
		t.Fatalf("FetchHot: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("got %d posts, want 2", len(posts))
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
	if !strings.EqualFold(authHeader, "Bearer tok123") {
		t.Errorf("authorization = %q", authHeader)
	}
}

func TestPublicClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPublicClient(Options{BaseURL: srv.URL})
	if _, err := c.FetchHot(context.Background(), "memes", 5); err == nil {
		t.Fatal("expected error on 429")
	}
}

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>memes</title>
  <entry>
    <author><name>/u/carol</name></author>
    <id>t3_c3</id>
    <link href="https://www.reddit.com/r/memes/comments/c3/third/" />
    <published>2024-01-02T03:04:05+00:00</published>
    <title>third</title>
  </entry>
  <entry>
    <author><name>/u/dave</name></author>
    <id>t3_d4</id>
    <link href="https://www.reddit.com/r/memes/comments/d4/fourth/" />
    <published>2024-01-02T04:00:00+00:00</published>
    <title>fourth</title>
  </entry>
</feed>`

func TestFeedClientFetchHot(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, atomFeed)
	}))
	defer srv.Close()

	c := NewFeedClient(Options{BaseURL: srv.URL})
	posts, err := c.FetchHot(context.Background(), "memes", 1)
	if err != nil {
		t.Fatalf("FetchHot: %v", err)
	}
	if gotPath != "/r/memes/.rss" {
		t.Errorf("path = %q", gotPath)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want limit of 1", len(posts))
	}

	p := posts[0]
	if p.RedditID != "c3" {
		t.Errorf("id = %q, want c3", p.RedditID)
	}
	if p.Author != "carol" {
		t.Errorf("author = %q, want carol", p.Author)
	}
	if p.Permalink != "/r/memes/comments/c3/third/" {
		t.Errorf("permalink = %q", p.Permalink)
	}
	if p.UpvoteRatio != DefaultUpvoteRatio || p.Score != 0 {
		t.Errorf("feed post should carry default metrics: %+v", p)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !p.CreatedUTC.Equal(want) {
		t.Errorf("created = %v, want %v", p.CreatedUTC, want)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("feed post invalid: %v", err)
	}
}

func TestMockClientDeterministic(t *testing.T) {
	c := NewMockClient()
	a, err := c.FetchHot(context.Background(), "gaming", 5)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.FetchHot(context.Background(), "gaming", 5)

	if len(a) != 5 {
		t.Fatalf("got %d posts, want 5", len(a))
	}
	for i := range a {
		if a[i].RedditID != b[i].RedditID || a[i].Score != b[i].Score || a[i].NumComments != b[i].NumComments {
			t.Errorf("post %d differs between calls", i)
		}
		if err := a[i].Validate(); err != nil {
			t.Errorf("mock post invalid: %v", err)
		}
	}
}

func TestNewCollectorModes(t *testing.T) {
	for _, mode := range []string{ModePublic, ModeFeed, ModeMock} {
		c, err := NewCollector(Options{Mode: mode})
		if err != nil {
			t.Fatalf("NewCollector(%q): %v", mode, err)
		}
		if c.Mode() != mode {
			t.Errorf("Mode() = %q, want %q", c.Mode(), mode)
		}
	}

	if _, err := NewCollector(Options{Mode: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}
