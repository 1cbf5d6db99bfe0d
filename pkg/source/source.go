package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultUpvoteRatio is used when the upstream listing carries no ratio.
const DefaultUpvoteRatio = 0.5

// ErrInvalidPost is wrapped by every Validate failure.
var ErrInvalidPost = errors.New("invalid post")

// Post is a collected Reddit submission. ViralityScore is derived at query
// time and is never read from or written to storage.
type Post struct {
	ID            int64     `json:"id" db:"id"`
	RedditID      string    `json:"reddit_id" db:"reddit_id"`
	Subreddit     string    `json:"subreddit" db:"subreddit"`
	Title         string    `json:"title" db:"title"`
	URL           string    `json:"url" db:"url"`
	Author        string    `json:"author" db:"author"`
	Permalink     string    `json:"permalink" db:"permalink"`
	IsVideo       bool      `json:"is_video" db:"is_video"`
	IsSelf        bool      `json:"is_self" db:"is_self"`
	Score         int       `json:"score" db:"score"`
	UpvoteRatio   float64   `json:"upvote_ratio" db:"upvote_ratio"`
	NumComments   int       `json:"num_comments" db:"num_comments"`
	CreatedUTC    time.Time `json:"created_utc" db:"created_utc"`
	CollectedAt   time.Time `json:"collected_at" db:"collected_at"`
	ViralityScore *float64  `json:"virality_score" db:"-"`
}

// Validate reports whether p can be stored.
func (p *Post) Validate() error {
	switch {
	case p.RedditID == "":
		return fmt.Errorf("%w: missing reddit_id", ErrInvalidPost)
	case p.Subreddit == "":
		return fmt.Errorf("%w %s: missing subreddit", ErrInvalidPost, p.RedditID)
	case p.NumComments < 0:
		return fmt.Errorf("%w %s: negative num_comments %d", ErrInvalidPost, p.RedditID, p.NumComments)
	case p.CreatedUTC.IsZero():
		return fmt.Errorf("%w %s: missing created_utc", ErrInvalidPost, p.RedditID)
	case math.IsNaN(p.UpvoteRatio) || math.IsInf(p.UpvoteRatio, 0):
		return fmt.Errorf("%w %s: upvote_ratio is not finite", ErrInvalidPost, p.RedditID)
	}
	return nil
}

// Age returns how long ago the post was created relative to now.
func (p *Post) Age(now time.Time) time.Duration {
	if p.CreatedUTC.IsZero() {
		return 0
	}
	return now.Sub(p.CreatedUTC)
}

// Collector fetches the current hot listing of a subreddit.
type Collector interface {
	Mode() string
	FetchHot(ctx context.Context, subreddit string, limit int) ([]Post, error)
}

// Collector modes.
const (
	ModeAPI    = "api"
	ModePublic = "public"
	ModeFeed   = "feed"
	ModeMock   = "mock"
)

// DefaultSubreddits is the collection set used when none is configured.
func DefaultSubreddits() []string {
	return []string{
		"technology", "memes", "funny", "videos", "gaming",
		"worldnews", "news", "AskReddit", "todayilearned", "science",
	}
}
