package source

import (
	"context"
	"fmt"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/time/rate"
)

// APIClient collects through Reddit's authenticated API.
type APIClient struct {
	client  *reddit.Client
	limiter *rate.Limiter
}

// NewAPIClient creates an authenticated API collector.
func NewAPIClient(opts Options) (*APIClient, error) {
	creds := reddit.Credentials{
		ID:       opts.ClientID,
		Secret:   opts.ClientSecret,
		Username: opts.Username,
		Password: opts.Password,
	}

	client, err := reddit.NewClient(creds, reddit.WithUserAgent(opts.userAgent()))
	if err != nil {
		return nil, fmt.Errorf("create reddit api client: %w", err)
	}

	return &APIClient{client: client, limiter: opts.limiter()}, nil
}

func (c *APIClient) Mode() string { return ModeAPI }

func (c *APIClient) FetchHot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hot, _, err := c.client.Subreddit.HotPosts(ctx, subreddit, &reddit.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("api hot r/%s: %w", subreddit, err)
	}

	collectedAt := time.Now().UTC()
	posts := make([]Post, 0, len(hot))
	for _, p := range hot {
		var created time.Time
		if p.Created != nil {
			created = p.Created.Time.UTC()
		}
		posts = append(posts, Post{
			RedditID:    p.ID,
			Subreddit:   subreddit,
			Title:       p.Title,
			URL:         p.URL,
			Author:      p.Author,
			Permalink:   p.Permalink,
			IsSelf:      p.IsSelfPost,
			Score:       p.Score,
			UpvoteRatio: float64(p.UpvoteRatio),
			NumComments: p.NumberOfComments,
			CreatedUTC:  created,
			CollectedAt: collectedAt,
		})
	}
	return posts, nil
}
