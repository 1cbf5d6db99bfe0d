package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// MockClient returns generated posts. The same subreddit always produces
// the same metrics; creation times are relative to the call.
type MockClient struct {
	now func() time.Time
}

func NewMockClient() *MockClient {
	return &MockClient{now: time.Now}
}

func (c *MockClient) Mode() string { return ModeMock }

func (c *MockClient) FetchHot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(subreddit))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	now := c.now().UTC()
	posts := make([]Post, 0, limit)
	for i := 0; i < limit; i++ {
		id := fmt.Sprintf("mock_%s_%d", subreddit, i)
		posts = append(posts, Post{
			RedditID:    id,
			Subreddit:   subreddit,
			Title:       fmt.Sprintf("[%s] Simulated post #%d", subreddit, i),
			URL:         "http://localhost/mock/" + id,
			Author:      "simulated_user",
			Permalink:   fmt.Sprintf("/r/%s/comments/%s/", subreddit, id),
			IsSelf:      i%3 == 0,
			IsVideo:     i%7 == 0,
			Score:       rng.IntN(5000) - 50,
			UpvoteRatio: 0.5 + rng.Float64()/2,
			NumComments: rng.IntN(800),
			CreatedUTC:  now.Add(-time.Duration(rng.IntN(24*60)) * time.Minute),
			CollectedAt: now,
		})
	}
	return posts, nil
}
