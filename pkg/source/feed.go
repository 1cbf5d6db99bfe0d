package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// FeedClient reads a subreddit's Atom feed. Feeds carry no vote or comment
// counts, so posts come back with zero metrics and the default ratio and are
// ranked on recency alone until another collector refreshes them.
type FeedClient struct {
	client    *http.Client
	parser    *gofeed.Parser
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
}

// NewFeedClient creates a feed collector.
func NewFeedClient(opts Options) *FeedClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = redditWebURL
	}
	return &FeedClient{
		client:    &http.Client{Timeout: 30 * time.Second},
		parser:    gofeed.NewParser(),
		limiter:   opts.limiter(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: opts.userAgent(),
	}
}

func (c *FeedClient) Mode() string { return ModeFeed }

func (c *FeedClient) FetchHot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feedURL := fmt.Sprintf("%s/r/%s/.rss?limit=%d", c.baseURL, url.PathEscape(subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request r/%s: %w", subreddit, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed r/%s status %d", subreddit, resp.StatusCode)
	}

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed r/%s: %w", subreddit, err)
	}

	collectedAt := time.Now().UTC()
	var posts []Post
	for _, entry := range parsed.Items {
		id := strings.TrimPrefix(entry.GUID, "t3_")
		if id == "" {
			continue
		}

		created := collectedAt
		if entry.PublishedParsed != nil {
			created = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			created = entry.UpdatedParsed.UTC()
		}

		author := ""
		if entry.Author != nil {
			author = strings.TrimPrefix(entry.Author.Name, "/u/")
		}

		permalink := entry.Link
		if u, err := url.Parse(entry.Link); err == nil && u.Path != "" {
			permalink = u.Path
		}

		posts = append(posts, Post{
			RedditID:    id,
			Subreddit:   subreddit,
			Title:       entry.Title,
			URL:         entry.Link,
			Author:      author,
			Permalink:   permalink,
			UpvoteRatio: DefaultUpvoteRatio,
			CreatedUTC:  created,
			CollectedAt: collectedAt,
		})
		if len(posts) == limit {
			break
		}
	}
	return posts, nil
}
