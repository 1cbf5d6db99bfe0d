package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	redditWebURL   = "https://www.reddit.com"
	redditOAuthURL = "https://oauth.reddit.com"
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
)

// PublicClient reads subreddit listings from Reddit's JSON endpoints. With
// client credentials it authenticates as an app-only OAuth client, otherwise
// it uses the anonymous www.reddit.com listing.
type PublicClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	baseURL   string
	suffix    string
	userAgent string
}

// NewPublicClient creates a listing client.
func NewPublicClient(opts Options) *PublicClient {
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{agent: opts.userAgent(), next: http.DefaultTransport},
	}
	baseURL := redditWebURL
	suffix := ".json"

	if opts.ClientID != "" && opts.ClientSecret != "" {
		tokenURL := opts.TokenURL
		if tokenURL == "" {
			tokenURL = redditTokenURL
		}
		conf := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = conf.Client(ctx)
		httpClient.Timeout = 30 * time.Second
		baseURL = redditOAuthURL
		suffix = ""
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	return &PublicClient{
		client:    httpClient,
		limiter:   opts.limiter(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		suffix:    suffix,
		userAgent: opts.userAgent(),
	}
}

func (c *PublicClient) Mode() string { return ModePublic }

func (c *PublicClient) FetchHot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := "/r/" + url.PathEscape(subreddit) + "/hot" + c.suffix
	q := url.Values{"limit": {fmt.Sprint(limit)}, "raw_json": {"1"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s status %d", subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", subreddit, err)
	}

	collectedAt := time.Now().UTC()
	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data.toPost(subreddit, collectedAt))
	}
	return posts, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Permalink   string   `json:"permalink"`
	Author      string   `json:"author"`
	Score       int      `json:"score"`
	UpvoteRatio *float64 `json:"upvote_ratio"`
	NumComments int      `json:"num_comments"`
	CreatedUTC  float64  `json:"created_utc"`
	IsVideo     bool     `json:"is_video"`
	IsSelf      bool     `json:"is_self"`
}

// toPost keeps the requested subreddit name rather than the listing's so
// per-subreddit queries match what was configured.
func (p redditPost) toPost(subreddit string, collectedAt time.Time) Post {
	ratio := DefaultUpvoteRatio
	if p.UpvoteRatio != nil {
		ratio = *p.UpvoteRatio
	}
	return Post{
		RedditID:    p.ID,
		Subreddit:   subreddit,
		Title:       p.Title,
		URL:         p.URL,
		Author:      p.Author,
		Permalink:   p.Permalink,
		IsVideo:     p.IsVideo,
		IsSelf:      p.IsSelf,
		Score:       p.Score,
		UpvoteRatio: ratio,
		NumComments: p.NumComments,
		CreatedUTC:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
		CollectedAt: collectedAt,
	}
}

// userAgentTransport stamps every request, including OAuth token requests,
// with the configured User-Agent.
type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}
