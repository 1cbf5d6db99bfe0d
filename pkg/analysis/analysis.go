// Package analysis asks an OpenAI-compatible chat API (Perplexity by default)
// whether a post is likely to go viral and what is trending right now.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/elonfeng/mememarket/internal/cache"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL  = "https://api.perplexity.ai/"
	DefaultModel    = "llama-3.1-sonar-small-128k-online"
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 10 * time.Minute

	viralityTemperature = 0.2
	viralityMaxTokens   = 500
	trendingTemperature = 0.3
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("PERPLEXITY_API_KEY not configured")

const systemPrompt = "You are a viral content prediction AI. Analyze trends, news, and social media to predict if content will go viral. Always respond in JSON format."

const viralityPrompt = `
Analyze if this Reddit post will go viral in the next 24 hours:

Title: %s
Subreddit: r/%s
Current Score: %d upvotes
Comments: %d
Age: %g hours old

Search the web for:
1. Is this topic currently trending on social media?
2. Are there recent news articles about this topic?
3. Is there high search volume for related keywords?
4. Are influencers or major accounts discussing this?
5. Is this a recurring viral topic or brand new?

Respond in JSON format with:
{
  "will_go_viral": true/false,
  "confidence": 0-100,
  "virality_score": 0-100,
  "reasoning": "brief explanation",
  "trending_factor": "HIGH/MEDIUM/LOW",
  "predicted_peak_score": estimated_score,
  "key_trends": ["trend1", "trend2"]
}
`

const trendingPrompt = `
What are the top 10 trending topics on social media RIGHT NOW?

Search Twitter, Reddit, TikTok, and news sites for what's viral today.

Respond in JSON format:
{
  "trending_topics": [
    {
      "topic": "topic name",
      "trend_score": 0-100,
      "platforms": ["twitter", "reddit"],
      "description": "brief description"
    }
  ],
  "timestamp": "ISO datetime"
}
`

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// MemeInput describes the post to analyze.
type MemeInput struct {
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	AgeHours    float64 `json:"age_hours"`
}

// Prediction is the model's verdict on a post.
type Prediction struct {
	WillGoViral        bool     `json:"will_go_viral"`
	Confidence         float64  `json:"confidence"`
	ViralityScore      float64  `json:"virality_score"`
	Reasoning          string   `json:"reasoning"`
	TrendingFactor     string   `json:"trending_factor"`
	PredictedPeakScore float64  `json:"predicted_peak_score"`
	KeyTrends          []string `json:"key_trends"`
	Error              string   `json:"error,omitempty"`
}

// Topic is one entry of TrendingTopics.
type Topic struct {
	Topic       string   `json:"topic"`
	TrendScore  float64  `json:"trend_score"`
	Platforms   []string `json:"platforms"`
	Description string   `json:"description"`
}

// TrendingTopics is what the model reports as trending across the web.
type TrendingTopics struct {
	Topics    []Topic `json:"trending_topics"`
	Timestamp string  `json:"timestamp"`
}

// Options configures a Client.
type Options struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client talks to the chat completions API. The zero API key yields a
// client whose calls all return ErrNotConfigured.
type Client struct {
	ai     *openai.Client
	model  string
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Client. c may be nil to disable caching.
func New(opts Options, c cache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	client := &Client{
		model:  opts.Model,
		cache:  c,
		ttl:    opts.CacheTTL,
		logger: logger.With("component", "analysis"),
	}
	if opts.APIKey != "" {
		client.ai = openai.NewClient(
			option.WithAPIKey(opts.APIKey),
			option.WithBaseURL(opts.BaseURL),
			option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
			option.WithMaxRetries(1),
		)
	}
	return client
}

// Configured reports whether an API key was provided.
func (c *Client) Configured() bool { return c != nil && c.ai != nil }

// AnalyzeVirality asks the model whether in will go viral in the next day.
func (c *Client) AnalyzeVirality(ctx context.Context, in MemeInput) (*Prediction, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	key := "analysis:virality:" + digest(in)
	var cached Prediction
	if c.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	prompt := fmt.Sprintf(viralityPrompt, in.Title, in.Subreddit, in.Score, in.NumComments, in.AgeHours)
	content, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		}),
		Model:       openai.F(openai.ChatModel(c.model)),
		Temperature: openai.Float(viralityTemperature),
		MaxTokens:   openai.Int(viralityMaxTokens),
	})
	if err != nil {
		return nil, err
	}

	pred := ParsePrediction(content)
	c.toCache(ctx, key, pred)
	return pred, nil
}

// TrendingTopics asks the model for the current top topics across the web.
func (c *Client) TrendingTopics(ctx context.Context) (*TrendingTopics, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	const key = "analysis:trending"
	var cached TrendingTopics
	if c.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	content, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(trendingPrompt),
		}),
		Model:       openai.F(openai.ChatModel(c.model)),
		Temperature: openai.Float(trendingTemperature),
	})
	if err != nil {
		return nil, err
	}

	topics, err := ParseTrendingTopics(content, time.Now())
	if err != nil {
		return nil, err
	}
	c.toCache(ctx, key, topics)
	return topics, nil
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	resp, err := c.ai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	c.logger.Debug("chat completion",
		"model", c.model,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// ParsePrediction turns model output into a Prediction. Output without a
// JSON object is read as free text; a JSON object that does not decode
// yields a neutral prediction carrying the decode error.
func ParsePrediction(content string) *Prediction {
	raw := jsonObject.FindString(content)
	if raw == "" {
		lower := strings.ToLower(content)
		return &Prediction{
			WillGoViral:        strings.Contains(lower, "yes") || strings.Contains(lower, "true"),
			Confidence:         70,
			ViralityScore:      70,
			Reasoning:          truncateRunes(content, 200),
			TrendingFactor:     "MEDIUM",
			PredictedPeakScore: 5000,
			KeyTrends:          []string{},
		}
	}

	var p Prediction
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return &Prediction{
			Confidence:         50,
			ViralityScore:      50,
			Reasoning:          "Unable to parse AI response",
			TrendingFactor:     "UNKNOWN",
			PredictedPeakScore: 1000,
			KeyTrends:          []string{},
			Error:              err.Error(),
		}
	}
	if p.KeyTrends == nil {
		p.KeyTrends = []string{}
	}
	return &p
}

// ParseTrendingTopics extracts topics from model output. Output without a
// JSON object yields an empty list stamped with now.
func ParseTrendingTopics(content string, now time.Time) (*TrendingTopics, error) {
	empty := &TrendingTopics{Topics: []Topic{}, Timestamp: now.UTC().Format(time.RFC3339)}

	raw := jsonObject.FindString(content)
	if raw == "" {
		return empty, nil
	}

	var t TrendingTopics
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode trending topics: %w", err)
	}
	if t.Topics == nil {
		t.Topics = []Topic{}
	}
	if t.Timestamp == "" {
		t.Timestamp = empty.Timestamp
	}
	return &t, nil
}

func (c *Client) fromCache(ctx context.Context, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	val, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Client) toCache(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func digest(in MemeInput) string {
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
