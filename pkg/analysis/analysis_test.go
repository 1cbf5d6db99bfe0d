package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elonfeng/mememarket/internal/cache"
)

func TestParsePredictionJSON(t *testing.T) {
	content := "Here is my analysis:\n```json\n" + `{
  "will_go_viral": true,
  "confidence": 82,
  "virality_score": 77.5,
  "reasoning": "Topic is all over the news",
  "trending_factor": "HIGH",
  "predicted_peak_score": 25000,
  "key_trends": ["elections", "cats"]
}` + "\n```"

	p := ParsePrediction(content)
	if !p.WillGoViral || p.Confidence != 82 || p.ViralityScore != 77.5 {
		t.Errorf("unexpected prediction: %+v", p)
	}
	if p.TrendingFactor != "HIGH" || p.PredictedPeakScore != 25000 {
		t.Errorf("unexpected prediction: %+v", p)
	}
	if len(p.KeyTrends) != 2 {
		t.Errorf("key trends = %v", p.KeyTrends)
	}
	if p.Error != "" {
		t.Errorf("unexpected error %q", p.Error)
	}
}

func TestParsePredictionText(t *testing.T) {
	p := ParsePrediction("Yes, this one is likely to take off.")
	if !p.WillGoViral {
		t.Error("text mentioning yes should be viral")
	}
	if p.Confidence != 70 || p.ViralityScore != 70 || p.TrendingFactor != "MEDIUM" || p.PredictedPeakScore != 5000 {
		t.Errorf("unexpected text fallback: %+v", p)
	}

	p = ParsePrediction("Unlikely. " + strings.Repeat("x", 300))
	if p.WillGoViral {
		t.Error("text without yes/true should not be viral")
	}
	if n := len([]rune(p.Reasoning)); n != 200 {
		t.Errorf("reasoning length = %d, want 200", n)
	}
}

func TestParsePredictionMalformed(t *testing.T) {
	p := ParsePrediction(`{"will_go_viral": maybe}`)
	if p.WillGoViral || p.Confidence != 50 || p.ViralityScore != 50 {
		t.Errorf("unexpected malformed fallback: %+v", p)
	}
	if p.TrendingFactor != "UNKNOWN" || p.PredictedPeakScore != 1000 {
		t.Errorf("unexpected malformed fallback: %+v", p)
	}
	if p.Error == "" {
		t.Error("malformed fallback should carry the decode error")
	}
}

func TestParseTrendingTopics(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := ParseTrendingTopics(`{"trending_topics":[{"topic":"eclipse","trend_score":91,"platforms":["reddit"],"description":"solar"}],"timestamp":"2024-03-01T09:00:00Z"}`, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Topics) != 1 || got.Topics[0].Topic != "eclipse" || got.Topics[0].TrendScore != 91 {
		t.Errorf("unexpected topics: %+v", got)
	}

	empty, err := ParseTrendingTopics("no idea", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.Topics) != 0 || empty.Timestamp != "2024-03-01T10:00:00Z" {
		t.Errorf("unexpected empty result: %+v", empty)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(Options{}, nil, nil)
	if c.Configured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := c.AnalyzeVirality(context.Background(), MemeInput{Title: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("AnalyzeVirality() = %v, want ErrNotConfigured", err)
	}
	if _, err := c.TrendingTopics(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("TrendingTopics() = %v, want ErrNotConfigured", err)
	}
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// text flattens content sent either as a string or as text parts.
func (m chatMessage) text() string {
	var s string
	if json.Unmarshal(m.Content, &s) == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	json.Unmarshal(m.Content, &parts)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

func completionServer(t *testing.T, content string, calls *atomic.Int32, last *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if last != nil {
			json.Unmarshal(body, last)
		}

		resp := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnalyzeViralityRequestAndCache(t *testing.T) {
	var calls atomic.Int32
	var req chatRequest
	srv := completionServer(t, `{"will_go_viral":true,"confidence":90,"virality_score":88,"reasoning":"r","trending_factor":"HIGH","predicted_peak_score":40000,"key_trends":["a"]}`, &calls, &req)
	defer srv.Close()

	c := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "test-model"}, cache.NewMemory(), testLogger())
	in := MemeInput{Title: "Cat learns to skateboard", Subreddit: "funny", Score: 1500, NumComments: 120, AgeHours: 2.5}

	p, err := c.AnalyzeVirality(context.Background(), in)
	if err != nil {
		t.Fatalf("AnalyzeVirality: %v", err)
	}
	if !p.WillGoViral || p.ViralityScore != 88 {
		t.Errorf("unexpected prediction: %+v", p)
	}

	if req.Model != "test-model" || req.Temperature != 0.2 || req.MaxTokens != 500 {
		t.Errorf("unexpected request params: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	prompt := req.Messages[1].text()
	if !strings.Contains(prompt, "Subreddit: r/funny") || !strings.Contains(prompt, "Current Score: 1500 upvotes") {
		t.Errorf("prompt missing post details:\n%s", prompt)
	}

	if _, err := c.AnalyzeVirality(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("api called %d times, want 1 (second call cached)", n)
	}
}

func TestTrendingTopicsRequest(t *testing.T) {
	var calls atomic.Int32
	var req chatRequest
	srv := completionServer(t, `{"trending_topics":[{"topic":"t1","trend_score":70,"platforms":["tiktok"],"description":"d"}],"timestamp":"2024-01-01T00:00:00Z"}`, &calls, &req)
	defer srv.Close()

	c := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/"}, nil, testLogger())
	got, err := c.TrendingTopics(context.Background())
	if err != nil {
		t.Fatalf("TrendingTopics: %v", err)
	}
	if len(got.Topics) != 1 || got.Topics[0].Topic != "t1" {
		t.Errorf("unexpected topics: %+v", got)
	}
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	if req.Model != DefaultModel {
		t.Errorf("model = %q, want default", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
}

func TestAnalyzeViralityAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/"}, nil, testLogger())
	if _, err := c.AnalyzeVirality(context.Background(), MemeInput{Title: "x"}); err == nil {
		t.Fatal("expected error on 401")
	}
}
