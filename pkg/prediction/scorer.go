package prediction

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
)

// Virality weights. Hand-tuned, not fitted.
const (
	scoreVelocityWeight   = 0.35
	commentVelocityWeight = 0.25
	upvoteRatioWeight     = 0.20
	recencyWeight         = 0.10
	engagementRateWeight  = 0.10

	minAgeHours    = 0.1
	recencyHorizon = 24.0
	scaleFactor    = 10.0
	maxScore       = 100.0
)

// Breakdown holds the intermediate terms of a virality score.
type Breakdown struct {
	AgeHours        float64 `json:"age_hours"`
	ScoreVelocity   float64 `json:"score_velocity"`
	CommentVelocity float64 `json:"comment_velocity"`
	EngagementRate  float64 `json:"engagement_rate"`
	RecencyScore    float64 `json:"recency_score"`
	Weighted        float64 `json:"weighted"`
	Score           float64 `json:"score"`
}

// Scorer computes virality scores. The zero value logs to slog.Default.
type Scorer struct {
	logger *slog.Logger
}

// NewScorer creates a scorer that reports scoring failures to logger.
func NewScorer(logger *slog.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Score returns the 0-100 virality score of p at instant now. It never fails:
// any internal error yields 0 and a logged warning.
func (s *Scorer) Score(p source.Post, now time.Time) float64 {
	b, err := Explain(p, now)
	if err != nil {
		s.log().Warn("virality score unavailable",
			"reddit_id", p.RedditID,
			"subreddit", p.Subreddit,
			"error", err,
		)
		return 0
	}
	return b.Score
}

func (s *Scorer) log() *slog.Logger {
	if s == nil || s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Score is Scorer.Score with the default logger.
func Score(p source.Post, now time.Time) float64 {
	var s Scorer
	return s.Score(p, now)
}

// Explain computes every term of the virality formula for p. A missing
// CreatedUTC counts as created at now.
func Explain(p source.Post, now time.Time) (Breakdown, error) {
	created := p.CreatedUTC
	if created.IsZero() {
		created = now
	}

	ageHours := now.Sub(created).Hours()
	if ageHours < minAgeHours {
		ageHours = minAgeHours
	}

	score := float64(p.Score)
	comments := float64(p.NumComments)

	b := Breakdown{AgeHours: ageHours}
	b.ScoreVelocity = score / ageHours
	b.CommentVelocity = comments / ageHours
	b.EngagementRate = comments / math.Max(score, 1)
	b.RecencyScore = math.Max(0, 1-ageHours/recencyHorizon)

	b.Weighted = b.ScoreVelocity*scoreVelocityWeight +
		b.CommentVelocity*commentVelocityWeight +
		p.UpvoteRatio*upvoteRatioWeight +
		b.RecencyScore*recencyWeight +
		b.EngagementRate*engagementRateWeight

	if math.IsNaN(b.Weighted) || math.IsInf(b.Weighted, 0) {
		return Breakdown{}, fmt.Errorf("weighted sum is not finite (upvote_ratio=%v)", p.UpvoteRatio)
	}

	normalized := math.Min(maxScore, math.Max(0, b.Weighted*scaleFactor))
	// Two decimals, ties to even.
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(normalized, 'f', 2, 64), 64)
	if err != nil {
		return Breakdown{}, fmt.Errorf("round score %v: %w", normalized, err)
	}
	b.Score = rounded
	return b, nil
}
