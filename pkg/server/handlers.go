package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elonfeng/mememarket/internal/ingest"
	"github.com/elonfeng/mememarket/pkg/analysis"
	"github.com/elonfeng/mememarket/pkg/prediction"
)

const (
	maxLimit = 100
	maxHours = 168
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Meme Market API",
		"version": Version,
		"docs":    "/api/v1/docs",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	db := "connected"
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		db = "error: " + err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": db,
	})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", prediction.DefaultLimit, maxLimit)
	if !ok {
		return
	}
	res := s.deps.Predictions.Top(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"outcome":     res.Outcome.String(),
		"count":       res.Count(),
		"predictions": res.Posts,
	})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryInt(w, r, "hours", prediction.DefaultTrendingHours, maxHours)
	if !ok {
		return
	}
	res := s.deps.Predictions.Trending(r.Context(), hours)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"outcome":  res.Outcome.String(),
		"count":    res.Count(),
		"trending": res.Posts,
	})
}

func (s *Server) handleSubreddit(w http.ResponseWriter, r *http.Request) {
	subreddit := strings.TrimSpace(r.PathValue("subreddit"))
	if subreddit == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "subreddit is required")
		return
	}
	limit, ok := queryInt(w, r, "limit", prediction.DefaultLimit, maxLimit)
	if !ok {
		return
	}
	res := s.deps.Predictions.BySubreddit(r.Context(), subreddit, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"subreddit":   subreddit,
		"outcome":     res.Outcome.String(),
		"count":       res.Count(),
		"predictions": res.Posts,
	})
}

// handleCollect starts a collection that outlives the request.
func (s *Server) handleCollect(w http.ResponseWriter, _ *http.Request) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_, err := s.deps.Collector.Run(s.bgCtx)
		switch {
		case errors.Is(err, ingest.ErrRunning):
			s.logger.Info("collection already running")
		case err != nil:
			s.logger.Error("background collection failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Collection started in background",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  s.deps.Collector.Status(r.Context()),
	})
}

type analyzeRequest struct {
	Title       string   `json:"title"`
	Subreddit   *string  `json:"subreddit"`
	Score       int      `json:"score"`
	NumComments int      `json:"num_comments"`
	AgeHours    *float64 `json:"age_hours"`
}

func (s *Server) handleAnalyzeMeme(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}

	in := analysis.MemeInput{
		Title:       req.Title,
		Subreddit:   "memes",
		Score:       req.Score,
		NumComments: req.NumComments,
	}
	if req.Subreddit != nil {
		in.Subreddit = *req.Subreddit
	}
	if req.AgeHours != nil {
		in.AgeHours = *req.AgeHours
	}

	if s.deps.Analysis == nil {
		s.analysisUnavailable(w, analysis.ErrNotConfigured, "Perplexity API not available or configured")
		return
	}
	pred, err := s.deps.Analysis.AnalyzeVirality(r.Context(), in)
	if err != nil {
		s.analysisUnavailable(w, err, "Perplexity API not available or configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"analysis": pred,
		"message":  "Analysis complete",
	})
}

func (s *Server) handleTrendingNow(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analysis == nil {
		s.analysisUnavailable(w, analysis.ErrNotConfigured, "Unable to fetch trending topics")
		return
	}
	topics, err := s.deps.Analysis.TrendingTopics(r.Context())
	if err != nil {
		s.analysisUnavailable(w, err, "Unable to fetch trending topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"trending": topics,
		"message":  "Trending topics retrieved",
	})
}

// analysisUnavailable answers 200 with success false; the analysis path is
// optional and its failures are reported in the body.
func (s *Server) analysisUnavailable(w http.ResponseWriter, err error, message string) {
	if !errors.Is(err, analysis.ErrNotConfigured) {
		s.logger.Warn("analysis request failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"error":   err.Error(),
		"message": message,
	})
}

// queryInt reads an optional integer query parameter in [1, upper]. On a bad
// value it writes a 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, upper int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > upper {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("%s must be an integer between 1 and %d", name, upper))
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}
