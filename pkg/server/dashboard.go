package server

import (
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const dashboardTop = 15

// handleDashboard renders the current top predictions and the stored
// subreddit mix as an HTML page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res := s.deps.Predictions.Top(ctx, dashboardTop)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Top Virality (last 6h)",
			Subtitle: res.Outcome.String(),
		}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)

	var barX []string
	var barY []opts.BarData
	for _, p := range res.Posts {
		barX = append(barX, shortTitle(p.Title))
		barY = append(barY, opts.BarData{Name: "r/" + p.Subreddit, Value: *p.ViralityScore})
	}
	bar.SetXAxis(barX).AddSeries("Virality", barY)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Subreddit Mix"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)

	counts, err := s.deps.Store.CountPostsBySubreddit(ctx)
	if err != nil {
		s.logger.Error("dashboard subreddit counts failed", "error", err)
	}
	subs := make([]string, 0, len(counts))
	for k := range counts {
		subs = append(subs, k)
	}
	sort.Strings(subs)
	pieItems := make([]opts.PieData, 0, len(subs))
	for _, k := range subs {
		pieItems = append(pieItems, opts.PieData{Name: k, Value: counts[k]})
	}
	pie.AddSeries("Posts", pieItems)

	page := components.NewPage()
	page.PageTitle = "Meme Market"
	page.AddCharts(bar, pie)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		s.logger.Error("dashboard render failed", "error", err)
	}
}

func shortTitle(t string) string {
	r := []rune(t)
	if len(r) <= 32 {
		return t
	}
	return string(r[:31]) + "…"
}
