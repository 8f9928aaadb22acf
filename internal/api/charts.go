package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canal.report/internal/httputil"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// handleVesselChart renders the live vessels as a debugging page: a map-like
// scatter of vessels and bridges, and each vessel's distance to its target.
// Query params:
//   - status (optional) shows only vessels with that status
func (s *Server) handleVesselChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.engine.Snapshot()
	want := vessel.Status(r.URL.Query().Get("status"))

	views := make([]vessel.View, 0, len(snap.Vessels))
	for _, v := range snap.Vessels {
		if want == "" || v.Status == want {
			views = append(views, v)
		}
	}

	page := components.NewPage()
	page.SetPageTitle("Canal vessels")
	page.AddCharts(s.positionChart(views), distanceChart(views))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) positionChart(views []vessel.View) *charts.Scatter {
	bridgesData := []opts.ScatterData{}
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	for _, b := range s.engine.Registry().Ordered() {
		bridgesData = append(bridgesData, opts.ScatterData{Name: b.Name, Value: []interface{}{b.Lon, b.Lat}, SymbolSize: 14, Symbol: "diamond"})
		minLat, maxLat = math.Min(minLat, b.Lat), math.Max(maxLat, b.Lat)
	}

	byStatus := map[vessel.Status][]opts.ScatterData{}
	for _, v := range views {
		byStatus[v.Status] = append(byStatus[v.Status], opts.ScatterData{
			Name:  fmt.Sprintf("%s (%s %.1f kn)", v.ID, v.Status, v.SpeedKn),
			Value: []interface{}{v.Lon, v.Lat},
		})
	}

	pad := (maxLat - minLat) * 0.2
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Canal vessels", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Vessel positions", Subtitle: fmt.Sprintf("vessels=%d", len(views))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Lon", Type: "value", Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Lat", Type: "value", Min: minLat - pad, Max: maxLat + pad}),
	)
	scatter.AddSeries("bridges", bridgesData)

	statuses := make([]string, 0, len(byStatus))
	for st := range byStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		scatter.AddSeries(st, byStatus[vessel.Status(st)], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}
	return scatter
}

func distanceChart(views []vessel.View) *charts.Bar {
	ids := make([]string, 0, len(views))
	data := make([]opts.BarData, 0, len(views))
	for _, v := range views {
		if v.DistanceToTargetM == nil {
			continue
		}
		ids = append(ids, v.ID)
		data = append(data, opts.BarData{
			Name:  v.TargetBridge,
			Value: math.Round(*v.DistanceToTargetM),
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Distance to target bridge", Subtitle: "metres"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	bar.SetXAxis(ids).AddSeries("distance", data)
	return bar
}
