package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxChartCells bounds the heatmap series sent to the browser.
const maxChartCells = 6400

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WriteHTML renders the report as a single HTML page with a heatmap, a
// hotspot and pattern overlay, and per-zone dwell bars.
func WriteHTML(w io.Writer, rep Report) error {
	page := components.NewPage()
	page.SetPageTitle("Footpath " + rep.CameraID)
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(heatmapChart(rep), overlayChart(rep), zoneChart(rep))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func subtitle(rep Report) string {
	return fmt.Sprintf("camera=%s window=%s..%s traffic=%d",
		rep.CameraID, rep.Window.WindowStart.Format(time.RFC3339), rep.Window.WindowEnd.Format(time.RFC3339), rep.Window.TrafficCount)
}

func heatmapChart(rep Report) *charts.HeatMap {
	grid := Downsample(rep.Grid, maxChartCells)
	cell := max(grid.CellSize, 1)

	xs := make([]string, grid.Cols)
	for c := range xs {
		xs[c] = strconv.Itoa(c * cell)
	}
	ys := make([]string, grid.Rows)
	for r := range ys {
		ys[r] = strconv.Itoa(r * cell)
	}

	data := make([]opts.HeatMapData, 0, len(grid.Cells))
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			v := grid.At(c, r)
			if v <= 0 {
				continue
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, r, math.Round(v*1000) / 1000}})
		}
	}
	maxVal := grid.Max()
	if maxVal <= 0 {
		maxVal = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Footfall heatmap", Subtitle: subtitle(rep)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "y (px)", NameLocation: "middle", NameGap: 40, Inverse: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(xs).AddSeries("intensity", data)
	return hm
}

func overlayChart(rep Report) *charts.Scatter {
	width, height := rep.Window.HeatmapWidth, rep.Window.HeatmapHeight
	if width <= 0 || height <= 0 {
		cell := max(rep.Grid.CellSize, 1)
		width, height = rep.Grid.Cols*cell, rep.Grid.Rows*cell
	}

	hotspots := make([]opts.ScatterData, 0, len(rep.Hotspots))
	for i, h := range rep.Hotspots {
		c := h.BBox.Center()
		hotspots = append(hotspots, opts.ScatterData{
			Name:       fmt.Sprintf("hotspot %d (area %d px)", i+1, h.Area),
			Value:      []interface{}{c.X, c.Y, h.NormalizedIntensity},
			SymbolSize: 8 + int(math.Sqrt(float64(h.Area))/4),
		})
	}

	centers := make([]opts.ScatterData, 0, len(rep.Patterns))
	var members []opts.ScatterData
	for _, p := range rep.Patterns {
		centers = append(centers, opts.ScatterData{
			Name:   fmt.Sprintf("%s %s freq=%d", p.PatternType, zoneLabel(p.ZoneID), p.Frequency),
			Value:  []interface{}{p.CenterX, p.CenterY, p.Frequency},
			Symbol: "diamond",
		})
		for _, m := range p.Members {
			members = append(members, opts.ScatterData{Value: []interface{}{m.X, m.Y}})
		}
	}

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Hotspots and movement patterns", Subtitle: fmt.Sprintf("hotspots=%d patterns=%d", len(hotspots), len(centers))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: width, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: height, Name: "y (px)", NameLocation: "middle", NameGap: 40, Inverse: opts.Bool(true)}),
	)
	sc.AddSeries("pattern members", members, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	sc.AddSeries("hotspots", hotspots)
	sc.AddSeries("patterns", centers, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	return sc
}

func zoneChart(rep Report) *charts.Bar {
	labels := make([]string, 0, len(rep.Zones))
	visitors := make([]opts.BarData, 0, len(rep.Zones))
	avgDwell := make([]opts.BarData, 0, len(rep.Zones))
	maxDwell := make([]opts.BarData, 0, len(rep.Zones))
	for _, z := range rep.Zones {
		labels = append(labels, zoneLabel(z.ZoneID))
		visitors = append(visitors, opts.BarData{Value: z.UniqueVisitors})
		avgDwell = append(avgDwell, opts.BarData{Value: math.Round(z.AvgDwellSecs*10) / 10})
		maxDwell = append(maxDwell, opts.BarData{Value: math.Round(z.MaxDwellSecs*10) / 10})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Zone dwell", Subtitle: subtitle(rep)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(labels).
		AddSeries("unique visitors", visitors, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("avg dwell (s)", avgDwell).
		AddSeries("max dwell (s)", maxDwell)
	return bar
}
