package report

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/footpath.report/internal/footpath/heatmap"
)

// maxPlotCells bounds the number of rectangles drawn in the PNG heatmap.
const maxPlotCells = 40000

// gridXYZ adapts a heatmap snapshot to plotter.GridXYZ with cell centers in
// frame pixels.
type gridXYZ struct {
	s    heatmap.Snapshot
	cell float64
}

func newGridXYZ(s heatmap.Snapshot) gridXYZ {
	return gridXYZ{s: s, cell: float64(max(s.CellSize, 1))}
}

func (g gridXYZ) Dims() (c, r int)   { return g.s.Cols, g.s.Rows }
func (g gridXYZ) Z(c, r int) float64 { return g.s.At(c, r) }
func (g gridXYZ) X(c int) float64    { return (float64(c) + 0.5) * g.cell }
func (g gridXYZ) Y(r int) float64    { return (float64(r) + 0.5) * g.cell }
func (g gridXYZ) Min() float64       { return 0 }
func (g gridXYZ) Max() float64       { return max(g.s.Max(), 1e-9) }

// WritePNG draws the heatmap with hotspot and pattern markers as a PNG of
// the given size.
func WritePNG(w io.Writer, rep Report, width, height vg.Length) error {
	if rep.Grid.Cols == 0 || rep.Grid.Rows == 0 {
		return fmt.Errorf("camera %s: empty heatmap", rep.CameraID)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  %s to %s", rep.CameraID,
		rep.Window.WindowStart.Format(time.DateTime), rep.Window.WindowEnd.Format(time.DateTime))
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	// Image rows grow downwards.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	hm := plotter.NewHeatMap(newGridXYZ(Downsample(rep.Grid, maxPlotCells)), palette.Heat(16, 1))
	p.Add(hm)

	if len(rep.Hotspots) > 0 {
		xys := make(plotter.XYs, len(rep.Hotspots))
		for i, h := range rep.Hotspots {
			c := h.BBox.Center()
			xys[i] = plotter.XY{X: c.X, Y: c.Y}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to plot hotspots: %w", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: color.RGBA{R: 0, G: 170, B: 255, A: 255}, Radius: vg.Points(5), Shape: draw.RingGlyph{}}
		p.Add(sc)
		p.Legend.Add("hotspots", sc)
	}

	if len(rep.Patterns) > 0 {
		xys := make(plotter.XYs, len(rep.Patterns))
		for i, pat := range rep.Patterns {
			xys[i] = plotter.XY{X: pat.CenterX, Y: pat.CenterY}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to plot patterns: %w", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: color.White, Radius: vg.Points(4), Shape: draw.CrossGlyph{}}
		p.Add(sc)
		p.Legend.Add("patterns", sc)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to draw heatmap: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
