// Package heatmap maintains a decayed, smoothed density grid over a camera
// frame and extracts hotspots from it.
package heatmap

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// Config configures an Accumulator. Width and Height are the frame
// resolution in pixels.
type Config struct {
	Width           int
	Height          int
	CellSize        int     // pixels per grid cell, default 1
	Decay           float64 // per-second decay factor in (0, 1]
	SmoothingRadius int     // Gaussian splat radius in cells, 0 disables smoothing
	Clock           timeutil.Clock
}

// Accumulator is a dense intensity grid. All cells stay >= 0.
// It is not safe for concurrent use.
type Accumulator struct {
	cols, rows int
	cellSize   int
	frameW     int
	frameH     int
	decay      float64
	radius     int
	kernel     []float64 // (2r+1)^2, row-major, sums to 1
	clock      timeutil.Clock

	cells []float64

	lastUpdate time.Time
}

// New creates an Accumulator sized to the frame resolution.
func New(cfg Config) (*Accumulator, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid heatmap resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 1
	}
	if !(cfg.Decay > 0 && cfg.Decay <= 1) {
		return nil, fmt.Errorf("heatmap decay must be in (0, 1], got %v", cfg.Decay)
	}
	if cfg.SmoothingRadius < 0 {
		return nil, fmt.Errorf("smoothing radius must be non-negative, got %d", cfg.SmoothingRadius)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	cols := (cfg.Width + cfg.CellSize - 1) / cfg.CellSize
	rows := (cfg.Height + cfg.CellSize - 1) / cfg.CellSize
	return &Accumulator{
		cols:     cols,
		rows:     rows,
		cellSize: cfg.CellSize,
		frameW:   cfg.Width,
		frameH:   cfg.Height,
		decay:    cfg.Decay,
		radius:   cfg.SmoothingRadius,
		kernel:   gaussianKernel(cfg.SmoothingRadius),
		clock:    cfg.Clock,
		cells:    make([]float64, cols*rows),
	}, nil
}

// gaussianKernel returns a normalized (2r+1)x(2r+1) kernel with sigma r/2.
func gaussianKernel(r int) []float64 {
	if r == 0 {
		return []float64{1}
	}
	size := 2*r + 1
	sigma := float64(r) / 2
	k := make([]float64, size*size)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			k[(dy+r)*size+(dx+r)] = math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
		}
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Dims returns the grid size in cells.
func (a *Accumulator) Dims() (cols, rows int) {
	return a.cols, a.rows
}

// Update multiplies the grid by decay^max(1, elapsed seconds) since the
// previous update, then splats unit intensity at each in-range position. An
// update less than a second after the previous one still decays one full
// step. Positions outside the frame are ignored. It returns the number of
// positions added.
func (a *Accumulator) Update(positions []geom.Point) int {
	now := a.clock.Now()
	if !a.lastUpdate.IsZero() {
		elapsed := max(now.Sub(a.lastUpdate), 0)
		floats.Scale(math.Pow(a.decay, math.Max(1, elapsed.Seconds())), a.cells)
	}
	a.lastUpdate = now

	added := 0
	for _, p := range positions {
		if !p.Finite() || p.X < 0 || p.Y < 0 || p.X >= float64(a.frameW) || p.Y >= float64(a.frameH) {
			continue
		}
		a.splat(int(p.X)/a.cellSize, int(p.Y)/a.cellSize)
		added++
	}
	return added
}

func (a *Accumulator) splat(cx, cy int) {
	r := a.radius
	size := 2*r + 1
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= a.rows {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			x := cx + dx
			if x < 0 || x >= a.cols {
				continue
			}
			a.cells[y*a.cols+x] += a.kernel[(dy+r)*size+(dx+r)]
		}
	}
}

// At returns the intensity of the cell at column x, row y.
func (a *Accumulator) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= a.cols || y >= a.rows {
		return 0
	}
	return a.cells[y*a.cols+x]
}

// Max returns the largest cell value.
func (a *Accumulator) Max() float64 {
	return floats.Max(a.cells)
}

// Sum returns the total intensity.
func (a *Accumulator) Sum() float64 {
	return floats.Sum(a.cells)
}

// Reset zeroes the grid. The decay clock keeps running.
func (a *Accumulator) Reset() {
	for i := range a.cells {
		a.cells[i] = 0
	}
}

// Hotspots extracts hotspots from the current grid.
func (a *Accumulator) Hotspots(threshold float64, minArea int) []Hotspot {
	return findHotspots(a.cells, a.cols, a.rows, a.cellSize, threshold, minArea)
}

// Snapshot returns an immutable copy of the grid.
func (a *Accumulator) Snapshot() Snapshot {
	cells := make([]float64, len(a.cells))
	copy(cells, a.cells)
	return Snapshot{
		Cols:     a.cols,
		Rows:     a.rows,
		CellSize: a.cellSize,
		Cells:    cells,
		TakenAt:  a.clock.Now(),
	}
}
