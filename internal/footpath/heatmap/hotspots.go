package heatmap

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

// Hotspot is a 4-connected region of the normalized grid strictly above a
// threshold. BBox and Area are in frame pixels.
type Hotspot struct {
	BBox                geom.BoundingBox `json:"bbox"`
	Area                int              `json:"area"`
	Cells               int              `json:"cells"`
	Intensity           float64          `json:"intensity"`
	NormalizedIntensity float64          `json:"normalized_intensity"`
	Peak                float64          `json:"peak"`
}

func findHotspots(cells []float64, cols, rows, cellSize int, threshold float64, minArea int) []Hotspot {
	if len(cells) == 0 {
		return nil
	}
	maxVal := floats.Max(cells)
	if maxVal <= 0 {
		return nil
	}

	visited := make([]bool, len(cells))
	hot := func(i int) bool { return cells[i]/maxVal > threshold }

	var out []Hotspot
	queue := make([]int, 0, 64)
	for start := range cells {
		if visited[start] || !hot(start) {
			continue
		}
		visited[start] = true
		queue = append(queue[:0], start)

		minX, minY := cols, rows
		maxX, maxY := -1, -1
		var sum, peak float64
		n := 0
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := i%cols, i/cols
			n++
			sum += cells[i]
			if cells[i] > peak {
				peak = cells[i]
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, nb := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := nb[0], nb[1]
				if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
					continue
				}
				j := ny*cols + nx
				if !visited[j] && hot(j) {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}

		area := n * cellSize * cellSize
		if area < minArea {
			continue
		}
		mean := sum / float64(n)
		out = append(out, Hotspot{
			BBox: geom.BoundingBox{
				X1: float64(minX * cellSize),
				Y1: float64(minY * cellSize),
				X2: float64((maxX + 1) * cellSize),
				Y2: float64((maxY + 1) * cellSize),
			},
			Area:                area,
			Cells:               n,
			Intensity:           mean,
			NormalizedIntensity: mean / maxVal,
			Peak:                peak,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Intensity != out[j].Intensity {
			return out[i].Intensity > out[j].Intensity
		}
		if out[i].BBox.Y1 != out[j].BBox.Y1 {
			return out[i].BBox.Y1 < out[j].BBox.Y1
		}
		return out[i].BBox.X1 < out[j].BBox.X1
	})
	return out
}
