package patterns

import (
	"math"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

// EstimatedPointsPerCell is used for initial spatial index capacity estimation.
const EstimatedPointsPerCell = 4

// SpatialIndex provides efficient neighbour queries using a regular grid.
// Cell size should match the DBSCAN eps parameter.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → point indices
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the spatial index from a set of points.
func (si *SpatialIndex) Build(points []geom.Point) {
	si.Grid = make(map[int64][]int, len(points)/EstimatedPointsPerCell+1)
	for i, p := range points {
		id := cellID(si.cell(p.X), si.cell(p.Y))
		si.Grid[id] = append(si.Grid[id], i)
	}
}

func (si *SpatialIndex) cell(v float64) int64 {
	return int64(math.Floor(v / si.CellSize))
}

// cellID pairs signed cell coordinates into a unique key: zigzag encoding
// to non-negative integers, then Szudzik's pairing function.
func cellID(cellX, cellY int64) int64 {
	zigzag := func(v int64) int64 {
		if v >= 0 {
			return 2 * v
		}
		return -2*v - 1
	}
	a, b := zigzag(cellX), zigzag(cellY)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns indices of all points within eps of points[idx],
// including idx itself.
func (si *SpatialIndex) RegionQuery(points []geom.Point, idx int, eps float64) []int {
	p := points[idx]
	neighbors := []int{}
	eps2 := eps * eps

	cellX, cellY := si.cell(p.X), si.cell(p.Y)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, candidateIdx := range si.Grid[cellID(cellX+dx, cellY+dy)] {
				candidate := points[candidateIdx]
				ddx := candidate.X - p.X
				ddy := candidate.Y - p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, candidateIdx)
				}
			}
		}
	}
	return neighbors
}

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps    float64 // Neighbourhood radius in pixels
	MinPts int     // Minimum neighbourhood size, including the point, for a core point
}

// DBSCAN labels points by density. The returned labels are -1 for noise and
// 1..clusters for cluster members.
func DBSCAN(points []geom.Point, params DBSCANParams) (labels []int, clusters int) {
	n := len(points)
	if n == 0 {
		return nil, 0
	}
	labels = make([]int, n) // 0=unvisited, -1=noise, >0=clusterID

	spatialIndex := NewSpatialIndex(params.Eps)
	spatialIndex.Build(points)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := spatialIndex.RegionQuery(points, i, params.Eps)
		if len(neighbors) < params.MinPts {
			labels[i] = -1
			continue
		}
		clusters++
		expandCluster(points, spatialIndex, labels, i, neighbors, clusters, params.Eps, params.MinPts)
	}
	return labels, clusters
}

// expandCluster grows a cluster from a core point.
func expandCluster(points []geom.Point, si *SpatialIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {
	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]
		if labels[idx] == -1 {
			labels[idx] = clusterID // Noise becomes border point
		}
		if labels[idx] != 0 {
			continue
		}
		labels[idx] = clusterID
		newNeighbors := si.RegionQuery(points, idx, eps)
		if len(newNeighbors) >= minPts {
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}
