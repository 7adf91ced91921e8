package patterns

import (
	"sort"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

// Cluster is a group of co-located points. Members index into the input
// point slice in ascending order.
type Cluster struct {
	Members []int
	Center  geom.Point
}

// ClusteringParams holds clustering algorithm parameters.
type ClusteringParams struct {
	Eps    float64 // Neighbourhood radius in pixels (for DBSCAN)
	MinPts int     // Minimum points to form a cluster
}

// Clusterer abstracts the clustering implementation so that the miner can be
// tested with a deterministic stand-in.
type Clusterer interface {
	// Cluster groups points and drops noise. Clusters are sorted by center
	// (X, then Y).
	Cluster(points []geom.Point) []Cluster

	// GetParams returns the current clustering parameters.
	GetParams() ClusteringParams

	// SetParams updates the clustering parameters.
	SetParams(params ClusteringParams)
}

// DBSCANClusterer implements Clusterer using DBSCAN.
type DBSCANClusterer struct {
	params ClusteringParams
}

// NewDBSCANClusterer creates a new DBSCAN clusterer with the specified parameters.
func NewDBSCANClusterer(eps float64, minPts int) *DBSCANClusterer {
	return &DBSCANClusterer{params: ClusteringParams{Eps: eps, MinPts: minPts}}
}

// Cluster runs DBSCAN and returns the non-noise clusters.
func (c *DBSCANClusterer) Cluster(points []geom.Point) []Cluster {
	if len(points) == 0 || c.params.Eps <= 0 {
		return nil
	}
	labels, n := DBSCAN(points, DBSCANParams{Eps: c.params.Eps, MinPts: c.params.MinPts})

	clusters := make([]Cluster, n)
	for i, label := range labels {
		if label > 0 {
			clusters[label-1].Members = append(clusters[label-1].Members, i)
		}
	}
	out := clusters[:0]
	for _, cl := range clusters {
		if len(cl.Members) == 0 {
			continue
		}
		var sumX, sumY float64
		for _, idx := range cl.Members {
			sumX += points[idx].X
			sumY += points[idx].Y
		}
		k := float64(len(cl.Members))
		cl.Center = geom.Point{X: sumX / k, Y: sumY / k}
		out = append(out, cl)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Center.X != out[j].Center.X {
			return out[i].Center.X < out[j].Center.X
		}
		return out[i].Center.Y < out[j].Center.Y
	})
	return out
}

// GetParams returns the current clustering parameters.
func (c *DBSCANClusterer) GetParams() ClusteringParams {
	return c.params
}

// SetParams updates the clustering parameters.
func (c *DBSCANClusterer) SetParams(params ClusteringParams) {
	c.params = params
}

var _ Clusterer = (*DBSCANClusterer)(nil)
