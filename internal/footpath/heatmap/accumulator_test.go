package heatmap

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestAccumulator(t *testing.T, w, h, radius int, decay float64) (*Accumulator, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	a, err := New(Config{Width: w, Height: h, Decay: decay, SmoothingRadius: radius, Clock: clock})
	require.NoError(t, err)
	return a, clock
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Width: 0, Height: 10, Decay: 0.9})
	assert.Error(t, err)
	_, err = New(Config{Width: 10, Height: 10, Decay: 0})
	assert.Error(t, err)
	_, err = New(Config{Width: 10, Height: 10, Decay: 1.01})
	assert.Error(t, err)
	_, err = New(Config{Width: 10, Height: 10, Decay: 1, SmoothingRadius: -1})
	assert.Error(t, err)

	a, err := New(Config{Width: 10, Height: 7, Decay: 1, CellSize: 4})
	require.NoError(t, err)
	cols, rows := a.Dims()
	assert.Equal(t, 3, cols)
	assert.Equal(t, 2, rows)
}

func TestUpdateUnitIntensity(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 20, 10, 0, 0.95)

	added := a.Update([]geom.Point{{X: 3.7, Y: 2.2}, {X: 3.1, Y: 2.9}, {X: -1, Y: 0}, {X: 20, Y: 5}, {X: 5, Y: 10}})
	assert.Equal(t, 2, added, "out of range positions are ignored")
	assert.Equal(t, 2.0, a.At(3, 2))
	assert.InDelta(t, 2.0, a.Sum(), 1e-12)
}

func TestSmoothingSpreadsMass(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 100, 100, 7, 0.95)
	a.Update([]geom.Point{{X: 50, Y: 50}})

	assert.InDelta(t, 1.0, a.Sum(), 1e-9, "kernel is normalized")
	center := a.At(50, 50)
	assert.Greater(t, center, a.At(53, 50))
	assert.Greater(t, a.At(53, 50), 0.0)
	assert.Equal(t, a.At(47, 50), a.At(53, 50), "kernel is symmetric")
	assert.Zero(t, a.At(58, 50), "nothing beyond the radius")

	// Near the border part of the kernel falls off the grid.
	b, _ := newTestAccumulator(t, 100, 100, 7, 0.95)
	b.Update([]geom.Point{{X: 0, Y: 0}})
	assert.Less(t, b.Sum(), 1.0)
}

func TestDecayMultipliesByPowerOfElapsed(t *testing.T) {
	t.Parallel()
	a, clock := newTestAccumulator(t, 50, 50, 3, 0.95)
	a.Update([]geom.Point{{X: 10, Y: 10}, {X: 30, Y: 40}})
	before := a.Snapshot()

	clock.Advance(7 * time.Second)
	a.Update(nil)
	after := a.Snapshot()

	factor := math.Pow(0.95, 7)
	for i := range before.Cells {
		assert.InDelta(t, before.Cells[i]*factor, after.Cells[i], 1e-12)
	}
}

func TestDecayAtLeastOneStepPerUpdate(t *testing.T) {
	t.Parallel()
	a, clock := newTestAccumulator(t, 10, 10, 0, 0.5)
	a.Update([]geom.Point{{X: 1, Y: 1}})
	assert.Equal(t, 1.0, a.At(1, 1), "the first update does not decay")

	clock.Advance(100 * time.Millisecond)
	a.Update(nil)
	assert.InDelta(t, 0.5, a.At(1, 1), 1e-12, "sub-second gap decays a full step")

	a.Update(nil)
	assert.InDelta(t, 0.25, a.At(1, 1), 1e-12, "no elapsed time still decays a full step")

	clock.Advance(2500 * time.Millisecond)
	a.Update(nil)
	assert.InDelta(t, 0.25*math.Pow(0.5, 2.5), a.At(1, 1), 1e-12)
}

func TestCellsNeverNegativeAndResetZeroes(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	a, clock := newTestAccumulator(t, 64, 48, 2, 0.8)

	for i := 0; i < 100; i++ {
		clock.Advance(time.Duration(rng.Intn(3000)) * time.Millisecond)
		pts := make([]geom.Point, rng.Intn(5))
		for j := range pts {
			pts[j] = geom.Point{X: rng.Float64()*80 - 8, Y: rng.Float64()*60 - 6}
		}
		a.Update(pts)
		for _, v := range a.Snapshot().Cells {
			require.GreaterOrEqual(t, v, 0.0)
		}
	}

	a.Reset()
	for _, v := range a.Snapshot().Cells {
		assert.Zero(t, v)
	}
}

func TestHotspots(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 40, 40, 0, 1)

	// Strong 3x3 block, weaker 2x2 block, and a single hot pixel.
	for y := 2; y < 5; y++ {
		for x := 2; x < 5; x++ {
			for k := 0; k < 10; k++ {
				a.Update([]geom.Point{{X: float64(x), Y: float64(y)}})
			}
		}
	}
	for y := 20; y < 22; y++ {
		for x := 30; x < 32; x++ {
			for k := 0; k < 8; k++ {
				a.Update([]geom.Point{{X: float64(x), Y: float64(y)}})
			}
		}
	}
	for k := 0; k < 9; k++ {
		a.Update([]geom.Point{{X: 35, Y: 35}})
	}

	spots := a.Hotspots(0.7, 2)
	require.Len(t, spots, 2, "single pixel is below min area")
	assert.Equal(t, 9, spots[0].Area)
	assert.Equal(t, geom.BoundingBox{X1: 2, Y1: 2, X2: 5, Y2: 5}, spots[0].BBox)
	assert.InDelta(t, 10.0, spots[0].Intensity, 1e-12)
	assert.InDelta(t, 1.0, spots[0].NormalizedIntensity, 1e-12)
	assert.Equal(t, 4, spots[1].Area)
	assert.InDelta(t, 0.8, spots[1].NormalizedIntensity, 1e-12)

	for i := 1; i < len(spots); i++ {
		assert.GreaterOrEqual(t, spots[i-1].Intensity, spots[i].Intensity)
	}
	for _, s := range a.Hotspots(0.5, 5) {
		assert.GreaterOrEqual(t, s.Area, 5)
	}

	// Deterministic for the same state.
	assert.Equal(t, spots, a.Hotspots(0.7, 2))

	a.Reset()
	assert.Empty(t, a.Hotspots(0.7, 1))
}

func TestHotspotsDiagonalIsNotConnected(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 10, 10, 0, 1)
	a.Update([]geom.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	spots := a.Hotspots(0.5, 1)
	require.Len(t, spots, 2)
	assert.Equal(t, 1, spots[0].Cells)
}

func TestHotspotsThresholdIsStrict(t *testing.T) {
	t.Parallel()
	s := Snapshot{Cols: 4, Rows: 1, CellSize: 1, Cells: []float64{10, 0, 7, 7.5}}

	spots := s.Hotspots(0.7, 1)
	require.Len(t, spots, 2, "a cell exactly at the threshold is not hot")
	assert.Equal(t, geom.BoundingBox{X1: 0, Y1: 0, X2: 1, Y2: 1}, spots[0].BBox)
	assert.Equal(t, geom.BoundingBox{X1: 3, Y1: 0, X2: 4, Y2: 1}, spots[1].BBox)

	assert.Empty(t, s.Hotspots(1, 1), "nothing exceeds the maximum")
}

func TestHotspotsCellSizeScalesArea(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	a, err := New(Config{Width: 40, Height: 40, CellSize: 4, Decay: 1, Clock: clock})
	require.NoError(t, err)
	a.Update([]geom.Point{{X: 9, Y: 9}})

	spots := a.Hotspots(0.5, 16)
	require.Len(t, spots, 1)
	assert.Equal(t, 16, spots[0].Area)
	assert.Equal(t, geom.BoundingBox{X1: 8, Y1: 8, X2: 12, Y2: 12}, spots[0].BBox)
}
