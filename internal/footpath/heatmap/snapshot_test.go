package heatmap

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

func TestSnapshotIsImmutableCopy(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 8, 8, 0, 1)
	a.Update([]geom.Point{{X: 1, Y: 1}})
	snap := a.Snapshot()

	a.Update([]geom.Point{{X: 1, Y: 1}})
	assert.Equal(t, 1.0, snap.At(1, 1))
	assert.Equal(t, 2.0, a.At(1, 1))
	assert.Equal(t, epoch, snap.TakenAt)
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccumulator(t, 32, 24, 2, 0.95)
	a.Update([]geom.Point{{X: 5, Y: 5}, {X: 20, Y: 10}})
	snap := a.Snapshot()

	blob, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	got, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, snap.Hotspots(0.5, 1), got.Hotspots(0.5, 1))
}

func TestDecodeSnapshotErrors(t *testing.T) {
	t.Parallel()
	_, err := DecodeSnapshot(nil)
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte("not gzip"))
	assert.Error(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("not gob"))
	require.NoError(t, gz.Close())
	_, err = DecodeSnapshot(buf.Bytes())
	assert.Error(t, err)

	blob, err := EncodeSnapshot(Snapshot{Cols: 3, Rows: 3, CellSize: 1, Cells: []float64{1, 2}})
	require.NoError(t, err)
	_, err = DecodeSnapshot(blob)
	assert.ErrorContains(t, err, "has 2 cells")
}

func TestSparseExport(t *testing.T) {
	t.Parallel()
	s := Snapshot{Cols: 3, Rows: 2, CellSize: 1, Cells: []float64{0, 4, 0.2, 0, 0, 2}}
	got := s.Sparse(0.1)

	want := SparseExport{
		Cols: 3, Rows: 2, CellSize: 1, MaxValue: 4,
		Points: []SparsePoint{{X: 1, Y: 0, Value: 1}, {X: 2, Y: 1, Value: 0.5}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sparse mismatch (-want +got):\n%s", diff)
	}

	empty := Snapshot{Cols: 2, Rows: 1, CellSize: 1, Cells: []float64{0, 0}}.Sparse(0.1)
	assert.Empty(t, empty.Points)
	assert.Zero(t, empty.MaxValue)
}
