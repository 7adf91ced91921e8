package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalyticsSnapshot is one persisted analytics window for a camera zone.
// ZoneID is empty for cameras without zones. Rows are never updated.
type AnalyticsSnapshot struct {
	ID             string          `json:"snapshot_id"`
	CameraID       string          `json:"camera_id"`
	ZoneID         string          `json:"zone_id"`
	WindowStart    time.Time       `json:"window_start"`
	WindowEnd      time.Time       `json:"window_end"`
	TrafficCount   int             `json:"traffic_count"`
	UniqueVisitors int             `json:"unique_visitors"`
	AvgDwellSecs   float64         `json:"avg_dwell_time"`
	MaxDwellSecs   float64         `json:"max_dwell_time"`
	TotalDwellSecs float64         `json:"total_dwell_time"`
	HeatmapWidth   int             `json:"heatmap_width"`
	HeatmapHeight  int             `json:"heatmap_height"`
	HeatmapBlob    []byte          `json:"-"`
	HotspotsJSON   json.RawMessage `json:"hotspots,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PatternPoint is one representative member of a persisted pattern.
type PatternPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PatternRecord is the persisted form of a mined movement pattern.
type PatternRecord struct {
	ID             string         `json:"pattern_id"`
	CameraID       string         `json:"camera_id"`
	ZoneID         string         `json:"zone_id"`
	PatternType    string         `json:"pattern_type"`
	CenterX        float64        `json:"center_x"`
	CenterY        float64        `json:"center_y"`
	Members        []PatternPoint `json:"members"`
	PointCount     int            `json:"point_count"`
	Frequency      int            `json:"frequency"`
	DistinctTracks int            `json:"distinct_tracks"`
	AvgDurationSec float64        `json:"avg_duration"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      time.Time      `json:"created_at"`
}

// SegmentRecord is the persisted form of a finalized track path.
type SegmentRecord struct {
	ID          string         `json:"segment_id"`
	CameraID    string         `json:"camera_id"`
	TrackID     string         `json:"track_id"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	DurationSec float64        `json:"duration"`
	Points      []PatternPoint `json:"points"`
	CreatedAt   time.Time      `json:"created_at"`
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// inTx runs fn inside a single transaction, retrying the whole transaction
// on lock contention.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// SaveSnapshots inserts one analytics window's snapshots atomically.
// Missing IDs and creation times are filled in.
func (db *DB) SaveSnapshots(ctx context.Context, snapshots []AnalyticsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	now := time.Now()
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO footpath_analytics (
				snapshot_id, camera_id, zone_id, window_start, window_end,
				traffic_count, unique_visitors, avg_dwell_time, max_dwell_time, total_dwell_time,
				heatmap_width, heatmap_height, heatmap_blob, hotspots_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range snapshots {
			s := &snapshots[i]
			if s.ID == "" {
				s.ID = uuid.NewString()
			}
			if s.CreatedAt.IsZero() {
				s.CreatedAt = now
			}
			var blob, hotspots interface{}
			if len(s.HeatmapBlob) > 0 {
				blob = s.HeatmapBlob
			}
			if len(s.HotspotsJSON) > 0 {
				hotspots = string(s.HotspotsJSON)
			}
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.CameraID, s.ZoneID, nanos(s.WindowStart), nanos(s.WindowEnd),
				s.TrafficCount, s.UniqueVisitors, s.AvgDwellSecs, s.MaxDwellSecs, s.TotalDwellSecs,
				s.HeatmapWidth, s.HeatmapHeight, blob, hotspots, nanos(s.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save analytics snapshots: %w", err)
	}
	return nil
}

// SavePatterns inserts a batch of mined patterns atomically.
func (db *DB) SavePatterns(ctx context.Context, patterns []PatternRecord) error {
	if len(patterns) == 0 {
		return nil
	}
	now := time.Now()
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO footpath_patterns (
				pattern_id, camera_id, zone_id, pattern_type, center_x, center_y,
				members_json, point_count, frequency, distinct_tracks, avg_duration,
				confidence, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range patterns {
			p := &patterns[i]
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			members, err := json.Marshal(p.Members)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				p.ID, p.CameraID, p.ZoneID, p.PatternType, p.CenterX, p.CenterY,
				string(members), p.PointCount, p.Frequency, p.DistinctTracks, p.AvgDurationSec,
				p.Confidence, nanos(p.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save patterns: %w", err)
	}
	return nil
}

// SaveSegments inserts a batch of finalized path segments atomically.
func (db *DB) SaveSegments(ctx context.Context, segments []SegmentRecord) error {
	if len(segments) == 0 {
		return nil
	}
	now := time.Now()
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO footpath_segments (
				segment_id, camera_id, track_id, start_time, end_time, duration,
				point_count, points_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range segments {
			s := &segments[i]
			if s.ID == "" {
				s.ID = uuid.NewString()
			}
			if s.CreatedAt.IsZero() {
				s.CreatedAt = now
			}
			points, err := json.Marshal(s.Points)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.CameraID, s.TrackID, nanos(s.StartTime), nanos(s.EndTime), s.DurationSec,
				len(s.Points), string(points), nanos(s.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save path segments: %w", err)
	}
	return nil
}

const snapshotColumns = `snapshot_id, camera_id, zone_id, window_start, window_end,
		traffic_count, unique_visitors, avg_dwell_time, max_dwell_time, total_dwell_time,
		heatmap_width, heatmap_height, heatmap_blob, hotspots_json, created_at`

func scanSnapshot(row interface{ Scan(...any) error }) (AnalyticsSnapshot, error) {
	var s AnalyticsSnapshot
	var start, end, created int64
	var hotspots sql.NullString
	err := row.Scan(
		&s.ID, &s.CameraID, &s.ZoneID, &start, &end,
		&s.TrafficCount, &s.UniqueVisitors, &s.AvgDwellSecs, &s.MaxDwellSecs, &s.TotalDwellSecs,
		&s.HeatmapWidth, &s.HeatmapHeight, &s.HeatmapBlob, &hotspots, &created,
	)
	if err != nil {
		return s, err
	}
	s.WindowStart, s.WindowEnd, s.CreatedAt = fromNanos(start), fromNanos(end), fromNanos(created)
	if hotspots.Valid {
		s.HotspotsJSON = json.RawMessage(hotspots.String)
	}
	return s, nil
}

// Snapshots returns up to limit snapshots for a camera, newest window first.
func (db *DB) Snapshots(cameraID string, limit int) ([]AnalyticsSnapshot, error) {
	rows, err := db.Query(`SELECT `+snapshotColumns+`
		FROM footpath_analytics
		WHERE camera_id = ?
		ORDER BY window_end DESC, zone_id ASC
		LIMIT ?`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []AnalyticsSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent snapshot for a camera that carries a
// heatmap. It returns sql.ErrNoRows when there is none.
func (db *DB) LatestSnapshot(cameraID string) (AnalyticsSnapshot, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+`
		FROM footpath_analytics
		WHERE camera_id = ? AND heatmap_blob IS NOT NULL
		ORDER BY window_end DESC, zone_id ASC
		LIMIT 1`, cameraID)
	return scanSnapshot(row)
}

// Patterns returns up to limit patterns for a camera, newest first.
func (db *DB) Patterns(cameraID string, limit int) ([]PatternRecord, error) {
	rows, err := db.Query(`
		SELECT pattern_id, camera_id, zone_id, pattern_type, center_x, center_y,
		       members_json, point_count, frequency, distinct_tracks, avg_duration,
		       confidence, created_at
		FROM footpath_patterns
		WHERE camera_id = ?
		ORDER BY created_at DESC, center_x ASC, center_y ASC
		LIMIT ?`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []PatternRecord
	for rows.Next() {
		var p PatternRecord
		var members string
		var created int64
		if err := rows.Scan(
			&p.ID, &p.CameraID, &p.ZoneID, &p.PatternType, &p.CenterX, &p.CenterY,
			&members, &p.PointCount, &p.Frequency, &p.DistinctTracks, &p.AvgDurationSec,
			&p.Confidence, &created,
		); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &p.Members); err != nil {
			return nil, fmt.Errorf("decode pattern %s members: %w", p.ID, err)
		}
		p.CreatedAt = fromNanos(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Segments returns up to limit path segments for a camera, most recently
// ended first.
func (db *DB) Segments(cameraID string, limit int) ([]SegmentRecord, error) {
	rows, err := db.Query(`
		SELECT segment_id, camera_id, track_id, start_time, end_time, duration,
		       points_json, created_at
		FROM footpath_segments
		WHERE camera_id = ?
		ORDER BY end_time DESC, track_id ASC
		LIMIT ?`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentRecord
	for rows.Next() {
		var s SegmentRecord
		var points string
		var start, end, created int64
		if err := rows.Scan(
			&s.ID, &s.CameraID, &s.TrackID, &start, &end, &s.DurationSec,
			&points, &created,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if err := json.Unmarshal([]byte(points), &s.Points); err != nil {
			return nil, fmt.Errorf("decode segment %s points: %w", s.ID, err)
		}
		s.StartTime, s.EndTime, s.CreatedAt = fromNanos(start), fromNanos(end), fromNanos(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CameraIDs lists every camera with at least one persisted snapshot.
func (db *DB) CameraIDs() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT camera_id FROM footpath_analytics ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
