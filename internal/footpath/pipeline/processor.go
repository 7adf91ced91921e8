package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/heatmap"
	"github.com/banshee-data/footpath.report/internal/footpath/patterns"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
	"github.com/banshee-data/footpath.report/internal/footpath/zones"
	"github.com/banshee-data/footpath.report/internal/monitoring"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// FrameResult summarises one processed frame.
type FrameResult struct {
	Seq        uint64
	Detections int
	Tracks     int
	Elapsed    time.Duration
}

// Processor runs the analytics session of one camera. Component state is
// owned by the goroutine running Start and is never locked; Stop and Status
// are safe to call from other goroutines.
type Processor struct {
	cfg       Config
	clock     timeutil.Clock
	source    FrameSource
	detector  Detector
	persister Persister
	sink      monitoring.Sink
	miner     *patterns.Miner

	store  *tracks.Store
	engine *zones.Engine
	heat   *heatmap.Accumulator
	width  int
	height int

	windowStart  time.Time
	lastSnapshot time.Time
	lastMining   time.Time
	lastCleanup  time.Time
	// pending holds final segments of evicted tracks until they are persisted.
	pending []tracks.PathSegment
	// minedThrough is the last sample time per track already handed to the
	// miner.
	minedThrough map[string]time.Time

	framesProcessed uint64
	framesFailed    uint64
	lastErr         error

	started   atomic.Bool
	stopping  atomic.Bool
	closeOnce sync.Once

	statusMu sync.Mutex
	status   Status
}

// New creates a processor. A nil persister discards output and a nil sink
// drops observability events.
func New(cfg Config, source FrameSource, detector Detector, persister Persister, sink monitoring.Sink) *Processor {
	cfg = cfg.withDefaults()
	if persister == nil {
		persister = nopPersister{}
	}
	if sink == nil {
		sink = monitoring.NopSink{}
	}
	return &Processor{
		cfg:       cfg,
		clock:     cfg.Clock,
		source:    source,
		detector:  detector,
		persister: persister,
		sink:      sink,
		miner: patterns.NewMiner(patterns.MinerConfig{
			Eps:           cfg.DBSCANEps,
			MinSamples:    cfg.DBSCANMinSamples,
			Confidence:    cfg.PatternConfidence,
			FrequencyMode: cfg.FrequencyMode,
			Clock:         cfg.Clock,
		}),
		minedThrough: make(map[string]time.Time),
		status:       Status{CameraID: cfg.CameraID, State: StateUninitialized},
	}
}

// Start runs the session until Stop is called, ctx is cancelled or the
// source is exhausted. Only source and configuration errors are returned;
// everything else is reported to the sink and the loop carries on.
func (p *Processor) Start(ctx context.Context) error {
	id := p.cfg.CameraID
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: processor for camera %s already started", ErrConfiguration, id)
	}
	p.sink.StatusChanged(id, monitoring.StatusInitialized)
	if p.source == nil || p.detector == nil {
		return p.fail(fmt.Errorf("%w: camera %s needs a frame source and a detector", ErrConfiguration, id))
	}
	if err := p.cfg.validate(); err != nil {
		return p.fail(fmt.Errorf("%w: camera %s: %w", ErrConfiguration, id, err))
	}

	if err := p.source.Open(ctx); err != nil {
		return p.fail(fmt.Errorf("%w: failed to open source for camera %s: %w", ErrSource, id, err))
	}
	defer p.closeSource()

	first, err := p.source.Read(ctx)
	if err != nil {
		return p.fail(fmt.Errorf("%w: failed to read first frame for camera %s: %w", ErrSource, id, err))
	}
	if err := p.initialize(first); err != nil {
		return p.fail(err)
	}
	Opsf("camera %s started: %dx%d, %d zones", id, p.width, p.height, len(p.cfg.Zones))

	p.iterate(ctx, first)
	for !p.stopping.Load() && ctx.Err() == nil {
		frame, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			Diagf("camera %s: source exhausted", id)
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return p.fail(fmt.Errorf("%w: camera %s: %w", ErrSource, id, err))
		}
		p.iterate(ctx, frame)
	}

	if p.cfg.FinalFlush {
		p.flushFinal(context.WithoutCancel(ctx))
	}
	p.publish()
	p.setState(StateStopped)
	Opsf("camera %s stopped after %d frames (%d failed)", id, p.framesProcessed, p.framesFailed)
	return nil
}

// Stop asks the loop to exit after the in-flight frame.
func (p *Processor) Stop() {
	p.stopping.Store(true)
}

// Status returns the latest published status.
func (p *Processor) Status() Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.status
}

// State returns the lifecycle state.
func (p *Processor) State() State {
	return p.Status().State
}

// initialize sizes the heatmap from the first frame and builds the
// per-session components.
func (p *Processor) initialize(first Frame) error {
	if first.Width <= 0 || first.Height <= 0 {
		return fmt.Errorf("%w: camera %s: invalid frame resolution %dx%d", ErrSource, p.cfg.CameraID, first.Width, first.Height)
	}
	engine, err := zones.NewEngine(p.cfg.Zones)
	if err != nil {
		return fmt.Errorf("%w: camera %s: %w", ErrConfiguration, p.cfg.CameraID, err)
	}
	heat, err := heatmap.New(heatmap.Config{
		Width:           first.Width,
		Height:          first.Height,
		CellSize:        p.cfg.HeatmapCellSize,
		Decay:           p.cfg.HeatmapDecay,
		SmoothingRadius: p.cfg.SmoothingRadius,
		Clock:           p.clock,
	})
	if err != nil {
		return fmt.Errorf("%w: camera %s: %w", ErrConfiguration, p.cfg.CameraID, err)
	}

	p.store = tracks.NewStore(p.clock)
	p.engine = engine
	p.heat = heat
	p.width, p.height = first.Width, first.Height
	now := p.clock.Now()
	p.windowStart, p.lastSnapshot, p.lastMining, p.lastCleanup = now, now, now, now
	p.setState(StateActive)
	return nil
}

// ProcessFrame runs detection and the per-frame updates for one frame. The
// first call on a processor that was not started sizes the session from the
// frame. It must only be called from the goroutine that owns the processor.
func (p *Processor) ProcessFrame(ctx context.Context, frame Frame) (res FrameResult, err error) {
	res.Seq = frame.Seq
	if p.store == nil {
		if p.detector == nil {
			return res, fmt.Errorf("%w: camera %s has no detector", ErrConfiguration, p.cfg.CameraID)
		}
		if err := p.initialize(frame); err != nil {
			return res, err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: camera %s frame %d: %v", ErrComponent, p.cfg.CameraID, frame.Seq, r)
		}
	}()

	t0 := time.Now()
	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return res, fmt.Errorf("%w: camera %s frame %d: %w", ErrDetector, p.cfg.CameraID, frame.Seq, err)
	}

	p.store.Update(dets)
	p.engine.Analyze(p.store.Tracks(p.cfg.MinTrackLength))

	centers := make([]geom.Point, 0, len(dets))
	for _, d := range dets {
		if c := d.BBox.Center(); c.Finite() {
			centers = append(centers, c)
		}
	}
	p.heat.Update(centers)

	res.Detections = len(dets)
	res.Tracks = p.store.Len()
	res.Elapsed = time.Since(t0)
	Tracef("camera %s frame %d: detections=%d tracks=%d elapsed=%v", p.cfg.CameraID, frame.Seq, res.Detections, res.Tracks, res.Elapsed)
	return res, nil
}

func (p *Processor) iterate(ctx context.Context, frame Frame) {
	t0 := time.Now()
	res, err := p.ProcessFrame(ctx, frame)
	if err != nil {
		p.framesFailed++
		p.report(err)
	} else {
		p.framesProcessed++
	}
	p.runTimers(ctx)
	p.sink.FrameProcessed(p.cfg.CameraID, time.Since(t0), res.Detections, res.Tracks)
	p.publish()
}

// runTimers fires every periodic task whose interval has elapsed. A failed
// task still advances its timer; the data it could not persist is kept for
// the next tick.
func (p *Processor) runTimers(ctx context.Context) {
	now := p.clock.Now()
	if now.Sub(p.lastSnapshot) >= p.cfg.SnapshotInterval {
		p.lastSnapshot = now
		p.runTask(ErrComponent, func() error { return p.snapshot(ctx, now) })
	}
	if now.Sub(p.lastMining) >= p.cfg.MiningInterval {
		p.lastMining = now
		p.runTask(errMining, func() error { return p.mine(ctx, now, false) })
	}
	if now.Sub(p.lastCleanup) >= p.cfg.CleanupInterval {
		p.lastCleanup = now
		p.runTask(ErrComponent, func() error { return p.cleanup() })
	}
}

func (p *Processor) runTask(panicErr error, task func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: camera %s: %v", panicErr, p.cfg.CameraID, r)
			}
		}()
		return task()
	}()
	if err != nil {
		p.report(err)
	}
}

// snapshot persists the analytics window ending at now and, on success,
// starts a new window. On failure nothing is reset so the next attempt
// covers both windows.
func (p *Processor) snapshot(ctx context.Context, now time.Time) error {
	records, err := p.snapshotRecords(now)
	if err != nil {
		return fmt.Errorf("%w: camera %s: failed to build snapshot: %w", ErrComponent, p.cfg.CameraID, err)
	}
	if err := p.persister.SaveSnapshots(ctx, records); err != nil {
		return fmt.Errorf("%w: camera %s window %s: %w", ErrPersistence, p.cfg.CameraID, p.windowStart.Format(time.RFC3339), err)
	}
	Diagf("camera %s: saved %d analytics snapshots for %s..%s", p.cfg.CameraID, len(records),
		p.windowStart.Format(time.RFC3339), now.Format(time.RFC3339))

	p.engine.Reset()
	p.heat.Reset()
	p.store.ResetStatistics()
	p.windowStart = now
	return nil
}

// snapshotRecords builds one record per zone, or a single camera-wide record
// when no zones are configured. The heatmap and hotspots ride on the first
// record only.
func (p *Processor) snapshotRecords(now time.Time) ([]db.AnalyticsSnapshot, error) {
	snap := p.heat.Snapshot()
	blob, err := heatmap.EncodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	hotspots, err := json.Marshal(snap.Hotspots(p.cfg.HotspotThreshold, p.cfg.HotspotMinArea))
	if err != nil {
		return nil, err
	}

	rollups := p.engine.Analytics()
	if len(rollups) == 0 {
		rollups = []zones.Analytics{{}}
	}
	stats := p.store.Stats()
	records := make([]db.AnalyticsSnapshot, 0, len(rollups))
	for i, a := range rollups {
		rec := db.AnalyticsSnapshot{
			ID:             uuid.NewString(),
			CameraID:       p.cfg.CameraID,
			ZoneID:         a.ZoneID,
			WindowStart:    p.windowStart,
			WindowEnd:      now,
			TrafficCount:   stats.TotalDetections,
			UniqueVisitors: a.UniqueVisitors,
			AvgDwellSecs:   a.AvgDwellSecs,
			MaxDwellSecs:   a.MaxDwellSecs,
			TotalDwellSecs: a.TotalDwellSecs,
			HeatmapWidth:   p.width,
			HeatmapHeight:  p.height,
			CreatedAt:      now,
		}
		if i == 0 {
			rec.HeatmapBlob = blob
			rec.HotspotsJSON = hotspots
		}
		records = append(records, rec)
	}
	return records, nil
}

// mine clusters the samples no earlier run has seen: those of the pending
// final segments and of tracks alive for at least one mining interval (every
// live track when final is set). It persists the patterns and then the
// pending segments. Pending segments are only dropped once they are stored.
func (p *Processor) mine(ctx context.Context, now time.Time, final bool) error {
	candidates := append([]tracks.PathSegment(nil), p.pending...)
	for _, t := range p.store.Tracks(p.cfg.MinTrackLength) {
		if final || now.Sub(t.FirstSeen) >= p.cfg.MiningInterval {
			candidates = append(candidates, t.Segment(false))
		}
	}
	segs := make([]tracks.PathSegment, 0, len(candidates))
	for _, c := range candidates {
		if seg, ok := c.Since(p.minedThrough[c.TrackID]); ok {
			segs = append(segs, seg)
		}
	}

	found := p.miner.FindPatterns(segs, p.cfg.PatternMinFrequency)
	Diagf("camera %s: mined %d patterns from %d segments", p.cfg.CameraID, len(found), len(segs))
	if len(found) > 0 {
		if err := p.persister.SavePatterns(ctx, p.patternRecords(found)); err != nil {
			return fmt.Errorf("%w: camera %s: %w", ErrPersistence, p.cfg.CameraID, err)
		}
	}
	for _, seg := range segs {
		p.minedThrough[seg.TrackID] = seg.Timestamps[len(seg.Timestamps)-1]
	}

	if len(p.pending) > 0 {
		if err := p.persister.SaveSegments(ctx, p.segmentRecords(p.pending, now)); err != nil {
			return fmt.Errorf("%w: camera %s: %w", ErrPersistence, p.cfg.CameraID, err)
		}
		p.forgetMined(p.pending)
		p.pending = nil
	}
	return nil
}

func (p *Processor) patternRecords(found []patterns.Pattern) []db.PatternRecord {
	out := make([]db.PatternRecord, 0, len(found))
	for _, pat := range found {
		zoneID, _ := p.engine.ZoneAt(pat.Center)
		members := make([]db.PatternPoint, len(pat.Members))
		for i, m := range pat.Members {
			members[i] = db.PatternPoint{X: m.X, Y: m.Y}
		}
		out = append(out, db.PatternRecord{
			ID:             pat.ID,
			CameraID:       p.cfg.CameraID,
			ZoneID:         zoneID,
			PatternType:    pat.Type,
			CenterX:        pat.Center.X,
			CenterY:        pat.Center.Y,
			Members:        members,
			PointCount:     pat.PointCount,
			Frequency:      pat.Frequency,
			DistinctTracks: pat.DistinctTracks,
			AvgDurationSec: pat.AvgDuration.Seconds(),
			Confidence:     pat.Confidence,
			CreatedAt:      pat.CreatedAt,
		})
	}
	return out
}

func (p *Processor) segmentRecords(segs []tracks.PathSegment, now time.Time) []db.SegmentRecord {
	out := make([]db.SegmentRecord, 0, len(segs))
	for _, s := range segs {
		points := make([]db.PatternPoint, len(s.Points))
		for i, pt := range s.Points {
			points[i] = db.PatternPoint{X: pt.X, Y: pt.Y}
		}
		out = append(out, db.SegmentRecord{
			ID:          uuid.NewString(),
			CameraID:    p.cfg.CameraID,
			TrackID:     s.TrackID,
			StartTime:   s.Start,
			EndTime:     s.End,
			DurationSec: s.Duration.Seconds(),
			Points:      points,
			CreatedAt:   now,
		})
	}
	return out
}

// cleanup evicts stale tracks, drops their open zone intervals and queues
// their final segments for persistence.
func (p *Processor) cleanup() error {
	evicted := p.store.EvictStale(p.cfg.TrackMaxAge)
	if len(evicted) == 0 {
		return nil
	}
	ids := make([]string, len(evicted))
	for i, s := range evicted {
		ids[i] = s.TrackID
	}
	p.engine.Forget(ids)

	p.pending = append(p.pending, evicted...)
	if over := len(p.pending) - p.cfg.MaxPendingSegments; over > 0 {
		Opsf("camera %s: pending segment queue full, dropping %d oldest", p.cfg.CameraID, over)
		p.forgetMined(p.pending[:over])
		p.pending = append([]tracks.PathSegment(nil), p.pending[over:]...)
	}
	Diagf("camera %s: evicted %d stale tracks, %d segments pending", p.cfg.CameraID, len(evicted), len(p.pending))
	return nil
}

func (p *Processor) forgetMined(segs []tracks.PathSegment) {
	for _, s := range segs {
		delete(p.minedThrough, s.TrackID)
	}
}

// flushFinal persists the open analytics window and pending segments when
// the session ends cleanly.
func (p *Processor) flushFinal(ctx context.Context) {
	now := p.clock.Now()
	p.runTask(ErrComponent, func() error { return p.snapshot(ctx, now) })
	p.runTask(errMining, func() error { return p.mine(ctx, now, true) })
}

func (p *Processor) report(err error) {
	class := Classify(err)
	p.lastErr = err
	if class == monitoring.ErrorDetector {
		Diagf("%v", err)
	} else {
		Opsf("%v", err)
	}
	p.sink.Error(p.cfg.CameraID, class, err)
}

func (p *Processor) fail(err error) error {
	p.report(err)
	p.publish()
	p.setState(StateStopped)
	return err
}

func (p *Processor) closeSource() {
	p.closeOnce.Do(func() {
		if err := p.source.Close(); err != nil {
			Opsf("camera %s: failed to close source: %v", p.cfg.CameraID, err)
		}
	})
}

func (p *Processor) setState(s State) {
	p.statusMu.Lock()
	changed := p.status.State != s
	p.status.State = s
	p.statusMu.Unlock()
	if changed {
		p.sink.StatusChanged(p.cfg.CameraID, s.cameraStatus())
	}
}

// publish refreshes the status snapshot read by other goroutines.
func (p *Processor) publish() {
	st := Status{
		CameraID:        p.cfg.CameraID,
		Width:           p.width,
		Height:          p.height,
		FramesProcessed: p.framesProcessed,
		FramesFailed:    p.framesFailed,
		PendingSegments: len(p.pending),
		WindowStart:     p.windowStart,
		LastSnapshot:    p.lastSnapshot,
		LastMining:      p.lastMining,
		LastCleanup:     p.lastCleanup,
	}
	if p.store != nil {
		st.Tracking = p.store.Stats()
		st.ActiveTracks = len(p.store.ActiveTracks(p.cfg.ActiveWindow))
		st.Zones = p.engine.Analytics()
		st.HeatmapCols, st.HeatmapRows = p.heat.Dims()
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}

	p.statusMu.Lock()
	st.State = p.status.State
	p.status = st
	p.statusMu.Unlock()
}
