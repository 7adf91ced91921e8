package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"tailscale.com/tsweb"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/footpath/pipeline"
	"github.com/banshee-data/footpath.report/internal/footpath/replay"
	"github.com/banshee-data/footpath.report/internal/httputil"
	"github.com/banshee-data/footpath.report/internal/monitoring"
	"github.com/banshee-data/footpath.report/internal/timeutil"
)

// camera is one configured replay session.
type camera struct {
	id        string
	processor *pipeline.Processor
}

// newCameras builds a processor per configured camera. Each camera replays
// its recording against its own mock clock so timers follow recorded time.
func newCameras(cfg *config.FootpathConfig, persister pipeline.Persister, sink monitoring.Sink, speed float64) ([]camera, error) {
	cams := make([]camera, 0, len(cfg.Cameras))
	for _, cc := range cfg.Cameras {
		if cc.ReplayPath == "" {
			return nil, fmt.Errorf("camera %s: replay_path is required", cc.CameraID)
		}
		clock := timeutil.NewMockClock(timeutil.RealClock{}.Now())
		pcfg := pipeline.NewConfig(cfg, cc)
		pcfg.Clock = clock
		src := replay.NewSource(replay.SourceConfig{
			Path:            cc.ReplayPath,
			Clock:           clock,
			SpeedMultiplier: speed,
		})
		det := replay.Detector{MinConfidence: cfg.GetMinConfidence()}
		cams = append(cams, camera{
			id:        cc.CameraID,
			processor: pipeline.New(pcfg, src, det, persister, sink),
		})
	}
	return cams, nil
}

// runCamera blocks until the camera's session ends.
func runCamera(ctx context.Context, cam camera) {
	if err := cam.processor.Start(ctx); err != nil {
		log.Printf("camera %s: session failed: %v", cam.id, err)
		return
	}
	if ctx.Err() != nil {
		log.Printf("camera %s: stopped", cam.id)
		return
	}
	log.Printf("camera %s: replay finished", cam.id)
}

// cameraReport is the JSON body of /debug/cameras.
type cameraReport struct {
	Sessions []pipeline.Status          `json:"sessions"`
	Metrics  []monitoring.CameraMetrics `json:"metrics"`
}

// attachCameraRoutes serves /debug/cameras. An optional ?camera= narrows the
// report to one session.
func attachCameraRoutes(mux *http.ServeMux, cams []camera, metrics *monitoring.MetricsSink) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("cameras", "Camera session status and frame metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		want := r.URL.Query().Get("camera")
		rep := cameraReport{Sessions: make([]pipeline.Status, 0, len(cams))}
		for _, cam := range cams {
			if want == "" || cam.id == want {
				rep.Sessions = append(rep.Sessions, cam.processor.Status())
			}
		}
		if len(rep.Sessions) == 0 && want != "" {
			httputil.NotFound(w, fmt.Sprintf("unknown camera %s", want))
			return
		}
		for _, m := range metrics.Snapshot() {
			if want == "" || m.CameraID == want {
				rep.Metrics = append(rep.Metrics, m)
			}
		}
		httputil.WriteJSONOK(w, rep)
	})
}

// logWriters routes the enabled pipeline streams to stderr; ops is always on.
func logWriters(diag, trace bool) pipeline.LogWriters {
	w := pipeline.LogWriters{Ops: os.Stderr}
	if diag {
		w.Diag = os.Stderr
	}
	if trace {
		w.Trace = os.Stderr
	}
	return w
}
