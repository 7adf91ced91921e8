package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/footpath.report/internal/monitoring"
)

var (
	// ErrSource means the frame source could not be opened or failed while
	// reading. It ends the session.
	ErrSource = errors.New("frame source error")
	// ErrDetector means detection failed for one frame. The frame is skipped.
	ErrDetector = errors.New("detector error")
	// ErrPersistence means a write failed. The data is kept and retried at the
	// next timer tick.
	ErrPersistence = errors.New("persistence error")
	// ErrConfiguration means the session cannot start with the given settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrComponent means an analytics component failed while handling one
	// frame or timer task.
	ErrComponent = errors.New("component error")

	errMining = fmt.Errorf("%w: pattern mining", ErrComponent)
)

// Classify maps an error onto the observability error class.
func Classify(err error) monitoring.ErrorClass {
	switch {
	case errors.Is(err, ErrSource):
		return monitoring.ErrorSource
	case errors.Is(err, ErrDetector):
		return monitoring.ErrorDetector
	case errors.Is(err, ErrPersistence):
		return monitoring.ErrorPersistence
	case errors.Is(err, ErrConfiguration):
		return monitoring.ErrorConfiguration
	case errors.Is(err, errMining):
		return monitoring.ErrorMining
	default:
		return monitoring.ErrorComponent
	}
}
