package monitoring

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogf routes Logf into the returned slice until the test ends.
func captureLogf(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogf(t)
	Logf("frame %d", 7)
	assert.Equal(t, []string{"frame 7"}, *lines)

	SetLogger(nil)
	require.NotNil(t, Logf)
	Logf("dropped")
	assert.Len(t, *lines, 1, "a nil logger mutes output")
}

func TestLogf_Default(t *testing.T) {
	require.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestLogSink_SessionLifecycle(t *testing.T) {
	lines := captureLogf(t)

	sink := LogSink{}
	sink.StatusChanged("lobby", StatusInitialized)
	sink.FrameProcessed("lobby", 3*time.Millisecond, 2, 1)
	sink.StatusChanged("lobby", StatusActive)
	sink.Error("lobby", ErrorPersistence, errors.New("disk full"))
	sink.StatusChanged("lobby", StatusStopped)

	assert.Equal(t, []string{
		"[camera lobby] status=initialized",
		"[camera lobby] status=active",
		"[camera lobby] error class=persistence: disk full",
		"[camera lobby] status=stopped",
	}, *lines, "frames are not logged unless verbose")

	*lines = nil
	LogSink{Verbose: true}.FrameProcessed("lobby", 3*time.Millisecond, 2, 1)
	assert.Equal(t, []string{"[camera lobby] frame processed in 3ms: detections=2 tracks=1"}, *lines)

	*lines = nil
	SetLogger(nil)
	LogSink{Verbose: true}.Error("lobby", ErrorDetector, errors.New("bad frame"))
	assert.Empty(t, *lines)
}
