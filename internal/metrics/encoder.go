package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "fps",
		Help:      "Current encoding FPS reported by the encoder",
	}, []string{"recording"})

	encoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by the encoder",
	}, []string{"recording"})

	encoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated by the encoder",
	}, []string{"recording"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "processing_speed",
		Help:      "Encoding speed multiplier",
	}, []string{"recording"})

	encoderFramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "frames_written_total",
		Help:      "Raw frames written to the encoder input",
	})

	encoderFramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "frames_skipped_total",
		Help:      "Frames not written because the encoder input was busy",
	})

	// Local cache for SSE exporter access.
	encoderCache   = make(map[string]*EncoderMetrics)
	encoderCacheMu sync.RWMutex
)

// EncoderMetrics holds current progress values for a recording.
type EncoderMetrics struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
}

// SetEncoderFPS sets the current FPS for a recording.
func SetEncoderFPS(recordingID string, fps float64) {
	encoderFPS.WithLabelValues(recordingID).Set(fps)
	updateCache(recordingID, func(m *EncoderMetrics) { m.FPS = fps })
}

// SetEncoderDroppedFrames sets the dropped frames count for a recording.
func SetEncoderDroppedFrames(recordingID string, count float64) {
	encoderDroppedFrames.WithLabelValues(recordingID).Set(count)
	updateCache(recordingID, func(m *EncoderMetrics) { m.DroppedFrames = count })
}

// SetEncoderDuplicateFrames sets the duplicate frames count for a recording.
func SetEncoderDuplicateFrames(recordingID string, count float64) {
	encoderDuplicateFrames.WithLabelValues(recordingID).Set(count)
	updateCache(recordingID, func(m *EncoderMetrics) { m.DuplicateFrames = count })
}

// SetEncoderSpeed sets the processing speed for a recording.
func SetEncoderSpeed(recordingID string, speed float64) {
	encoderSpeed.WithLabelValues(recordingID).Set(speed)
	updateCache(recordingID, func(m *EncoderMetrics) { m.Speed = speed })
}

// RecordEncoderFrame counts a frame written to the encoder, or skipped.
func RecordEncoderFrame(written bool) {
	if written {
		encoderFramesWritten.Inc()
		return
	}
	encoderFramesSkipped.Inc()
}

// DeleteEncoderMetrics removes all progress metrics for a recording.
func DeleteEncoderMetrics(recordingID string) {
	encoderFPS.DeleteLabelValues(recordingID)
	encoderDroppedFrames.DeleteLabelValues(recordingID)
	encoderDuplicateFrames.DeleteLabelValues(recordingID)
	encoderSpeed.DeleteLabelValues(recordingID)

	encoderCacheMu.Lock()
	delete(encoderCache, recordingID)
	encoderCacheMu.Unlock()
}

// GetEncoderMetrics returns current progress values for a recording.
func GetEncoderMetrics(recordingID string) *EncoderMetrics {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	if m, ok := encoderCache[recordingID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllEncoderMetrics returns progress values for all active recordings.
func GetAllEncoderMetrics() map[string]*EncoderMetrics {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	result := make(map[string]*EncoderMetrics, len(encoderCache))
	for id, m := range encoderCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(recordingID string, update func(*EncoderMetrics)) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	m, ok := encoderCache[recordingID]
	if !ok {
		m = &EncoderMetrics{}
		encoderCache[recordingID] = m
	}
	update(m)
}
