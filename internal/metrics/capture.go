package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recording results.
const (
	RecordingSaved          = "saved"
	RecordingMissingOutput  = "missing_output"
	RecordingShutdownFailed = "shutdown_failed"
)

var (
	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "recording_active",
		Help:      "1 while a recording is in progress",
	})

	recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "recordings_total",
		Help:      "Finished recordings by result",
	}, []string{"result"})

	photos = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "photos_total",
		Help:      "Photos captured",
	})

	sessionInits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "session_inits_total",
		Help:      "Capture session initialization attempts by result",
	}, []string{"result"})

	cameraErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "errors_total",
		Help:      "Camera device and session errors by reason",
	}, []string{"reason"})
)

// SetRecordingActive sets the recording gauge.
func SetRecordingActive(active bool) {
	if active {
		recordingActive.Set(1)
		return
	}
	recordingActive.Set(0)
}

// RecordRecording counts a finished recording.
func RecordRecording(result string) {
	recordings.WithLabelValues(result).Inc()
}

// RecordPhoto counts a captured photo.
func RecordPhoto() {
	photos.Inc()
}

// RecordSessionInit counts an init attempt; result is "ok" or an error class.
func RecordSessionInit(result string) {
	sessionInits.WithLabelValues(result).Inc()
}

// RecordCameraError counts a camera failure.
func RecordCameraError(reason string) {
	cameraErrors.WithLabelValues(reason).Inc()
}
