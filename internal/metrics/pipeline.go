// Package metrics provides Prometheus metrics for the frame pipeline, the
// capture session and the encoder.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shadercam"

// Render stages.
const (
	StageRender  = "render"
	StagePreview = "preview"
	StageEncode  = "encode"
	StagePhoto   = "photo"
)

var (
	framesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_rendered_total",
		Help:      "Frames rendered per stage",
	}, []string{"stage"})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frame_duration_seconds",
		Help:      "Time to process one camera frame through all stages",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	framesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_coalesced_total",
		Help:      "Frame notifications merged into an already queued one",
	})

	glErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "gl_errors_total",
		Help:      "GL errors observed after draw calls",
	}, []string{"stage"})

	shaderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shader",
		Name:      "compile_failures_total",
		Help:      "Shader compile or link failures",
	}, []string{"stage"})

	// Local mirror for the SSE exporter.
	pipelineMu    sync.RWMutex
	pipelineStats = PipelineStats{Frames: map[string]uint64{}}
)

// PipelineStats is a snapshot of pipeline counters.
type PipelineStats struct {
	Frames            map[string]uint64
	Coalesced         uint64
	LastFrameDuration time.Duration
}

// RecordFrame counts a rendered stage.
func RecordFrame(stage string) {
	framesRendered.WithLabelValues(stage).Inc()
	pipelineMu.Lock()
	pipelineStats.Frames[stage]++
	pipelineMu.Unlock()
}

// ObserveFrameDuration records the time spent on one camera frame.
func ObserveFrameDuration(d time.Duration) {
	frameDuration.Observe(d.Seconds())
	pipelineMu.Lock()
	pipelineStats.LastFrameDuration = d
	pipelineMu.Unlock()
}

// RecordFrameCoalesced counts a merged frame notification.
func RecordFrameCoalesced() {
	framesCoalesced.Inc()
	pipelineMu.Lock()
	pipelineStats.Coalesced++
	pipelineMu.Unlock()
}

// RecordGLError counts a GL error seen in stage.
func RecordGLError(stage string) {
	glErrors.WithLabelValues(stage).Inc()
}

// RecordShaderFailure counts a shader build failure at stage.
func RecordShaderFailure(stage string) {
	shaderFailures.WithLabelValues(stage).Inc()
}

// GetPipelineStats returns a copy of the pipeline counters.
func GetPipelineStats() PipelineStats {
	pipelineMu.RLock()
	defer pipelineMu.RUnlock()
	out := pipelineStats
	out.Frames = make(map[string]uint64, len(pipelineStats.Frames))
	for k, v := range pipelineStats.Frames {
		out.Frames[k] = v
	}
	return out
}
