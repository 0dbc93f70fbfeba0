package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes pipeline and encoder stats as events.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	stats := metrics.GetPipelineStats()
	ev := events.PipelineMetricsEvent{
		EventType:       "pipeline_metrics",
		Frames:          stats.Frames,
		Coalesced:       stats.Coalesced,
		FrameTimeMillis: strconv.FormatFloat(float64(stats.LastFrameDuration.Microseconds())/1000, 'f', 2, 64),
	}
	// At most one recording runs at a time.
	for _, m := range metrics.GetAllEncoderMetrics() {
		ev.EncoderFPS = strconv.FormatFloat(m.FPS, 'f', 2, 64)
		ev.EncoderDropped = strconv.FormatFloat(m.DroppedFrames, 'f', 0, 64)
		ev.EncoderSpeed = strconv.FormatFloat(m.Speed, 'f', 2, 64)
	}
	s.eventBus.Publish(ev)
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"pipeline-metrics": events.PipelineMetricsEvent{},
	}
}

// GetEventTypesForEndpoint returns event types for a specific SSE endpoint.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	if endpoint == "events" {
		return GetEventTypes()
	}
	return map[string]any{}
}

// GetEventRoutes returns the routing configuration for events.
func GetEventRoutes() map[string]string {
	return map[string]string{
		"pipeline-metrics": "events",
	}
}
