package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/metrics/exporters"
)

// sseBuffer is the per-connection event backlog. Events beyond it are
// dropped for that connection.
const sseBuffer = 32

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time capture state, saved media, shader changes, user-facing errors and pipeline metrics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"state-changed":      events.StateChangedEvent{},
			"recording-finished": events.RecordingFinishedEvent{},
			"photo-captured":     events.PhotoCapturedEvent{},
			"user-error":         events.UserErrorEvent{},
			"shader-changed":     events.ShaderChangedEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypesForEndpoint("events"))
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.StateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingFinishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PhotoCapturedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.UserErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ShaderChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// New clients start from the current state
		if err := send.Data(s.camera.State().Event()); err != nil {
			return
		}
		forward(ctx, eventCh, send)
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics/stream",
		Summary:     "Metrics Stream",
		Description: "Periodic pipeline and encoder metrics snapshots",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)
		unsubscribe := events.SubscribeToChannel[events.PipelineMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()
		forward(ctx, eventCh, send)
	})
}

// forward relays events until the client goes away.
func forward(ctx context.Context, eventCh <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
