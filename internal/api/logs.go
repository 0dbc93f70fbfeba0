package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/shadercam/internal/api/models"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/logging"
)

// LogEvent converts a buffered log entry to its bus event.
func LogEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Buffered Logs",
		Description: "Recent log entries from the in-memory ring buffer",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *struct {
		Since uint64 `query:"since" doc:"Only return entries with a larger sequence number"`
	}) (*models.LogsResponse, error) {
		entries := []events.LogEntryEvent{}
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadSince(input.Since) {
				entries = append(entries, LogEvent(entry))
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Current level per logger module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{
			Body: models.LogLevelsData{Levels: logging.Levels()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change one module's level at runtime",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.LogLevelsResponse, error) {
		if err := logging.SetLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		s.logger.Info("Log level changed", "module", input.Module, "level", input.Body.Level)
		return &models.LogLevelsResponse{
			Body: models.LogLevelsData{Levels: logging.Levels()},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Buffered logs followed by new entries as they are written. Clients deduplicate on seq.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost
		eventCh := make(chan any, 256)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var last uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(LogEvent(entry)); err != nil {
					return
				}
				last = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq <= last {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
