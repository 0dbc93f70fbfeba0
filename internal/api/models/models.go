package models

import (
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/ffmpeg"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Capture state models
type StateResponse struct {
	Body events.StateChangedEvent
}

type ActionData struct {
	Status  string `json:"status" example:"ok" doc:"Action status"`
	Message string `json:"message" example:"Recording started" doc:"What happened"`
}

type ActionResponse struct {
	Body ActionData
}

// Orientation models
type OrientationRequest struct {
	Body struct {
		Degrees int `json:"degrees" enum:"0,90,180,270" example:"90" doc:"Display rotation in degrees"`
	}
}

// Shader models
type ShaderListData struct {
	Shaders []string `json:"shaders" doc:"Available shader names"`
	Active  string   `json:"active" example:"passthrough" doc:"Shader currently applied"`
	Count   int      `json:"count" example:"6" doc:"Number of shaders"`
}

type ShaderListResponse struct {
	Body ShaderListData
}

type ShaderRequest struct {
	Body struct {
		Name string `json:"name" pattern:"^[a-z0-9][a-z0-9_-]*$" minLength:"1" maxLength:"64" example:"sepia" doc:"Shader name"`
	}
}

// Preview snapshot
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	FrameCount   string `header:"X-Frame-Count" doc:"Preview frames presented so far"`
	Body         []byte
}

// Log models
type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                    `json:"count" example:"25"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelRequest struct {
	Module string `path:"module" example:"pipeline" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

// Error response
type ErrorData struct {
	Status  string `json:"status" example:"error" doc:"Error status"`
	Message string `json:"message" example:"Camera not initialized" doc:"Error message"`
}

type ErrorResponse struct {
	Body ErrorData
}

// Options models for FFmpeg configuration
type OptionsData struct {
	Options  []ffmpeg.Option     `json:"options" doc:"All available FFmpeg options with metadata"`
	Defaults []ffmpeg.OptionType `json:"defaults" doc:"Options enabled when none are configured"`
}

type OptionsResponse struct {
	Body OptionsData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
	Modified  bool   `json:"modified" doc:"Built from a dirty work tree"`
}

type VersionResponse struct {
	Body VersionData
}
