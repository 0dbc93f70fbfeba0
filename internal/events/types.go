package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeRecordingFinished
	TypePhotoCaptured
	TypeUserError
	TypeShaderChanged
	TypePipelineMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent carries the capture manager's observable state.
type StateChangedEvent struct {
	IsFrontFacing    bool   `json:"is_front_facing" doc:"Front camera selected"`
	IsInitialized    bool   `json:"is_initialized" doc:"Camera and pipeline are running"`
	IsReadyToPhoto   bool   `json:"is_ready_to_photo" doc:"A photo can be taken"`
	IsReadyToVideo   bool   `json:"is_ready_to_video" doc:"Recording can be toggled"`
	RecordingStarted bool   `json:"recording_started" doc:"A recording is in progress"`
	ElapsedTime      string `json:"elapsed_time" example:"01:05" doc:"Recording time as MM:SS or H:MM:SS"`
	Orientation      int    `json:"orientation" example:"90" doc:"Current orientation in degrees"`
	Shader           string `json:"shader" example:"grayscale" doc:"Active shader"`
	Timestamp        string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// RecordingFinishedEvent is published after a recording was saved.
type RecordingFinishedEvent struct {
	ID        string `json:"id" doc:"Media identifier"`
	Path      string `json:"path" doc:"Saved file path"`
	Bytes     int64  `json:"bytes" doc:"File size in bytes"`
	Size      string `json:"size" example:"12 MB" doc:"Human readable file size"`
	Duration  string `json:"duration" example:"4.2s" doc:"Recording duration"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFinishedEvent.
func (e RecordingFinishedEvent) Type() uint32 { return TypeRecordingFinished }

// PhotoCapturedEvent is published after a photo was saved.
type PhotoCapturedEvent struct {
	ID          string `json:"id" doc:"Media identifier"`
	Path        string `json:"path" doc:"Saved file path"`
	Width       int    `json:"width" example:"1080"`
	Height      int    `json:"height" example:"1920"`
	Orientation int    `json:"orientation" example:"90" doc:"Orientation the photo was taken at"`
	Timestamp   string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PhotoCapturedEvent.
func (e PhotoCapturedEvent) Type() uint32 { return TypePhotoCaptured }

// UserErrorEvent reports a failure the user should see.
type UserErrorEvent struct {
	Kind      string `json:"kind" example:"output_not_found" doc:"Error kind"`
	Message   string `json:"message" doc:"User facing message"`
	Error     string `json:"error,omitempty" doc:"Underlying error"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UserErrorEvent.
func (e UserErrorEvent) Type() uint32 { return TypeUserError }

// ShaderChangedEvent is published when the active shader changes or a
// change failed.
type ShaderChangedEvent struct {
	Shader    string `json:"shader" example:"sepia"`
	Source    string `json:"source" example:"api" doc:"What triggered the change: api, watcher, init"`
	Error     string `json:"error,omitempty" doc:"Compilation error, empty on success"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ShaderChangedEvent.
func (e ShaderChangedEvent) Type() uint32 { return TypeShaderChanged }

// PipelineMetricsEvent is a periodic snapshot of pipeline and encoder stats.
type PipelineMetricsEvent struct {
	EventType       string            `json:"type"`
	Frames          map[string]uint64 `json:"frames" doc:"Frames rendered per stage"`
	Coalesced       uint64            `json:"coalesced" doc:"Frame notifications merged into a pending one"`
	FrameTimeMillis string            `json:"frame_time_ms" doc:"Duration of the last frame"`
	EncoderFPS      string            `json:"encoder_fps,omitempty"`
	EncoderDropped  string            `json:"encoder_dropped,omitempty"`
	EncoderSpeed    string            `json:"encoder_speed,omitempty"`
}

// Type returns the event type identifier for PipelineMetricsEvent.
func (e PipelineMetricsEvent) Type() uint32 { return TypePipelineMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
