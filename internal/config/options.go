package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/encoder"
	"github.com/smazurov/shadercam/internal/ffmpeg"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/pipeline"
)

// Options is the flat CLI/config surface. Every field maps to a flag, a
// TOML path and a SHADERCAM_ environment variable.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port         string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`
	AllowOrigin  string `help:"Allowed CORS origin" default:"*" toml:"server.allow_origin" env:"SERVER_ALLOW_ORIGIN"`

	// Camera settings
	CameraFacing        string `help:"Initial lens (back, front)" default:"back" toml:"camera.facing" env:"CAMERA_FACING"`
	CameraQuality       string `help:"Recording quality (720p, 1080p, 2160p)" default:"1080p" toml:"camera.quality" env:"CAMERA_QUALITY"`
	CameraStabilization bool   `help:"Request preview stabilization when supported" default:"true" toml:"camera.stabilization" env:"CAMERA_STABILIZATION"`
	CameraFrameInterval string `help:"Simulated sensor frame interval, empty derives it from the frame rate" default:"" toml:"camera.frame_interval" env:"CAMERA_FRAME_INTERVAL"`

	// Pipeline settings
	ColorProfile  string `help:"Color profile (standard, pq, linear, hlg, hlg-workaround)" default:"standard" toml:"pipeline.color_profile" env:"PIPELINE_COLOR_PROFILE"`
	PreviewWidth  int    `help:"Preview viewport width" default:"540" toml:"pipeline.preview_width" env:"PIPELINE_PREVIEW_WIDTH"`
	PreviewHeight int    `help:"Preview viewport height" default:"960" toml:"pipeline.preview_height" env:"PIPELINE_PREVIEW_HEIGHT"`

	// Shader settings
	ShaderDir   string `help:"Directory with fragment shader overrides" default:"" toml:"shaders.dir" env:"SHADERS_DIR"`
	ShaderName  string `help:"Initial shader" default:"passthrough" toml:"shaders.default" env:"SHADERS_DEFAULT"`
	ShaderWatch bool   `help:"Reload the active shader when its file changes" default:"true" toml:"shaders.watch" env:"SHADERS_WATCH"`

	// Media settings
	MediaDir     string `help:"Directory for recordings and photos" default:"media" toml:"media.dir" env:"MEDIA_DIR"`
	PublishDir   string `help:"Directory recordings and photos are published to, empty disables" default:"" toml:"media.publish_dir" env:"MEDIA_PUBLISH_DIR"`
	MinRecording string `help:"Minimum recording length" default:"1s" toml:"media.min_recording" env:"MEDIA_MIN_RECORDING"`
	PhotoSettle  string `help:"Delay before another photo can be taken" default:"200ms" toml:"media.photo_settle" env:"MEDIA_PHOTO_SETTLE"`

	// Encoder settings
	EncoderBinary      string `help:"ffmpeg executable" default:"ffmpeg" toml:"encoder.binary" env:"ENCODER_BINARY"`
	EncoderCodec       string `help:"Output codec (h264, hevc)" default:"h264" toml:"encoder.codec" env:"ENCODER_CODEC"`
	EncoderName        string `help:"ffmpeg encoder overriding the codec default, e.g. h264_vaapi" default:"" toml:"encoder.name" env:"ENCODER_NAME"`
	EncoderPreset      string `help:"Software encoder preset" default:"veryfast" toml:"encoder.preset" env:"ENCODER_PRESET"`
	EncoderOptions     string `help:"Comma separated ffmpeg feature flags, empty uses the defaults" default:"" toml:"encoder.options" env:"ENCODER_OPTIONS"`
	EncoderSoftwareMux bool   `help:"Mux a silent audio track" default:"true" toml:"encoder.software_mux" env:"ENCODER_SOFTWARE_MUX"`
	EncoderProgress    bool   `help:"Collect ffmpeg progress for metrics" default:"true" toml:"encoder.progress" env:"ENCODER_PROGRESS"`

	// Indicator settings
	IndicatorLED string `help:"LED lit while recording: auto, a /sys/class/leds name, or empty to disable" default:"" toml:"indicator.led" env:"INDICATOR_LED"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingCamera   string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingShader   string `help:"Shader logging level" default:"info" toml:"logging.shader" env:"LOGGING_SHADER"`
	LoggingMedia    string `help:"Media logging level" default:"info" toml:"logging.media" env:"LOGGING_MEDIA"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// DefaultOptions returns Options populated from their default tags, for
// commands that do not go through humacli.
func DefaultOptions() *Options {
	o := &Options{}
	v := reflect.ValueOf(o).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if def := t.Field(i).Tag.Get("default"); def != "" {
			setFieldValueFromString(v.Field(i), def)
		}
	}
	return o
}

// Logging returns the logging configuration described by o.
func (o *Options) Logging() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"pipeline": o.LoggingPipeline,
			"capture":  o.LoggingCapture,
			"camera":   o.LoggingCamera,
			"encoder":  o.LoggingEncoder,
			"shader":   o.LoggingShader,
			"media":    o.LoggingMedia,
			"api":      o.LoggingAPI,
		},
	}
}

// Settings are Options parsed into domain types.
type Settings struct {
	Facing        camera.Facing
	Quality       camera.Quality
	Stabilization bool
	FrameInterval time.Duration

	Profile  pipeline.ColorProfile
	Viewport camera.Size

	ShaderDir   string
	Shader      string
	ShaderWatch bool

	MediaDir     string
	PublishDir   string
	MinRecording time.Duration
	PhotoSettle  time.Duration

	Codec       encoder.Codec
	SoftwareMux bool
	Encoder     encoder.Options

	IndicatorLED string
}

// Parse validates o and converts it to Settings. All problems are reported
// together.
func (o *Options) Parse() (*Settings, error) {
	s := &Settings{
		Stabilization: o.CameraStabilization,
		Viewport:      camera.Size{Width: o.PreviewWidth, Height: o.PreviewHeight},
		ShaderDir:     o.ShaderDir,
		Shader:        o.ShaderName,
		ShaderWatch:   o.ShaderWatch,
		MediaDir:      o.MediaDir,
		PublishDir:    o.PublishDir,
		SoftwareMux:   o.EncoderSoftwareMux,
		IndicatorLED:  o.IndicatorLED,
		Encoder: encoder.Options{
			Binary:      o.EncoderBinary,
			EncoderName: o.EncoderName,
			Preset:      o.EncoderPreset,
		},
	}
	if o.EncoderProgress {
		s.Encoder.ProgressDir = os.TempDir()
	}
	var errs []error

	switch strings.ToLower(o.CameraFacing) {
	case "", "back":
		s.Facing = camera.FacingBack
	case "front":
		s.Facing = camera.FacingFront
	default:
		errs = append(errs, fmt.Errorf("unknown camera facing %q", o.CameraFacing))
	}

	var err error
	if s.Quality, err = camera.ParseQuality(o.CameraQuality); err != nil {
		errs = append(errs, err)
	}
	if s.Profile, err = pipeline.ParseColorProfile(o.ColorProfile); err != nil {
		errs = append(errs, err)
	}

	if o.PreviewWidth <= 0 || o.PreviewHeight <= 0 {
		errs = append(errs, fmt.Errorf("invalid preview size %dx%d", o.PreviewWidth, o.PreviewHeight))
	}
	if o.MediaDir == "" {
		errs = append(errs, errors.New("media directory is required"))
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"camera frame interval", o.CameraFrameInterval, &s.FrameInterval},
		{"minimum recording", o.MinRecording, &s.MinRecording},
		{"photo settle", o.PhotoSettle, &s.PhotoSettle},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, parseErr := time.ParseDuration(d.value)
		if parseErr != nil || parsed < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q", d.name, d.value))
			continue
		}
		*d.dst = parsed
	}

	switch encoder.Codec(strings.ToLower(o.EncoderCodec)) {
	case encoder.CodecH264, "":
		s.Codec = encoder.CodecH264
	case encoder.CodecHEVC, "h265":
		s.Codec = encoder.CodecHEVC
	default:
		errs = append(errs, fmt.Errorf("unknown codec %q", o.EncoderCodec))
	}

	if o.EncoderOptions != "" {
		for _, part := range strings.Split(o.EncoderOptions, ",") {
			if part = strings.TrimSpace(part); part != "" {
				s.Encoder.FFmpegOptions = append(s.Encoder.FFmpegOptions, ffmpeg.OptionType(part))
			}
		}
		if optErr := ffmpeg.ValidateOptions(s.Encoder.FFmpegOptions); optErr != nil {
			errs = append(errs, optErr)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}
