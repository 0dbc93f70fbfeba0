// Package encoder records rendered frames to a video file.
//
// The pipeline renders into the window returned by InputSurface. Frames are
// piped as raw RGBA into an ffmpeg subprocess which encodes and muxes them.
package encoder

import (
	"fmt"
	"time"

	"github.com/smazurov/shadercam/internal/camera"
	"github.com/smazurov/shadercam/internal/ffmpeg"
)

// Codec is the output video codec.
type Codec string

// Codecs.
const (
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
)

// Config describes one recording.
type Config struct {
	// Width and Height are the recorder (camera) size. The input surface is
	// portrait: Height wide and Width tall.
	Width           int
	Height          int
	Bitrate         int
	FPS             int
	DynamicRange    camera.DynamicRange
	Orientation     int // degrees
	OutputPath      string
	UseSoftwareMux  bool // mux a silent audio track like a camera recorder
	Codec           Codec
	AudioBitrate    int
	AudioSampleRate int
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid recorder size %dx%d", c.Width, c.Height)
	case c.FPS <= 0:
		return fmt.Errorf("invalid frame rate %d", c.FPS)
	case c.OutputPath == "":
		return fmt.Errorf("output path is required")
	}
	switch c.Orientation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("invalid orientation %d", c.Orientation)
	}
	return nil
}

// CommandFunc builds the encoder argv for a recording. progressSocket is
// empty when progress reporting is disabled.
type CommandFunc func(cfg Config, progressSocket string) ([]string, error)

// Options configure the ffmpeg backend.
type Options struct {
	Binary        string              // ffmpeg executable
	EncoderName   string              // overrides the codec default, e.g. h264_vaapi
	Preset        string              // software encoder preset
	FFmpegOptions []ffmpeg.OptionType // nil uses ffmpeg.GetDefaultOptions
	ProgressDir   string              // directory for progress sockets, "" disables
	FinishTimeout time.Duration       // how long to wait for the file to be finalized
	MinDuration   time.Duration       // shortest encoded length, padded with the last frame
	Command       CommandFunc         // nil builds an ffmpeg command
}

// DefaultFinishTimeout bounds how long Shutdown waits after EOF.
const DefaultFinishTimeout = 10 * time.Second

// transferFor maps a dynamic range profile to its ffmpeg transfer name.
func transferFor(d camera.DynamicRange) string {
	switch d {
	case camera.DynamicRangeHLG10:
		return "arib-std-b67"
	case camera.DynamicRangeHDR10, camera.DynamicRangeHDR10Plus:
		return "smpte2084"
	default:
		return ""
	}
}

func encoderFor(c Codec) string {
	if c == CodecHEVC {
		return "libx265"
	}
	return "libx264"
}

// FFmpegCommand returns a CommandFunc that encodes with ffmpeg.
func FFmpegCommand(opts Options) CommandFunc {
	return func(cfg Config, progressSocket string) ([]string, error) {
		name := opts.EncoderName
		if name == "" {
			name = encoderFor(cfg.Codec)
		}
		options := opts.FFmpegOptions
		if options == nil {
			options = ffmpeg.GetDefaultOptions()
		}
		p := &ffmpeg.Params{
			Binary:         opts.Binary,
			Width:          cfg.Height,
			Height:         cfg.Width,
			FPS:            cfg.FPS,
			Encoder:        name,
			Bitrate:        cfg.Bitrate,
			Preset:         opts.Preset,
			BFrames:        -1,
			Transfer:       transferFor(cfg.DynamicRange),
			Rotation:       cfg.Orientation,
			ProgressSocket: progressSocket,
			OutputPath:     cfg.OutputPath,
			Options:        options,
		}
		if cfg.UseSoftwareMux {
			p.AudioBitrate = cfg.AudioBitrate
			p.AudioSampleRate = cfg.AudioSampleRate
		}
		args, err := ffmpeg.BuildArgs(p)
		if err != nil {
			return nil, err
		}
		binary := opts.Binary
		if binary == "" {
			binary = ffmpeg.DefaultBinary
		}
		return append([]string{binary}, args...), nil
	}
}
