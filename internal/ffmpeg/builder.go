package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultBinary is the ffmpeg executable used when Params.Binary is empty.
const DefaultBinary = "ffmpeg"

// BuildArgs builds the ffmpeg argument list (without the binary) for p.
func BuildArgs(p *Params) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	}
	if p.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", p.FPS)
	}
	if p.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	if p.Encoder == "" {
		return nil, errors.New("encoder is required")
	}
	if err := ValidateOptions(p.Options); err != nil {
		return nil, err
	}

	fps := strconv.Itoa(p.FPS)
	args := []string{"-hide_banner", "-loglevel", "level+info", "-nostdin", "-y"}

	// Raw frame input on stdin
	args = append(args, inputArgs(p.Options)...)
	pixFmt := p.PixelFormat
	if pixFmt == "" {
		pixFmt = "rgba"
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fps,
		"-i", "pipe:0",
	)

	// Silent audio track
	audio := p.AudioSampleRate > 0
	if audio {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", p.AudioSampleRate),
			"-map", "0:v", "-map", "1:a", "-shortest",
		)
	}

	args = append(args, "-c:v", p.Encoder)
	hdr := p.Transfer != ""
	switch {
	case strings.Contains(p.Encoder, "264") && !hdr:
		args = append(args, "-profile:v", "high")
	case strings.Contains(p.Encoder, "265") || strings.Contains(p.Encoder, "hevc"):
		if hdr {
			args = append(args, "-profile:v", "main10")
		}
	}
	if p.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(p.Bitrate))
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	gop := p.GOP
	if gop <= 0 {
		gop = 2 * p.FPS
	}
	args = append(args, "-g", strconv.Itoa(gop))
	if p.BFrames >= 0 {
		args = append(args, "-bf", strconv.Itoa(p.BFrames))
	}
	if !isHardwareEncoder(p.Encoder) && hasOption(p.Options, OptionLowLatency) {
		args = append(args, "-tune", "zerolatency")
	}

	if hdr {
		args = append(args,
			"-pix_fmt", "yuv420p10le",
			"-color_primaries", "bt2020",
			"-color_trc", p.Transfer,
			"-colorspace", "bt2020nc",
		)
	} else {
		args = append(args, "-pix_fmt", "yuv420p")
	}

	if p.Rotation != 0 {
		args = append(args, "-metadata:s:v:0", "rotate="+strconv.Itoa(p.Rotation))
	}

	if audio {
		args = append(args, "-c:a", "aac", "-ar", strconv.Itoa(p.AudioSampleRate))
		if p.AudioBitrate > 0 {
			args = append(args, "-b:a", strconv.Itoa(p.AudioBitrate))
		}
	}

	if p.ProgressSocket != "" {
		args = append(args, "-progress", "unix://"+p.ProgressSocket)
	}

	args = append(args, outputArgs(p.Options)...)
	format := p.Format
	if format == "" {
		format = "mp4"
	}
	args = append(args, "-f", format, p.OutputPath)
	return args, nil
}

// BuildCommand renders the full command line for logging.
func BuildCommand(p *Params) (string, error) {
	args, err := BuildArgs(p)
	if err != nil {
		return "", err
	}
	binary := p.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, binary)
	for _, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " "), nil
}

func hasOption(options []OptionType, want OptionType) bool {
	for _, o := range options {
		if o == want {
			return true
		}
	}
	return false
}
