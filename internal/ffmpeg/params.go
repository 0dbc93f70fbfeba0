package ffmpeg

// Params describes one encode of raw frames read from stdin. It replaces a
// loose map of flags with typed fields.
type Params struct {
	Binary string // ffmpeg executable, "ffmpeg" when empty

	// Input: raw frames on stdin
	Width       int
	Height      int
	FPS         int
	PixelFormat string // rgba when empty

	// Encoder
	Encoder string // libx264, libx265, h264_vaapi, ...
	Bitrate int    // bits per second, 0 = encoder default
	Preset  string // ultrafast ... veryslow
	GOP     int    // keyframe interval, 0 = two seconds
	BFrames int    // -1 = not set, 0 = no B-frames

	// Transfer tags the output with BT.2020 primaries and this transfer
	// characteristic (arib-std-b67, smpte2084, linear). Empty is SDR.
	Transfer string

	// Rotation is the display rotation in degrees written to the stream.
	Rotation int

	// Audio: a silent track so players treat the file like a camera
	// recording. AudioSampleRate 0 disables it.
	AudioBitrate    int
	AudioSampleRate int

	// Output
	ProgressSocket string // /tmp/shadercam-progress-xxx.sock
	OutputPath     string
	Format         string // mp4 when empty

	Options []OptionType
}
