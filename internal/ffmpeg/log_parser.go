package ffmpeg

import "strings"

// ffmpegLevels are the names printed by -loglevel level+<lvl>.
var ffmpegLevels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// ParseLogLevel splits an encoder output line into its ffmpeg level and the
// message. Lines look like "[error] msg" or "[libx264 @ 0x..] [warning] msg";
// the component prefix stays in the message. Repeat notices and lines without
// a level tag are reported as "debug" and "info".
func ParseLogLevel(line string) (level, msg string) {
	line = strings.TrimRight(line, "\r")
	if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "Last message repeated") {
		return "debug", trimmed
	}

	tag, rest, ok := cutTag(line)
	if !ok {
		return "info", line
	}
	if ffmpegLevels[tag] {
		return tag, rest
	}

	// Component tag first, level second.
	if next, body, ok := cutTag(rest); ok && ffmpegLevels[next] {
		return next, line[:len(line)-len(rest)] + body
	}
	return "info", line
}

// cutTag splits "[tag] rest" into tag and rest.
func cutTag(s string) (tag, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	tag, rest, ok = strings.Cut(s[1:], "] ")
	if !ok {
		return "", s, false
	}
	return tag, rest, true
}
