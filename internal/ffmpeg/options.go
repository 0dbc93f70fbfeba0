package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType represents a strongly typed FFmpeg option
type OptionType string

// FFmpeg option constants
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
	OptionFastStart          OptionType = "faststart"
	OptionFragmented         OptionType = "fragmented"
)

// OptionCategory represents option categories
type OptionCategory string

// Option categories.
const (
	CategoryTiming      OptionCategory = "Timing"
	CategoryPerformance OptionCategory = "Performance"
	CategoryContainer   OptionCategory = "Container"
)

// ExclusiveGroup represents a group of mutually exclusive options
type ExclusiveGroup string

// Exclusive groups.
const (
	GroupThreadQueue ExclusiveGroup = "thread_queue"
	GroupMovFlags    ExclusiveGroup = "movflags"
)

// Option represents an FFmpeg feature flag with metadata
type Option struct {
	Key            OptionType      `json:"key"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       OptionCategory  `json:"category"`
	AppDefault     bool            `json:"app_default"`
	ExclusiveGroup *ExclusiveGroup `json:"exclusive_group,omitempty"`
	ConflictsWith  []OptionType    `json:"conflicts_with,omitempty"`
}

var (
	threadQueueGroup = GroupThreadQueue
	movFlagsGroup    = GroupMovFlags
)

// AllOptions contains every supported flag.
var AllOptions = []Option{
	{
		Key:           OptionGeneratePTS,
		Name:          "Generate PTS",
		Description:   "Generate presentation timestamps for the raw input",
		Category:      CategoryTiming,
		ConflictsWith: []OptionType{OptionWallclockTimestamp},
	},
	{
		Key:           OptionWallclockTimestamp,
		Name:          "Wallclock Timestamps",
		Description:   "Timestamp frames on arrival instead of by frame count",
		Category:      CategoryTiming,
		ConflictsWith: []OptionType{OptionGeneratePTS},
	},
	{
		Key:            OptionThreadQueue1024,
		Name:           "Large Thread Queue",
		Description:    "Use a 1024 packet input queue",
		Category:       CategoryPerformance,
		AppDefault:     true,
		ExclusiveGroup: &threadQueueGroup,
	},
	{
		Key:            OptionThreadQueue4096,
		Name:           "Huge Thread Queue",
		Description:    "Use a 4096 packet input queue",
		Category:       CategoryPerformance,
		ExclusiveGroup: &threadQueueGroup,
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency",
		Description: "Tune the software encoder for zero latency",
		Category:    CategoryPerformance,
	},
	{
		Key:            OptionFastStart,
		Name:           "Fast Start",
		Description:    "Move the index to the front of the file when finishing",
		Category:       CategoryContainer,
		AppDefault:     true,
		ExclusiveGroup: &movFlagsGroup,
	},
	{
		Key:            OptionFragmented,
		Name:           "Fragmented MP4",
		Description:    "Write a fragmented file that stays playable if the encoder dies",
		Category:       CategoryContainer,
		ExclusiveGroup: &movFlagsGroup,
	},
}

// GetOptionByKey returns an option by its key
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// ValidateOptions checks for unknown options, conflicts and exclusive group
// violations.
func ValidateOptions(selectedOptions []OptionType) error {
	exclusiveGroups := make(map[ExclusiveGroup][]string)
	selectedSet := make(map[OptionType]bool)

	for _, key := range selectedOptions {
		option := GetOptionByKey(key)
		if option == nil {
			return fmt.Errorf("unknown option %q", key)
		}
		selectedSet[key] = true
		if option.ExclusiveGroup != nil {
			exclusiveGroups[*option.ExclusiveGroup] = append(exclusiveGroups[*option.ExclusiveGroup], option.Name)
		}
	}

	for group, names := range exclusiveGroups {
		if len(names) > 1 {
			return fmt.Errorf("multiple options from exclusive group '%s' selected: %s", group, strings.Join(names, ", "))
		}
	}

	for _, key := range selectedOptions {
		option := GetOptionByKey(key)
		for _, conflict := range option.ConflictsWith {
			if selectedSet[conflict] {
				return fmt.Errorf("option '%s' conflicts with '%s'", option.Name, GetOptionByKey(conflict).Name)
			}
		}
	}
	return nil
}

// GetDefaultOptions returns the options that are enabled by default in the application
func GetDefaultOptions() []OptionType {
	var defaults []OptionType
	for _, option := range AllOptions {
		if option.AppDefault {
			defaults = append(defaults, option.Key)
		}
	}
	return defaults
}

// inputArgs returns the options that must precede "-i".
func inputArgs(options []OptionType) []string {
	var args []string
	var fflags []string
	for _, option := range options {
		switch option {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionWallclockTimestamp:
			args = append(args, "-use_wallclock_as_timestamps", "1")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		case OptionThreadQueue4096:
			args = append(args, "-thread_queue_size", "4096")
		}
	}
	if len(fflags) > 0 {
		args = append(args, "-fflags", strings.Join(fflags, ""))
	}
	return args
}

// outputArgs returns the muxer options for the output file.
func outputArgs(options []OptionType) []string {
	var args []string
	for _, option := range options {
		switch option {
		case OptionFastStart:
			args = append(args, "-movflags", "+faststart")
		case OptionFragmented:
			args = append(args, "-movflags", "+frag_keyframe+empty_moov+default_base_moof")
		}
	}
	return args
}

// isHardwareEncoder checks if the given codec name represents a hardware encoder
func isHardwareEncoder(codec string) bool {
	hardwareCodecs := []string{
		"nvenc", "amf", "vaapi", "qsv", "videotoolbox", "rkmpp", "v4l2m2m",
	}

	for _, hwCodec := range hardwareCodecs {
		if strings.Contains(codec, hwCodec) {
			return true
		}
	}
	return false
}
