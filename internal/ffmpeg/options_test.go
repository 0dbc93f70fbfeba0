package ffmpeg

import (
	"slices"
	"strings"
	"testing"
)

func TestGetDefaultOptions(t *testing.T) {
	defaults := GetDefaultOptions()

	if len(defaults) == 0 {
		t.Fatal("GetDefaultOptions() returned no default options")
	}
	if !slices.Contains(defaults, OptionThreadQueue1024) {
		t.Error("GetDefaultOptions() should include OptionThreadQueue1024")
	}
	if !slices.Contains(defaults, OptionFastStart) {
		t.Error("GetDefaultOptions() should include OptionFastStart")
	}
	if err := ValidateOptions(defaults); err != nil {
		t.Errorf("default options do not validate: %v", err)
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []OptionType
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid single option",
			options: []OptionType{OptionGeneratePTS},
		},
		{
			name:    "valid non-conflicting options",
			options: []OptionType{OptionGeneratePTS, OptionThreadQueue1024, OptionFastStart},
		},
		{
			name:    "conflicting timestamp options",
			options: []OptionType{OptionGeneratePTS, OptionWallclockTimestamp},
			wantErr: true,
			errMsg:  "conflicts with",
		},
		{
			name:    "exclusive thread queue options",
			options: []OptionType{OptionThreadQueue1024, OptionThreadQueue4096},
			wantErr: true,
			errMsg:  "exclusive group",
		},
		{
			name:    "exclusive movflags options",
			options: []OptionType{OptionFastStart, OptionFragmented},
			wantErr: true,
			errMsg:  "exclusive group",
		},
		{
			name:    "unknown option",
			options: []OptionType{"copyts"},
			wantErr: true,
			errMsg:  "unknown option",
		},
		{
			name:    "empty options",
			options: []OptionType{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.options)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateOptions() expected error but got none")
					return
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateOptions() error message should contain %q, got: %v", tt.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("ValidateOptions() unexpected error: %v", err)
			}
		})
	}
}

func TestIsHardwareEncoder(t *testing.T) {
	tests := []struct {
		codec string
		want  bool
	}{
		{"libx264", false},
		{"libx265", false},
		{"h264_vaapi", true},
		{"hevc_nvenc", true},
		{"h264_rkmpp", true},
		{"h264_v4l2m2m", true},
	}
	for _, tt := range tests {
		if got := isHardwareEncoder(tt.codec); got != tt.want {
			t.Errorf("isHardwareEncoder(%q) = %v, want %v", tt.codec, got, tt.want)
		}
	}
}
