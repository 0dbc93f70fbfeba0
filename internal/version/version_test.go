package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			name: "fills unset values",
			in:   Info{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
			want: Info{Version: "v1.4.0", GitCommit: "0123456789ab", BuildDate: "2026-10-01T12:00:00Z", Modified: true},
		},
		{
			name: "ldflags win",
			in:   Info{Version: "2.0.0", GitCommit: "abc1234", BuildDate: "2026-01-01"},
			want: Info{Version: "2.0.0", GitCommit: "abc1234", BuildDate: "2026-01-01", Modified: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			fillFromBuildInfo(&got, bi)
			if got != tt.want {
				t.Errorf("fillFromBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFillFromBuildInfoDevel(t *testing.T) {
	info := Info{Version: "dev", GitCommit: "unknown"}
	fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "dev" || info.GitCommit != "unknown" {
		t.Errorf("info = %+v, want dev and unknown kept", info)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("Get() = %+v, want runtime fields set", info)
	}
	if String() != info.Version {
		t.Errorf("String() = %q, want %q", String(), info.Version)
	}
}
