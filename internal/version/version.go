// Package version reports which build of lens is running.
package version

import (
	"runtime"
	"runtime/debug"
)

// Version is set with -ldflags "-X .../internal/version.Version=v1.2.3"
// for releases. Development builds derive it from VCS info.
var Version = "dev"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get collects build information for the running binary.
func Get() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			info.BuildTime = s.Value
		}
	}
	if info.Version == "dev" && info.Revision != "" {
		info.Version = shortRevision(info.Revision, info.Modified)
	}
	return info
}

func shortRevision(rev string, modified bool) string {
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if modified {
		rev += "-dirty"
	}
	return rev
}

// String is the one-line form printed by `lens version`.
func (i Info) String() string {
	s := i.Version
	if i.BuildTime != "" {
		s += " " + i.BuildTime
	}
	return s + " " + i.GoVersion
}

// UserAgent is sent with every request to the service.
func UserAgent() string {
	return "lens/" + Get().Version
}
