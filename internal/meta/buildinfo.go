// Package meta reports the build metadata of the running binary.
//
// Values come from the module build info embedded by the Go toolchain;
// Version can be overridden at link time:
//
//	go build -ldflags "-X change-watch/internal/meta.Version=v1.2.3"
package meta

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is set at link time. Empty means "use the module version".
var Version string

// Info is a minimal summary of how the binary was built.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Detect collects build metadata for the running binary.
func Detect() Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(bi, Version)
}

func fromBuildInfo(bi *debug.BuildInfo, override string) Info {
	inf := Info{
		Version:   "devel",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi != nil {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			inf.Version = v
		}
		if bi.GoVersion != "" {
			inf.GoVersion = bi.GoVersion
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				inf.Commit = s.Value
			case "vcs.time":
				inf.BuildTime = s.Value
			case "vcs.modified":
				inf.Modified = s.Value == "true"
			}
		}
	}
	if override != "" {
		inf.Version = override
	}
	return inf
}

// String renders a one-line summary such as
// "v1.2.3 (abc1234, dirty) go1.25.0 linux/amd64".
func (i Info) String() string {
	var extra []string
	if i.Commit != "" {
		c := i.Commit
		if len(c) > 7 {
			c = c[:7]
		}
		extra = append(extra, c)
	}
	if i.Modified {
		extra = append(extra, "dirty")
	}
	s := i.Version
	if len(extra) > 0 {
		s += " (" + strings.Join(extra, ", ") + ")"
	}
	return fmt.Sprintf("%s %s %s", s, i.GoVersion, i.Platform)
}
