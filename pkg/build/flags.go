// SPDX-License-Identifier: MIT
//
// Package build carries the version metadata reported by the CLI and the
// telemetry resource. Values are injected with linker flags:
//
//	go build -ldflags "-X pitchd/pkg/build.buildVersion=v0.3.0 \
//	  -X pitchd/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X pitchd/pkg/build.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Builds without linker flags fall back to the module and VCS data the Go
// toolchain stamps into the binary.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

const (
	DefaultName        = "pitchd"
	DefaultDescription = "Real-time YIN pitch detection and voice analysis"
	unknown            = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var (
	readBuildInfo = debug.ReadBuildInfo
	buildFlags    = defaultInfo()
)

func defaultInfo() Info {
	return Info{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}
}

// Initialize resolves the build information. Linker flags win; missing
// values are taken from the embedded build info. The returned error lists
// the fields that stayed unknown, and the rest of the information is still
// usable.
func Initialize() error {
	info := defaultInfo()
	if buildName != "" {
		info.Name = buildName
	}

	if bi, ok := readBuildInfo(); ok {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.Time = s.Value
			}
		}
	}

	if buildVersion != "" {
		info.Version = buildVersion
	}
	if buildCommit != "" {
		info.Commit = buildCommit
	}
	if buildTime != "" {
		info.Time = buildTime
	}
	buildFlags = info

	var errs []error
	if info.Version == unknown {
		errs = append(errs, errors.New("BuildVersion is unknown"))
	}
	if info.Commit == unknown {
		errs = append(errs, errors.New("BuildCommit is unknown"))
	}
	if info.Time == unknown {
		errs = append(errs, errors.New("BuildTime is unknown"))
	}
	return errors.Join(errs...)
}

// GetBuildFlags returns the information resolved by Initialize, or the
// defaults before it runs.
func GetBuildFlags() Info {
	return buildFlags
}
