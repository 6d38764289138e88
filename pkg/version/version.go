package version

import (
	"fmt"
	"runtime"
	"time"
)

// Version information set at build time via ldflags.
var (
	Version = "dev"

	GitCommit = "unknown"

	GitTag = ""

	BuildDate = "unknown"

	GoVersion = runtime.Version()

	Platform = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
)

// GetVersion returns the version string, falling back to a commit-derived
// development tag when no release tag was set at build time.
func GetVersion() string {
	if Version == "dev" {
		if GitTag != "" {
			Version = GitTag
		} else if GitCommit != "unknown" && len(GitCommit) >= 7 {
			Version = fmt.Sprintf("dev-%s", GitCommit[:7])
		}
	}
	return Version
}

// GetFullVersion returns detailed version information for a --version-full
// style flag.
func GetFullVersion() string {
	return fmt.Sprintf(`hdlsim %s
Commit:   %s
Date:     %s
Go:       %s
Platform: %s`,
		GetVersion(),
		GitCommit,
		BuildDate,
		GoVersion,
		Platform)
}

func init() {
	if BuildDate == "unknown" {
		BuildDate = time.Now().Format("2006-01-02T15:04:05Z")
	}
}
