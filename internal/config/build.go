package config

// Build metadata injected at link time:
//
//	go build -ldflags "-X eyezen/internal/config.version=v1.2.3 ..."
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// BuildInfo holds build-time metadata. These values are NOT populated
// from environment variables.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
