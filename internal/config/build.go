package config

// Build metadata injected by the linker:
//
//	go build -ldflags "-X guestflow/internal/config.version=1.2.3 \
//	    -X guestflow/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X guestflow/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Local builds without ldflags fall back to the defaults below.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-injected variables into a BuildInfo.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
