// Package version carries build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/tradewire/exstream/internal/version.Version=0.3.0 \
//	                   -X github.com/tradewire/exstream/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/tradewire/exstream/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash of the build.
	Commit = "unknown"

	// BuildTime is when the binary was built, UTC ISO 8601.
	BuildTime = "unknown"
)

// String formats the three fields for -version output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
