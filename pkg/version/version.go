package version

// Set with -ldflags "-X github.com/charlie0129/minph/pkg/version.Version=..."
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
)
