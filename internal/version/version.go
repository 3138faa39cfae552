package version

// These variables are injected at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)
