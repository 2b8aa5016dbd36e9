// Package version identifies the build. Version and Commit are overridden at
// link time:
//
//	go build -ldflags "-X .../internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	Version = "0.1-beta"
	Commit  = "dev"
)
