// Package version reports the scout build, injected with -ldflags at link time:
//
//	-X github.com/carverauto/scout/pkg/version.version=1.2.0
package version

//nolint:gochecknoglobals // set by the linker
var (
	version = "dev"
	buildID = "dev"
)

func GetVersion() string {
	return version
}

func GetBuildID() string {
	return buildID
}

// GetFullVersion returns "<version> (build: <id>)".
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
