package version

// Version is the current version of roomrelay.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/BioHazard786/roomrelay/internal/version.Version=v1.0.0'"
var Version = "dev"

// Commit and BuildTime are set the same way by release builds.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata served at /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// Get returns the metadata of the running binary.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}
