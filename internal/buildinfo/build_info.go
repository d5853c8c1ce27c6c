package buildinfo

import "fmt"

// BuildInfo holds all sorts of information about the build of the demo binary.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("dynadata %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
