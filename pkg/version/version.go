// Package version holds build metadata stamped in with
// -ldflags "-X github.com/sgl-project/fastcopy/pkg/version.GitVersion=...".
package version

import "fmt"

var (
	GitVersion = "unknown"
	GitCommit  = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return fmt.Sprintf("gitVersion=%s, gitCommit=%s", GitVersion, GitCommit)
}
