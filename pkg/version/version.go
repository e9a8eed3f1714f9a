package version

import (
	"fmt"

	"github.com/gitstamp/gitstamp/pkg/buildinfo"
)

// Version is the semantic version of the binary.
var Version = "0.1.0"

// String returns a human-friendly version string.
func String() string {
	head := buildinfo.Head()
	if head == "" {
		head = buildinfo.Unknown
	}
	return fmt.Sprintf("%s (head: %s, commit: %s, built: %s)", Version, head, buildinfo.Commit(), buildinfo.BuildTime())
}
