// Package buildinfo exposes build metadata stamped by the linker.
//
// Build with the flags printed by `gitstamp ldflags`:
//
//	go build -ldflags "$(gitstamp ldflags)" ./...
//
// Values left unset by the linker fall back to the VCS settings the go tool
// records in the binary.
package buildinfo

import (
	"runtime/debug"
	"sync"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// Set with -X github.com/gitstamp/gitstamp/pkg/buildinfo.<name>=<value>.
var (
	head      string
	commit    string
	buildTime string
)

// Unknown is reported for values neither the linker nor the go tool supplied.
const Unknown = "unknown"

var readBuildInfo = debug.ReadBuildInfo

var (
	once     sync.Once
	resolved types.BuildMetadata
)

// Head returns the branch the binary was built from, or "" when unknown.
func Head() string { return Metadata().Head }

// Commit returns the commit descriptor of the build.
func Commit() string { return Metadata().Commit }

// BuildTime returns the RFC 3339 build timestamp.
func BuildTime() string { return Metadata().BuildTime }

// Stamp returns "<head>-<commit>".
func Stamp() string { return Metadata().Stamp() }

// Metadata returns all three values.
func Metadata() types.BuildMetadata {
	once.Do(func() {
		resolved = load()
	})
	return resolved
}

func load() types.BuildMetadata {
	meta := types.BuildMetadata{Head: head, Commit: commit, BuildTime: buildTime}
	if meta.Commit != "" && meta.BuildTime != "" {
		return meta
	}
	var revision, vcsTime string
	var modified bool
	if info, ok := readBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.time":
				vcsTime = setting.Value
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
	}
	if meta.Commit == "" {
		meta.Commit = Unknown
		if revision != "" {
			if len(revision) > 7 {
				revision = revision[:7]
			}
			meta.Commit = revision
			if modified {
				meta.Commit += "-dirty"
			}
		}
	}
	if meta.BuildTime == "" {
		// vcs.time is the commit time, the closest the go tool records.
		meta.BuildTime = Unknown
		if vcsTime != "" {
			meta.BuildTime = vcsTime
		}
	}
	return meta
}
