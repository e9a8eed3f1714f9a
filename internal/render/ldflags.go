package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// LDFlagsOptions names the package variables set with -X.
type LDFlagsOptions struct {
	Package      string
	HeadVar      string
	CommitVar    string
	BuildTimeVar string
}

// LDFlags renders -X flags for go build -ldflags. Variables with an empty
// name are skipped.
func LDFlags(meta types.BuildMetadata, opts LDFlagsOptions) (string, error) {
	pkg := strings.TrimSpace(opts.Package)
	if pkg == "" {
		return "", errors.New("ldflags package is required")
	}
	pairs := []struct {
		name  string
		value string
	}{
		{opts.HeadVar, meta.Head},
		{opts.CommitVar, meta.Commit},
		{opts.BuildTimeVar, meta.BuildTime},
	}
	var flags []string
	for _, p := range pairs {
		name := strings.TrimSpace(p.name)
		if name == "" {
			continue
		}
		arg, err := quoteArg(pkg + "." + name + "=" + p.value)
		if err != nil {
			return "", err
		}
		flags = append(flags, "-X "+arg)
	}
	return strings.Join(flags, " "), nil
}

// quoteArg wraps arg for the go tool's flag splitter, which accepts single or
// double quotes and performs no unescaping.
func quoteArg(arg string) (string, error) {
	switch {
	case !strings.Contains(arg, "'"):
		return "'" + arg + "'", nil
	case !strings.Contains(arg, `"`):
		return `"` + arg + `"`, nil
	default:
		return "", fmt.Errorf("value %q mixes single and double quotes", arg)
	}
}
