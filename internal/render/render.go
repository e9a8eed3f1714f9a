package render

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// Header marks generated files so tools and reviewers skip them.
const Header = "// Code generated by gitstamp; DO NOT EDIT."

const builtinTemplate = `{{ header }}

package {{ .Package }}

// Head returns the branch the binary was built from.
func Head() string { return {{ goquote .Head }} }

// Commit returns the commit descriptor of the build.
func Commit() string { return {{ goquote .Commit }} }

// BuildTime returns the UTC build timestamp in RFC 3339 format.
func BuildTime() string { return {{ goquote .BuildTime }} }

// Stamp returns "<head>-<commit>".
func Stamp() string { return {{ goquote .Stamp }} }
`

// GenerateOptions configures Go source generation.
type GenerateOptions struct {
	Package string
	// Template replaces the built-in template when non-empty.
	Template string
}

// TemplateData is the value templates are executed against.
type TemplateData struct {
	Package   string
	Head      string
	Commit    string
	BuildTime string
	Stamp     string
}

// Generate renders a gofmt-formatted Go file exposing meta.
func Generate(meta types.BuildMetadata, opts GenerateOptions) ([]byte, error) {
	pkg := strings.TrimSpace(opts.Package)
	if pkg == "" {
		return nil, errors.New("package name is required")
	}
	if !token.IsIdentifier(pkg) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}
	text := opts.Template
	if strings.TrimSpace(text) == "" {
		text = builtinTemplate
	}
	tmpl, err := template.New("buildinfo").Funcs(funcMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	data := TemplateData{
		Package:   pkg,
		Head:      meta.Head,
		Commit:    meta.Commit,
		BuildTime: meta.BuildTime,
		Stamp:     meta.Stamp(),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return src, nil
}

func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["goquote"] = strconv.Quote
	funcs["header"] = func() string { return Header }
	return funcs
}

// WriteFile writes data to path unless the file already holds the same
// bytes. It reports whether the file changed.
func WriteFile(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, data) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
