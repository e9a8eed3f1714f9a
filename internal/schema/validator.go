package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed data/config.json
var configSchema string

var configLoader = gojsonschema.NewStringLoader(configSchema)

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "config does not match schema: " + strings.Join(e.Problems, "; ")
}

// ValidateConfig checks a decoded configuration document against the
// embedded JSON schema. A nil document is valid.
func ValidateConfig(doc interface{}) error {
	if doc == nil {
		return nil
	}
	result, err := gojsonschema.Validate(configLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Problems: problems}
}
