package plugin

import (
	"context"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// RulePlugin is the interface custom rules must satisfy.
type RulePlugin interface {
	Metadata() types.RuleMetadata
	Check(ctx context.Context, snap types.Snapshot) ([]types.Finding, error)
}

// Registry stores registered rule plugins.
type Registry struct {
	plugins []RulePlugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds plugins to the registry.
func (r *Registry) Register(plugins ...RulePlugin) {
	r.plugins = append(r.plugins, plugins...)
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []RulePlugin {
	return append([]RulePlugin(nil), r.plugins...)
}
