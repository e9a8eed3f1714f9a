package config

import "github.com/gitstamp/gitstamp/internal/resolver"

// SentinelValues returns configured placeholders over the resolver defaults.
func (c Config) SentinelValues() resolver.Sentinels {
	out := resolver.DefaultSentinels()
	if c.Sentinels.Head != nil {
		out.Head = *c.Sentinels.Head
	}
	if c.Sentinels.Commit != nil {
		out.Commit = *c.Sentinels.Commit
	}
	if c.Sentinels.BuildTime != nil {
		out.BuildTime = *c.Sentinels.BuildTime
	}
	return out
}
