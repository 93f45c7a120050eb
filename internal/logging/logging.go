// Package logging builds the single *zap.Logger instance
// cmd/livebracketd constructs at startup and passes by constructor
// injection into every other collaborator (spec §4.9: "no
// package-level logger variables").
package logging

import "go.uber.org/zap"

// New builds a production or development zap.Logger. development
// selects human-readable console output with debug level; production
// selects JSON output at info level, matching zap's own preset
// configs.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
