// Package logging builds the application-level structured logger
// (go.uber.org/zap), distinct from the pipeline substrate's internal
// capitan signal bus: this is for operator-facing service logs, not
// step-level telemetry.
package logging

import "go.uber.org/zap"

// New builds a production logger in prod, a development logger
// otherwise — matching the corpus's environment-switched zap setup.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
