// Package logging builds the structured zap logger every engine instance
// uses, with the instance's identifying fields attached to every line.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a production zap logger scoped to one (collection, partition)
// engine instance, with those identifiers attached to every log line.
func New(collection string, partition uint32, serverID string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}

	return logger.With(
		zap.String("collection", collection),
		zap.Uint32("partition", partition),
		zap.String("server_id", serverID),
	), nil
}
