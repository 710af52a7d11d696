// Package tasks implements scheduled tasks for the bot. It includes task
// definitions, dependencies, and registration mechanisms.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/whoasked/internal/config"
)

// Maintainer is the subset of the store API that periodic maintenance needs.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  Maintainer
}
