// Package handlers implements the Telegram-facing handlers of the whoasked
// bot: the passive recorder that feeds every group message into the tracker,
// and the commands that query it.
package handlers

import (
	"log/slog"

	"github.com/edgard/whoasked/internal/config"
	"github.com/edgard/whoasked/internal/tracker"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Tracker *tracker.Tracker
}
