package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/whoasked/internal/tracker"
)

// NewStatsHandler returns a handler for the admin-only /stats command,
// reporting the current size of the mention index.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Stats handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /stats command", "chat_id", update.Message.Chat.ID, "user_id", update.Message.From.ID)

	stats, err := h.deps.Tracker.Stats()
	if err != nil {
		text := h.deps.Config.Messages.GeneralError
		if errors.Is(err, tracker.ErrNotLoaded) {
			text = h.deps.Config.Messages.NotReady
		}
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: update.Message.Chat.ID, Text: text}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send stats error message", "error", sendErr, "chat_id", update.Message.Chat.ID)
		}
		return
	}

	text := fmt.Sprintf("Tracking %d recipients with %d recorded events.", stats.Recipients, stats.Events)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: update.Message.Chat.ID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send stats message", "error", err, "chat_id", update.Message.Chat.ID)
	}
}
