package handlers

import (
	"context"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly restricts a handler to the configured admin user. Everyone else
// gets the not-authorized message.
func AdminOnly(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			log := deps.Logger.With("middleware", "admin_only")

			if update.Message == nil || update.Message.From == nil {
				log.WarnContext(ctx, "Admin check received update with nil message or sender", "update_id", update.ID)
				return
			}

			if update.Message.From.ID != deps.Config.Telegram.AdminID {
				log.WarnContext(ctx, "Unauthorized command attempt",
					"user_id", update.Message.From.ID, "chat_id", update.Message.Chat.ID)
				_, err := b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   deps.Config.Messages.NotAuthorized,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send not-authorized message", "error", err, "chat_id", update.Message.Chat.ID)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}

// Recovery catches panics escaping a handler, logs them with a stack trace,
// and notifies the user with a generic failure notice. A single bad update
// must never take down the bot.
func Recovery(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				log := deps.Logger.With("middleware", "recovery")
				log.ErrorContext(ctx, "Recovered from panic in handler",
					"panic", r, "update_id", update.ID, "stack", string(debug.Stack()))

				if update.Message == nil {
					return
				}
				_, err := b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   deps.Config.Messages.GeneralError,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send failure notice", "error", err, "chat_id", update.Message.Chat.ID)
				}
			}()

			next(ctx, b, update)
		}
	}
}
