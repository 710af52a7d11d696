package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/whoasked/internal/tracker"
)

// NewWhoAskedHandler returns the handler for the /whoasked command. It
// queries the tracker for messages that mentioned or replied to the caller
// in the current group and renders them newest-first.
func NewWhoAskedHandler(deps HandlerDeps) bot.HandlerFunc {
	return whoAskedHandler{deps}.Handle
}

type whoAskedHandler struct {
	deps HandlerDeps
}

func (h whoAskedHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "whoasked")
	msgs := h.deps.Config.Messages

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Whoasked handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := msg.Chat.ID
	if !isGroupChat(msg.Chat) {
		h.reply(ctx, b, msg, msgs.GroupOnly)
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	groupID := strconv.FormatInt(chatID, 10)
	log.InfoContext(ctx, "Handling /whoasked command", "chat_id", chatID, "user_id", userID)

	// Mentions arrive under two identities: the numeric id (replies,
	// text_mention entities) and the username (plain @username entities).
	identities := []string{userID}
	if msg.From.Username != "" {
		identities = append(identities, strings.ToLower(msg.From.Username))
	}

	var (
		matched []tracker.Event
		total   int
	)
	for _, identity := range identities {
		events, identityTotal, err := h.deps.Tracker.Query(identity, groupID)
		if err != nil {
			if errors.Is(err, tracker.ErrNotLoaded) {
				h.reply(ctx, b, msg, msgs.NotReady)
				return
			}
			log.ErrorContext(ctx, "Query failed", "error", err, "identity", identity, "chat_id", chatID)
			h.reply(ctx, b, msg, msgs.GeneralError)
			return
		}
		matched = append(matched, events...)
		total += identityTotal
	}
	matched = mergeNewestFirst(matched, h.deps.Config.Tracker.MaxMessages)

	switch {
	case total == 0:
		h.reply(ctx, b, msg, msgs.NobodyAsked)
	case len(matched) == 0:
		h.reply(ctx, b, msg, msgs.NobodyAskedHere)
	default:
		h.reply(ctx, b, msg, h.render(matched))
	}
}

func (h whoAskedHandler) reply(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send whoasked reply", "error", err, "chat_id", msg.Chat.ID)
	}
}

// render formats the matched events, newest first, one block per event.
func (h whoAskedHandler) render(events []tracker.Event) string {
	msgs := h.deps.Config.Messages

	var sb strings.Builder
	for i, e := range events {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		// Synthesized original-message events carry neither mentions nor a
		// reply flag; they are the caller's own quoted messages.
		action := msgs.QuotedMessage
		switch {
		case e.IsReply:
			action = msgs.RepliedToYou
		case len(e.MentionedIDs) > 0:
			action = msgs.MentionedYou
		}
		when := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04")
		fmt.Fprintf(&sb, "%s %s (%s):\n%s", e.SenderName, action, when, e.RawMessage)
	}
	return sb.String()
}

// mergeNewestFirst merges already-sorted per-identity result lists into one
// newest-first list capped at limit.
func mergeNewestFirst(events []tracker.Event, limit int) []tracker.Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
