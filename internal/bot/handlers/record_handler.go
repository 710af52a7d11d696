package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/whoasked/internal/tracker"
)

// NewRecordHandler returns the default handler that feeds every non-command
// message into the tracker. It must stay cheap for the vast majority of
// messages that mention nobody; the tracker guarantees those are a no-op.
func NewRecordHandler(deps HandlerDeps) bot.HandlerFunc {
	return recordHandler{deps}.Handle
}

type recordHandler struct {
	deps HandlerDeps
}

func (h recordHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	tracked := messageFromTelegram(msg)
	if tracked == nil {
		return
	}

	h.deps.Tracker.Record(ctx, tracked)
}

// messageFromTelegram converts a Telegram message into the tracker's
// platform-independent message model. Plain @username mention entities are
// indexed by lowercased username (Telegram exposes no numeric id for them);
// text_mention entities and replies carry numeric ids.
func messageFromTelegram(msg *models.Message) *tracker.Message {
	if msg == nil || msg.From == nil {
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	tracked := &tracker.Message{
		Timestamp:    int64(msg.Date),
		SourceUserID: strconv.FormatInt(msg.From.ID, 10),
		SenderName:   displayName(msg.From),
		RawMessage:   text,
	}
	if isGroupChat(msg.Chat) {
		tracked.GroupID = strconv.FormatInt(msg.Chat.ID, 10)
	}

	tracked.Segments = segmentsFromEntities(msg.Text, msg.Entities)
	tracked.Segments = append(tracked.Segments, segmentsFromEntities(msg.Caption, msg.CaptionEntities)...)

	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
		replyText := reply.Text
		if replyText == "" {
			replyText = reply.Caption
		}
		tracked.Reply = &tracker.ReplyRef{
			UserID:     strconv.FormatInt(reply.From.ID, 10),
			SenderName: displayName(reply.From),
			RawMessage: replyText,
			Timestamp:  int64(reply.Date),
		}
	}

	return tracked
}

func segmentsFromEntities(text string, entities []models.MessageEntity) []tracker.Segment {
	var segments []tracker.Segment
	for _, e := range entities {
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(text) {
			continue
		}
		entityText := text[e.Offset : e.Offset+e.Length]

		switch e.Type {
		case models.MessageEntityTypeTextMention:
			if e.User == nil {
				continue
			}
			segments = append(segments, tracker.Segment{
				Kind:   tracker.SegmentMention,
				Text:   entityText,
				UserID: strconv.FormatInt(e.User.ID, 10),
			})
		case models.MessageEntityTypeMention:
			username := strings.ToLower(strings.TrimPrefix(entityText, "@"))
			segments = append(segments, tracker.Segment{
				Kind:   tracker.SegmentMention,
				Text:   entityText,
				UserID: username,
			})
		default:
			segments = append(segments, tracker.Segment{
				Kind: tracker.SegmentOther,
				Text: entityText,
			})
		}
	}
	return segments
}

func isGroupChat(chat models.Chat) bool {
	return chat.Type == models.ChatTypeGroup || chat.Type == models.ChatTypeSupergroup
}

// displayName prefers the user's real name over the username, mirroring how
// group members see each other.
func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}
