package tracker

// Extraction is the result of scanning one inbound message for mention and
// reply relationships.
type Extraction struct {
	MentionedIDs    []string
	IsReply         bool
	RepliedToUserID string

	// Original is a synthesized event for the replied-to message itself, so
	// that message becomes queryable under its author. Nil when the inbound
	// message is not a reply.
	Original *Event
}

// Empty reports whether the message named nobody at all. The recorder skips
// all index and persistence work for empty extractions.
func (x Extraction) Empty() bool {
	return len(x.MentionedIDs) == 0 && !x.IsReply
}

// Extract scans the message segments for mention targets and inspects the
// reply metadata. Mention segments with an empty target identity are skipped
// rather than failing the whole message; a reply without an identifiable
// author is treated as not being a reply.
func Extract(msg *Message) Extraction {
	var x Extraction
	if msg == nil {
		return x
	}

	for _, seg := range msg.Segments {
		if seg.Kind != SegmentMention || seg.UserID == "" {
			continue
		}
		x.MentionedIDs = append(x.MentionedIDs, seg.UserID)
	}

	if msg.Reply != nil && msg.Reply.UserID != "" {
		x.IsReply = true
		x.RepliedToUserID = msg.Reply.UserID
		x.Original = &Event{
			Timestamp:    msg.Reply.Timestamp,
			SourceUserID: msg.Reply.UserID,
			RawMessage:   msg.Reply.RawMessage,
			SenderName:   msg.Reply.SenderName,
			GroupID:      msg.GroupID,
		}
	}

	return x
}
