// Package tracker implements the message-mention tracker: it records every
// inbound group message that @-mentions or replies to someone, keeps a
// per-recipient index of those events with age-based retention, and answers
// "who asked about me" queries newest-first.
package tracker

import "slices"

// Event is one recorded mention or reply occurrence. Events are immutable
// once created; the same event value may be indexed under several recipients
// when a message mentions multiple users or both mentions and replies.
//
// The JSON field names match the on-disk document format, so an index written
// by a previous deployment loads unchanged.
type Event struct {
	Timestamp       int64    `json:"time"`
	SourceUserID    string   `json:"user_id"`
	RawMessage      string   `json:"raw_message"`
	MentionedIDs    []string `json:"at_list"`
	IsReply         bool     `json:"is_reply"`
	RepliedToUserID string   `json:"reply_user_id,omitempty"`
	GroupID         string   `json:"group_id,omitempty"`
	SenderName      string   `json:"sender_name"`
}

// Mentions reports whether the event asks about the given user, either by
// direct @-mention or by replying to one of their messages.
func (e Event) Mentions(userID string) bool {
	if slices.Contains(e.MentionedIDs, userID) {
		return true
	}
	return e.IsReply && e.RepliedToUserID == userID
}

// Index maps a recipient identity to the ordered list of events naming them.
// Order within a recipient is chronological write order.
type Index map[string][]Event

// Events returns the total number of recorded events across all recipients.
func (idx Index) Events() int {
	total := 0
	for _, events := range idx {
		total += len(events)
	}
	return total
}

// Clone returns a deep copy of the index. Snapshots handed to background
// persistence and results returned to callers are always clones, so later
// writes never race with readers of earlier state.
func (idx Index) Clone() Index {
	cloned := make(Index, len(idx))
	for id, events := range idx {
		cloned[id] = cloneEvents(events)
	}
	return cloned
}

func cloneEvent(e Event) Event {
	e.MentionedIDs = slices.Clone(e.MentionedIDs)
	return e
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	cloned := make([]Event, len(events))
	for i, e := range events {
		cloned[i] = cloneEvent(e)
	}
	return cloned
}
