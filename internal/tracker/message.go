package tracker

// SegmentKind identifies a message segment variant. The tracker only acts on
// mention segments; every other kind is opaque and ignored.
type SegmentKind string

const (
	SegmentText    SegmentKind = "text"
	SegmentMention SegmentKind = "mention"
	SegmentOther   SegmentKind = "other"
)

// Segment is one typed piece of an inbound message. UserID is the mention
// target and is only meaningful when Kind is SegmentMention.
type Segment struct {
	Kind   SegmentKind
	Text   string
	UserID string
}

// ReplyRef carries the metadata of the message being replied to, as supplied
// by the platform adapter.
type ReplyRef struct {
	UserID     string
	SenderName string
	RawMessage string
	Timestamp  int64
}

// Message is the platform-independent shape of an inbound chat message.
// The adapter fills it from the wire format; the tracker never sees
// platform-specific types.
type Message struct {
	Timestamp    int64
	SourceUserID string
	GroupID      string // empty outside group chats
	SenderName   string
	RawMessage   string
	Segments     []Segment
	Reply        *ReplyRef
}
