package tracker_test

import (
	"reflect"
	"testing"

	"github.com/edgard/whoasked/internal/tracker"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		msg             *tracker.Message
		wantEmpty       bool
		wantMentions    []string
		wantIsReply     bool
		wantRepliedTo   string
		wantHasOriginal bool
	}{
		{
			name:      "nil message",
			msg:       nil,
			wantEmpty: true,
		},
		{
			name: "plain text only",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentText, Text: "hello world"},
				},
			},
			wantEmpty: true,
		},
		{
			name: "single mention",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentText, Text: "hey "},
					{Kind: tracker.SegmentMention, UserID: "200"},
				},
			},
			wantMentions: []string{"200"},
		},
		{
			name: "multiple mentions keep order and duplicates",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentMention, UserID: "200"},
					{Kind: tracker.SegmentMention, UserID: "300"},
					{Kind: tracker.SegmentMention, UserID: "200"},
				},
			},
			wantMentions: []string{"200", "300", "200"},
		},
		{
			name: "mention with empty target is skipped",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentMention, UserID: ""},
					{Kind: tracker.SegmentMention, UserID: "200"},
				},
			},
			wantMentions: []string{"200"},
		},
		{
			name: "non-mention segments are ignored",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentOther, Text: "sticker"},
					{Kind: tracker.SegmentText, Text: "look"},
				},
			},
			wantEmpty: true,
		},
		{
			name: "reply without mentions",
			msg: &tracker.Message{
				SourceUserID: "100",
				Reply: &tracker.ReplyRef{
					UserID:     "200",
					SenderName: "Bob",
					RawMessage: "original",
					Timestamp:  900,
				},
			},
			wantIsReply:     true,
			wantRepliedTo:   "200",
			wantHasOriginal: true,
		},
		{
			name: "reply with unknown author treated as plain message",
			msg: &tracker.Message{
				SourceUserID: "100",
				Reply:        &tracker.ReplyRef{UserID: "", RawMessage: "original"},
			},
			wantEmpty: true,
		},
		{
			name: "reply and mention combined",
			msg: &tracker.Message{
				SourceUserID: "100",
				Segments: []tracker.Segment{
					{Kind: tracker.SegmentMention, UserID: "300"},
				},
				Reply: &tracker.ReplyRef{UserID: "200", Timestamp: 900},
			},
			wantMentions:    []string{"300"},
			wantIsReply:     true,
			wantRepliedTo:   "200",
			wantHasOriginal: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tracker.Extract(tc.msg)

			if got.Empty() != tc.wantEmpty {
				t.Errorf("Empty() = %v, want %v", got.Empty(), tc.wantEmpty)
			}
			if !reflect.DeepEqual(got.MentionedIDs, tc.wantMentions) {
				t.Errorf("MentionedIDs = %v, want %v", got.MentionedIDs, tc.wantMentions)
			}
			if got.IsReply != tc.wantIsReply {
				t.Errorf("IsReply = %v, want %v", got.IsReply, tc.wantIsReply)
			}
			if got.RepliedToUserID != tc.wantRepliedTo {
				t.Errorf("RepliedToUserID = %q, want %q", got.RepliedToUserID, tc.wantRepliedTo)
			}
			if (got.Original != nil) != tc.wantHasOriginal {
				t.Errorf("Original present = %v, want %v", got.Original != nil, tc.wantHasOriginal)
			}
		})
	}
}

func TestExtractSynthesizedOriginal(t *testing.T) {
	t.Parallel()

	msg := &tracker.Message{
		Timestamp:    1000,
		SourceUserID: "100",
		GroupID:      "g1",
		SenderName:   "Alice",
		RawMessage:   "that one",
		Reply: &tracker.ReplyRef{
			UserID:     "200",
			SenderName: "Bob",
			RawMessage: "does anyone know",
			Timestamp:  900,
		},
	}

	got := tracker.Extract(msg)
	if got.Original == nil {
		t.Fatal("expected synthesized original event")
	}

	want := tracker.Event{
		Timestamp:    900,
		SourceUserID: "200",
		RawMessage:   "does anyone know",
		SenderName:   "Bob",
		GroupID:      "g1",
	}
	if !reflect.DeepEqual(*got.Original, want) {
		t.Errorf("Original = %+v, want %+v", *got.Original, want)
	}
}
