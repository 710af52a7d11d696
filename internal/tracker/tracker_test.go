package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/edgard/whoasked/internal/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory tracker.Store that records every Save call.
type fakeStore struct {
	mu      sync.Mutex
	idx     tracker.Index
	loadErr error
	saveErr error
	saves   int
}

func (s *fakeStore) Load(_ context.Context) (tracker.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.idx.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, idx tracker.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.idx = idx.Clone()
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) snapshot() tracker.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.Clone()
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestTracker(t *testing.T, store *fakeStore, cfg tracker.Config, now time.Time) *tracker.Tracker {
	t.Helper()
	trk := tracker.New(store, cfg, nil, tracker.WithClock(fixedClock(now)))
	trk.Load(context.Background())
	return trk
}

func mentionMsg(ts int64, from, group string, targets ...string) *tracker.Message {
	segs := []tracker.Segment{{Kind: tracker.SegmentText, Text: "hey"}}
	for _, id := range targets {
		segs = append(segs, tracker.Segment{Kind: tracker.SegmentMention, UserID: id})
	}
	return &tracker.Message{
		Timestamp:    ts,
		SourceUserID: from,
		GroupID:      group,
		SenderName:   "sender-" + from,
		RawMessage:   "hey",
		Segments:     segs,
	}
}

func TestRecordIgnoresPlainMessages(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), nil)
	trk.Record(context.Background(), &tracker.Message{SourceUserID: ""})
	trk.Record(context.Background(), &tracker.Message{
		Timestamp:    99_000,
		SourceUserID: "100",
		GroupID:      "g1",
		Segments:     []tracker.Segment{{Kind: tracker.SegmentText, Text: "nothing to see"}},
	})
	trk.Flush()

	if got := store.saveCount(); got != 0 {
		t.Errorf("saves = %d, want 0 for messages naming nobody", got)
	}
	stats, err := trk.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Events != 0 {
		t.Errorf("events = %d, want 0", stats.Events)
	}
}

func TestRecordIndexesEveryMentionedRecipient(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200", "300"))
	trk.Flush()

	for _, userID := range []string{"200", "300"} {
		events, total, err := trk.Query(userID, "g1")
		if err != nil {
			t.Fatalf("Query(%s): %v", userID, err)
		}
		if total != 1 || len(events) != 1 {
			t.Fatalf("Query(%s) = %d events (total %d), want 1", userID, len(events), total)
		}
		if events[0].SourceUserID != "100" || events[0].Timestamp != 99_000 {
			t.Errorf("Query(%s) event = %+v", userID, events[0])
		}
	}
	if got := store.saveCount(); got == 0 {
		t.Error("expected at least one persistence save")
	}
}

func TestQueryScopesToCurrentGroup(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200"))
	trk.Record(context.Background(), mentionMsg(99_100, "100", "g2", "200"))
	trk.Flush()

	events, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2 across all groups", total)
	}
	if len(events) != 1 || events[0].GroupID != "g1" {
		t.Fatalf("events = %+v, want exactly the g1 event", events)
	}

	// A group the user was never asked in: no matches but nonzero total.
	events, total, err = trk.Query("200", "g3")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 0 || total != 2 {
		t.Errorf("Query in g3 = %d events (total %d), want 0 events, total 2", len(events), total)
	}
}

func TestRecordReplySynthesizesOriginal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), &tracker.Message{
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
	})
	trk.Flush()

	events, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("got %d events (total %d), want the reply plus the quoted original", len(events), total)
	}

	// Newest first: the reply at t=1000, then the quoted message at t=900.
	if events[0].Timestamp != 1000 || !events[0].IsReply || events[0].SourceUserID != "100" {
		t.Errorf("events[0] = %+v, want the reply event", events[0])
	}
	if events[1].Timestamp != 900 || events[1].IsReply || events[1].SourceUserID != "200" {
		t.Errorf("events[1] = %+v, want the synthesized original", events[1])
	}
	if events[1].RawMessage != "does anyone know" {
		t.Errorf("original raw = %q", events[1].RawMessage)
	}
}

func TestRecordReplyTargetAlsoMentioned(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	msg := mentionMsg(1000, "100", "g1", "200")
	msg.Reply = &tracker.ReplyRef{UserID: "200", SenderName: "Bob", RawMessage: "orig", Timestamp: 900}
	trk.Record(context.Background(), msg)
	trk.Flush()

	// Mention append, reply append and the synthesized original all land
	// under the same recipient.
	_, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestQueryOrderAndCap(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 3}, time.Unix(100_000, 0))

	// Deliberately out of chronological order.
	for _, ts := range []int64{99_000, 99_500, 99_200, 99_900, 99_100} {
		trk.Record(context.Background(), mentionMsg(ts, "100", "g1", "200"))
	}
	trk.Flush()

	events, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want cap of 3", len(events))
	}
	want := []int64{99_900, 99_500, 99_200}
	for i, ts := range want {
		if events[i].Timestamp != ts {
			t.Errorf("events[%d].Timestamp = %d, want %d", i, events[i].Timestamp, ts)
		}
	}
}

func TestRecordPrunesExpiredEvents(t *testing.T) {
	t.Parallel()

	now := time.Unix(100_000, 0)
	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 1, MaxMessages: 10}, now)

	trk.Record(context.Background(), mentionMsg(now.Unix()-90_000, "100", "g1", "200"))
	trk.Record(context.Background(), mentionMsg(now.Unix()-10, "100", "g1", "200"))
	trk.Flush()

	events, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("got %d events (total %d), want only the fresh one", len(events), total)
	}
	if events[0].Timestamp != now.Unix()-10 {
		t.Errorf("surviving event timestamp = %d", events[0].Timestamp)
	}
}

func TestQueryBeforeLoad(t *testing.T) {
	t.Parallel()

	trk := tracker.New(&fakeStore{}, tracker.Config{RetentionDays: 7, MaxMessages: 10}, nil)

	if _, _, err := trk.Query("200", "g1"); !errors.Is(err, tracker.ErrNotLoaded) {
		t.Errorf("Query before Load: err = %v, want ErrNotLoaded", err)
	}
	if _, err := trk.Stats(); !errors.Is(err, tracker.ErrNotLoaded) {
		t.Errorf("Stats before Load: err = %v, want ErrNotLoaded", err)
	}
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadErr: errors.New("disk on fire")}
	trk := tracker.New(store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, nil,
		tracker.WithClock(fixedClock(time.Unix(100_000, 0))))
	trk.Load(context.Background())

	events, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query after failed load: %v", err)
	}
	if len(events) != 0 || total != 0 {
		t.Errorf("expected empty index after failed load")
	}

	// The tracker must remain writable.
	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200"))
	trk.Flush()
	_, total, err = trk.Query("200", "g1")
	if err != nil || total != 1 {
		t.Errorf("Query after record = total %d, err %v", total, err)
	}
}

func TestSaveErrorKeepsMemoryAuthoritative(t *testing.T) {
	t.Parallel()

	store := &fakeStore{saveErr: errors.New("disk full")}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200"))
	trk.Flush()

	_, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 despite failed save", total)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	first := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))
	first.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200"))
	first.Flush()

	second := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))
	_, total, err := second.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query on reloaded tracker: %v", err)
	}
	if total != 1 {
		t.Errorf("reloaded total = %d, want 1", total)
	}
}

func TestConcurrentRecords(t *testing.T) {
	t.Parallel()

	now := time.Unix(100_000, 0)
	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 1000}, now)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				from := fmt.Sprintf("%d", 1000+w)
				trk.Record(context.Background(), mentionMsg(now.Unix()-int64(i), from, "g1", "200"))
			}
		}(w)
	}
	wg.Wait()
	trk.Flush()

	_, total, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != writers*perWriter {
		t.Errorf("total = %d, want %d", total, writers*perWriter)
	}

	// The persisted snapshot must match the in-memory result.
	if got := store.snapshot().Events(); got != writers*perWriter {
		t.Errorf("persisted events = %d, want %d", got, writers*perWriter)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200", "300"))
	trk.Flush()

	stats, err := trk.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Recipients != 2 || stats.Events != 2 {
		t.Errorf("stats = %+v, want 2 recipients, 2 events", stats)
	}
}

func TestQueryReturnsClones(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	trk := newTestTracker(t, store, tracker.Config{RetentionDays: 7, MaxMessages: 10}, time.Unix(100_000, 0))

	trk.Record(context.Background(), mentionMsg(99_000, "100", "g1", "200"))
	trk.Flush()

	events, _, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	events[0].RawMessage = "tampered"
	events[0].MentionedIDs[0] = "999"

	again, _, err := trk.Query("200", "g1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if again[0].RawMessage != "hey" || again[0].MentionedIDs[0] != "200" {
		t.Error("mutating a query result leaked into the index")
	}
}
