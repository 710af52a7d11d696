package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotLoaded is returned by queries issued before the index has been loaded
// from the store. Callers surface it as a transient notice rather than
// treating it as "no results".
var ErrNotLoaded = errors.New("mention index not loaded yet")

// Store persists the recipient index as one whole document. Save overwrites
// prior content; Load tolerates a missing document by returning an empty
// index without error.
type Store interface {
	Load(ctx context.Context) (Index, error)
	Save(ctx context.Context, idx Index) error
}

// Config holds the tracker tunables. Both values come from configuration;
// the tracker itself mandates no defaults.
type Config struct {
	RetentionDays int
	MaxMessages   int
}

// Stats summarizes the current index size.
type Stats struct {
	Recipients int
	Events     int
}

// Tracker is the write and read path over the recipient index. All index
// mutation for one inbound message happens inside a single critical section
// under mu: extract, append, prune, snapshot. Persistence runs on a
// background goroutine against the snapshot so it never blocks ingestion,
// and queries can only ever observe fully applied writes.
type Tracker struct {
	logger *slog.Logger
	store  Store
	cfg    Config
	clock  func() time.Time

	mu      sync.Mutex
	index   Index
	loaded  bool
	pending Index // latest unsaved snapshot, nil when none
	saving  bool

	saves sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// New creates a tracker over the given store. Call Load before recording or
// querying.
func New(store Store, cfg Config, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger: logger.With("component", "tracker"),
		store:  store,
		cfg:    cfg,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the persisted index. A missing or unreadable document is logged
// and replaced by an empty index; startup is never blocked on storage.
func (t *Tracker) Load(ctx context.Context) {
	idx, err := t.store.Load(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "Failed to load mention index, starting empty", "error", err)
		idx = Index{}
	}
	if idx == nil {
		idx = Index{}
	}

	t.mu.Lock()
	t.index = idx
	t.loaded = true
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "Mention index loaded", "recipients", len(idx), "events", idx.Events())
}

// Record processes one inbound message. It is invoked for every message the
// bot sees; messages that mention nobody and reply to nobody return before
// touching the index or storage. All appends for one message, the retention
// pass, and the persistence snapshot form one atomic unit relative to other
// Record calls.
func (t *Tracker) Record(ctx context.Context, msg *Message) {
	if msg == nil || msg.SourceUserID == "" {
		return
	}

	extraction := Extract(msg)
	if extraction.Empty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		t.logger.WarnContext(ctx, "Dropping message received before index load", "user_id", msg.SourceUserID)
		return
	}

	now := t.clock()

	if extraction.Original != nil {
		t.appendLocked(extraction.RepliedToUserID, *extraction.Original)
	}

	timestamp := msg.Timestamp
	if timestamp == 0 {
		timestamp = now.Unix()
	}
	event := Event{
		Timestamp:       timestamp,
		SourceUserID:    msg.SourceUserID,
		RawMessage:      msg.RawMessage,
		MentionedIDs:    extraction.MentionedIDs,
		IsReply:         extraction.IsReply,
		RepliedToUserID: extraction.RepliedToUserID,
		GroupID:         msg.GroupID,
		SenderName:      msg.SenderName,
	}
	for _, id := range extraction.MentionedIDs {
		t.appendLocked(id, event)
	}
	if extraction.IsReply {
		t.appendLocked(extraction.RepliedToUserID, event)
	}

	Prune(t.index, t.cfg.RetentionDays, now)

	// Hand the snapshot to a single coalescing writer: saves never block
	// ingestion, never run concurrently, and never land out of order. A
	// snapshot that is superseded before the writer picks it up is simply
	// replaced by the newer one.
	t.pending = t.index.Clone()
	if !t.saving {
		t.saving = true
		t.saves.Add(1)
		go t.saveLoop(context.WithoutCancel(ctx))
	}
}

func (t *Tracker) saveLoop(ctx context.Context) {
	defer t.saves.Done()
	for {
		t.mu.Lock()
		snapshot := t.pending
		t.pending = nil
		if snapshot == nil {
			t.saving = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		if err := t.store.Save(ctx, snapshot); err != nil {
			// No retry: memory stays authoritative and the next natural
			// write supersedes this save.
			t.logger.Error("Failed to persist mention index", "error", err, "recipients", len(snapshot))
		}
	}
}

func (t *Tracker) appendLocked(recipientID string, event Event) {
	if recipientID == "" {
		return
	}
	t.index[recipientID] = append(t.index[recipientID], event)
}

// Query returns the events asking about userID in the given group, newest
// first, capped at the configured maximum. The returned total is the
// pre-filter event count for the user, letting callers distinguish "nobody
// ever asked" from "nobody asked in this group". The mention/reply predicate
// is re-applied here even though membership was established at write time;
// the filter is authoritative.
func (t *Tracker) Query(userID, currentGroupID string) ([]Event, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		return nil, 0, ErrNotLoaded
	}

	recorded := t.index[userID]
	matched := make([]Event, 0, len(recorded))
	for _, e := range recorded {
		if e.GroupID != currentGroupID || !matchesRecipient(e, userID) {
			continue
		}
		matched = append(matched, cloneEvent(e))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp > matched[j].Timestamp
	})
	if len(matched) > t.cfg.MaxMessages {
		matched = matched[:t.cfg.MaxMessages]
	}

	return matched, len(recorded), nil
}

// matchesRecipient is the authoritative read-time filter. Besides direct
// mentions and reply targeting it admits events authored by the recipient
// themselves: synthesized original-message events are indexed under their
// own author so a replied-to message stays independently queryable.
func matchesRecipient(e Event, userID string) bool {
	return e.Mentions(userID) || e.SourceUserID == userID
}

// Stats reports the current index size.
func (t *Tracker) Stats() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		return Stats{}, ErrNotLoaded
	}
	return Stats{Recipients: len(t.index), Events: t.index.Events()}, nil
}

// Flush waits for in-flight persistence writes. Called on shutdown so the
// last save is not lost to process exit.
func (t *Tracker) Flush() {
	t.saves.Wait()
}
