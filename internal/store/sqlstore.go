package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/whoasked/internal/tracker"
)

// SQLStore keeps the recipient index in SQLite while preserving the
// whole-document contract: Save rewrites the full index inside one
// transaction, Load reassembles it ordered by recipient and position.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// eventRow is the flat table shape of one indexed event. The mention list is
// JSON-encoded so the optional fields round-trip exactly like the file
// driver's document.
type eventRow struct {
	RecipientID string         `db:"recipient_id"`
	Position    int            `db:"position"`
	Time        int64          `db:"time"`
	UserID      string         `db:"user_id"`
	RawMessage  string         `db:"raw_message"`
	AtList      string         `db:"at_list"`
	IsReply     bool           `db:"is_reply"`
	ReplyUserID sql.NullString `db:"reply_user_id"`
	GroupID     sql.NullString `db:"group_id"`
	SenderName  string         `db:"sender_name"`
}

// NewSQLStore creates a SQLite-backed store over a connected database.
func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SQLStore{
		db:     db,
		logger: logger.With("component", "store", "driver", "sqlite"),
	}
}

// Load reads the full index from the recipient_events table.
func (s *SQLStore) Load(ctx context.Context) (tracker.Index, error) {
	var rows []eventRow
	query := `
        SELECT recipient_id, position, time, user_id, raw_message, at_list,
               is_reply, reply_user_id, group_id, sender_name
        FROM recipient_events
        ORDER BY recipient_id, position;
    `
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load mention index: %w", err)
	}

	idx := tracker.Index{}
	for _, row := range rows {
		var mentioned []string
		if err := json.Unmarshal([]byte(row.AtList), &mentioned); err != nil {
			return nil, fmt.Errorf("failed to decode mention list for recipient %s: %w", row.RecipientID, err)
		}
		idx[row.RecipientID] = append(idx[row.RecipientID], tracker.Event{
			Timestamp:       row.Time,
			SourceUserID:    row.UserID,
			RawMessage:      row.RawMessage,
			MentionedIDs:    mentioned,
			IsReply:         row.IsReply,
			RepliedToUserID: row.ReplyUserID.String,
			GroupID:         row.GroupID.String,
			SenderName:      row.SenderName,
		})
	}
	return idx, nil
}

// Save rewrites the full index in one transaction, matching the file
// driver's overwrite semantics.
func (s *SQLStore) Save(ctx context.Context, idx tracker.Index) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipient_events;`); err != nil {
		return fmt.Errorf("failed to clear mention index: %w", err)
	}

	insert := `
        INSERT INTO recipient_events (recipient_id, position, time, user_id, raw_message,
                                      at_list, is_reply, reply_user_id, group_id, sender_name)
        VALUES (:recipient_id, :position, :time, :user_id, :raw_message,
                :at_list, :is_reply, :reply_user_id, :group_id, :sender_name);
    `

	// Deterministic write order keeps the on-disk pages stable across saves.
	recipients := make([]string, 0, len(idx))
	for id := range idx {
		recipients = append(recipients, id)
	}
	sort.Strings(recipients)

	for _, recipientID := range recipients {
		for position, event := range idx[recipientID] {
			atList, err := json.Marshal(event.MentionedIDs)
			if err != nil {
				return fmt.Errorf("failed to encode mention list for recipient %s: %w", recipientID, err)
			}
			row := eventRow{
				RecipientID: recipientID,
				Position:    position,
				Time:        event.Timestamp,
				UserID:      event.SourceUserID,
				RawMessage:  event.RawMessage,
				AtList:      string(atList),
				IsReply:     event.IsReply,
				ReplyUserID: nullable(event.RepliedToUserID),
				GroupID:     nullable(event.GroupID),
				SenderName:  event.SenderName,
			}
			if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
				return fmt.Errorf("failed to save event for recipient %s: %w", recipientID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mention index: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Mention index saved", "recipients", len(idx), "events", idx.Events())
	return nil
}

// Maintain runs VACUUM to reclaim space freed by the rewrite-on-save cycle.
func (s *SQLStore) Maintain(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	s.logger.InfoContext(ctx, "Database vacuum completed")
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
