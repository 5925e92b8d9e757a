package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ytget/twitvid/types"
)

// DefaultHistoryLimit is used by ListHistory for non-positive limits.
const DefaultHistoryLimit = 10

func newHistoryID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// historyKey identifies an entry within a user's history. Providers that
// return no description fall back to the post URL.
func historyKey(e types.HistoryEntry) string {
	if e.Description != "" {
		return e.Description
	}
	return e.SourceURL
}

// UpsertHistory records e for its user. An existing entry with the same
// description (or, without one, the same source URL) is refreshed and moved
// to the top. The stored entry is returned.
func (d *DB) UpsertHistory(ctx context.Context, e types.HistoryEntry) (types.HistoryEntry, error) {
	if e.UserID == "" {
		return types.HistoryEntry{}, fmt.Errorf("upsert history: empty user id")
	}
	now := d.now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.ID == "" {
		e.ID = newHistoryID(e.CreatedAt)
	}

	var id string
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO download_history(id, user_identifier, source_url, description, creator, thumbnail, video_hd, video_sd, audio, created_at, dedupe_key, seq)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM download_history))
		ON CONFLICT(dedupe_key, user_identifier) DO UPDATE SET
			source_url = excluded.source_url,
			description = excluded.description,
			creator = excluded.creator,
			thumbnail = excluded.thumbnail,
			video_hd = excluded.video_hd,
			video_sd = excluded.video_sd,
			audio = excluded.audio,
			created_at = excluded.created_at,
			seq = excluded.seq
		RETURNING id`,
		e.ID, e.UserID, e.SourceURL, e.Description, e.Creator, e.Thumbnail, e.VideoHD, e.VideoSD, e.Audio, toMillis(e.CreatedAt), historyKey(e),
	).Scan(&id)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("upsert history: %w", err)
	}
	e.ID = id
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))
	return e, nil
}

// ListHistory returns up to limit entries for userID, newest first.
func (d *DB) ListHistory(ctx context.Context, userID string, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_identifier, source_url, description, creator, thumbnail, video_hd, video_sd, audio, created_at
		FROM download_history
		WHERE user_identifier = ?
		ORDER BY seq DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	result := make([]types.HistoryEntry, 0)
	for rows.Next() {
		var (
			e       types.HistoryEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SourceURL, &e.Description, &e.Creator, &e.Thumbnail, &e.VideoHD, &e.VideoSD, &e.Audio, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return result, nil
}

// ClearHistory deletes every entry of userID and reports how many were removed.
func (d *DB) ClearHistory(ctx context.Context, userID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM download_history WHERE user_identifier = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
