package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/types"
)

// InsertImage stores rec and fills in its ID and CreatedAt. A taken short
// code yields errs.ErrShortCodeConflict.
func (d *DB) InsertImage(ctx context.Context, rec *types.ImageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now().UTC()
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO images(name, short_code, storage_path, file_type, file_size, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.ShortCode, rec.StoragePath, rec.FileType, rec.FileSize, toMillis(rec.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", errs.ErrShortCodeConflict, rec.ShortCode)
		}
		return fmt.Errorf("insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = fromMillis(toMillis(rec.CreatedAt))
	log.Debug("image stored", logger.Fields{"id": id, "path": rec.StoragePath})
	return nil
}

// ImageByShortCode looks an image up by its plaintext short code.
func (d *DB) ImageByShortCode(ctx context.Context, code string) (*types.ImageRecord, error) {
	var (
		rec     types.ImageRecord
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, short_code, storage_path, file_type, file_size, created_at FROM images WHERE short_code = ?`, code).
		Scan(&rec.ID, &rec.Name, &rec.ShortCode, &rec.StoragePath, &rec.FileType, &rec.FileSize, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrLinkNotFound
		}
		return nil, fmt.Errorf("query image: %w", err)
	}
	rec.CreatedAt = fromMillis(created)
	return &rec, nil
}

// DeleteImage removes the record for code. Missing records are not an error.
func (d *DB) DeleteImage(ctx context.Context, code string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM images WHERE short_code = ?`, code); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
