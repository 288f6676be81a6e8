package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"clip-harvester/internal/model"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertSource registers or refreshes a scanned source. Last write wins for
// the display name and URL; sources are never deleted.
func (s *Store) UpsertSource(ctx context.Context, src model.Source) error {
	if src.Key == "" {
		return fmt.Errorf("upsert source: key is required")
	}
	ts := now()
	query, args, err := sq.Insert("sources").
		Columns("key", "display_name", "canonical_url", "created_at", "updated_at").
		Values(src.Key, src.DisplayName, src.CanonicalURL, ts, ts).
		Suffix(`ON CONFLICT(key) DO UPDATE SET
			display_name = excluded.display_name,
			canonical_url = excluded.canonical_url,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Key, err)
	}
	return nil
}

// IsKnown reports whether any record exists for (sourceKey, videoID),
// regardless of status. A failed item stays known until explicitly requeued.
func (s *Store) IsKnown(ctx context.Context, sourceKey, videoID string) (bool, error) {
	query, args, err := sq.Select("1").
		From("videos").
		Where(sq.Eq{"source_key": sourceKey, "video_id": videoID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build is-known query: %w", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query known %s/%s: %w", sourceKey, videoID, err)
	}
	return true, nil
}

// GetRecord loads a single record, or ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, sourceKey, videoID string) (model.VideoRecord, error) {
	query, args, err := recordSelect().
		Where(sq.Eq{"source_key": sourceKey, "video_id": videoID}).
		ToSql()
	if err != nil {
		return model.VideoRecord{}, fmt.Errorf("build record query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.VideoRecord{}, ErrNotFound
	}
	if err != nil {
		return model.VideoRecord{}, fmt.Errorf("load record %s/%s: %w", sourceKey, videoID, err)
	}
	return rec, nil
}

// RecordStatus upserts the bookkeeping row for a video. Status movement is
// validated against the transition table, and a known file or caption path is
// never overwritten with an empty one. The check and the write share one
// transaction so concurrent writers cannot validate against a stale status.
func (s *Store) RecordStatus(ctx context.Context, rec model.VideoRecord) error {
	if rec.SourceKey == "" || rec.VideoID == "" {
		return fmt.Errorf("record status: source key and video id are required")
	}
	if !model.IsKnownStatus(rec.Status) {
		return fmt.Errorf("record status: unknown status %q", rec.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record status: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query, args, err := sq.Select("status").
		From("videos").
		Where(sq.Eq{"source_key": rec.SourceKey, "video_id": rec.VideoID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status query: %w", err)
	}
	var current string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load status %s/%s: %w", rec.SourceKey, rec.VideoID, err)
	}
	if !model.CanTransition(current, rec.Status) {
		return fmt.Errorf("record status: invalid transition %q -> %q (source=%s video_id=%s)",
			current, rec.Status, rec.SourceKey, rec.VideoID)
	}

	ts := now()
	query, args, err = sq.Insert("videos").
		Columns("source_key", "video_id", "url", "title", "status", "file_path", "caption_path", "created_at", "updated_at").
		Values(rec.SourceKey, rec.VideoID, rec.URL, rec.Title, rec.Status,
			nullable(rec.FilePath), nullable(rec.CaptionPath), ts, ts).
		Suffix(`ON CONFLICT(source_key, video_id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			status = excluded.status,
			file_path = COALESCE(excluded.file_path, videos.file_path),
			caption_path = COALESCE(excluded.caption_path, videos.caption_path),
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record status %s/%s: %w", rec.SourceKey, rec.VideoID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record status %s/%s: %w", rec.SourceKey, rec.VideoID, err)
	}
	return nil
}

// ClearPaths nulls both stored paths, used when the sweep deletes the pair
// from disk. This is the only path-erasing write; RecordStatus never does it.
func (s *Store) ClearPaths(ctx context.Context, sourceKey, videoID string) error {
	query, args, err := sq.Update("videos").
		Set("file_path", nil).
		Set("caption_path", nil).
		Set("updated_at", now()).
		Where(sq.Eq{"source_key": sourceKey, "video_id": videoID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear paths: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear paths %s/%s: %w", sourceKey, videoID, err)
	}
	return nil
}

// RequeueFailed resets failed records back to queued so the next harvest
// picks them up. An empty sourceKey requeues across all sources. Returns the
// number of records reset.
func (s *Store) RequeueFailed(ctx context.Context, sourceKey string) (int, error) {
	builder := sq.Update("videos").
		Set("status", model.StatusQueued).
		Set("updated_at", now()).
		Where(sq.Eq{"status": model.StatusFailed})
	if sourceKey != "" {
		builder = builder.Where(sq.Eq{"source_key": sourceKey})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build requeue: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue failed records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}
	return int(n), nil
}

// ListByStatus returns all records in the given status, ordered by source
// then video id so sweeps are deterministic.
func (s *Store) ListByStatus(ctx context.Context, status string) ([]model.VideoRecord, error) {
	query, args, err := recordSelect().
		Where(sq.Eq{"status": status}).
		OrderBy("source_key", "video_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records by status %q: %w", status, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []model.VideoRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ListSourceStatus returns one source's records in the given status, ordered
// by video id. Harvests use it to pick queued leftovers back up.
func (s *Store) ListSourceStatus(ctx context.Context, sourceKey, status string) ([]model.VideoRecord, error) {
	query, args, err := recordSelect().
		Where(sq.Eq{"source_key": sourceKey, "status": status}).
		OrderBy("video_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s records for %s: %w", status, sourceKey, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []model.VideoRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// StatusCount is one cell of the per-source status rollup.
type StatusCount struct {
	SourceKey string
	Status    string
	Count     int
}

// CountByStatus aggregates record counts grouped by source and status.
func (s *Store) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	query, args, err := sq.Select("source_key", "status", "COUNT(*)").
		From("videos").
		GroupBy("source_key", "status").
		OrderBy("source_key", "status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status rollup: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status rollup: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.SourceKey, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func recordSelect() sq.SelectBuilder {
	return sq.Select("source_key", "video_id", "url", "title", "status",
		"file_path", "caption_path", "created_at", "updated_at").
		From("videos")
}

func scanRecord(row rowScanner) (model.VideoRecord, error) {
	var rec model.VideoRecord
	var filePath, captionPath sql.NullString
	if err := row.Scan(&rec.SourceKey, &rec.VideoID, &rec.URL, &rec.Title, &rec.Status,
		&filePath, &captionPath, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.VideoRecord{}, err
	}
	rec.FilePath = filePath.String
	rec.CaptionPath = captionPath.String
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
