package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/rss-relay/app/feed"
)

var _ feed.StateStore = (*ReferencePostRepository)(nil)

// ReferencePostRepository persists per-URL cursors between runs. Entries from
// several instances share the table and merge by URL.
type ReferencePostRepository struct {
	db *DB
}

func NewReferencePostRepository(db *DB) *ReferencePostRepository {
	return &ReferencePostRepository{db: db}
}

func (r *ReferencePostRepository) Load(ctx context.Context) (map[string]feed.ReferencePost, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT url, is_youtube, last_run_date FROM reference_posts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference posts: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]feed.ReferencePost)
	for rows.Next() {
		var (
			url       string
			isYoutube bool
			lastRun   string
		)
		if err := rows.Scan(&url, &isYoutube, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan reference post: %w", err)
		}

		lastRunDate, err := time.Parse(time.RFC3339Nano, lastRun)
		if err != nil {
			return nil, fmt.Errorf("invalid last_run_date for %s: %w", url, err)
		}

		refs[url] = feed.ReferencePost{IsYoutube: isYoutube, LastRunDate: lastRunDate}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reference posts: %w", err)
	}

	return refs, nil
}

func (r *ReferencePostRepository) Save(ctx context.Context, refs map[string]feed.ReferencePost) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reference_posts (url, is_youtube, last_run_date, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			is_youtube = excluded.is_youtube,
			last_run_date = excluded.last_run_date,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for url, ref := range refs {
		lastRun := ref.LastRunDate.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, url, ref.IsYoutube, lastRun, now); err != nil {
			return fmt.Errorf("failed to save reference post %s: %w", url, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reference posts: %w", err)
	}
	return nil
}

func (r *ReferencePostRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reference posts: %w", err)
	}
	return n, nil
}
