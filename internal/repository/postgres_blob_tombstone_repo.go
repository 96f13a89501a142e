package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresBlobTombstoneRepo はPostgreSQLを使用した削除待ちオブジェクトキューのリポジトリ。
type PostgresBlobTombstoneRepo struct {
	db *sql.DB
}

// NewPostgresBlobTombstoneRepo はPostgresBlobTombstoneRepoを生成する。
func NewPostgresBlobTombstoneRepo(db *sql.DB) *PostgresBlobTombstoneRepo {
	return &PostgresBlobTombstoneRepo{db: db}
}

// Enqueue はキーを削除待ちキューに積む。
func (r *PostgresBlobTombstoneRepo) Enqueue(ctx context.Context, keys []string) error {
	return enqueueTombstones(ctx, r.db, keys)
}

// ListPending は試行回数がmaxAttempts未満のエントリを古い順にlimit件返す。
func (r *PostgresBlobTombstoneRepo) ListPending(ctx context.Context, limit, maxAttempts int) ([]BlobTombstone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, blob_key, attempts, last_error, created_at
		 FROM blob_tombstones
		 WHERE attempts < $2
		 ORDER BY id
		 LIMIT $1`,
		limit, maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob tombstones: %w", err)
	}
	defer rows.Close()

	var list []BlobTombstone
	for rows.Next() {
		var t BlobTombstone
		if err := rows.Scan(&t.ID, &t.BlobKey, &t.Attempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blob tombstone: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blob tombstones: %w", err)
	}
	return list, nil
}

// Delete はエントリを削除する。
func (r *PostgresBlobTombstoneRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blob_tombstones WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete blob tombstone: %w", err)
	}
	return nil
}

// MarkFailed は試行回数を加算し、エラー内容を記録する。
func (r *PostgresBlobTombstoneRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE blob_tombstones SET attempts = attempts + 1, last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark blob tombstone failed: %w", err)
	}
	return nil
}

// enqueueTombstones はキーをまとめて削除待ちキューに積む。空キーは無視する。
func enqueueTombstones(ctx context.Context, q execQuerier, keys []string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO blob_tombstones (blob_key) VALUES ($1) ON CONFLICT (blob_key) DO NOTHING`,
			key,
		); err != nil {
			return fmt.Errorf("failed to enqueue blob tombstone: %w", err)
		}
	}
	return nil
}

// compile-time interface check
var _ BlobTombstoneRepository = (*PostgresBlobTombstoneRepo)(nil)
