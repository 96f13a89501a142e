// Package cleanup は削除待ちオブジェクト（blob_tombstones）の後始末を行うジョブを提供する。
// BlobSweeper がオブジェクトストレージからの削除を再試行し、
// PurgeJob が再試行上限に達したまま放置されたエントリを保持期間経過後に破棄する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PurgeJob は再試行上限に達した削除待ちエントリを破棄するジョブ。
type PurgeJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 放置エントリの保持日数（デフォルト: 30）
	MaxAttempts   int // これ以上失敗したエントリを破棄対象とする（デフォルト: 10）
}

// NewPurgeJob は新しいPurgeJobを生成する。
func NewPurgeJob(db Executor, logger *slog.Logger, maxAttempts int) *PurgeJob {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &PurgeJob{
		db:            db,
		logger:        logger,
		RetentionDays: 30,
		MaxAttempts:   maxAttempts,
	}
}

// Run はattemptsがMaxAttempts以上で、最終更新からRetentionDays日を超えたエントリを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM blob_tombstones WHERE attempts >= $1 AND updated_at < now() - $2::interval`
	result, err := j.db.ExecContext(ctx, query, j.MaxAttempts, interval)
	if err != nil {
		j.logger.Error("削除待ちキューの破棄に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("削除待ちキューの破棄に失敗: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("破棄件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("破棄件数の取得に失敗: %w", err)
	}

	if purged > 0 {
		j.logger.Warn("削除できなかったオブジェクトキーを破棄しました",
			slog.Int64("purged_count", purged),
			slog.Int("max_attempts", j.MaxAttempts),
		)
	}
	j.logger.Info("削除待ちキューの破棄ジョブが完了しました",
		slog.Int64("purged_count", purged),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
