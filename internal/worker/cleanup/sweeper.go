package cleanup

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/repository"
)

const (
	defaultBatchSize      = 100
	defaultMaxAttempts    = 10
	defaultMaxConcurrency = 4
	maxErrorLength        = 500
)

// BlobDeleter はオブジェクトストレージの削除操作を抽象化する。
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// SweeperConfig はBlobSweeperの動作設定。ゼロ値の項目はデフォルト値になる。
type SweeperConfig struct {
	BatchSize      int
	MaxAttempts    int
	MaxConcurrency int
}

// SweepResult は1回の掃除サイクルの結果。
type SweepResult struct {
	Deleted int
	Failed  int
}

// BlobSweeper は削除待ちキューからオブジェクトを取り出し、ストレージから削除する。
type BlobSweeper struct {
	repo      repository.BlobTombstoneRepository
	store     BlobDeleter
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       SweeperConfig
	purge     *PurgeJob
}

// NewBlobSweeper は新しいBlobSweeperを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewBlobSweeper(
	repo repository.BlobTombstoneRepository,
	store BlobDeleter,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg SweeperConfig,
) *BlobSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobSweeper{
		repo:      repo,
		store:     store,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// WithPurge は掃除サイクルの後に実行する破棄ジョブを設定する。
func (s *BlobSweeper) WithPurge(job *PurgeJob) *BlobSweeper {
	s.purge = job
	return s
}

// Start はinterval間隔で掃除サイクルを実行する。
// 起動直後に1回実行し、ctxがキャンセルされるまでブロックする。
func (s *BlobSweeper) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("削除待ちキューの掃除を開始します",
		slog.Duration("interval", interval),
		slog.Int("batch_size", s.cfg.BatchSize),
	)

	s.runCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("削除待ちキューの掃除を停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *BlobSweeper) runCycle(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("削除待ちキューの掃除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	if s.purge != nil {
		// エラーはPurgeJob側でログ出力済み
		_ = s.purge.Run(ctx)
	}
}

// RunOnce は削除待ちエントリを1バッチ処理する。
// 削除に成功したエントリはキューから取り除き、失敗したエントリは試行回数を加算する。
// semaphoreパターンで最大並列数を制御する。
func (s *BlobSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	pending, err := s.repo.ListPending(ctx, s.cfg.BatchSize, s.cfg.MaxAttempts)
	if err != nil {
		return SweepResult{}, err
	}
	if len(pending) == 0 {
		return SweepResult{}, nil
	}

	var (
		mu     sync.Mutex
		result SweepResult
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for _, t := range pending {
		wg.Add(1)
		sem <- struct{}{}

		go func(t repository.BlobTombstone) {
			defer wg.Done()
			defer func() { <-sem }()

			ok := s.sweepOne(ctx, t)

			mu.Lock()
			if ok {
				result.Deleted++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}(t)
	}

	wg.Wait()

	duration := time.Since(start)
	s.collector.RecordBlobSweep(result.Deleted, result.Failed, duration)
	s.logger.Info("削除待ちキューの掃除が完了しました",
		slog.Int("deleted_count", result.Deleted),
		slog.Int("failed_count", result.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

func (s *BlobSweeper) sweepOne(ctx context.Context, t repository.BlobTombstone) bool {
	if err := s.store.Delete(ctx, t.BlobKey); err != nil {
		reason := truncateReason(err.Error(), maxErrorLength)
		s.logger.Warn("オブジェクトの削除に失敗しました",
			slog.String("blob_key", t.BlobKey),
			slog.Int("attempts", t.Attempts+1),
			slog.String("error", reason),
		)
		if markErr := s.repo.MarkFailed(ctx, t.ID, reason); markErr != nil {
			s.logger.Error("削除失敗の記録に失敗しました",
				slog.Int64("tombstone_id", t.ID),
				slog.String("error", markErr.Error()),
			)
		}
		return false
	}

	if err := s.repo.Delete(ctx, t.ID); err != nil {
		s.logger.Error("削除待ちエントリの除去に失敗しました",
			slog.Int64("tombstone_id", t.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// truncateReason はreasonをlimitバイト以内に切り詰める。
// マルチバイト文字の途中では切らず、不正なUTF-8は置換文字に直す。
func truncateReason(reason string, limit int) string {
	reason = strings.ToValidUTF8(reason, "\uFFFD")
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
