// Package reconcile はtweepの所有ユーザー名を users テーブルと突き合わせて修復するジョブを提供する。
// ユーザー名変更は単一トランザクションで行うため通常は差分が生じないが、
// 手動でのデータ修正や移行時の取りこぼしに備え、定期的に整合させる。
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tweeper/internal/metrics"
)

// DefaultInterval は定期実行の既定間隔。
const DefaultInterval = time.Hour

// queryReconcileUsernames は tweeps.username が所有ユーザーの現在のユーザー名と異なる行を書き換える。
const queryReconcileUsernames = `UPDATE tweeps t
SET username = u.username
FROM users u
WHERE t.user_id = u.id AND t.username <> u.username`

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Job はtweepの所有ユーザー名の整合ジョブ。
// 1文のUPDATEで完結するため冪等で、並行実行しても結果は変わらない。
type Job struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewJob は新しいJobを生成する。
func NewJob(db Executor, logger *slog.Logger, mc metrics.MetricsCollector) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Job{
		db:      db,
		logger:  logger,
		metrics: mc,
	}
}

// Run は整合処理を1回実行し、修復したtweep数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, queryReconcileUsernames)
	if err != nil {
		j.logger.Error("ユーザー名整合ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("ユーザー名整合の実行に失敗: %w", err)
	}

	repaired, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("修復件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("修復件数の取得に失敗: %w", err)
	}

	j.metrics.RecordReconciledTweeps(repaired)

	level := slog.LevelInfo
	if repaired > 0 {
		// 正常系では差分が出ないため、修復が発生した場合は警告として残す
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "ユーザー名整合ジョブが完了しました",
		slog.Int64("repaired_count", repaired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return repaired, nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("ユーザー名整合ワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	// 失敗はRun内でログに記録済みのため、次回の実行を待つ
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("ユーザー名整合ワーカーを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
