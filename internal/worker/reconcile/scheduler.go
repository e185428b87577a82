package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CycleRunner は同期サイクル実行のインターフェース。
type CycleRunner interface {
	// RunCycle は同期サイクルを1回実行する。
	RunCycle(ctx context.Context) error
}

// Scheduler は同期サイクルの定期実行を行う。
// 起動直後に1回実行し、以降は固定間隔のティッカーで繰り返す。
// 単一占有ロックにより同一グループへのサイクルの重複実行を防ぐ
// （実行中にタイマーが発火した場合はスキップしてログに記録する）。
type Scheduler struct {
	runner CycleRunner
	logger *slog.Logger

	mu sync.Mutex // 単一占有ガード
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner CycleRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		logger: logger,
	}
}

// Start は同期スケジューラを起動する。
// ティッカーの初回発火を待たず、起動直後に1回サイクルを実行する。
// サイクルの失敗は次のインターバルを妨げない。
// コンテキストがキャンセルされるまで実行を継続する（ブロッキング）。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	// （ティッカーは最初のインターバル経過まで発火しないため）
	s.runGuarded(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runGuarded(ctx)
		}
	}
}

// RunOnce は同期サイクルを1回実行する。
// 別のサイクルが実行中の場合はスキップし、nilを返す。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.logger.Warn("前回の同期サイクルが実行中のためスキップします")
		return nil
	}
	defer s.mu.Unlock()

	return s.runner.RunCycle(ctx)
}

// runGuarded はRunOnceを実行し、エラーをログに記録する。
// サイクルのエラーはスケジューラを停止させない。
func (s *Scheduler) runGuarded(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
