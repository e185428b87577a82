// Package reconcile はメンバーシップ同期のバックグラウンド処理を提供する。
// 1同期サイクル（フェッチ→導出→置換）の実行と、その定期スケジューリングを含む。
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/groupsync/internal/member"
	"github.com/hitoshi/groupsync/internal/model"
)

// UserSource はハブのユーザー一覧供給のインターフェース。hub.UserClientが実装する。
type UserSource interface {
	EachUser(ctx context.Context, yield func(model.UserRecord) error) error
}

// MembershipReplacer はグループメンバーシップ置換のインターフェース。grouper.Clientが実装する。
type MembershipReplacer interface {
	ReplaceMembers(ctx context.Context, group string, members []model.Member, replaceAll bool) error
}

// MetricsCollector はサイクル実行のメトリクス記録のインターフェース。
type MetricsCollector interface {
	RecordCycleSuccess()
	RecordCycleFailure(code string)
	RecordCycleDuration(d time.Duration)
	RecordUsersFetched(n int)
	RecordMembersSynced(n int)
}

// Cycle は1回のメンバーシップ同期サイクルを実行する。
// サイクルごとにハブの全ユーザーから目標メンバー集合を再計算する
// （全置換方式。差分計算やローカル状態の保持は行わない）。
type Cycle struct {
	users      UserSource
	deriver    member.Deriver
	directory  MembershipReplacer
	metrics    MetricsCollector
	logger     *slog.Logger
	groupName  string
	replaceAll bool
}

// NewCycle はCycleの新しいインスタンスを生成する。
func NewCycle(
	users UserSource,
	deriver member.Deriver,
	directory MembershipReplacer,
	metrics MetricsCollector,
	logger *slog.Logger,
	groupName string,
	replaceAll bool,
) *Cycle {
	return &Cycle{
		users:      users,
		deriver:    deriver,
		directory:  directory,
		metrics:    metrics,
		logger:     logger,
		groupName:  groupName,
		replaceAll: replaceAll,
	}
}

// RunCycle は同期サイクルを1回実行する。
// フェッチ・導出・置換のいずれかの致命的エラーでサイクルを中断し、エラーを返す。
// 部分的な置換は行わない。
func (c *Cycle) RunCycle(ctx context.Context) error {
	start := time.Now()
	cycleID := uuid.NewString()
	log := c.logger.With(slog.String("cycle_id", cycleID))

	log.Info("同期サイクルを開始します",
		slog.String("group", c.groupName),
	)

	var records []model.UserRecord
	if err := c.users.EachUser(ctx, func(u model.UserRecord) error {
		records = append(records, u)
		return nil
	}); err != nil {
		c.recordFailure(err)
		return err
	}
	c.metrics.RecordUsersFetched(len(records))

	members, err := c.deriver.Derive(ctx, records)
	if err != nil {
		c.recordFailure(err)
		return err
	}

	deduped := member.Dedupe(members)
	if dropped := len(members) - len(deduped); dropped > 0 {
		log.Info("重複する識別子を除去しました",
			slog.Int("dropped", dropped),
		)
	}

	if len(deduped) == 0 {
		log.Warn("導出されたメンバーが0件です。グループは空集合に置換されます",
			slog.String("group", c.groupName),
		)
	}

	if err := c.directory.ReplaceMembers(ctx, c.groupName, deduped, c.replaceAll); err != nil {
		c.recordFailure(err)
		return err
	}

	duration := time.Since(start)
	c.metrics.RecordCycleSuccess()
	c.metrics.RecordCycleDuration(duration)
	c.metrics.RecordMembersSynced(len(deduped))

	log.Info("同期サイクルが完了しました",
		slog.String("group", c.groupName),
		slog.Int("user_count", len(records)),
		slog.Int("member_count", len(deduped)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// recordFailure は失敗メトリクスをエラーコード別に記録する。
func (c *Cycle) recordFailure(err error) {
	code := "UNKNOWN"
	var se *model.SyncError
	if errors.As(err, &se) {
		code = se.Code
	}
	c.metrics.RecordCycleFailure(code)
}
