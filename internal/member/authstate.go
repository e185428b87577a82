package member

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/groupsync/internal/model"
)

// UserGetter はユーザー詳細取得のインターフェース。hub.UserClientが実装する。
type UserGetter interface {
	Get(ctx context.Context, name string) (model.UserRecord, error)
}

// AuthStateDeriver はユーザー詳細APIの認証状態から外部ログイン識別子を導出する戦略。
// ユーザーごとに1回の追加リクエストが発生する。リクエストはFetcherの
// 同時実行制限に従って並行発行されるが、結果はレコード順に組み立てられる。
type AuthStateDeriver struct {
	hub    UserGetter
	logger *slog.Logger
}

// NewAuthStateDeriver はAuthStateDeriverの新しいインスタンスを生成する。
func NewAuthStateDeriver(hub UserGetter, logger *slog.Logger) *AuthStateDeriver {
	return &AuthStateDeriver{
		hub:    hub,
		logger: logger,
	}
}

// Derive はDeriverインターフェースを実装する。
// 認証状態の欠落・不正形はレコード単位のスキップで回復する。
// ユーザー詳細リクエストのトランスポートエラーはサイクル全体に対して致命的。
func (d *AuthStateDeriver) Derive(ctx context.Context, records []model.UserRecord) ([]model.Member, error) {
	// レコード順を保つため、インデックス対応の結果スライスに書き込む
	loginIDs := make([]string, len(records))

	g, gctx := errgroup.WithContext(ctx)

	for i, rec := range records {
		if rec.Admin {
			continue
		}
		if rec.Name == "" {
			d.logger.Warn("ユーザー名が空のレコードをスキップします")
			continue
		}

		i, rec := i, rec
		g.Go(func() error {
			detail, err := d.hub.Get(gctx, rec.Name)
			if err != nil {
				return err
			}

			loginID, ok := extractLoginID(detail.AuthState)
			if !ok {
				d.logger.Warn("認証状態からログイン識別子を抽出できないためスキップします",
					slog.String("name", rec.Name),
				)
				return nil
			}

			loginIDs[i] = loginID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	members := make([]model.Member, 0, len(records))
	for _, loginID := range loginIDs {
		if loginID == "" {
			continue
		}
		members = append(members, model.Member{
			Identifier: loginID,
			Kind:       Classify(loginID),
		})
	}

	return members, nil
}

// extractLoginID は認証状態サブオブジェクトから外部ログイン識別子を抽出する。
// フィールドの欠落や期待外の形状は (「"", false」) として扱い、エラーにしない。
func extractLoginID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var state struct {
		OAuthUser struct {
			LoginID string `json:"loginId"`
		} `json:"oauthUser"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return "", false
	}
	if state.OAuthUser.LoginID == "" {
		return "", false
	}

	return state.OAuthUser.LoginID, true
}
