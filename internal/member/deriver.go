// Package member はユーザーレコードからのメンバー集合の導出を提供する。
// ドメインサフィックス方式と認証状態参照方式の2つの導出戦略、
// 識別子の分類、重複除去を含む。
package member

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/hitoshi/groupsync/internal/model"
)

// Deriver はユーザーレコード列からメンバー集合を導出する戦略インターフェース。
// デプロイごとに適用する戦略を設定で選択できるよう差し替え可能とする。
type Deriver interface {
	// Derive はレコード順を保ってメンバー集合を導出する。
	// 管理者フラグの立ったレコードは常に除外される。
	// 戻り値の重複除去は行わない（Dedupeを参照）。
	Derive(ctx context.Context, records []model.UserRecord) ([]model.Member, error)
}

// DomainDeriver はレコードのnameフィールドを直接使用する導出戦略。
// ドメイン修飾のないユーザー名には組織ドメインのサフィックスを付与し、
// 組織外ドメインのメールアドレスはスキップする（ログに記録）。
type DomainDeriver struct {
	domain string
	logger *slog.Logger
}

// NewDomainDeriver はDomainDeriverの新しいインスタンスを生成する。
// domainは組織ドメイン（例: berkeley.edu）。
func NewDomainDeriver(domain string, logger *slog.Logger) *DomainDeriver {
	return &DomainDeriver{
		domain: domain,
		logger: logger,
	}
}

// Derive はDeriverインターフェースを実装する。
// 個々のレコードの不備はスキップで回復し、サイクル全体を失敗させない。
func (d *DomainDeriver) Derive(ctx context.Context, records []model.UserRecord) ([]model.Member, error) {
	members := make([]model.Member, 0, len(records))
	suffix := "@" + d.domain

	for _, rec := range records {
		if rec.Admin {
			continue
		}

		name := rec.Name
		if name == "" {
			d.logger.Warn("ユーザー名が空のレコードをスキップします")
			continue
		}

		if !strings.Contains(name, suffix) {
			if strings.Contains(name, "@") {
				// 組織外ドメインのメールアドレス
				d.logger.Warn("組織外ドメインのユーザー名をスキップします",
					slog.String("name", name),
					slog.String("domain", d.domain),
				)
				continue
			}
			name += suffix
		}

		members = append(members, model.Member{
			Identifier: name,
			Kind:       Classify(name),
		})
	}

	return members, nil
}

// Classify は識別子をディレクトリの主体分類に振り分ける。
// 純粋に英字のみ、または数字のみの識別子を不透明キー（subjectId）とみなし、
// それ以外（メールアドレス、グループパス等）を人間可読識別子とみなす。
// パターンベースの発見的規則であり、全英字のグループパス名と英字のみの
// 個人識別子を区別できない既知の不正確さがある。
func Classify(id string) model.SubjectKind {
	if isAlpha(id) || isNumeric(id) {
		return model.SubjectID
	}
	return model.SubjectIdentifier
}

// Dedupe は識別子の値で重複を除去する。
// 最初の出現を保持し、入力の順序を維持する。
// ディレクトリの全置換セマンティクスでは重複lookupは無害だが無駄なため、
// リクエスト構築前に除去する。
func Dedupe(members []model.Member) []model.Member {
	seen := make(map[string]bool, len(members))
	result := make([]model.Member, 0, len(members))
	for _, m := range members {
		if seen[m.Identifier] {
			continue
		}
		seen[m.Identifier] = true
		result = append(result, m)
	}
	return result
}

// isAlpha は文字列が空でなく英字のみで構成されるかを判定する。
func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// isNumeric は文字列が空でなく数字のみで構成されるかを判定する。
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
