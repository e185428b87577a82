// Package model はドメインモデルを定義する。
package model

import "encoding/json"

// UserRecord はハブのユーザー一覧APIが返す1ユーザー分のレコードを表す。
// フェッチ後は不変として扱い、1同期サイクルの間だけ生存する。
type UserRecord struct {
	// Name はハブ上のユーザー識別子。
	Name string `json:"name"`
	// Admin は管理者フラグ。trueのユーザーは同期対象から除外される。
	Admin bool `json:"admin"`
	// AuthState は認証状態のサブオブジェクト。
	// 外部ログイン識別子を含む場合がある。形式はハブの認証設定に依存するため
	// 生のJSONのまま保持し、導出側で寛容にパースする。
	AuthState json.RawMessage `json:"authState,omitempty"`
}

// SubjectKind はグループディレクトリに対する主体識別子の分類を表す。
type SubjectKind string

const (
	// SubjectID は不透明なキー（UUID相当）による識別を示す。
	SubjectID SubjectKind = "subjectId"
	// SubjectIdentifier は人間可読な識別子（メールアドレス、グループパス等）による識別を示す。
	SubjectIdentifier SubjectKind = "subjectIdentifier"
)

// Member は同期対象グループの1メンバーを表す。
// 識別子とその分類の組で、ディレクトリAPIのsubjectLookup 1件に対応する。
type Member struct {
	Identifier string
	Kind       SubjectKind
}
