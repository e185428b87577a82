package model

import (
	"errors"
	"fmt"
)

// SyncError は同期処理の統一エラーフォーマットを表す。
// 発生箇所のカテゴリとエラーコードを含み、スケジューラでのログ出力に使用する。
type SyncError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: hub, directory, validation, system
	Meta     map[string]any // ディレクトリが返した結果メタデータ等の付帯情報
	Err      error          // ラップした下位エラー
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はラップした下位エラーを返す。
func (e *SyncError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeTransport        = "TRANSPORT_ERROR"
	ErrCodeParse            = "PARSE_ERROR"
	ErrCodeFieldExtraction  = "FIELD_EXTRACTION"
	ErrCodeDirectoryProblem = "DIRECTORY_PROBLEM"
)

// NewTransportError はフェッチのタイムアウト・接続失敗を表すエラーを生成する。
// サイクル全体に対して致命的であり、リトライは行わない。
func NewTransportError(url string, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("リクエストの送信に失敗しました: %s", url),
		Category: "hub",
		Err:      err,
	}
}

// NewParseError はレスポンスボディが不正なJSONまたは期待外の形状である場合のエラーを生成する。
// サイクル全体に対して致命的。
func NewParseError(reason string, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodeParse,
		Message:  fmt.Sprintf("レスポンスの解析に失敗しました: %s", reason),
		Category: "hub",
		Err:      err,
	}
}

// NewFieldExtractionError は1ユーザーレコードから識別子を抽出できない場合のエラーを生成する。
// 該当レコードのスキップでローカルに回復し、サイクルは継続する。
func NewFieldExtractionError(name string, reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeFieldExtraction,
		Message:  fmt.Sprintf("レコード %q から識別子を抽出できません: %s", name, reason),
		Category: "validation",
	}
}

// NewDirectoryProblemError はグループディレクトリが問題インジケータを返した場合のエラーを生成する。
// ディレクトリ側の結果メタデータを保持する。
func NewDirectoryProblemError(meta map[string]any) *SyncError {
	return &SyncError{
		Code:     ErrCodeDirectoryProblem,
		Message:  "グループディレクトリが問題を報告しました",
		Category: "directory",
		Meta:     meta,
	}
}

// IsSyncErrorCode はerrが指定コードのSyncErrorかどうかを判定する。
func IsSyncErrorCode(err error, code string) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
