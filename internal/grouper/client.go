// Package grouper はグループディレクトリ（Grouper）連携機能を提供する。
// メンバーシップの全置換APIの呼び出しと、ハブURLからのグループ名導出を含む。
package grouper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/groupsync/internal/model"
)

// problemKey はディレクトリレスポンスのトップレベル問題インジケータのキー。
const problemKey = "WsRestResultProblem"

// wsRestAddMemberRequest はメンバー追加・置換リクエストのボディを表す。
// https://github.com/Internet2/grouper のaddMember REST形式に従う。
type wsRestAddMemberRequest struct {
	ReplaceAllExisting string              `json:"replaceAllExisting"`
	SubjectLookups     []map[string]string `json:"subjectLookups"`
}

// Client はグループディレクトリAPIのクライアント。
// Basic認証でメンバーシップ置換エンドポイントを呼び出す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	username   string
	password   string
}

// NewClient はClientの新しいインスタンスを生成する。
// 認証情報は設定から明示的に渡される（プロセス環境の暗黙参照はしない）。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, username, password string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
	}
}

// ReplaceMembers はグループのメンバーシップをmembersで置換する。
// replaceAllがtrueの場合は既存メンバー全員が置き換えられる（全置換）。
// 全置換は同一の目標状態を再宣言する操作のため、一時的失敗後の再送は安全。
// レスポンスに問題インジケータが含まれる場合はDirectoryProblemエラーを返す。
func (c *Client) ReplaceMembers(ctx context.Context, group string, members []model.Member, replaceAll bool) error {
	lookups := make([]map[string]string, 0, len(members))
	for _, m := range members {
		lookups = append(lookups, map[string]string{string(m.Kind): m.Identifier})
	}

	payload := map[string]wsRestAddMemberRequest{
		"WsRestAddMemberRequest": {
			ReplaceAllExisting: boolString(replaceAll),
			SubjectLookups:     lookups,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.NewParseError("リクエストボディの生成に失敗しました", err)
	}

	membersURL := c.baseURL + "/groups/" + group + "/members"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, membersURL, bytes.NewReader(body))
	if err != nil {
		return model.NewTransportError(membersURL, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "text/x-json")

	c.logger.Info("グループメンバーシップの置換リクエストを送信します",
		slog.String("group", group),
		slog.Int("member_count", len(members)),
		slog.String("replace_all_existing", boolString(replaceAll)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("グループディレクトリへのリクエストに失敗しました",
			slog.String("group", group),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(membersURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewTransportError(membersURL, err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &out); err != nil {
		return model.NewParseError("グループディレクトリのレスポンスが不正なJSONです", err)
	}

	if problemRaw, ok := out[problemKey]; ok {
		var problem struct {
			ResultMetadata map[string]any `json:"resultMetadata"`
		}
		// メタデータの形状不正は空メタデータの問題報告として扱う
		_ = json.Unmarshal(problemRaw, &problem)

		c.logger.Error("グループディレクトリが問題を報告しました",
			slog.String("group", group),
			slog.Any("result_metadata", problem.ResultMetadata),
		)
		return model.NewDirectoryProblemError(problem.ResultMetadata)
	}

	c.logger.Info("グループメンバーシップを更新しました",
		slog.String("group", group),
		slog.Int("member_count", len(members)),
	)

	return nil
}

// boolString はディレクトリAPIのワイヤ規約に従い真偽値を"T"/"F"に変換する。
func boolString(b bool) string {
	if b {
		return "T"
	}
	return "F"
}
