package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/groupsync/internal/model"
)

// paginationAccept はページネーション対応レスポンスを要求するAcceptヘッダー値。
const paginationAccept = "application/jupyterhub-pagination+json"

// requestDoer はHTTPリクエスト実行のインターフェース。Fetcherが実装する。
type requestDoer interface {
	Do(req *http.Request) ([]byte, int, error)
}

// UserClient はハブのユーザー一覧・ユーザー詳細APIのクライアント。
// ページネーションをカーソル順に辿り、全ユーザーレコードを1本の遅延シーケンスとして供給する。
type UserClient struct {
	fetcher  requestDoer
	logger   *slog.Logger
	baseURL  string
	pageSize int // 0の場合はサーバー側のデフォルトページサイズを使用
}

// NewUserClient はUserClientの新しいインスタンスを生成する。
func NewUserClient(fetcher requestDoer, logger *slog.Logger, baseURL string, pageSize int) *UserClient {
	return &UserClient{
		fetcher:  fetcher,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
	}
}

// fetchResult は先行発行したページリクエストの結果を保持する。
type fetchResult struct {
	body []byte
	err  error
}

// EachUser はユーザー一覧をページ順・ページ内順にyieldへ渡す。
// レスポンスがプレーンなJSONリストの場合（ページネーション未対応の旧形式）は
// 1回のフェッチで全件をyieldして終了する。
// ページネーション形式の場合、次ページのリクエストは現在ページのyieldに先行して
// 発行される（パイプライン化）。yieldがエラーを返した場合は走査を中断してそのエラーを返す。
func (c *UserClient) EachUser(ctx context.Context, yield func(model.UserRecord) error) error {
	seedURL := c.baseURL + "/users"
	if c.pageSize > 0 {
		seedURL += "?limit=" + strconv.Itoa(c.pageSize)
	}

	fetch := func(pageURL string) chan fetchResult {
		ch := make(chan fetchResult, 1)
		go func() {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				ch <- fetchResult{err: model.NewTransportError(pageURL, err)}
				return
			}
			req.Header.Set("Accept", paginationAccept)
			body, _, err := c.fetcher.Do(req)
			ch <- fetchResult{body: body, err: err}
		}()
		return ch
	}

	pageNo := 1
	itemCount := 0
	pending := fetch(seedURL)

	for pending != nil {
		res := <-pending
		pending = nil
		if res.err != nil {
			return res.err
		}

		items, nextURL, err := parseUsersPage(res.body)
		if err != nil {
			return err
		}

		// 次ページのリクエストを先に発行してから現在ページをyieldする
		if nextURL != "" {
			pageNo++
			c.logger.Info("次のページをフェッチします",
				slog.Int("page", pageNo),
				slog.String("url", nextURL),
			)
			pending = fetch(nextURL)
		}

		for _, item := range items {
			itemCount++
			if err := yield(item); err != nil {
				return err
			}
		}
	}

	c.logger.Debug("ユーザー一覧のフェッチが完了しました",
		slog.Int("item_count", itemCount),
		slog.Int("page_count", pageNo),
	)

	return nil
}

// Get は単一ユーザーの詳細レコードを取得する。
// 認証状態ベースのメンバー導出戦略で使用される。
func (c *UserClient) Get(ctx context.Context, name string) (model.UserRecord, error) {
	userURL := c.baseURL + "/users/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userURL, nil)
	if err != nil {
		return model.UserRecord{}, model.NewTransportError(userURL, err)
	}

	body, _, err := c.fetcher.Do(req)
	if err != nil {
		return model.UserRecord{}, err
	}

	var record model.UserRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return model.UserRecord{}, model.NewParseError(
			fmt.Sprintf("ユーザー詳細レスポンスが不正なJSONです: %s", name), err)
	}

	return record, nil
}

// usersPagination はページネーション形式レスポンスの_paginationフィールドを表す。
type usersPagination struct {
	Next *struct {
		URL string `json:"url"`
	} `json:"next"`
}

// parseUsersPage はユーザー一覧レスポンスの1ページをパースする。
// 戻り値は (ページ内のレコード, 次ページURL, エラー)。
// 次ページURLが空文字列の場合、これ以上のページは存在しない。
// トップレベルがリストでもitemsキーを持つオブジェクトでもない場合はParseErrorを返す。
func parseUsersPage(body []byte) ([]model.UserRecord, string, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, "", model.NewParseError("レスポンスボディが空です", nil)
	}

	// 旧形式: トップレベルがリストの場合は全要素をアイテムとして扱い、ページネーションなし
	if trimmed[0] == '[' {
		var items []model.UserRecord
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", model.NewParseError("ユーザーリストが不正なJSONです", err)
		}
		return items, "", nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, "", model.NewParseError("レスポンスが不正なJSONです", err)
	}

	itemsRaw, ok := raw["items"]
	if !ok {
		return nil, "", model.NewParseError("レスポンスがリストでもitemsキーを持つオブジェクトでもありません", nil)
	}

	var items []model.UserRecord
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return nil, "", model.NewParseError("itemsフィールドの解析に失敗しました", err)
	}

	nextURL := ""
	if pagRaw, ok := raw["_pagination"]; ok {
		var pag usersPagination
		if err := json.Unmarshal(pagRaw, &pag); err != nil {
			return nil, "", model.NewParseError("_paginationフィールドの解析に失敗しました", err)
		}
		if pag.Next != nil && pag.Next.URL != "" {
			nextURL = pag.Next.URL
		}
	}

	return items, nextURL, nil
}
