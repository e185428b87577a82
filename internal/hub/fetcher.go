// Package hub はハブのユーザーAPIに対するフェッチ処理を提供する。
// 同時実行数を制限するフェッチャーと、ページネーション対応のユーザー一覧取得を含む。
package hub

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hitoshi/groupsync/internal/model"
)

// StatusRecorder はハブAPIのHTTPステータス記録のインターフェース。
// メトリクスコレクターが実装する。nilの場合は記録しない。
type StatusRecorder interface {
	RecordHubHTTPStatus(statusCode int)
}

// Fetcher は同時実行数を制限してハブAPIへのHTTPリクエストを実行する。
// semaphoreパターンの入場ゲートでin-flightリクエスト数が上限を超えないことを保証する。
// スロットはフェッチの成否にかかわらずdeferで必ず1回解放されるため、リークしない。
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	sem        chan struct{}
	limiter    *rate.Limiter
	metrics    StatusRecorder
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// concurrencyが0の場合は同時実行数を制限しない。
// ratePerSecが0より大きい場合はリクエストレートを制限する
// （大規模デプロイのハブAPIはレート感受性が高いため）。
// metricsはnil可。
func NewFetcher(
	httpClient *http.Client,
	logger *slog.Logger,
	token string,
	concurrency int,
	ratePerSec float64,
	metrics StatusRecorder,
) *Fetcher {
	f := &Fetcher{
		httpClient: httpClient,
		logger:     logger,
		token:      token,
		metrics:    metrics,
	}
	if concurrency > 0 {
		f.sem = make(chan struct{}, concurrency)
	}
	if ratePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return f
}

// Do はリクエストを実行し、レスポンスボディとステータスコードを返す。
// 同時実行スロットの取得後にリクエストを発行し、終了時に必ずスロットを解放する。
// Authorizationヘッダーが未設定の場合はハブAPIトークンを付与する。
// タイムアウト・接続失敗・4xx/5xxステータスはTransportErrorとして返す（リトライなし）。
func (f *Fetcher) Do(req *http.Request) ([]byte, int, error) {
	ctx := req.Context()

	// semaphore取得（ブロック）。コンテキストキャンセル時は中断する。
	if f.sem != nil {
		select {
		case f.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, 0, model.NewTransportError(req.URL.String(), ctx.Err())
		}
		defer func() { <-f.sem }() // semaphore解放
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, 0, model.NewTransportError(req.URL.String(), err)
		}
	}

	if f.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("ハブAPIへのリクエストに失敗しました",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return nil, 0, model.NewTransportError(req.URL.String(), err)
	}
	defer resp.Body.Close()

	if f.metrics != nil {
		f.metrics.RecordHubHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return nil, resp.StatusCode, model.NewTransportError(req.URL.String(), err)
	}

	if resp.StatusCode >= 400 {
		f.logger.Error("ハブAPIがエラーステータスを返しました",
			slog.String("url", req.URL.String()),
			slog.Int("http_status", resp.StatusCode),
		)
		return body, resp.StatusCode, model.NewTransportError(
			req.URL.String(),
			fmt.Errorf("unexpected status %d", resp.StatusCode),
		)
	}

	return body, resp.StatusCode, nil
}
