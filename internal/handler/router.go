// Package handler は運用系HTTPエンドポイントのルーティングを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/groupsync/internal/metrics"
	"github.com/hitoshi/groupsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
}

// NewRouter は運用系エンドポイント（/health、/metrics）のルーティングと
// ミドルウェアチェーンを構成したchi.Routerを返す。
// 同期ワーカー本体と同一プロセスで、コンテナのヘルスプローブと
// Prometheusスクレイプに応答する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
