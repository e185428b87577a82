// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/groupsync/internal/config"
	"github.com/hitoshi/groupsync/internal/grouper"
	"github.com/hitoshi/groupsync/internal/handler"
	"github.com/hitoshi/groupsync/internal/hub"
	"github.com/hitoshi/groupsync/internal/logger"
	"github.com/hitoshi/groupsync/internal/member"
	"github.com/hitoshi/groupsync/internal/metrics"
	"github.com/hitoshi/groupsync/internal/security"
	"github.com/hitoshi/groupsync/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("hub_api_url", cfg.HubAPIURL),
		slog.String("member_strategy", cfg.MemberStrategy),
	)

	switch cmd {
	case CommandOnce:
		return runOnce(cfg)
	default:
		return runSync(cfg)
	}
}

// buildCycle はConfigから同期サイクルと依存関係一式を組み立てる。
// 認証情報はここから各クライアントへ明示的に渡す。
func buildCycle(cfg *config.Config) (*reconcile.Cycle, prometheus.Gatherer, error) {
	// 1. ベースURLの検証
	if err := security.ValidateBaseURL(cfg.HubAPIURL); err != nil {
		return nil, nil, fmt.Errorf("invalid HUB_API_URL: %w", err)
	}
	if err := security.ValidateBaseURL(cfg.GrouperBaseURL); err != nil {
		return nil, nil, fmt.Errorf("invalid GROUPER_BASE_URL: %w", err)
	}

	// 2. 同期対象グループ名の決定（未設定の場合はハブURLから導出）
	groupName := cfg.GroupName
	if groupName == "" {
		derived, err := grouper.DeriveGroupName(cfg.HubAPIURL, cfg.GroupPrefix, cfg.GroupDefaultNamespace)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to derive group name: %w", err)
		}
		groupName = derived
	}

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ハブクライアントの初期化
	var hubHTTPClient *http.Client
	if cfg.OutboundStrict {
		hubHTTPClient = security.NewStrictClient(cfg.HubRequestTimeout)
	} else {
		hubHTTPClient = security.NewClient(cfg.HubRequestTimeout)
	}

	fetcher := hub.NewFetcher(
		hubHTTPClient, slog.Default(), cfg.HubAPIToken,
		cfg.FetchConcurrency, cfg.HubRateLimit, collector,
	)
	userClient := hub.NewUserClient(fetcher, slog.Default(), cfg.HubAPIURL, cfg.APIPageSize)

	// 5. メンバー導出戦略の選択
	var deriver member.Deriver
	switch cfg.MemberStrategy {
	case config.StrategyAuthState:
		deriver = member.NewAuthStateDeriver(userClient, slog.Default())
	default:
		deriver = member.NewDomainDeriver(cfg.MemberDomain, slog.Default())
	}

	// 6. グループディレクトリクライアントの初期化
	grouperClient := grouper.NewClient(
		security.NewClient(cfg.GrouperRequestTimeout), slog.Default(),
		cfg.GrouperBaseURL, cfg.GrouperUser, cfg.GrouperPass,
	)

	cycle := reconcile.NewCycle(
		userClient, deriver, grouperClient, collector,
		slog.Default(), groupName, cfg.ReplaceExisting,
	)

	return cycle, registry, nil
}

// runSync は同期デーモンモードで起動する。
// 運用系HTTPサーバー（/health、/metrics）をバックグラウンドで起動し、
// 同期スケジューラをメインgoroutineで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runSync(cfg *config.Config) error {
	cycle, gatherer, err := buildCycle(cfg)
	if err != nil {
		return err
	}

	scheduler := reconcile.NewScheduler(cycle, slog.Default())

	// 運用系HTTPサーバーの起動
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:   slog.Default(),
		Gatherer: gatherer,
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// シグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down sync worker...")
		cancel()
	}()

	slog.Info("sync worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("fetch_concurrency", cfg.FetchConcurrency),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("sync worker stopped gracefully")
	return nil
}

// runOnce は同期サイクルを1回だけ実行して終了する。
// cronやジョブランナーからの利用を想定し、失敗時は非ゼロ終了となるエラーを返す。
func runOnce(cfg *config.Config) error {
	cycle, _, err := buildCycle(cfg)
	if err != nil {
		return err
	}

	if err := cycle.RunCycle(context.Background()); err != nil {
		return fmt.Errorf("sync cycle failed: %w", err)
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
