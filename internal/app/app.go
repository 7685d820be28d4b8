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
	"golang.org/x/time/rate"

	"github.com/hitoshi/wikirc/internal/config"
	"github.com/hitoshi/wikirc/internal/database"
	"github.com/hitoshi/wikirc/internal/handler"
	"github.com/hitoshi/wikirc/internal/irc"
	"github.com/hitoshi/wikirc/internal/logger"
	"github.com/hitoshi/wikirc/internal/metrics"
	"github.com/hitoshi/wikirc/internal/pipeline"
	"github.com/hitoshi/wikirc/internal/recorder"
	"github.com/hitoshi/wikirc/internal/repository"
	"github.com/hitoshi/wikirc/internal/security"
	"github.com/hitoshi/wikirc/internal/wiki"
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
		slog.String("lang", cfg.Lang),
		slog.String("project", cfg.Project),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runBot(cfg)
	}
}

// deferredNotifier はpipeline.OperatorNotifierの遅延束縛。
// パイプラインはボットより先に構築されるため、生成後にボットを差し込む。
type deferredNotifier struct {
	bot *irc.Bot
}

func (n *deferredNotifier) NotifyOperator(text string) {
	if n.bot != nil {
		n.bot.NotifyOperator(text)
	}
}

// runBot はIRCボットモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、IRC接続と運用HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runBot(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	historyRepo := repository.NewPostgresHistoryRepo(db)

	// 3. セキュリティサービスの初期化とAPI URLの事前検証
	ssrfGuard := security.NewSSRFGuard()

	apiURL := wiki.APIURL(cfg.Lang, cfg.Project)
	statsURL := wiki.StatsURL(cfg.Lang, cfg.Project)
	if err := ssrfGuard.ValidateURL(apiURL); err != nil {
		return fmt.Errorf("invalid API URL: %w", err)
	}
	if err := ssrfGuard.ValidateURL(statsURL); err != nil {
		return fmt.Errorf("invalid stats URL: %w", err)
	}

	// 4. ウィキAPIクライアントの初期化
	// レートリミッターはページ照会と統計取得で共有する
	httpClient := ssrfGuard.NewSafeClient(cfg.APITimeout, wiki.MaxResponseSize)
	limiter := rate.NewLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIRateBurst)

	pages := wiki.NewClient(httpClient, slog.Default(), limiter, apiURL)
	stats := wiki.NewStatsFetcher(httpClient, slog.Default(), limiter, statsURL)

	// 5. レコーダーの初期化
	rec := recorder.New(recorder.LogPath(cfg.LogDir, cfg.Lang), historyRepo, slog.Default())

	// 6. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 7. パイプラインとボットの構築
	notifier := &deferredNotifier{}
	service := pipeline.NewService(pipeline.Deps{
		Lang:     cfg.Lang,
		Pages:    pages,
		Stats:    stats,
		Recorder: rec,
		Notifier: notifier,
		Metrics:  collector,
		Logger:   slog.Default(),
	})

	bot := irc.NewBot(irc.Options{
		Server:         cfg.IRCServer,
		Nick:           cfg.IRCNick,
		RealName:       cfg.IRCRealName,
		Channel:        cfg.IRCChannel,
		OperatorTarget: cfg.OperatorTarget,
	}, service, slog.Default())
	notifier.bot = bot

	// 8. 運用HTTPサーバーの起動
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: db,
		Gatherer:      registry,
		Logger:        slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down bot...")
		cancel()
	}()

	// IRCボットをメインgoroutineで実行（ブロッキング）
	slog.Info("bot starting",
		slog.String("server", cfg.IRCServer),
		slog.String("channel", cfg.IRCChannel),
		slog.String("nick", cfg.IRCNick),
	)
	if err := bot.Run(ctx); err != nil {
		return fmt.Errorf("bot terminated: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("bot stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
