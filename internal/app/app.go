// Package app はコマンドラインのサブコマンドと依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/repo2viral/repo2viral/internal/analyzer"
	"github.com/repo2viral/repo2viral/internal/auth"
	"github.com/repo2viral/repo2viral/internal/billing"
	"github.com/repo2viral/repo2viral/internal/config"
	"github.com/repo2viral/repo2viral/internal/content"
	"github.com/repo2viral/repo2viral/internal/database"
	"github.com/repo2viral/repo2viral/internal/generator"
	"github.com/repo2viral/repo2viral/internal/github"
	"github.com/repo2viral/repo2viral/internal/handler"
	"github.com/repo2viral/repo2viral/internal/history"
	"github.com/repo2viral/repo2viral/internal/logger"
	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/middleware"
	"github.com/repo2viral/repo2viral/internal/repository"
	"github.com/repo2viral/repo2viral/internal/security"
	"github.com/repo2viral/repo2viral/internal/telemetry"
	"github.com/repo2viral/repo2viral/internal/usage"
	"github.com/repo2viral/repo2viral/internal/user"
	"github.com/repo2viral/repo2viral/internal/worker/cleanup"
)

const (
	// analyzeTimeout は解析サーバーのWriteTimeout。
	// GitHub取得とLLM生成を含むため長めに取る。呼び出し側のクライアントには設定しない。
	analyzeTimeout = 120 * time.Second

	// llmTimeout はLLM APIへの1回のリクエストのタイムアウト。
	llmTimeout = 90 * time.Second

	// githubMaxResponseSize はGitHubレスポンスの最大サイズ。
	githubMaxResponseSize = 5 << 20
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 返り値のio.Closerはログファイルを閉じるために使用する。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	closer := logger.SetupDefault(w, "")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログファイルが指定されていればローテーション出力を追加する
	if cfg.LogFile != "" {
		closer = logger.SetupDefault(w, cfg.LogFile)
	}

	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコンテキストがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はダッシュボードAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	shutdownTracing, err := telemetry.Setup(ctx, "repo2viral-api", cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer shutdownTracing()

	registry := prometheus.NewRegistry()
	mc := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	usageRepo := repository.NewPostgresUsageRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)

	// 3. ドメインサービスの初期化
	oauthProvider := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	catalog, err := content.LoadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}

	analyzerClient := analyzer.NewClient(cfg.AnalyzeAPIURL, nil, mc)
	runs := generator.NewRegistry(auth.NewResolver(sessionRepo), analyzerClient, generator.WithMetrics(mc))
	defer runs.Wait()
	go runs.StartEviction(ctx, time.Minute, generator.DefaultRunTTL)

	usageService := usage.NewService(usageRepo, catalog, mc, cfg.FreeGenerationLimit)
	historyService := history.NewService(historyRepo, usageRepo, cfg.HistoryFreeVisibleDays)
	userService := user.NewService(userRepo, sessionRepo, runs)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitGenerate))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService: usageService,
		Personas:       catalog,
		History:        historyService,
		Generations:    runs,

		UserService: userService,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
	})

	return serveHTTP(ctx, "API server", ":"+cfg.ServerPort, router, 15*time.Second)
}

// runAnalyzer は解析バックエンドAPIサーバーモードで起動する。
func runAnalyzer(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	shutdownTracing, err := telemetry.Setup(ctx, "repo2viral-analyzer", cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer shutdownTracing()

	registry := prometheus.NewRegistry()
	mc := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	usageRepo := repository.NewPostgresUsageRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard("github.com")
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	catalog, err := content.LoadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; content generation will fail")
	}

	loader := github.NewLoader(
		ssrfGuard.NewSafeClient(cfg.GitHubFetchTimeout, githubMaxResponseSize),
		ssrfGuard, mc,
		github.Config{TreeLimit: cfg.GitHubTreeLimit},
	)
	llm := content.NewChatClient(&http.Client{Timeout: llmTimeout}, content.ChatConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
	})
	writer := content.NewWriter(catalog, llm, sanitizer)

	usageService := usage.NewService(usageRepo, catalog, mc, cfg.FreeGenerationLimit)
	historyService := history.NewService(historyRepo, usageRepo, cfg.HistoryFreeVisibleDays)
	if cfg.GumroadSecret == "" {
		slog.Warn("GUMROAD_SECRET is not set; webhook signatures are not verified")
	}
	webhooks := billing.NewGumroadProcessor(cfg.GumroadSecret, cfg.GumroadProductPermalink, usageRepo)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitGenerate))
	defer rateLimiter.Stop()

	router := handler.NewAnalyzerRouter(&handler.AnalyzerRouterDeps{
		Logger:            slog.Default(),
		StatusObserver:    mc,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Personas: catalog,
		Usage:    usageService,
		Loader:   loader,
		Writer:   writer,
		History:  historyService,
		Webhooks: webhooks,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
	})

	// LLM生成を待つためWriteTimeoutは解析タイムアウトに合わせる
	return serveHTTP(ctx, "analyzer server", ":"+cfg.AnalyzerPort, router, analyzeTimeout)
}

// serveHTTP はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func serveHTTP(ctx context.Context, name, addr string, h http.Handler, writeTimeout time.Duration) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Any("tables", database.Tables),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は期限切れセッションと保持期間を過ぎた生成履歴を1回削除する。
// cronやKubernetes CronJobから日次で起動する。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.HistoryRetentionDays

	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと保持期間を過ぎた生成履歴を日次で削除する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.HistoryRetentionDays

	slog.Info("worker starting")
	job.Start(ctx, cleanup.DefaultInterval)

	slog.Info("worker stopped gracefully")
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

// isTerminal はwがターミナルに接続されたファイルかを返す。
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFd(f.Fd())
}
