package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/repo2viral/repo2viral/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	mountAuthRoutes(r, NewAuthHandler(service, config))
	return r
}

// SetupUserRoutes はユーザー管理のルーティングを設定したchi.Routerを返す。
// セッションミドルウェアは呼び出し側で適用する。
func SetupUserRoutes(service UserServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service)
	r.Delete("/api/users/me", h.Withdraw)
	return r
}

func mountAuthRoutes(r chi.Router, h *AuthHandler) {
	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/github/login", h.Login)
		r.Get("/github/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ダッシュボード
	ProfileService ProfileServiceInterface
	Personas       PersonaListerInterface
	History        HistoryListerInterface
	Generations    GenerationRunnerInterface

	// ユーザー
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// baseMiddlewares は全ルート共通のミドルウェアを適用する。
func baseMiddlewares(r chi.Router, logger *slog.Logger, observer middleware.StatusObserver, origin string) {
	if logger == nil {
		logger = slog.Default()
	}
	var observers []middleware.StatusObserver
	if observer != nil {
		observers = append(observers, observer)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, observers...))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(origin))
}

// NewRouter はダッシュボードAPIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）とヘルスチェックはセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	baseMiddlewares(r, deps.Logger, deps.StatusObserver, deps.CORSAllowedOrigin)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	dashboard := NewDashboardHandler(deps.ProfileService, deps.Personas, deps.History, deps.Generations)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---
	mountAuthRoutes(r, authHandler)
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/api/profile", dashboard.Profile)
		r.Get("/api/personas", dashboard.Personas)
		r.Get("/api/history", dashboard.History)

		r.Route("/api/generate", func(r chi.Router) {
			// POST /api/generate - 生成開始（生成専用レート制限を追加）
			r.With(deps.RateLimiter.GenerateMiddleware()).Post("/", dashboard.StartGeneration)
			r.Get("/", dashboard.GenerationStatus)
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// AnalyzerRouterDeps はNewAnalyzerRouterに必要な依存関係をまとめた構造体。
type AnalyzerRouterDeps struct {
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	Personas PersonaLookupInterface
	Usage    UsageCheckerInterface
	Loader   RepoLoaderInterface
	Writer   ContentWriterInterface
	History  HistorySaverInterface
	Webhooks WebhookProcessorInterface

	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewAnalyzerRouter は解析バックエンドAPIのルーティングを構成したchi.Routerを返す。
func NewAnalyzerRouter(deps *AnalyzerRouterDeps) http.Handler {
	r := chi.NewRouter()
	baseMiddlewares(r, deps.Logger, deps.StatusObserver, deps.CORSAllowedOrigin)

	analyzer := NewAnalyzerHandler(deps.Personas, deps.Usage, deps.Loader, deps.Writer, deps.History)
	webhooks := NewWebhookHandler(deps.Webhooks)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.With(deps.RateLimiter.AnalyzeMiddleware()).Post("/api/analyze-repo", analyzer.AnalyzeRepo)
	r.Post("/webhooks/gumroad", webhooks.Gumroad)

	return r
}
