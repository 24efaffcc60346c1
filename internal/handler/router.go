package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mindme/internal/guard"
	"github.com/hitoshi/mindme/internal/metrics"
	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/survey"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Registry            middleware.StoreRegistry
	ClientSessionConfig middleware.ClientSessionConfig
	CSRFConfig          middleware.CSRFConfig
	RateLimiter         *middleware.RateLimiter

	// 運用
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// 認証
	OAuthService    OAuthCallbackService
	SignInPublisher SignInPublisher
	AuthConfig      AuthHandlerConfig

	// アンケート
	Drafts      *survey.Drafts
	SurveySaver survey.Saver

	// ダッシュボード
	DashboardService DashboardServiceInterface

	Renderer *Renderer
}

// NewRouter は全ページとAPIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → ClientSession → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はセッションを持たないため、ClientSession より前で処理する。
// 保護されたページには Guard を個別に適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = MustNewRenderer()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS: deps.ClientSessionConfig.CookieSecure,
	}))

	pageHandler := NewPageHandler(renderer)
	authHandler := NewAuthHandler(deps.OAuthService, deps.SignInPublisher, renderer, deps.AuthConfig)
	surveyHandler := NewSurveyHandler(deps.Drafts, deps.SurveySaver, renderer)
	dashboardHandler := NewDashboardHandler(deps.DashboardService, renderer)

	g := guard.New(resolveSessionState, deps.Metrics, http.HandlerFunc(pageHandler.Loading))

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientSessionMiddleware(deps.Registry, deps.ClientSessionConfig))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.NotFound(pageHandler.NotFound)

		r.With(g.Require(guard.RouteHome)).Get(guard.RouteHome.Path, pageHandler.Home)

		// 認証（ログイン・登録はIPごとのレート制限を追加）
		r.With(g.Require(guard.RouteAuth)).Get(guard.RouteAuth.Path, authHandler.Page)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/auth/signin", authHandler.SignIn)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/signout", authHandler.SignOut)
		r.With(deps.RateLimiter.AuthMiddleware()).Get("/auth/google", authHandler.Google)
		r.Get("/auth/callback", authHandler.Callback)

		// アンケート（ログインが必要）
		r.Group(func(r chi.Router) {
			r.Use(g.Require(guard.RouteSurvey))
			r.Get("/survey", surveyHandler.Show)
			r.Post("/survey", surveyHandler.Submit)
			r.Post("/survey/answer", surveyHandler.Answer)
		})

		// ダッシュボード（管理者のみ）
		r.Group(func(r chi.Router) {
			r.Use(g.Require(guard.RouteDashboard))
			r.Get("/dashboard", dashboardHandler.Page)
			r.Get("/api/dashboard", dashboardHandler.Overview)
		})
	})

	return r
}

// resolveSessionState はミドルウェアが注入したストアを返す。
// nilの*session.Storeをインターフェースに包まないよう明示的にnilを返す。
func resolveSessionState(r *http.Request) guard.SessionState {
	store := middleware.StoreFromContext(r.Context())
	if store == nil {
		return nil
	}
	return store
}
