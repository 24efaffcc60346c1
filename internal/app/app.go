// Package app はコマンドの解析と、各起動モードの依存関係の組み立てを行う。
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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/mindme/internal/auth"
	"github.com/hitoshi/mindme/internal/config"
	"github.com/hitoshi/mindme/internal/dashboard"
	"github.com/hitoshi/mindme/internal/database"
	"github.com/hitoshi/mindme/internal/handler"
	"github.com/hitoshi/mindme/internal/logger"
	"github.com/hitoshi/mindme/internal/metrics"
	"github.com/hitoshi/mindme/internal/middleware"
	"github.com/hitoshi/mindme/internal/repository"
	"github.com/hitoshi/mindme/internal/security"
	"github.com/hitoshi/mindme/internal/session"
	"github.com/hitoshi/mindme/internal/survey"
	"github.com/hitoshi/mindme/internal/worker/cleanup"
)

// oauthHTTPTimeout はGoogleへのトークン交換・ユーザー情報取得のタイムアウト。
const oauthHTTPTimeout = 10 * time.Second

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
// argsにはos.Args[1:]を渡す。未知のコマンドは設定を読み込む前にエラーにする。
func Run(w io.Writer, args []string) error {
	inv, err := ParseInvocation(args)
	if err != nil {
		return err
	}
	cmd := inv.Command

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
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandGrantAdmin:
		return runGrantAdmin(cfg, inv.Email)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, database.DefaultPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// server はserveモードで組み立てたHTTPハンドラーと、停止時に解放するリソースを保持する。
type server struct {
	handler  http.Handler
	registry *session.Registry
	limiter  *middleware.RateLimiter
}

// Close はバックグラウンドのクリーンアップを止め、全てのセッションストアを閉じる。
func (s *server) Close() {
	s.limiter.Stop()
	s.registry.Stop()
}

// newServer は設定とDB接続から全依存関係をワイヤリングする。
// DBへの接続は実際のリクエストまで行わない。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *server {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	surveyRepo := repository.NewPostgresSurveyRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 認証（Googleログインは設定が揃っている場合のみ有効）
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleEnabled() {
		guard := security.NewOutboundGuard()
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:      cfg.GoogleClientID,
			ClientSecret:  cfg.GoogleClientSecret,
			RedirectURL:   cfg.GoogleRedirectURL,
			HTTPClient:    guard.NewSafeClient(oauthHTTPTimeout),
			CheckEndpoint: guard.CheckEndpoint,
		})
	} else {
		slog.Info("google sign in disabled: GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set")
	}
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	broker := auth.NewBroker()
	roles := auth.NewProfileRoleLookup(profileRepo)

	// 4. ブラウザクライアントごとのセッションストア
	registryCfg := session.DefaultRegistryConfig()
	registryCfg.IdleTTL = cfg.ClientIdleTTL
	registryCfg.MaxClients = cfg.ClientMaxStores
	storeLogger := slog.Default().With(slog.String("component", "session"))
	registry := session.NewRegistry(func(clientID, seedToken string) *session.Store {
		client := auth.NewClient(authService, broker, clientID, seedToken)
		return session.New(client, roles, storeLogger.With(slog.String("client_id", clientID)),
			session.WithMetrics(collector), session.WithRevalidateInterval(cfg.RevalidateInterval))
	}, registryCfg, collector)

	// 5. アンケートの保存先
	var saver survey.Saver
	switch cfg.SurveyStorage {
	case config.SurveyStorageSimulated:
		slog.Warn("survey storage is simulated: responses are not persisted",
			slog.Duration("delay", cfg.SurveySaveDelay),
		)
		saver = survey.SimulatedSaver{Delay: cfg.SurveySaveDelay}
	default:
		saver = survey.NewRepositorySaver(surveyRepo, security.NewTextSanitizer())
	}

	// 6. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	deps := &handler.RouterDeps{
		Logger:   slog.Default(),
		Registry: registry,
		ClientSessionConfig: middleware.ClientSessionConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: limiter,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,

		OAuthService:    authService,
		SignInPublisher: broker,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure:      cfg.CookieSecure,
			GoogleRedirectURL: cfg.GoogleRedirectURL,
		},

		Drafts:      survey.NewDrafts(survey.DefaultDraftCapacity, survey.DefaultDraftTTL),
		SurveySaver: survey.Instrument(saver, collector),

		DashboardService: dashboard.NewService(surveyRepo),
		Renderer:         handler.MustNewRenderer(),
	}

	return &server{
		handler:  handler.NewRouter(deps),
		registry: registry,
		limiter:  limiter,
	}
}

// newMetricsRegistry はGoランタイムとプロセスのメトリクスを含むレジストリを返す。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv := newServer(cfg, db, newMetricsRegistry())
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
			slog.String("survey_storage", cfg.SurveyStorage),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	cleanupJob.RetentionDays = cfg.SessionRetentionDays

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("session_retention_days", cfg.SessionRetentionDays),
	)

	cleanupJob.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version.Version)),
	)
	return nil
}

// runGrantAdmin は指定したメールアドレスのユーザーに管理者権限を付与する。
// ダッシュボードは管理者のみ閲覧できるため、最初の管理者はこのコマンドで作る。
func runGrantAdmin(cfg *config.Config, email string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.NewPostgresProfileRepo(db).SetAdminByEmail(ctx, email, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no user registered with email %q", email)
		}
		return fmt.Errorf("failed to grant admin: %w", err)
	}

	slog.Info("admin granted", slog.String("email", email))
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
