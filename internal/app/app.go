package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/portfolium/internal/account"
	"github.com/hitoshi/portfolium/internal/auth"
	"github.com/hitoshi/portfolium/internal/config"
	"github.com/hitoshi/portfolium/internal/database"
	"github.com/hitoshi/portfolium/internal/handler"
	"github.com/hitoshi/portfolium/internal/logger"
	"github.com/hitoshi/portfolium/internal/media"
	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/middleware"
	"github.com/hitoshi/portfolium/internal/portfolio"
	"github.com/hitoshi/portfolium/internal/repository"
	"github.com/hitoshi/portfolium/internal/security"
	"github.com/hitoshi/portfolium/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

const defaultServerPort = "5000"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログ形式とレベルを切り替える
	logger.SetupDefaultWith(w, logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultServerPort
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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// openBlobStore はストレージが設定されていればS3互換ストアを生成する。
// 未設定の場合はnilを返し、メディア機能はSTORAGE_NOT_CONFIGUREDとなる。
func openBlobStore(ctx context.Context, cfg *config.Config) (media.BlobStore, error) {
	if !cfg.StorageEnabled() {
		slog.Warn("ストレージが未設定のため、メディア機能を無効化します")
		return nil, nil
	}

	store, err := media.NewS3Store(ctx, media.S3Config{
		Endpoint:        cfg.StorageEndpoint,
		Region:          cfg.StorageRegion,
		AccessKeyID:     cfg.StorageAccessKeyID,
		SecretAccessKey: cfg.StorageSecretAccessKey,
		Bucket:          cfg.StorageBucket,
		PublicBaseURL:   cfg.StoragePublicBaseURL,
		UsePathStyle:    cfg.StorageUsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	return store, nil
}

// openPublicCache はREDIS_URLが設定されていれば公開ページのキャッシュを生成する。
// 接続できない場合はキャッシュなしで起動を続ける。
func openPublicCache(ctx context.Context, cfg *config.Config) (portfolio.PublicCache, func()) {
	if cfg.RedisURL == "" {
		return portfolio.NoopPublicCache{}, func() {}
	}

	client, err := portfolio.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("Redisに接続できないため、公開ページのキャッシュを無効化します",
			slog.String("error", err.Error()),
		)
		return portfolio.NoopPublicCache{}, func() {}
	}

	slog.Info("public page cache enabled", slog.Duration("ttl", cfg.PublicCacheTTL))
	return portfolio.NewRedisPublicCache(client, cfg.PublicCacheTTL), func() { client.Close() }
}

// oauthProviders は設定済みのOAuthプロバイダーを返す。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubCallbackURL,
		}))
	}
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
		}))
	}
	return providers
}

// rateLimiterConfig は設定値（req/min）からレート制限設定（req/sec）を生成する。
// 0以下の値はデフォルト値のままとする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitAccount > 0 {
		rl.AccountRate = rate.Limit(float64(cfg.RateLimitAccount) / 60.0)
		rl.AccountBurst = cfg.RateLimitAccount
	}
	if cfg.RateLimitUpload > 0 {
		rl.UploadRate = rate.Limit(float64(cfg.RateLimitUpload) / 60.0)
		rl.UploadBurst = cfg.RateLimitUpload
	}
	if cfg.RateLimitPublic > 0 {
		rl.ClientRate = rate.Limit(float64(cfg.RateLimitPublic) / 60.0)
		rl.ClientBurst = cfg.RateLimitPublic
	}
	return rl
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	portfolioRepo := repository.NewPostgresPortfolioRepo(db)
	experienceRepo := repository.NewPostgresExperienceRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	blogRepo := repository.NewPostgresBlogRepo(db)
	tombstoneRepo := repository.NewPostgresBlobTombstoneRepo(db)

	// 3. 外部リソースの初期化
	reg, collector := newMetricsRegistry()

	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	publicCache, closeCache := openPublicCache(ctx, cfg)
	defer closeCache()

	// 4. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)
	resolver := auth.NewResolver(accountRepo, identRepo, collector)
	providers := oauthProviders(cfg)
	if len(providers) == 0 {
		slog.Warn("OAuthプロバイダーが1つも設定されていないため、ログインできません")
	}
	authService := auth.NewService(resolver, tokens, providers...)

	portfolioService := portfolio.NewService(
		portfolioRepo, experienceRepo, projectRepo, blogRepo,
		security.NewContentSanitizer(), publicCache, collector,
	)
	accountService := account.NewService(accountRepo, portfolioRepo, publicCache)
	mediaService := media.NewService(
		store, accountRepo, portfolioRepo, projectRepo, tombstoneRepo,
		portfolio.NewGuard(portfolioRepo, experienceRepo, projectRepo, blogRepo),
		portfolioService, cfg.UploadMaxBytes, cfg.ResumeURLTTL,
	)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),

		AuthService:      authService,
		AuthConfig:       handler.AuthHandlerConfig{CookieSecure: cfg.CookieSecure},
		AccountService:   accountService,
		PortfolioService: portfolioService,
		PublishService:   portfolioService,
		MediaService:     mediaService,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、削除待ちオブジェクトの掃除を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. ストレージの初期化
	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		slog.Warn("ストレージが未設定のため、削除待ちキューの掃除は行いません")
		<-ctx.Done()
		return nil
	}

	// 3. 掃除ジョブの初期化
	_, collector := newMetricsRegistry()
	sweeper := cleanup.NewBlobSweeper(
		repository.NewPostgresBlobTombstoneRepo(db), store, collector, slog.Default(),
		cleanup.SweeperConfig{
			BatchSize:   cfg.BlobSweepBatch,
			MaxAttempts: cfg.BlobSweepMaxAttempts,
		},
	).WithPurge(cleanup.NewPurgeJob(db, slog.Default(), cfg.BlobSweepMaxAttempts))

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.BlobSweepInterval),
		slog.Int("batch_size", cfg.BlobSweepBatch),
	)

	// 掃除ジョブをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.BlobSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	st, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(st.Version)),
		slog.Bool("dirty", st.Dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
