package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/portfolium/internal/middleware"
	"github.com/hitoshi/portfolium/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証・アカウント
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	AccountService AccountServiceInterface

	// ポートフォリオ・公開
	PortfolioService PortfolioServiceInterface
	PublishService   PublishServiceInterface

	// メディア
	MediaService MediaServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS
//	  公開ルート:   RateLimit(Client)
//	  認証ルート:   Auth → RateLimit(Account) [→ RateLimit(Upload)]
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService)
	portfolioHandler := NewPortfolioHandler(deps.PortfolioService)
	publishHandler := NewPublishHandler(deps.PublishService)
	mediaHandler := NewMediaHandler(deps.MediaService)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.ClientMiddleware())

		r.Get("/api/auth/{provider}", authHandler.Login)
		r.Get("/api/auth/{provider}/callback", authHandler.Callback)
		r.Post("/api/auth/logout", authHandler.Logout)

		r.Get("/api/public/{subdomain}", publishHandler.PublicPortfolio)
		r.Get("/api/media/resume/{accountId}/resume/{filename}", mediaHandler.PublicResume)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.AccountMiddleware())

		r.Get("/api/auth/me", accountHandler.Me)
		r.Put("/api/auth/me", accountHandler.UpdateMe)
		r.Delete("/api/auth/me", accountHandler.DeleteMe)

		r.Route("/api/portfolio", func(r chi.Router) {
			r.Get("/", portfolioHandler.Get)
			r.Put("/", portfolioHandler.Replace)
			r.Patch("/", portfolioHandler.Patch)
			r.Put("/settings", portfolioHandler.UpdateSettings)

			r.Route("/experience", func(r chi.Router) {
				r.Get("/", portfolioHandler.ListExperiences)
				r.Post("/", portfolioHandler.AddExperience)
				r.Put("/{id}", portfolioHandler.UpdateExperience)
				r.Delete("/{id}", portfolioHandler.RemoveChild(model.ChildKindExperience, "id"))
			})
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", portfolioHandler.ListProjects)
				r.Post("/", portfolioHandler.AddProject)
				r.Put("/{id}", portfolioHandler.UpdateProject)
				r.Delete("/{id}", portfolioHandler.RemoveChild(model.ChildKindProject, "id"))
			})
			r.Route("/blogs", func(r chi.Router) {
				r.Get("/", portfolioHandler.ListBlogs)
				r.Post("/", portfolioHandler.AddBlog)
				r.Put("/{blogId}", portfolioHandler.UpdateBlog)
				r.Delete("/{blogId}", portfolioHandler.RemoveChild(model.ChildKindBlog, "blogId"))
			})
		})

		r.Route("/api/publish", func(r chi.Router) {
			r.Get("/status", publishHandler.Status)
			r.Put("/subdomain", publishHandler.ClaimSubdomain)
			r.Post("/", publishHandler.Publish)
			r.Delete("/", publishHandler.Unpublish)
		})

		// 公開履歴書ルートと同じ接頭辞のため、サブルーターにせず個別に登録する
		upload := deps.RateLimiter.UploadMiddleware()

		r.With(upload).Post("/api/media/profile-photo", mediaHandler.UploadProfilePhoto)
		r.Get("/api/media/profile-photo", mediaHandler.ProfilePhoto)
		r.Delete("/api/media/profile-photo", mediaHandler.DeleteProfilePhoto)

		r.With(upload).Post("/api/media/project/{projectId}", mediaHandler.UploadProjectImage)
		r.Delete("/api/media/project/{projectId}", mediaHandler.DeleteProjectImage)

		r.With(upload).Post("/api/media/resume", mediaHandler.UploadResume)
		r.Get("/api/media/resume", mediaHandler.ResumeURL)
		r.Delete("/api/media/resume", mediaHandler.DeleteResume)
	})

	return r
}
