package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tweeper/internal/metrics"
	"github.com/hitoshi/tweeper/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	TokenVerifier     middleware.TokenVerifier
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string

	// ヘルスチェック・メトリクス公開
	DB             Pinger
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// tweep
	TweepService TweepServiceInterface
	MaxAudioSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 認証が必要なルートにのみAuthミドルウェアを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier, deps.UserFinder, deps.Metrics)

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService)
	userHandler := NewUserHandler(deps.UserService)
	tweepHandler := NewTweepHandler(deps.TweepService, deps.MaxAudioSize)
	healthHandler := NewHealthHandler(deps.DB)

	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.NotFound(notFoundAPI)
		r.MethodNotAllowed(methodNotAllowed)

		// 認証・プロフィール
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/profile", authHandler.GetProfile)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/change-username", authHandler.ChangeUsername)
			})
		})

		// ユーザー（公開）
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Get("/{username}", userHandler.GetUser)
		})

		// tweep
		r.Route("/tweeps", func(r chi.Router) {
			r.Get("/", tweepHandler.ListTweeps)
			r.Get("/user/{username}", tweepHandler.ListUserTweeps)
			r.Get("/{id}/audio", tweepHandler.GetAudio)

			r.With(requireAuth).Post("/", tweepHandler.CreateTweep)
			r.With(requireAuth).Delete("/{id}", tweepHandler.DeleteTweep)
		})
	})

	return r
}
