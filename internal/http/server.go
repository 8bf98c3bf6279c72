package httpapi

import (
	"context"
	"net/http"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/config"
	"aiweb-backend-go/internal/ingest"
	"aiweb-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Assistant is the hosted model surface the AI endpoints call.
type Assistant interface {
	Available() bool
	SupportsImages() bool
	Invoke(ctx context.Context, prompt, system string, image *cloud.Image) cloud.Result
	GenerateImage(ctx context.Context, prompt string) cloud.Result
}

// Server holds everything the handlers share. It is built once in main.
type Server struct {
	DB         *sqlx.DB
	Config     config.Config
	Log        *zap.Logger
	Tokens     services.TokenService
	Directory  *services.Directory
	Audit      *services.AuditLog
	Hub        *services.ActivityHub
	Resolver   *cloud.Resolver
	Invoker    Assistant
	Dispatcher *ingest.Dispatcher
	Metrics    *Metrics
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer(s.Log))
	r.Use(RequestLogger(s.Log, s.Metrics))
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.Health)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", s.Register)
			auth.Post("/login", s.Login)
			auth.Get("/check", s.CheckAuth)
			auth.Group(func(session chi.Router) {
				session.Use(s.WithAuth)
				session.Post("/logout", s.Logout)
				session.Get("/profile", s.Profile)
				session.Put("/profile", s.UpdateProfile)
				session.Post("/change-password", s.ChangePassword)
			})
		})

		api.Group(func(user chi.Router) {
			user.Use(s.WithAuth)
			user.Post("/chat", s.Chat)
			user.Post("/code-chat", s.CodeChat)
			user.Post("/document-analyze", s.DocumentAnalyze)
			user.Post("/generate-image", s.GenerateImage)
			user.Post("/analyze-image", s.AnalyzeImage)
			user.Get("/aws-status", s.AWSStatus)

			user.Route("/logs", func(logs chi.Router) {
				logs.Get("/searches", s.SearchLogs)
				logs.Get("/actions", s.ActionLogs)
				logs.Get("/logins", s.LoginLogs)
				logs.Get("/stats", s.LogStats)
				logs.Get("/export", s.ExportLogs)
			})
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.WithAuth)
			admin.Use(s.RequireAdmin)
			admin.Get("/system", s.SystemSnapshot)
			admin.Route("/signup-codes", func(codes chi.Router) {
				codes.Get("/", s.ListSignupCodes)
				codes.Post("/", s.CreateSignupCode)
				codes.Delete("/{codeId}", s.DeleteSignupCode)
			})
			admin.Route("/users", func(users chi.Router) {
				users.Get("/", s.ListUsers)
				users.Get("/{userId}", s.GetUser)
				users.Put("/{userId}", s.UpdateUser)
				users.Delete("/{userId}", s.DeleteUser)
				users.Post("/{userId}/block", s.BlockUser)
				users.Post("/{userId}/make-admin", s.MakeAdmin)
				users.Post("/{userId}/remove-admin", s.RemoveAdmin)
				users.Post("/{userId}/reset-password", s.ResetPassword)
			})
		})
	})

	if s.Config.MetricsEnabled && s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}
	r.Get("/ws/activity", s.ActivitySocket)
	return r
}
