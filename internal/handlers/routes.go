package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/streamsafe/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger         *slog.Logger
	Users          UserStore
	Sessions       SessionManager
	Uploader       VideoUploader
	Catalog        VideoCatalog
	Realtime       RealtimeEndpoint
	AuthLimiter    middleware.RateLimiter
	TrustedProxies middleware.TrustedProxies
	Metrics        http.Handler
	AllowedOrigins []string
}

// NewRouter wires every endpoint behind the shared middleware stack.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", HealthHandler{}.Handle)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.Realtime != nil {
		r.Get("/ws", deps.Realtime.ServeWS)
	}

	authenticate := middleware.Authenticate(deps.Sessions, deps.Users)
	authHandler := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	videoHandler := VideoHandler{Uploader: deps.Uploader, Catalog: deps.Catalog}

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Group(func(public chi.Router) {
				public.Use(middleware.RateLimit(deps.AuthLimiter, "auth", deps.TrustedProxies))
				public.Post("/register", authHandler.Register)
				public.Post("/login", authHandler.Login)
				public.Post("/refresh", authHandler.Refresh)
			})
			a.Group(func(private chi.Router) {
				private.Use(authenticate)
				private.Post("/logout", authHandler.Logout)
				private.Get("/me", authHandler.Me)
			})
		})

		api.Route("/videos", func(v chi.Router) {
			v.Use(authenticate)
			v.Post("/upload", videoHandler.Upload)
			v.Get("/", videoHandler.List)
			v.Get("/{id}", videoHandler.Get)
			v.Delete("/{id}", videoHandler.Delete)
		})
	})

	return r
}
