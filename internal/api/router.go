package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/rohits-web03/meshforge/docs"
	"github.com/rohits-web03/meshforge/internal/api/handlers"
	"github.com/rohits-web03/meshforge/internal/api/middleware"
	"github.com/rohits-web03/meshforge/internal/config"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Generations *handlers.GenerationHandler
	Models      *handlers.ModelHandler
}

// SetupRouter wires every route. ctx bounds background work owned by the
// router, such as the rate limiter's cleanup.
func SetupRouter(ctx context.Context, cfg config.Config, h Handlers, logger *zap.Logger) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(cfg.CorsConfig)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mainMux.Handle("GET /metrics", promhttp.Handler())
	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	mainMux.HandleFunc("POST /api/v1/auth/sign-up", h.Auth.Register)
	mainMux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)

	// ---------- PROTECTED ROUTES ----------
	protectedMux := http.NewServeMux()

	limit := middleware.RateLimit(ctx, cfg.Generation.RatePerMinute, cfg.Generation.RateBurst, logger)
	protectedMux.Handle("POST /generations", limit(http.HandlerFunc(h.Generations.Create)))
	protectedMux.HandleFunc("GET /generations/{id}", h.Generations.Get)
	protectedMux.HandleFunc("DELETE /generations/{id}", h.Generations.Reset)

	protectedMux.HandleFunc("POST /models", h.Models.Create)
	protectedMux.HandleFunc("GET /models", h.Models.List)
	protectedMux.HandleFunc("DELETE /models/{id}", h.Models.Delete)
	protectedMux.HandleFunc("POST /models/delete", h.Models.DeleteMany)

	protectedMux.HandleFunc("POST /auth/logout", h.Auth.Logout)

	mainMux.Handle("/api/v1/",
		http.StripPrefix(
			"/api/v1",
			middleware.AuthMiddleware(cfg.JWTSecret)(protectedMux),
		),
	)

	logger.Info("router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(logger)(handler)
	return handler
}
