package handlers

import (
	"SecureDrop/internal/config"
	"SecureDrop/internal/middleware"
	"SecureDrop/internal/service"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Handler struct {
	Router chi.Router
}

// NewHandler разводящий для хендлеров
func NewHandler(
	userService *service.UserService,
	transferService *service.TransferService,
	logger *zap.SugaredLogger,
	config *config.Config,
) *Handler {
	r := chi.NewRouter()

	if len(config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   config.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Downloads-Remaining"},
			AllowCredentials: true,
		}).Handler)
	}
	r.Use(middleware.WithMetrics)
	r.Use(middleware.WithGzip)
	r.Use(middleware.WithLogging)
	r.Use(middleware.WithAuth(config.AuthSecret))

	// Handlers
	userHandler := NewUserHandler(userService, logger, config)
	transferHandler := NewTransferHandler(transferService, logger, config)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// User routes
	r.Post("/api/user/register", userHandler.Register)
	r.Post("/api/user/login", userHandler.Login)
	r.Get("/api/user/status", userHandler.Status)

	// Transfer routes
	r.Route("/api/transfers", func(r chi.Router) {
		r.Post("/", transferHandler.Upload)
		r.Get("/sent", transferHandler.Sent)
		r.Get("/received", transferHandler.Received)
		r.Get("/{id}", transferHandler.Get)
		r.Delete("/{id}", transferHandler.Revoke)
		r.Post("/{id}/download", transferHandler.Download)
	})

	return &Handler{Router: r}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
