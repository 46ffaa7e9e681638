package rest

import (
	"crypto/rsa"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jbalwikobra/storefront/internal/admin"
	"github.com/jbalwikobra/storefront/internal/transport/middleware"
	"github.com/jbalwikobra/storefront/internal/transport/swagger"
	"github.com/jbalwikobra/storefront/internal/webhook"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AdminPublicKey *rsa.PublicKey
	MetricsEnabled bool
	MetricsPath    string
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, webhookHandler *webhook.Handler, adminHandler *admin.Handler, cfg RouterConfig, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, promhttp.Handler())
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payment/callback", webhookHandler.HandlePaymentCallback)
		}

		if adminHandler != nil {
			r.Route("/admin", func(ar chi.Router) {
				if cfg.AdminPublicKey != nil {
					ar.Use(middleware.AdminAuth(cfg.AdminPublicKey))
				}

				ar.Route("/notifications", func(nr chi.Router) {
					nr.Get("/", adminHandler.HandleListNotifications)       // GET /admin/notifications
					nr.Get("/unread-count", adminHandler.HandleUnreadCount) // GET /admin/notifications/unread-count
					nr.Patch("/{id}/read", adminHandler.HandleMarkRead)     // PATCH /admin/notifications/:id/read
				})

				ar.Route("/deliveries", func(dr chi.Router) {
					dr.Get("/failed", adminHandler.HandleListFailedDeliveries) // GET /admin/deliveries/failed
					dr.Post("/{id}/resend", adminHandler.HandleResendDelivery) // POST /admin/deliveries/:id/resend
				})
			})
		}
	})
}
