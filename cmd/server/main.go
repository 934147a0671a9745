package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/telehealth-identity/internal/cache"
	"github.com/carebridge/telehealth-identity/internal/config"
	"github.com/carebridge/telehealth-identity/internal/database"
	"github.com/carebridge/telehealth-identity/internal/handlers"
	"github.com/carebridge/telehealth-identity/internal/mailer"
	"github.com/carebridge/telehealth-identity/internal/middleware"
	"github.com/carebridge/telehealth-identity/internal/oauth"
	"github.com/carebridge/telehealth-identity/internal/repository"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/carebridge/telehealth-identity/internal/token"
	"github.com/carebridge/telehealth-identity/pkg/logger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting Identity Service")

	// Connect to database
	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}

	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize session denylist cache
	var denylist cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		denylist, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis denylist initialized")
	} else {
		denylist = cache.NewMemoryCache()
		log.Info().Msg("Memory denylist initialized")
	}
	defer denylist.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository()
	resetRepo := repository.NewResetTokenRepository()
	auditRepo := repository.NewAuditRepository()

	// Periodically sweep expired reset tokens
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				if err := resetRepo.DeleteExpired(janitorCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to sweep expired reset tokens")
				}
			}
		}
	}()

	// Initialize collaborators
	mail, err := mailer.New(context.Background(), cfg.Mail.Region, cfg.Mail.FromEmail, cfg.Mail.FromName, cfg.Mail.AppBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize mailer")
	}

	google := oauth.NewGoogleVerifier(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenInfoURL)
	issuer := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL)

	// Initialize services
	authService := services.NewAuthService(userRepo, resetRepo, auditRepo, mail, google, issuer, denylist)
	moderationService := services.NewModerationService(userRepo, auditRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService, google, cfg.JWT.TTL, cfg.IsProduction(), cfg.Google.RedirectBaseURL)
	adminHandler := handlers.NewAdminHandler(moderationService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	authenticate := middleware.Authenticate(issuer, authService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.RegisterPatient)
			r.Post("/register/doctor", authHandler.RegisterDoctor)
			r.Post("/login", authHandler.Login)
			r.Post("/google", authHandler.GoogleLogin)
			r.Get("/google/start", authHandler.GoogleStart)
			r.Get("/google/callback", authHandler.GoogleCallback)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireAdmin)

			r.Get("/doctors", adminHandler.ListDoctors)
			r.Patch("/doctors/{id}/status", adminHandler.SetStatus)
			r.Post("/doctors/{id}/approve", adminHandler.Approve)
			r.Delete("/doctors/{id}", adminHandler.Delete)
			r.Get("/users/{id}/audit", adminHandler.AuditTrail)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
