package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/disrupton/collaborators/internal/handlers"
	"github.com/disrupton/collaborators/internal/mailer"
	"github.com/disrupton/collaborators/internal/payments"
	"github.com/disrupton/collaborators/internal/repository"
	"github.com/disrupton/collaborators/internal/service"
	"github.com/disrupton/collaborators/pkg/cache"
	"github.com/disrupton/collaborators/pkg/config"
	"github.com/disrupton/collaborators/pkg/database"
	"github.com/disrupton/collaborators/pkg/events"
	"github.com/disrupton/collaborators/pkg/logger"
	mw "github.com/disrupton/collaborators/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Redis backs the idempotency response cache
	idempotencyStore, err := cache.NewRedisStore(cfg.Redis.URL)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer idempotencyStore.Close()

	// Initialize repositories
	grantRepo := repository.NewGrantRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)

	// Payment references are opaque unless a Stripe key is configured
	var verifier payments.Verifier = payments.NewOpaqueVerifier()
	if cfg.Stripe.SecretKey != "" {
		verifier = payments.NewStripeVerifier(cfg.Stripe.SecretKey)
	}

	var mail mailer.Service = mailer.NewDevMailer()
	if !cfg.Email.DevMode {
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	// Initialize services
	accessService := service.NewAccessService(grantRepo, profileRepo)
	unlockService := service.NewUnlockService(grantRepo, profileRepo, verifier, eventBus, mail, cfg)
	grantService := service.NewGrantService(grantRepo)

	// Initialize handlers
	h := handlers.New(accessService, unlockService, grantService, cfg)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("collaborators"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/collaborators", func(r chi.Router) {
		r.Use(h.OptionalIdentity)
		r.Get("/{id}", h.GetCollaborator)
		r.Get("/{id}/access", h.CheckAccess)
		r.With(mw.Idempotency(idempotencyStore)).Post("/{id}/unlock", h.UnlockCollaborator)
	})

	r.Route("/admin/grants", func(r chi.Router) {
		r.Use(h.RequireJWT("admin"))
		r.Get("/", h.ListGrants)
		r.Get("/stats", h.GrantStats)
		r.Get("/user/{userId}", h.ListUserGrants)
		r.Get("/{id}", h.GetGrant)
		r.Delete("/{id}", h.RevokeGrant)
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down collaborators service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Collaborators service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting collaborators service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Collaborators service error", "error", err)
		os.Exit(1)
	}
}
