package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/config"
	"wizspeak/server/internal/db"
	"wizspeak/server/internal/handlers"
	"wizspeak/server/internal/pool"
	"wizspeak/server/internal/services"
	"wizspeak/server/internal/storage/filestore"
	"wizspeak/server/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := cfg.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbPool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	cancel()
	if err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := db.Migrate(cfg.DatabaseURL, migrations.FS); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	store, err := filestore.New(cfg.UploadDir)
	if err != nil {
		log.Error("file store init failed", "error", err)
		os.Exit(1)
	}

	secret := []byte(cfg.JWTSecret)
	registry := pool.NewRegistry(log)

	users := services.NewUserService(dbPool, log)
	conversations := services.NewConversationService(dbPool, log)
	messages := services.NewMessageService(dbPool, conversations, users, registry, log)
	files := services.NewFileService(dbPool, store, clockwork.NewRealClock(), log)
	compliance := services.NewComplianceService(dbPool, log)

	authHandler := handlers.NewAuthHandler(users, compliance, secret, cfg.TokenTTL, log)
	profileHandler := handlers.NewProfileHandler(users, log)
	conversationHandler := handlers.NewConversationHandler(conversations, messages, log)
	messageHandler := handlers.NewMessageHandler(messages, compliance, log)
	fileHandler := handlers.NewFileHandler(files, compliance, cfg.MaxUploadSize, cfg.ShareBaseURL, log)
	complianceHandler := handlers.NewComplianceHandler(compliance, users, log)
	wsHandler := handlers.NewWebSocketHandler(registry, users, conversations, secret, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(appMiddleware.Cors)
	r.Use(appMiddleware.Metrics)

	r.Post("/api/auth/register", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(secret))

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/user/profile", profileHandler.Get)

		r.Post("/api/conversations", conversationHandler.Create)
		r.Get("/api/conversations", conversationHandler.List)
		r.Get("/api/conversations/{id}", conversationHandler.Get)
		r.Get("/api/conversations/{id}/messages", conversationHandler.ListMessages)

		r.Post("/api/messages", messageHandler.Send)
		r.Put("/api/messages/{id}", messageHandler.Edit)
		r.Delete("/api/messages/{id}", messageHandler.Delete)
		r.Post("/api/messages/{id}/read", messageHandler.MarkRead)
		r.Post("/api/messages/{id}/acknowledge", messageHandler.Acknowledge)
		r.Get("/api/messages/{id}/acknowledgments", messageHandler.ListAcknowledgments)

		r.Post("/api/files/upload", fileHandler.Upload)
		r.Get("/api/files", fileHandler.List)
		r.Get("/api/files/{id}/download", fileHandler.Download)
		r.Post("/api/files/{id}/share", fileHandler.CreateShare)
		r.Delete("/api/shares/{token}", fileHandler.RevokeShare)

		r.Post("/api/compliance/retention-policies", complianceHandler.CreateRetentionPolicy)
		r.Get("/api/compliance/retention-policies", complianceHandler.ListRetentionPolicies)
		r.Put("/api/compliance/retention-policies/{id}", complianceHandler.UpdateRetentionPolicy)
		r.Get("/api/compliance/access-logs", complianceHandler.ListAccessLogs)
		r.Get("/api/compliance/audit-trail", complianceHandler.ListAuditTrail)
		r.Post("/api/compliance/reports", complianceHandler.CreateReport)
		r.Get("/api/compliance/reports", complianceHandler.ListReports)
	})

	// Share links work for anonymous visitors unless the share itself
	// requires auth, so the token is parsed when present but never demanded.
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.OptionalAuth(secret))

		r.Get("/api/shares/{token}", fileHandler.ShareInfo)
		r.Get("/api/shares/{token}/download", fileHandler.ShareDownload)
	})

	r.Get("/ws", wsHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("stopping the server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
