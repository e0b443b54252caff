package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"socialecho/internal/audit"
	"socialecho/internal/auth"
	"socialecho/internal/contextauth"
	"socialecho/internal/handler"
	"socialecho/internal/middleware"
	"socialecho/internal/repository/postgres"
	"socialecho/internal/scheduler"
	"socialecho/internal/verification"
	"socialecho/pkg/cache"
	"socialecho/pkg/config"
	"socialecho/pkg/geoip"
	"socialecho/pkg/logger"
	"socialecho/pkg/mailer"
	"socialecho/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("auth-service")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}
	defer redisCache.Close()

	// GeoIP database is optional; without one, location fields degrade to
	// Unknown.
	geo, err := geoip.Open(cfg.GeoIP.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open GeoIP database", map[string]interface{}{"error": err.Error()})
	}
	defer geo.Close()

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	prefRepo := postgres.NewPreferenceRepository(db)
	contextRepo := postgres.NewContextRepository(db)
	verificationRepo := postgres.NewVerificationRepository(db)
	tokenRepo := postgres.NewTokenRepository(db)
	resetRepo := postgres.NewResetRepository(db)
	logRepo := postgres.NewLogRepository(db)

	// Services
	m := mailer.New(mailer.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
		UseTLS:   cfg.Email.SMTPUseTLS,
	})

	stream := audit.NewStream()
	auditService := audit.NewService(logRepo, stream, log)

	contextService := contextauth.NewService(contextRepo, contextauth.NewExtractor(geo))
	verificationService := verification.NewService(verificationRepo, m, log, cfg.ContextAuth.CodeExpiry)
	blacklist := middleware.NewRedisTokenBlacklist(redisCache.Client())

	authService := auth.NewService(
		userRepo, prefRepo, tokenRepo, resetRepo,
		contextService, verificationService, redisCache, m, blacklist,
		auditService, log,
		auth.Config{
			AccessSecret:      cfg.JWT.AccessSecret,
			RefreshSecret:     cfg.JWT.RefreshSecret,
			AccessExpiry:      cfg.JWT.AccessExpiry,
			RefreshExpiry:     cfg.JWT.RefreshExpiry,
			MismatchThreshold: cfg.ContextAuth.MismatchThreshold,
			MismatchWindow:    cfg.ContextAuth.MismatchWindow,
			ClientBaseURL:     cfg.Client.BaseURL,
		},
	)

	janitor := scheduler.NewJanitor(
		verificationRepo, tokenRepo, resetRepo, log,
		time.Hour, cfg.JWT.RefreshExpiry, time.Hour,
	)
	janitor.Start()
	defer janitor.Stop()

	// Handlers
	val := validator.New()
	authHandler := handler.NewAuthHandler(authService, val, log)
	contextHandler := handler.NewContextHandler(contextService, log)
	adminHandler := handler.NewAdminHandler(auditService, stream, log)
	systemHandler := handler.NewSystemHandler(db, redisCache.Client(), geo, log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.NewRateLimiter(redisCache.Client(), "api", 60, time.Minute).Limit)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)

	r.HandleFunc("/health", systemHandler.GetHealth).Methods("GET")
	r.HandleFunc("/api/v1/system/status", systemHandler.GetSystemStatus).Methods("GET")

	// Credential endpoints carry a stricter limit than the general API.
	strict := middleware.NewRateLimiter(redisCache.Client(), "credentials", 10, 15*time.Minute)

	public := r.PathPrefix("/api/v1/auth").Subrouter()
	public.Handle("/signup", strict.Limit(http.HandlerFunc(authHandler.SignUp))).Methods("POST")
	public.Handle("/signin", strict.Limit(http.HandlerFunc(authHandler.SignIn))).Methods("POST")
	public.HandleFunc("/verify-email", authHandler.VerifyEmail).Methods("POST")
	public.HandleFunc("/verify-device", authHandler.VerifyDevice).Methods("POST")
	public.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")
	public.Handle("/forgot-password", strict.Limit(http.HandlerFunc(authHandler.ForgotPassword))).Methods("POST")
	public.HandleFunc("/reset-password/{token}/{userId}", authHandler.ResetPassword).Methods("POST")

	// Protected routes
	authMW := middleware.NewAuthMiddleware(cfg.JWT.AccessSecret, blacklist)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")
	api.HandleFunc("/auth/preferences", authHandler.GetPreferences).Methods("GET")
	api.HandleFunc("/auth/preferences", authHandler.UpdatePreferences).Methods("PUT")
	api.HandleFunc("/auth/contexts", contextHandler.List).Methods("GET")
	api.HandleFunc("/auth/contexts/{contextId}/trust", contextHandler.Trust).Methods("PATCH")
	api.HandleFunc("/auth/contexts/{contextId}/untrust", contextHandler.Untrust).Methods("PATCH")
	api.HandleFunc("/auth/contexts/{contextId}/block", contextHandler.Block).Methods("PATCH")
	api.HandleFunc("/auth/contexts/{contextId}/unblock", contextHandler.Unblock).Methods("PATCH")
	api.HandleFunc("/auth/contexts/{contextId}", contextHandler.Delete).Methods("DELETE")

	// Moderator-only surface
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMW.RequireModerator)
	admin.HandleFunc("/logs", adminHandler.ListLogs).Methods("GET")
	admin.HandleFunc("/logs", adminHandler.ClearLogs).Methods("DELETE")
	admin.HandleFunc("/logs/stream", adminHandler.StreamLogs).Methods("GET")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Auth service starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Server exited", nil)
}
