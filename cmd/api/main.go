package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/payments-api/internal/config"
	"github.com/carebridge/payments-api/internal/domain/operator"
	"github.com/carebridge/payments-api/internal/domain/payment"
	"github.com/carebridge/payments-api/internal/domain/reconciliation"
	"github.com/carebridge/payments-api/internal/domain/transaction"
	"github.com/carebridge/payments-api/internal/domain/wallet"
	"github.com/carebridge/payments-api/internal/middleware"
	"github.com/carebridge/payments-api/internal/pkg/archive"
	"github.com/carebridge/payments-api/internal/pkg/database"
	"github.com/carebridge/payments-api/internal/pkg/jwt"
	"github.com/carebridge/payments-api/internal/pkg/razorpay"
	"github.com/carebridge/payments-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting CareBridge Payments API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	gateway := razorpay.NewClient(razorpay.Config{
		BaseURL:   cfg.RazorpayBaseURL,
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		Timeout:   cfg.RazorpayTimeout,
	})

	// Gateway payload archive is optional; settlement runs without it.
	var archiver payment.Archiver
	if cfg.ArchiveEnabled() {
		s3Archive, err := archive.NewS3Archive(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			Region:    cfg.ArchiveRegion,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create payload archive")
		}
		archiver = s3Archive
	} else {
		log.Warn().Msg("Payload archive not configured, gateway payloads kept in database only")
	}

	// ---------- Repositories ----------
	txnRepo := transaction.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	txRunner := database.NewTxRunner(db)
	queue := reconciliation.NewQueue(redis)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo)
	paymentService := payment.NewService(txnRepo, walletRepo, gateway, txRunner, queue, archiver, payment.Config{
		WebhookSecret: cfg.RazorpayWebhookSecret,
		KeyID:         cfg.RazorpayKeyID,
		Atomic:        cfg.AtomicSettlement,
	})
	operatorService := operator.NewService(jwtService, cfg.OperatorPasswordHash, queue, walletRepo)

	// ---------- Handlers ----------
	paymentHandler := payment.NewHandler(paymentService, txnRepo)
	walletHandler := wallet.NewHandler(walletService)
	operatorHandler := operator.NewHandler(operatorService)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/payments", paymentHandler.Routes(authMiddleware))
		r.Mount("/wallets", walletHandler.Routes(authMiddleware))
	})

	r.Mount("/webhooks", paymentHandler.WebhookRoutes())
	r.Mount("/api/operator", operatorHandler.Routes(authMiddleware))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
