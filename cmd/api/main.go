package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mailverify-auth/internal/application/auth"
	"github.com/mailverify-auth/internal/config"
	"github.com/mailverify-auth/internal/infrastructure/memory"
	s3infra "github.com/mailverify-auth/internal/infrastructure/s3"
	"github.com/mailverify-auth/internal/infrastructure/smtp"
	"github.com/mailverify-auth/internal/infrastructure/userstore"
	"github.com/mailverify-auth/internal/pkg/logging"
	transporthttp "github.com/mailverify-auth/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	backend, err := usersBackend(context.Background(), cfg)
	if err != nil {
		log.Fatalf("users storage: %v", err)
	}
	users := userstore.New(backend, logger)
	users.Load(context.Background())

	// SMTP mailer. Missing credentials only fail at send time.
	mailer := smtp.NewTransport(cfg.SMTP)
	defer mailer.Close()
	if cfg.SMTP.Username == "" || cfg.SMTP.Password == "" {
		logger.Warn("SMTP credentials not set; verification emails will fail")
	}

	deps := &transporthttp.Deps{
		AuthService: auth.NewService(auth.ServiceDeps{
			Users:           users,
			Verifications:   memory.NewVerificationRepo(nil),
			Mailer:          mailer,
			Logger:          logger,
			AppName:         cfg.AppName,
			VerificationTTL: cfg.VerificationTTL,
		}),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "accounts", users.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	logger.Info("server stopped")
}

// usersBackend picks where the account document lives.
func usersBackend(ctx context.Context, cfg *config.Config) (userstore.Backend, error) {
	if cfg.UsersStorage != "s3" {
		return userstore.NewFileBackend(cfg.UsersFile), nil
	}
	if cfg.UsersS3Bucket == "" {
		return nil, errors.New("USERS_S3_BUCKET is required when USERS_STORAGE=s3")
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3infra.NewDocument(client, cfg.UsersS3Bucket, cfg.UsersS3Key), nil
}
