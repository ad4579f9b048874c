package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/redmonkez12/devhub-api/docs" // Swagger docs
	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/auth"
	"github.com/redmonkez12/devhub-api/internal/blob"
	"github.com/redmonkez12/devhub-api/internal/config"
	"github.com/redmonkez12/devhub-api/internal/database"
	"github.com/redmonkez12/devhub-api/internal/email"
	"github.com/redmonkez12/devhub-api/internal/federated"
	httpServer "github.com/redmonkez12/devhub-api/internal/http"
	"github.com/redmonkez12/devhub-api/internal/logging"
	"github.com/redmonkez12/devhub-api/internal/media"
	"github.com/redmonkez12/devhub-api/internal/oauth"
	"github.com/redmonkez12/devhub-api/internal/password"
	"github.com/redmonkez12/devhub-api/internal/profile"
	"github.com/redmonkez12/devhub-api/internal/token"
	"github.com/redmonkez12/devhub-api/internal/verification"
)

// @title           DevHub API
// @version         1.0
// @description     Account and authentication backend for DevHub.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"token_format", cfg.Auth.TokenFormat,
	)

	ctx := context.Background()

	// Opening the database also applies pending migrations
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	checks := httpServer.HealthChecks{"database": db.PingContext}

	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	issuer, err := token.NewIssuerFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	blobStore, err := blob.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	mailer, err := email.NewService(email.NewSMTPSender(cfg.Email), cfg.Email.FrontendURL)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	ttls := verification.TTLs{
		Registration:  cfg.Auth.VerificationTicketTTL,
		PasswordReset: cfg.Auth.ResetTicketTTL,
		EmailChange:   cfg.Auth.EmailChangeTicketTTL,
	}

	store := account.NewRepository(db, hasher)
	tickets := verification.NewEngine(store, ttls)
	linker := federated.NewLinker(store)

	// Google sign-in keeps its handshake state in Redis; without client
	// credentials neither is set up and the endpoints answer 503
	var google auth.IdentityProvider
	if cfg.OAuth.GoogleEnabled() {
		redisClient, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		google = oauth.NewGoogle(cfg.OAuth, oauth.NewStateStore(redisClient, cfg.OAuth.StateTTL))
	} else {
		logger.Info("google sign-in disabled, GOOGLE_CLIENT_ID is not set")
	}

	authService := auth.NewService(store, hasher, issuer, tickets, linker, mailer, ttls, logger)
	profileService := profile.NewService(
		store,
		tickets,
		mailer,
		media.NewProcessor(cfg.Storage.PhotoMaxBytes),
		blobStore,
		ttls,
		logger,
	)

	authHandler := auth.NewHandler(authService, google, cfg.Email.FrontendURL, !cfg.Server.IsDevelopment())
	profileHandler := profile.NewHandler(profileService)
	authMiddleware := auth.NewMiddleware(authService)

	router := httpServer.NewRouter(cfg, authHandler, profileHandler, authMiddleware, checks, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
