package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/flordegrace/ims-api/internal/admin"
	"github.com/flordegrace/ims-api/internal/auth"
	"github.com/flordegrace/ims-api/internal/config"
	"github.com/flordegrace/ims-api/internal/database"
	"github.com/flordegrace/ims-api/internal/email"
	httpServer "github.com/flordegrace/ims-api/internal/http"
	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/ratelimit"
	"github.com/flordegrace/ims-api/internal/session"
	"github.com/flordegrace/ims-api/internal/user"
)

// @title           IMS Auth API
// @version         1.0
// @description     Authentication and user management backend for the inventory management system.

// @host      localhost:8080
// @BasePath  /

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
	)

	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	userRepo := user.NewRepository(db)
	sessionStore := session.NewRedisStore(redisClient)
	rateLimiter := ratelimit.NewLimiter(redisClient)

	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
	)

	sessions := session.NewManager(
		sessionStore,
		userRepo,
		logger,
		cfg.Session.SessionDuration,
		cfg.Session.RememberDuration,
		!cfg.Server.IsDevelopment(), // secure cookies in production
	)

	authService := auth.NewService(userRepo, emailService, logger, cfg.Email.FrontendURL)
	adminService := admin.NewService(userRepo)

	// First-run bootstrap so the system is reachable before any user exists
	if err := authService.EnsureDefaultAdmin(
		context.Background(),
		cfg.Admin.Email,
		cfg.Admin.Password,
		cfg.Admin.FirstName,
		cfg.Admin.LastName,
	); err != nil {
		return fmt.Errorf("failed to ensure default admin: %w", err)
	}

	authHandler := auth.NewHandler(authService, sessions, rateLimiter, logger)
	adminHandler := admin.NewHandler(adminService, logger)

	router := httpServer.NewRouter(cfg, authHandler, adminHandler, sessions, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
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
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
