package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/AnshRaj112/giftwise-backend/internal/config"
	"github.com/AnshRaj112/giftwise-backend/internal/database"
	"github.com/AnshRaj112/giftwise-backend/internal/handlers"
	"github.com/AnshRaj112/giftwise-backend/internal/middleware"
	"github.com/AnshRaj112/giftwise-backend/internal/routes"
	"github.com/AnshRaj112/giftwise-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails. Every exit path
// returns through the deferred disconnects.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := database.Connect(cfg.MongoURI); err != nil {
		return errors.Wrap(err, "connect to MongoDB")
	}
	defer database.Disconnect()

	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		return errors.Wrap(err, "connect to Redis")
	}
	defer database.DisconnectRedis()

	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		return errors.Wrap(err, "connect to PostgreSQL")
	}
	defer database.DisconnectPostgres()

	schemaCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := services.EnsureRecipientSchema(schemaCtx, database.DB); err != nil {
		logger.Warn("failed to ensure recipients schema", "error", err)
	} else {
		logger.Info("recipients schema and indexes ensured")
	}
	cancel()

	storage, uploadDir, err := newPictureStorage(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "initialize picture storage")
	}
	logger.Info("picture storage ready", "driver", cfg.StorageDriver)

	sessions := services.NewSessionStore(database.RedisClient)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity() {
			r.Use(mw)
		}
		logger.Info("production security enabled (security headers, per-IP + login rate limiting)")
	}

	routes.SetupRoutes(r, routes.Deps{
		Recipients: &handlers.RecipientHandler{
			Store:   services.NewCachedRecipientStore(services.NewMongoRecipientStore(database.DB), database.RedisClient),
			Storage: storage,
			Logger:  logger,
		},
		Auth: &handlers.AuthHandler{
			Users:         services.NewPostgresUserStore(database.PostgresDB),
			Sessions:      sessions,
			Logger:        logger,
			SecureCookies: cfg.IsProduction(),
		},
		Sessions:  sessions,
		UploadDir: uploadDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully. A
// listener failure is returned as is.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown")
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newPictureStorage picks the backend named by STORAGE_DRIVER. The upload
// dir is returned only for the local driver, which serves files itself.
func newPictureStorage(ctx context.Context, cfg *config.Config) (services.PictureStorage, string, error) {
	switch cfg.StorageDriver {
	case "cloudinary":
		s, err := services.NewCloudinaryStorage(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		return s, "", err
	case "s3":
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := services.NewS3Storage(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicURL)
		return s, "", err
	default:
		s, err := services.NewLocalStorage(cfg.UploadDir)
		return s, cfg.UploadDir, err
	}
}
