package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"clipstream/config"
	"clipstream/constant"
	"clipstream/handler"
	"clipstream/middleware"
	"clipstream/pkg/rabbitmq"
	"clipstream/repository"
	"clipstream/service"
	"clipstream/storage"
	"clipstream/transcode"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	var publisher *rabbitmq.Publisher
	if cfg.Queue != nil && cfg.Queue.Host != "" {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn; continuing without events")
		} else {
			publisher = rabbitmq.NewPublisher(conn, cfg.Queue)
		}
	}

	store, err := newChunkStore(cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to open chunk store")
	}

	repo := repository.NewRepo(cfg.DB)
	reader := storage.NewObjectReader(store)
	writer := storage.NewObjectWriter(store, cfg.Storage.ChunkSize, cfg.Storage.MaxObjectSize)
	deleter := storage.NewObjectDeleter(store)
	pipeline := transcode.NewPipeline(reader, encoderConfig(cfg))

	clipService := service.NewClipService(repo, writer, reader, deleter, pipeline, publisher)

	auth := middleware.NewAuth(repo, cfg.Auth.JWTSecret)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	authHandler := handler.NewAuthHandler(repo, cfg.Auth)
	clipHandler := handler.NewClipHandler(clipService, cfg.Server.MaxUploadSize)
	streamHandler := handler.NewStreamHandler(clipService)

	r := gin.Default()
	r.Use(requestLogger(ctx))
	addHealth(r)

	api := r.Group("/api", limiter.Limit())
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", auth.RequireAuth(), authHandler.Me)

		api.POST("/clips/upload", auth.RequireAuth(), clipHandler.Upload)
		api.GET("/clips", auth.OptionalAuth(), clipHandler.List)
		api.GET("/clips/user/:userId", auth.OptionalAuth(), clipHandler.ListByUser)
		api.GET("/clips/my-clips", auth.RequireAuth(), clipHandler.MyClips)
		api.GET("/clips/:id", auth.OptionalAuth(), clipHandler.Get)
		api.PUT("/clips/:id", auth.RequireAuth(), clipHandler.Update)
		api.DELETE("/clips/:id", auth.RequireAuth(), clipHandler.Delete)
		api.GET("/clips/:id/stream", auth.OptionalAuth(), streamHandler.Stream)
		api.GET("/clips/:id/raw", auth.OptionalAuth(), streamHandler.Raw)
	}

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func newChunkStore(cfg *config.Config) (storage.ChunkStore, error) {
	switch cfg.Storage.Backend {
	case constant.StorageBackendMinio:
		if cfg.Minio == nil {
			return nil, errors.New("minio backend selected but minio is not configured")
		}
		return storage.NewMinioStore(cfg.Minio, cfg.Storage.MinioBucket, cfg.Storage.MinioPrefix), nil
	case constant.StorageBackendFS, "":
		return storage.NewFSStore(cfg.Storage.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func encoderConfig(cfg *config.Config) transcode.EncoderConfig {
	if len(cfg.Encoder.Args) == 0 {
		return transcode.DefaultEncoderConfig()
	}
	return transcode.EncoderConfig{
		Command:     cfg.Encoder.Command,
		Args:        cfg.Encoder.Args,
		ContentType: cfg.Encoder.ContentType,
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// requestLogger copies the process logger into each request context so
// zerolog.Ctx works in handlers and below.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	logger := zerolog.Ctx(ctx)
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
