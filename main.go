package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gemchat/internal/api"
	"gemchat/internal/auth"
	"gemchat/internal/config"
	"gemchat/internal/logging"
	"gemchat/internal/proxy"
	"gemchat/internal/redis"
	"gemchat/internal/runner"
	"gemchat/internal/service/ai"
	"gemchat/internal/service/conversation"
	"gemchat/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("GEMCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbType := os.Getenv("GEMCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	applied, err := storage.Migrate(db)
	if err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}
	logger.Info("migrations applied", zap.Int("count", applied))

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			logger.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
	}

	authService := auth.NewService(db, rdb, cfg.BasicConfig.TokenTTL, logger.Named("auth"))
	store := conversation.NewService(db, rdb, logger.Named("conversation"))

	gateway := ai.NewGateway(cfg.Proxy.Provider, cfg.Providers[cfg.Proxy.Provider], ai.WithLogger(logger.Named("gateway")))
	images, err := ai.NewImageStrategy(cfg.Proxy, gateway, logger.Named("image"))
	if err != nil {
		logger.Fatal("init image strategy", zap.Error(err))
	}
	if err := gateway.Ready(); err != nil {
		logger.Warn("gateway credential missing; chat requests will fail until it is set", zap.Error(err))
	}
	logger.Info("chat function configured",
		zap.String("provider", gateway.Provider()),
		zap.String("image_strategy", cfg.Proxy.ImageStrategy))

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(
		api.NewHandler(store, authService, logger.Named("api")),
		proxy.New(gateway, images, cfg.Proxy, logger.Named("proxy")),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := runner.Group{
		runner.NewHTTPServer(cfg.BasicConfig.ServerAddress, router, logger),
		auth.NewCleaner(authService, cfg.BasicConfig.TokenCleanInterval),
	}
	if err := services.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
