package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/api"
	"github.com/vikasavnish/stockmemo/internal/config"
	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/db"
	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/middleware"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
	"github.com/vikasavnish/stockmemo/internal/prices"
	"github.com/vikasavnish/stockmemo/internal/realtime"
	"github.com/vikasavnish/stockmemo/internal/remote"
	"github.com/vikasavnish/stockmemo/internal/services"
	"github.com/vikasavnish/stockmemo/internal/storage"
	"github.com/vikasavnish/stockmemo/internal/tasks"
	"github.com/vikasavnish/stockmemo/internal/websocket"
)

// newBroker picks the change feed: Redis pub/sub when configured, otherwise
// an in-process bus, or nothing when realtime is disabled
func newBroker(cfg *config.Config, sugar *zap.SugaredLogger) (realtime.Broker, *redis.Client) {
	if !cfg.Realtime.Enabled {
		return nil, nil
	}
	if cfg.Redis.URL == "" {
		return realtime.NewBus(), nil
	}
	client, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		sugar.Warnf("Failed to connect to Redis, using in-process change feed: %v", err)
		return realtime.NewBus(), nil
	}
	return realtime.NewRedisBroker(client, sugar), client
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	sugar, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer sugar.Sync()

	// Initialize database connection
	database, err := db.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := remote.Migrate(database); err != nil {
			sugar.Fatalf("Failed to migrate schema: %v", err)
		}
		if err := database.AutoMigrate(&models.User{}); err != nil {
			sugar.Fatalf("Failed to migrate users: %v", err)
		}
	}

	metrics := monitoring.NewMetrics("stockmemo")

	broker, redisClient := newBroker(cfg, sugar)
	if redisClient != nil {
		defer redisClient.Close()
	}
	var publisher realtime.Publisher = realtime.Nop{}
	if broker != nil {
		publisher = broker
	}

	bucket, err := storage.NewDiskBucket(cfg.Storage.Dir, cfg.Storage.PublicURL)
	if err != nil {
		sugar.Fatalf("Failed to open storage: %v", err)
	}
	store := remote.NewStore(database, bucket, sugar.Named("remote"), remote.WithPublisher(publisher))
	priceClient := prices.NewClient(cfg.Prices, metrics, sugar.Named("prices"))

	registry := datactx.NewRegistry(func() *datactx.Context {
		opts := []datactx.Option{
			datactx.WithRefreshDelay(cfg.Prices.RefreshDelay),
			datactx.WithMetrics(metrics),
			datactx.WithLogger(sugar.Named("session")),
		}
		if broker != nil {
			opts = append(opts, datactx.WithRealtime(broker))
		}
		return datactx.New(store, priceClient, opts...)
	}, metrics, datactx.WithRegistryLogger(sugar.Named("sessions")))
	defer registry.Close()

	// Initialize WebSocket hub
	var wsHub *websocket.Hub
	if broker != nil {
		wsHub = websocket.NewHub(broker, sugar.Named("ws"))
	}

	// Initialize scheduled tasks
	taskManager := tasks.NewManager(registry, cfg.Prices.RefreshInterval, cfg.Server.SessionIdle, sugar.Named("tasks"))
	taskManager.StartScheduledTasks()
	defer taskManager.StopAllTasks()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateBurst)
	stopLimiter := make(chan struct{})
	go limiter.Run(stopLimiter)
	defer close(stopLimiter)

	// Initialize router
	router := api.SetupRouter(api.Deps{
		Auth:          services.NewAuthService(database, cfg.JWT.SecretKey, cfg.JWT.TTL),
		Users:         services.NewUserService(database),
		JWTSecret:     cfg.JWT.SecretKey,
		Sessions:      registry,
		Prices:        priceClient,
		Remote:        store,
		Hub:           wsHub,
		Metrics:       metrics,
		Limiter:       limiter,
		Log:           sugar.Named("api"),
		Storage:       bucket.Handler(),
		StoragePrefix: bucket.PublicURL(),
		Ping: func(ctx context.Context) error {
			sqlDB, err := database.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Allow all origins for API access
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: corsMiddleware.Handler(router),
	}

	go func() {
		sugar.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Errorf("Graceful shutdown failed: %v", err)
	}
}
