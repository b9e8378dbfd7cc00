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

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/gateway"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "checkout-service",
		Usage: "storefront checkout and payment reconciliation",
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := util.InitLogger(cfg.Server.Env); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		After: func(c *cli.Context) error {
			util.SyncLogger()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and event workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrateDB,
			},
			{
				Name:  "replay-webhooks",
				Usage: "re-process recorded webhook events that were never marked processed",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "batch-size", Usage: "events per run (defaults to REPLAY_BATCH_SIZE)"},
				},
				Action: replayWebhooks,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	db, err := store.NewStore(cfg.Database.URL, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func migrateDB(c *cli.Context) error {
	cfg := configFrom(c)
	logger := util.GetLogger()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.Migrate()
	if err != nil {
		return err
	}
	logger.Info("Migrations applied", zap.Uint("version", version))
	return nil
}

func replayWebhooks(c *cli.Context) error {
	cfg := configFrom(c)
	logger := util.GetLogger()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer producer.Close()

	reconciler := service.NewReconciler(db, broker.NewEventPublisher(producer))
	webhooks := service.NewWebhookService(db, reconciler, cfg.Gateway.SecretKey)

	batchSize := cfg.Business.ReplayBatchSize
	if n := c.Int("batch-size"); n > 0 {
		batchSize = n
	}
	replayer := worker.NewWebhookReplayer(webhooks, redisClient, batchSize, cfg.Business.ReplayLockTTL)

	report, err := replayer.RunOnce(c.Context)
	if err != nil {
		return err
	}
	logger.Info("Webhook replay complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return nil
}

func serve(c *cli.Context) error {
	cfg := configFrom(c)
	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	paystack := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Currency, cfg.Gateway.Timeout)

	inventoryClient := service.NewInventoryClient(db, redisClient)
	reconciler := service.NewReconciler(db, eventPublisher)
	orderService := service.NewOrderService(db, eventPublisher)
	paymentService := service.NewPaymentService(db, paystack, reconciler, eventPublisher, cfg.Gateway.Currency)
	webhookService := service.NewWebhookService(db, reconciler, cfg.Gateway.SecretKey)
	catalogService := service.NewCatalogService(db, inventoryClient)

	if err := inventoryClient.SyncInventoryToRedis(c.Context); err != nil {
		logger.Warn("Failed to sync inventory to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	inventoryWorker := worker.NewInventoryWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup+"-inventory"),
		inventoryClient)
	go func() {
		if err := inventoryWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Inventory worker error", zap.Error(err))
		}
	}()

	shortfallWorker := worker.NewShortfallWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup+"-shortfall"))
	go func() {
		if err := shortfallWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Shortfall worker error", zap.Error(err))
		}
	}()

	if cfg.Business.ReplayInterval > 0 {
		replayer := worker.NewWebhookReplayer(webhookService, redisClient, cfg.Business.ReplayBatchSize, cfg.Business.ReplayLockTTL)
		go func() {
			if err := replayer.Start(workerCtx, cfg.Business.ReplayInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Webhook replayer error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Users:           db,
		Orders:          orderService,
		Payments:        paymentService,
		Webhooks:        webhookService,
		Catalog:         catalogService,
		SignatureHeader: cfg.Gateway.SignatureHeader,
		ReadyChecks: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	inventoryWorker.Stop()
	shortfallWorker.Stop()

	logger.Info("Server exited")
	return nil
}
