package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nakshjewels/cart-service/internal/cache"
	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/config"
	"github.com/nakshjewels/cart-service/internal/consumer"
	"github.com/nakshjewels/cart-service/internal/health"
	h "github.com/nakshjewels/cart-service/internal/http"
	"github.com/nakshjewels/cart-service/internal/repository"
	"github.com/nakshjewels/cart-service/internal/service"
	"github.com/nakshjewels/cart-service/pkg/logger"
	"github.com/nakshjewels/cart-service/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	serviceName    = "cart-service"
	serviceVersion = "1.0.0"
)

type closer func(context.Context) error

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Service: serviceName, Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("cart service failed", zap.Error(err))
	}
	log.Info("cart service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				log.Warn("error during shutdown", zap.Error(err))
			}
		}
	}()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	closers = append(closers, shutdownTracing)

	repo, repoClosers, err := setupStore(ctx, cfg, log)
	closers = append(closers, repoClosers...)
	if err != nil {
		return err
	}

	browser, catalogPing, catalogClose, err := setupCatalog(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, catalogClose)

	breaker := catalog.NewBreaker(browser, catalog.BreakerSettings{Timeout: cfg.DependencyTimeout}, log)

	svc := service.NewCartService(repo, breaker, log, service.Options{
		MaxAttempts:    cfg.MaxAttempts,
		StoreTimeout:   cfg.DependencyTimeout,
		CatalogTimeout: cfg.DependencyTimeout,
	})

	checker := health.NewChecker(cfg.DependencyTimeout, log)
	if p, ok := repo.(repository.Pinger); ok {
		checker.Register("cart_store", p.Ping)
	}
	if catalogPing != nil {
		checker.Register("catalog", catalogPing)
	}
	go checker.Watch(ctx, 15*time.Second)

	// gRPC health + reflection
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHealthPort, err)
	}
	grpcServer := checker.NewGRPCServer()
	go func() {
		log.Info("gRPC health listening", zap.String("port", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	closers = append(closers, func(context.Context) error {
		checker.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		checkout := consumer.NewCheckoutConsumer(svc, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaCheckoutTopic,
			GroupID: cfg.KafkaGroupID,
		}, log)
		go checkout.Run(ctx)
		closers = append(closers, func(context.Context) error {
			checkout.Close()
			return nil
		})
	} else {
		log.Info("KAFKA_BROKERS not set, checkout consumer disabled")
	}

	router := h.NewRouter(h.RouterConfig{
		Cart:               h.NewCartHandler(svc, cfg.RequestTimeout, log),
		Products:           h.NewProductHandler(breaker, cfg.RequestTimeout, log),
		Health:             checker,
		Logger:             log,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		Version:            serviceVersion,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func setupStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.CartRepository, []closer, error) {
	var (
		repo    repository.CartRepository
		closers []closer
		client  *redis.Client
	)

	redisClient := func() (*redis.Client, error) {
		if client != nil {
			return client, nil
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		closers = append(closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return client, nil
	}

	switch cfg.CartStore {
	case "mongo":
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
		mongoRepo := repository.NewMongoRepository(db)
		if err := mongoRepo.CreateIndexes(ctx, cfg.CartTTL); err != nil {
			return nil, closers, err
		}
		log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))
		repo = mongoRepo
	case "redis":
		c, err := redisClient()
		if err != nil {
			return nil, closers, err
		}
		repo = repository.NewRedisRepository(c, cfg.CartTTL)
	default:
		log.Warn("using in-memory cart store, carts are lost on restart")
		repo = repository.NewMemoryRepository()
	}

	if cfg.CartCache && cfg.CartStore != "memory" {
		c, err := redisClient()
		if err != nil {
			return nil, closers, err
		}
		repo = cache.NewCachedRepository(repo, cache.NewRedisCache(c, cfg.CartCacheTTL), log)
	}

	return repo, closers, nil
}

func setupCatalog(cfg *config.Config, log *zap.Logger) (catalog.Browser, health.Check, closer, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.CatalogDriver {
	case "http":
		c := catalog.NewHTTPCatalog(cfg.CatalogURL, cfg.DependencyTimeout)
		log.Info("using remote catalog", zap.String("url", cfg.CatalogURL))
		return c, c.Ping, noop, nil
	case "sqlite", "postgres", "memory":
		driver, dsn := cfg.CatalogDriver, cfg.CatalogDSN
		if driver == "memory" {
			driver, dsn = catalog.DriverSQLite, ":memory:"
		}
		c, err := catalog.NewSQLCatalog(driver, dsn)
		if err != nil {
			return nil, nil, noop, err
		}
		if err := c.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
			_ = c.Close()
			return nil, nil, noop, err
		}
		log.Info("catalog ready", zap.String("driver", driver))
		return c, c.Ping, func(context.Context) error { return c.Close() }, nil
	}
	return nil, nil, noop, fmt.Errorf("unsupported catalog driver %q", cfg.CatalogDriver)
}
