package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"quote-api/internal/alerts"
	"quote-api/internal/api"
	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/clock"
	"quote-api/internal/config"
	"quote-api/internal/dispatcher"
	"quote-api/internal/fallback"
	"quote-api/internal/metrics"
	"quote-api/internal/models"
	"quote-api/internal/resolver"
	"quote-api/internal/retry"
	"quote-api/internal/scheduler"
	"quote-api/internal/service"
	"quote-api/internal/sources"
	"quote-api/internal/sources/exchangeratehost"
	"quote-api/internal/sources/frankfurter"
	"quote-api/internal/sources/kabutan"
	"quote-api/internal/sources/minkabu"
	"quote-api/internal/sources/stooq"
	"quote-api/internal/sources/yahoo"
	"quote-api/internal/store"
	"quote-api/internal/validator"
)

func main() {
	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := newLogger(cfg.Environment)
	clk := clock.Real{}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	redisCfg := &store.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	}
	cacheStore, err := store.NewRedisStore(redisCfg, cfg.Redis.CacheNS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect cache store")
	}
	defer cacheStore.Close()
	blacklistStore, err := store.NewRedisStore(redisCfg, cfg.Redis.BlacklistNS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect blacklist store")
	}
	defer blacklistStore.Close()

	quoteCache := cache.New(cacheStore, clk, cache.TTLPolicy{
		USStock:      cfg.Cache.USStockTTL,
		JPStock:      cfg.Cache.JPStockTTL,
		MutualFund:   cfg.Cache.MutualFundTTL,
		ExchangeRate: cfg.Cache.ExchangeRateTTL,
		Default:      cfg.Cache.FallbackTTL,
	}, logger)

	blacklistReg := blacklist.New(blacklistStore, clk, blacklist.Policy{
		Threshold: map[models.DataType]int{
			models.USStock:      cfg.Blacklist.StockThreshold,
			models.JPStock:      cfg.Blacklist.StockThreshold,
			models.MutualFund:   cfg.Blacklist.StockThreshold,
			models.ExchangeRate: cfg.Blacklist.RateThreshold,
		},
		Cooldown: map[models.DataType]time.Duration{
			models.USStock:      cfg.Blacklist.StockCooldown,
			models.JPStock:      cfg.Blacklist.StockCooldown,
			models.MutualFund:   cfg.Blacklist.StockCooldown,
			models.ExchangeRate: cfg.Blacklist.RateCooldown,
		},
	}, logger)

	yahooClient := yahoo.NewClient(yahoo.Config{
		BaseURL:   cfg.Sources.Yahoo.BaseURL,
		Timeout:   cfg.Sources.Yahoo.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Yahoo.RateLimit),
		Burst:     cfg.Sources.Yahoo.Burst,
	})
	stooqClient := stooq.NewClient(stooq.Config{
		BaseURL:   cfg.Sources.Stooq.BaseURL,
		Timeout:   cfg.Sources.Stooq.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Stooq.RateLimit),
		Burst:     cfg.Sources.Stooq.Burst,
	})
	kabutanClient := kabutan.NewClient(kabutan.Config{
		BaseURL:   cfg.Sources.Kabutan.BaseURL,
		Timeout:   cfg.Sources.Kabutan.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Kabutan.RateLimit),
		Burst:     cfg.Sources.Kabutan.Burst,
	})
	minkabuStock := minkabu.NewStockClient(minkabu.Config{
		BaseURL:   cfg.Sources.Minkabu.BaseURL,
		Timeout:   cfg.Sources.Minkabu.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Minkabu.RateLimit),
		Burst:     cfg.Sources.Minkabu.Burst,
	})
	minkabuFund := minkabu.NewFundClient(minkabu.Config{
		BaseURL:   cfg.Sources.Minkabu.BaseURL,
		Timeout:   cfg.Sources.Minkabu.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Minkabu.RateLimit),
		Burst:     cfg.Sources.Minkabu.Burst,
	})
	frankfurterClient := frankfurter.NewClient(frankfurter.Config{
		BaseURL:   cfg.Sources.Frankfurter.BaseURL,
		Timeout:   cfg.Sources.Frankfurter.Timeout,
		RateLimit: rate.Limit(cfg.Sources.Frankfurter.RateLimit),
		Burst:     cfg.Sources.Frankfurter.Burst,
	})
	exchangeRateHostClient := exchangeratehost.NewClient(exchangeratehost.Config{
		BaseURL:   cfg.Sources.ExchangeRateHost.BaseURL,
		Timeout:   cfg.Sources.ExchangeRateHost.Timeout,
		RateLimit: rate.Limit(cfg.Sources.ExchangeRateHost.RateLimit),
		Burst:     cfg.Sources.ExchangeRateHost.Burst,
	})

	registry := sources.NewRegistry(
		yahooClient,
		stooqClient,
		kabutanClient,
		minkabuStock,
		minkabuFund,
		frankfurterClient,
		exchangeRateHostClient,
	)

	promReg := prometheus.NewRegistry()
	sink := metrics.NewSink(clk, promReg)
	evaluator := metrics.NewEvaluator(sink, registry, metrics.DefaultEvaluatorConfig(), logger)

	notifier := alerts.NewNotifier(alerts.NewLogSink(logger), clk, cfg.Alerts.DedupWindow)

	validatorCfg := validator.DefaultConfig()
	validatorCfg.MedianEnabled[models.ExchangeRate] = cfg.Validator.MedianRates
	quoteValidator := validator.New(validatorCfg, notifier, logger)

	synthesizer := fallback.New(fallback.NewDefaults(), clk)

	// Pacer buckets mirror each client's own limiter settings so the worker
	// pool cannot outrun a configured upstream rate.
	pacerRates := make(map[string]dispatcher.RateConfig)
	for _, entry := range []struct {
		src sources.Source
		cfg config.SourceConfig
	}{
		{yahooClient, cfg.Sources.Yahoo},
		{stooqClient, cfg.Sources.Stooq},
		{kabutanClient, cfg.Sources.Kabutan},
		{minkabuStock, cfg.Sources.Minkabu},
		{minkabuFund, cfg.Sources.Minkabu},
		{frankfurterClient, cfg.Sources.Frankfurter},
		{exchangeRateHostClient, cfg.Sources.ExchangeRateHost},
	} {
		key := entry.src.ID() + ":" + string(entry.src.DataType())
		pacerRates[key] = dispatcher.RateConfig{QPS: entry.cfg.RateLimit, Burst: entry.cfg.Burst}
	}
	pacer := dispatcher.NewTokenPacer(dispatcher.DefaultRate, pacerRates)

	res := resolver.New(resolver.Config{
		Cache:       quoteCache,
		Blacklist:   blacklistReg,
		Registry:    registry,
		Metrics:     sink,
		Validator:   quoteValidator,
		Synthesizer: synthesizer,
		Pacer:       pacer,
		RetryPolicy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		FallbackTTL: cfg.Cache.FallbackTTL,
		Clock:       clk,
		Logger:      logger,
	})

	disp := dispatcher.New(dispatcher.Config{
		Resolver:    res,
		Cache:       quoteCache,
		Blacklist:   blacklistReg,
		Synthesizer: synthesizer,
		Notifier:    notifier,
		Workers: dispatcher.WorkerConfig{
			models.USStock:      cfg.Dispatch.USStockWorkers,
			models.JPStock:      cfg.Dispatch.JPStockWorkers,
			models.MutualFund:   cfg.Dispatch.MutualFundWorkers,
			models.ExchangeRate: cfg.Dispatch.ExchangeRateWorkers,
		},
		Alerts: dispatcher.AlertConfig{
			FailureRate: cfg.Dispatch.AlertFailureRate,
			MinBatch:    cfg.Dispatch.MinBatchForAlert,
		},
		Logger: logger,
	})

	sched := scheduler.New(quoteCache, blacklistReg, disp, notifier, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Clock:    clk,
	}, logger)

	svc := service.New(disp, quoteCache, blacklistReg, sched, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go evaluator.Run(ctx)
	if cfg.Scheduler.Enabled {
		go sched.Run(ctx)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	api.NewHandler(svc, logger).Register(router, promReg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Quote API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
}

func newLogger(environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Info("Request handled")
	}
}
