package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/joho/godotenv"
	"github.com/vigil-hq/vigil/internal/api"
	"github.com/vigil-hq/vigil/internal/chread"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/ingest"
	"github.com/vigil-hq/vigil/internal/pipeline"
	"github.com/vigil-hq/vigil/internal/reply"
	"github.com/vigil-hq/vigil/internal/storage"
	"github.com/vigil-hq/vigil/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	// Logger
	logger := mustBuildLogger(envOrDefault("VIGIL_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("VIGIL_HTTP_PORT", "8080")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("VIGIL_AUTH_CACHE_TTL_S", 30)
	replyWebhookURL := os.Getenv("VIGIL_REPLY_WEBHOOK_URL")
	replyWebhookSecret := os.Getenv("VIGIL_REPLY_WEBHOOK_SECRET")
	kafkaBrokers := os.Getenv("VIGIL_KAFKA_BROKERS")
	kafkaTopic := envOrDefault("VIGIL_KAFKA_TOPIC", "vigil.events")
	kafkaGroup := envOrDefault("VIGIL_KAFKA_GROUP", "vigil-server")

	logger.Info("starting vigil server",
		zap.String("http_port", httpPort),
		zap.Int("auth_cache_ttl_s", cacheTTL),
	)

	// Rule engine
	eng := engine.New(logger)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.AlertWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (required)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	// ClickHouse reader (for alert history / analytics endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Reply delivery is off unless a webhook is configured
	var deliverer reply.Deliverer
	if replyWebhookURL != "" {
		deliverer = reply.NewWebhookDeliverer(replyWebhookURL, replyWebhookSecret, logger)
		logger.Info("reply webhook configured", zap.String("url", replyWebhookURL))
	} else {
		logger.Info("no VIGIL_REPLY_WEBHOOK_URL set, auto-reply delivery disabled")
	}

	gatekeeper := reply.NewGatekeeper(logger)
	processor := pipeline.NewProcessor(eng, gatekeeper, writer, pgStore, deliverer, logger)

	// HTTP API server
	deps := &api.Dependencies{
		Store:     pgStore,
		Engine:    eng,
		Processor: processor,
		Reader:    chReader,
		Logger:    logger,
		CacheTTL:  time.Duration(cacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Optional Kafka ingest
	var consumer *ingest.Consumer
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	if kafkaBrokers != "" {
		consumer = ingest.NewConsumer(ingest.Config{
			Brokers: strings.Split(kafkaBrokers, ","),
			Topic:   kafkaTopic,
			GroupID: kafkaGroup,
		}, pgStore, processor, logger)
		go func() {
			if err := consumer.Run(ingestCtx); err != nil && err != context.Canceled {
				logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("no VIGIL_KAFKA_BROKERS set, kafka ingest disabled")
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	stopIngest()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka consumer close error", zap.Error(err))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("vigil server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
