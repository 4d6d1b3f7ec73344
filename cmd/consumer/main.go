package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.New(cfg.LogLevel).Named("consumer")
	defer func() { _ = lg.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		lg.Fatal("KAFKA_BROKERS is not set")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		lg.Info("closing kafka reader")
		if err := r.Close(); err != nil {
			lg.Error("closing kafka reader", zap.Error(err))
		}
	}()

	lg.Info("consumer connected",
		zap.String("topic", cfg.KafkaTopic),
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group", cfg.KafkaGroupID))

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				lg.Info("shutdown signal received, stopping consumer")
				return
			}
			lg.Error("reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		var entry server.AuditLogEntry
		if err := json.Unmarshal(m.Value, &entry); err != nil {
			lg.Warn("undecodable audit message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.ByteString("value", m.Value),
				zap.Error(err))
			continue
		}

		lg.Info("export audit",
			zap.Time("received", m.Time),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.String("key", string(m.Key)),
			zap.String("handler", entry.Handler),
			zap.String("reference", entry.Reference),
			zap.String("export_id", entry.ExportID),
			zap.String("user", entry.User),
			zap.Int("status", entry.StatusCode),
			zap.Int64("duration_ms", entry.DurationMs),
			zap.String("error", entry.Error))
	}
}
