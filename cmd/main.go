package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/export"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/repository/postgresql"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/server"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/wms"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	envPath, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.New(cfg.LogLevel)
	defer func() { _ = lg.Sync() }()
	if envPath != "" {
		lg.Info("loaded environment file", zap.String("path", envPath))
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	tokens := auth.NewTokenCache(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		PartnerKey:   cfg.PartnerKey,
		UserLoginID:  cfg.UserLoginID,
		AuthURL:      cfg.AuthURL,
	}, httpClient, lg.Named("auth"))

	orders, err := wms.NewClient(wms.Config{
		BaseURL:        cfg.BaseURL,
		AddressingMode: cfg.AddressingMode,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	}, httpClient, lg.Named("wms"))
	if err != nil {
		lg.Fatal("wms client init", zap.Error(err))
	}

	exporter := export.New(tokens, orders, export.Options{
		AccountCode: cfg.AccountCode,
		Warehouse:   cfg.Warehouse,
	}, lg.Named("export"))

	var (
		history server.HistoryRepo
		users   server.UserRepo
	)

	if cfg.DSN != "" {
		database, err := db.NewDb(ctx, cfg.DSN)
		if err != nil {
			lg.Fatal("database init", zap.Error(err))
		}
		defer database.Close()

		if err := db.EnsureSchema(ctx, database); err != nil {
			lg.Fatal("database schema", zap.Error(err))
		}
		history = postgresql.NewExportRepo(database)

		if cfg.AuthMode == config.AuthDB {
			userRepo := postgresql.NewUserRepo(database)
			if cfg.BasicAuthUser != "" {
				if err := userRepo.EnsureOperator(ctx, cfg.BasicAuthUser, cfg.BasicAuthPassword, cfg.BasicAuthHash); err != nil {
					lg.Fatal("provisioning operator", zap.Error(err))
				}
				lg.Info("operator provisioned", zap.String("user", cfg.BasicAuthUser))
			}
			users = userRepo
		}
	}

	if cfg.AuthMode == config.AuthStatic {
		users = server.NewStaticUserRepo(cfg.BasicAuthUser, cfg.BasicAuthHash)
	}
	lg.Info("operator auth", zap.String("mode", cfg.AuthMode))

	var producer kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewKafkaProducer(cfg.KafkaBrokers, lg.Named("kafka"))
	} else {
		producer = kafka.NewConsoleProducer(lg.Named("audit"))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			lg.Warn("closing producer", zap.Error(err))
		}
	}()

	srv := server.New(exporter, history, users, server.NewProducerSink(producer, cfg.KafkaTopic),
		server.Options{RequestTimeout: cfg.RequestTimeout}, lg.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.HTTPPort)
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			lg.Error("server stopped", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown failed", zap.Error(err))
		return
	}

	lg.Info("server gracefully stopped")
}
