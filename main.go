package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/binlog"
	"mysql-rowchange/internal/config"
	"mysql-rowchange/internal/nats"
	"mysql-rowchange/internal/processor"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting MySQL row change service...")

	if len(cfg.Detect.Tables) == 0 {
		logger.Warn("No tables configured under detect.tables, nothing will be published")
	}

	if err := NewMySQLChecker(cfg.MySQL, logger).Check(); err != nil {
		logger.Fatalf("MySQL check failed: %v", err)
	}

	if err := processor.ValidateRules(cfg.Processor); err != nil {
		logger.Fatalf("Invalid processor configuration: %v", err)
	}

	resolver, err := processor.NewMySQLSchemaResolver(cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.User, cfg.MySQL.Password, logger)
	if err != nil {
		logger.Fatalf("Failed to create schema resolver: %v", err)
	}
	defer resolver.Close()

	reader, err := binlog.NewReader(binlog.Options{
		Host:          cfg.MySQL.Host,
		Port:          cfg.MySQL.Port,
		User:          cfg.MySQL.User,
		Password:      cfg.MySQL.Password,
		ServerID:      cfg.MySQL.ServerID,
		Flavor:        cfg.MySQL.Flavor,
		UseGTID:       cfg.MySQL.UseGTID,
		PositionFile:  cfg.Binlog.PositionFile,
		StartPosition: cfg.Binlog.StartPosition,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create binlog reader: %v", err)
	}
	defer reader.Close()

	publisher, err := nats.NewPublisher(
		cfg.NATS.URL,
		cfg.NATS.SubjectPrefix,
		cfg.NATS.MaxReconnect,
		cfg.NATS.ReconnectWait,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	transformer, err := processor.NewTransformer(cfg.Processor, logger, publisher.GetConn())
	if err != nil {
		logger.Fatalf("Failed to create transformer: %v", err)
	}

	proc := processor.NewProcessor(reader, publisher, transformer, resolver, cfg.Detect, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- proc.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v, shutting down...", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			logger.Errorf("Processor error: %v", err)
		}
	}

	logger.Info("MySQL row change service stopped")
}
