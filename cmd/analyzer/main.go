package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/config"
	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/errors"
	http_server "conversation-analyzer/pkg/http"
	"conversation-analyzer/pkg/messaging"
	"conversation-analyzer/pkg/metrics"
	"conversation-analyzer/pkg/patterns"
	"conversation-analyzer/pkg/pii"
	"conversation-analyzer/pkg/ratelimit"
	"conversation-analyzer/pkg/reporting"
	"conversation-analyzer/pkg/version"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	publisher  *messaging.AMQPPublisher
	dispatcher *reporting.Dispatcher
	httpServer *http_server.Server
)

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	if err := initialize(); err != nil {
		entry := logger.WithError(err)
		if violations := errors.Violations(err); len(violations) > 0 {
			entry = entry.WithField("violations", violations)
		}
		entry.Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.WithField("version", version.Version).Info("Conversation analyzer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appConfig.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down HTTP server")
	} else {
		logger.Info("HTTP server shut down successfully")
	}

	if publisher != nil {
		dispatcher.RemoveSubscriber(publisher)
		publisher.Disconnect()
	}

	logger.Info("Shutdown complete")
}

func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		return fmt.Errorf("failed to apply logging configuration: %w", err)
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.StartMetrics(logger, appConfig.HTTP.EnableMetrics)

	patternConfig, err := patterns.LoadOrDefault(appConfig.Patterns.File, patterns.WithMatchTimeout(appConfig.Patterns.MatchTimeout))
	if err != nil {
		return fmt.Errorf("failed to load pattern configuration: %w", err)
	}
	entries := make(map[string]int)
	for _, info := range patternConfig.Describe() {
		entries[info.Category] = info.Entries
	}
	metrics.SetPatternEntries(entries)
	logger.WithFields(logrus.Fields{
		"file":          appConfig.Patterns.File,
		"match_timeout": appConfig.Patterns.MatchTimeout,
		"categories":    entries,
	}).Info("Pattern configuration loaded")

	analyzer, err := analysis.New(patternConfig,
		analysis.WithLogger(logger),
		analysis.WithPIIConfig(&pii.Config{
			PINPattern:     appConfig.Analysis.PINPattern,
			RedactionChar:  appConfig.Analysis.RedactionChar,
			PreserveFormat: appConfig.Analysis.PreserveFormat,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	dispatcher = reporting.NewDispatcher(logger, conversation.NewAggregator(analyzer, logger))
	if appConfig.Analysis.RedactText {
		dispatcher.SetRedactor(analyzer)
	}
	dispatcher.AddSubscriber(metrics.NewReportRecorder("http"))
	dispatcher.AddSubscriber(reporting.NewLogSubscriber(logger))

	if appConfig.Messaging.AMQPEnabled {
		publisher = messaging.NewAMQPPublisher(logger, messaging.AMQPConfig{
			URL:          appConfig.Messaging.AMQPUrl,
			QueueName:    appConfig.Messaging.AMQPQueueName,
			ExchangeName: appConfig.Messaging.AMQPExchangeName,
			RoutingKey:   appConfig.Messaging.AMQPRoutingKey,
		})
		if err := publisher.Connect(); err != nil {
			logger.WithError(err).Error("Failed to connect to AMQP server, report publishes will be counted as failures")
		}
		dispatcher.AddSubscriber(publisher)
	}

	httpConfig := http_server.DefaultConfig()
	httpConfig.Port = appConfig.HTTP.Port
	httpConfig.EnableMetrics = appConfig.HTTP.EnableMetrics
	httpConfig.EnableReportStream = appConfig.ReportStream.Enabled
	httpConfig.MaxBodyBytes = appConfig.HTTP.MaxBodyBytes
	httpConfig.ReadTimeout = appConfig.HTTP.ReadTimeout
	httpConfig.WriteTimeout = appConfig.HTTP.WriteTimeout
	httpConfig.ShutdownTimeout = appConfig.HTTP.ShutdownTimeout

	if appConfig.RateLimit.Enabled {
		httpConfig.RateLimit = ratelimit.DefaultConfig()
		httpConfig.RateLimit.Enabled = true
		httpConfig.RateLimit.RequestsPerSecond = appConfig.RateLimit.RequestsPerSecond
		httpConfig.RateLimit.BurstSize = appConfig.RateLimit.BurstSize
		httpConfig.RateLimit.BlockDuration = appConfig.RateLimit.BlockDuration
		httpConfig.RateLimit.WhitelistedIPs = appConfig.RateLimit.WhitelistedIPs
	}

	httpServer = http_server.NewServer(logger, httpConfig, analyzer, dispatcher)
	if publisher != nil {
		httpServer.SetPublisher(publisher)
	}

	logStartupConfig()
	return nil
}

func logStartupConfig() {
	logger.WithFields(logrus.Fields{
		"http_port":          appConfig.HTTP.Port,
		"http_metrics":       appConfig.HTTP.EnableMetrics,
		"http_read_timeout":  appConfig.HTTP.ReadTimeout,
		"http_write_timeout": appConfig.HTTP.WriteTimeout,
		"max_body_bytes":     appConfig.HTTP.MaxBodyBytes,
		"rate_limit":         appConfig.RateLimit.Enabled,
		"rate_limit_rps":     appConfig.RateLimit.RequestsPerSecond,
	}).Info("HTTP server configuration")

	logger.WithFields(logrus.Fields{
		"redact_text":   appConfig.Analysis.RedactText,
		"amqp_enabled":  appConfig.Messaging.AMQPEnabled,
		"amqp_queue":    appConfig.Messaging.AMQPQueueName,
		"report_stream": appConfig.ReportStream.Enabled,
		"subscribers":   dispatcher.SubscriberCount(),
	}).Info("Report delivery configuration")
}
