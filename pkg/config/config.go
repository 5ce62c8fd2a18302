package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/errors"
)

// Config represents the complete application configuration
type Config struct {
	HTTP         HTTPConfig         `json:"http"`
	Patterns     PatternsConfig     `json:"patterns"`
	Analysis     AnalysisConfig     `json:"analysis"`
	Logging      LoggingConfig      `json:"logging"`
	Messaging    MessagingConfig    `json:"messaging"`
	ReportStream ReportStreamConfig `json:"report_stream"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
}

// HTTPConfig holds the HTTP API configuration
type HTTPConfig struct {
	Port            int           `json:"port" env:"HTTP_PORT" default:"8080"`
	EnableMetrics   bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`
	MaxBodyBytes    int64         `json:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" default:"1048576"`
}

// PatternsConfig holds the pattern configuration source
type PatternsConfig struct {
	// File is the YAML pattern file; empty selects the embedded default set
	File string `json:"file" env:"PATTERNS_FILE"`

	// MatchTimeout bounds every regular expression evaluation; zero disables it
	MatchTimeout time.Duration `json:"match_timeout" env:"PATTERNS_MATCH_TIMEOUT" default:"100ms"`
}

// AnalysisConfig holds report and redaction settings
type AnalysisConfig struct {
	RedactText     bool   `json:"redact_text" env:"ANALYSIS_REDACT_TEXT" default:"false"`
	RedactionChar  string `json:"redaction_char" env:"ANALYSIS_REDACTION_CHAR" default:"*"`
	PreserveFormat bool   `json:"preserve_format" env:"ANALYSIS_PRESERVE_FORMAT" default:"true"`
	PINPattern     string `json:"pin_pattern" env:"ANALYSIS_PIN_PATTERN" default:"atm_pin"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"LOG_FORMAT" default:"json"`
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// MessagingConfig holds the AMQP report publisher configuration
type MessagingConfig struct {
	AMQPEnabled      bool   `json:"amqp_enabled" env:"AMQP_ENABLED" default:"false"`
	AMQPUrl          string `json:"amqp_url" env:"AMQP_URL"`
	AMQPQueueName    string `json:"amqp_queue_name" env:"AMQP_QUEUE_NAME" default:"conversation_reports"`
	AMQPExchangeName string `json:"amqp_exchange_name" env:"AMQP_EXCHANGE_NAME"`
	AMQPRoutingKey   string `json:"amqp_routing_key" env:"AMQP_ROUTING_KEY"`
}

// ReportStreamConfig holds the report WebSocket configuration
type ReportStreamConfig struct {
	Enabled bool `json:"enabled" env:"WS_REPORTS_ENABLED" default:"true"`
}

// RateLimitConfig holds per-client throttling of the analysis API
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" env:"RATE_LIMIT_ENABLED" default:"false"`
	RequestsPerSecond float64       `json:"requests_per_second" env:"RATE_LIMIT_RPS" default:"50"`
	BurstSize         int           `json:"burst_size" env:"RATE_LIMIT_BURST" default:"100"`
	BlockDuration     time.Duration `json:"block_duration" env:"RATE_LIMIT_BLOCK_DURATION" default:"1m"`
	WhitelistedIPs    []string      `json:"whitelisted_ips" env:"RATE_LIMIT_WHITELIST_IPS" default:"127.0.0.1,::1"`
}

// Load loads the configuration from a .env file, if present, and the environment
func Load(logger *logrus.Logger) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}
	loadPatternsConfig(logger, &config.Patterns)
	loadAnalysisConfig(&config.Analysis)
	loadLoggingConfig(logger, &config.Logging)
	loadMessagingConfig(logger, &config.Messaging)
	config.ReportStream.Enabled = getEnvBool("WS_REPORTS_ENABLED", true)
	loadRateLimitConfig(logger, &config.RateLimit)

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// loadEnvFile tries the usual .env locations and falls back to the
// process environment when none exists
func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		logger.WithField("path", absPath).Debug("Attempting to load .env file")
		if loadErr := godotenv.Load(envFile); loadErr == nil {
			loadedFrom = absPath
			break
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	httpPortStr := getEnv("HTTP_PORT", "8080")
	httpPort, err := strconv.Atoi(httpPortStr)
	if err != nil {
		return errors.NewInvalidInput(fmt.Sprintf("invalid HTTP_PORT: %s", httpPortStr))
	}
	config.Port = httpPort

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)

	readTimeoutStr := getEnv("HTTP_READ_TIMEOUT", "10s")
	readTimeout, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		logger.Warn("Invalid HTTP_READ_TIMEOUT value, using default: 10s")
		config.ReadTimeout = 10 * time.Second
	} else {
		config.ReadTimeout = readTimeout
	}

	writeTimeoutStr := getEnv("HTTP_WRITE_TIMEOUT", "30s")
	writeTimeout, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		logger.Warn("Invalid HTTP_WRITE_TIMEOUT value, using default: 30s")
		config.WriteTimeout = 30 * time.Second
	} else {
		config.WriteTimeout = writeTimeout
	}

	config.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second)
	config.MaxBodyBytes = int64(getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20))

	return nil
}

func loadPatternsConfig(logger *logrus.Logger, config *PatternsConfig) {
	config.File = getEnv("PATTERNS_FILE", "")
	config.MatchTimeout = getEnvDuration("PATTERNS_MATCH_TIMEOUT", 100*time.Millisecond)

	if config.File == "" {
		logger.Debug("PATTERNS_FILE not set, using the embedded default pattern set")
	}
}

func loadAnalysisConfig(config *AnalysisConfig) {
	config.RedactText = getEnvBool("ANALYSIS_REDACT_TEXT", false)
	config.RedactionChar = getEnv("ANALYSIS_REDACTION_CHAR", "*")
	config.PreserveFormat = getEnvBool("ANALYSIS_PRESERVE_FORMAT", true)
	config.PINPattern = getEnv("ANALYSIS_PIN_PATTERN", "atm_pin")
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.AMQPEnabled = getEnvBool("AMQP_ENABLED", false)
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "conversation_reports")
	config.AMQPExchangeName = getEnv("AMQP_EXCHANGE_NAME", "")
	config.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", "")

	if !config.AMQPEnabled && config.AMQPUrl != "" {
		logger.Warn("AMQP_URL is set but AMQP_ENABLED is false, reports will not be published")
	}
}

func loadRateLimitConfig(logger *logrus.Logger, config *RateLimitConfig) {
	config.Enabled = getEnvBool("RATE_LIMIT_ENABLED", false)
	config.BurstSize = getEnvInt("RATE_LIMIT_BURST", 100)
	config.BlockDuration = getEnvDuration("RATE_LIMIT_BLOCK_DURATION", time.Minute)
	config.WhitelistedIPs = getEnvList("RATE_LIMIT_WHITELIST_IPS", []string{"127.0.0.1", "::1"})

	config.RequestsPerSecond = 50
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Warnf("Invalid RATE_LIMIT_RPS '%s', using default: 50", v)
		} else {
			config.RequestsPerSecond = rps
		}
	}
}

// validateConfig checks cross-field constraints
func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.HTTP.Port < 1 || config.HTTP.Port > 65535 {
		return errors.NewInvalidInput(fmt.Sprintf("HTTP_PORT out of range: %d", config.HTTP.Port))
	}
	if config.HTTP.ReadTimeout <= 0 || config.HTTP.WriteTimeout <= 0 {
		return errors.NewInvalidInput("HTTP_READ_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive durations")
	}
	if config.HTTP.MaxBodyBytes <= 0 {
		return errors.NewInvalidInput("HTTP_MAX_BODY_BYTES must be positive")
	}
	if config.Patterns.MatchTimeout < 0 {
		return errors.NewInvalidInput("PATTERNS_MATCH_TIMEOUT must not be negative")
	}
	if config.Analysis.RedactionChar == "" {
		return errors.NewInvalidInput("ANALYSIS_REDACTION_CHAR must not be empty")
	}

	if config.Messaging.AMQPEnabled {
		if strings.TrimSpace(config.Messaging.AMQPUrl) == "" {
			return errors.NewInvalidInput("AMQP_ENABLED is true but AMQP_URL is empty")
		}
		if strings.TrimSpace(config.Messaging.AMQPQueueName) == "" {
			return errors.NewInvalidInput("AMQP_ENABLED is true but AMQP_QUEUE_NAME is empty")
		}
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.BurstSize < 1) {
		return errors.NewInvalidInput("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	if config.Analysis.RedactText {
		logger.Info("Report turn text will be redacted")
	}

	return nil
}

// ApplyLogging applies the logging configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a comma separated list environment variable with a default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
