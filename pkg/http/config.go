package http

import (
	"time"

	"conversation-analyzer/pkg/ratelimit"
)

// Config holds the HTTP server configuration
type Config struct {
	// Port is the HTTP server port
	Port int `json:"port" env:"HTTP_PORT" default:"8080"`

	// EnableMetrics determines if the /metrics endpoint is served
	EnableMetrics bool `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	// EnableReportStream determines if /ws/reports is served
	EnableReportStream bool `json:"enable_report_stream" env:"WS_REPORTS_ENABLED" default:"true"`

	// MaxBodyBytes caps the size of analysis request bodies
	MaxBodyBytes int64 `json:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" default:"1048576"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `json:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for the server to shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`

	// RateLimit throttles requests per client. Nil disables limiting.
	RateLimit *ratelimit.Config `json:"rate_limit"`
}

// DefaultConfig returns the default HTTP server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:               8080,
		EnableMetrics:      true,
		EnableReportStream: true,
		MaxBodyBytes:       1 << 20,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    5 * time.Second,
	}
}
