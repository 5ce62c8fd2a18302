package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/metrics"
	"conversation-analyzer/pkg/ratelimit"
	"conversation-analyzer/pkg/reporting"
	"conversation-analyzer/pkg/version"
)

// ConnectionChecker reports whether an outbound sink is connected
type ConnectionChecker interface {
	IsConnected() bool
}

// Server represents the HTTP server for the analysis API, health checks and metrics
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	limiter    *ratelimit.HTTPMiddleware
	startTime  time.Time
	analyzer   *analysis.Analyzer
	dispatcher *reporting.Dispatcher
	stream     *ReportStream
	publisher  ConnectionChecker
}

// NewServer creates a new HTTP server instance. When the report stream is
// enabled it is started and subscribed to the dispatcher.
func NewServer(logger *logrus.Logger, config *Config, analyzer *analysis.Analyzer, dispatcher *reporting.Dispatcher) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:     config,
		logger:     logger,
		startTime:  time.Now(),
		analyzer:   analyzer,
		dispatcher: dispatcher,
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("/health", withServerHeader(server.HealthHandler))
	mux.HandleFunc("/health/live", withServerHeader(server.LivenessHandler))
	mux.HandleFunc("/health/ready", withServerHeader(server.ReadinessHandler))

	mux.HandleFunc("/api/v1/conversations/analyze", withServerHeader(server.handleAnalyzeConversation))
	mux.HandleFunc("/api/v1/lines/analyze", withServerHeader(server.handleAnalyzeLine))
	mux.HandleFunc("/api/v1/patterns", withServerHeader(server.handlePatterns))
	mux.HandleFunc("/api/", withServerHeader(server.handleUnknownRoute))

	if config.EnableMetrics && metrics.IsMetricsEnabled() {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled")
	} else {
		logger.Info("Metrics endpoints disabled")
	}

	if config.EnableReportStream {
		server.stream = NewReportStream(logger)
		server.stream.Start()
		if dispatcher != nil {
			dispatcher.AddSubscriber(server.stream)
		}
		mux.Handle("/ws/reports", server.stream)
		logger.Info("Report WebSocket endpoint registered at /ws/reports")
	}

	// correlation -> recovery -> rate limit -> routes
	var handler http.Handler = mux
	if config.RateLimit != nil && config.RateLimit.Enabled {
		server.limiter = ratelimit.NewHTTPMiddleware(config.RateLimit, logger)
		handler = server.limiter.Middleware(handler)
	}
	handler = recoverPanics(logger, handler)
	server.handler = correlation.NewHTTPMiddleware(logger, metrics.RecordHTTPRequest).Middleware(handler)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server
}

func withServerHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next(w, r)
	}
}

// SetPublisher sets the AMQP publisher reference for health checks
func (s *Server) SetPublisher(publisher ConnectionChecker) {
	s.publisher = publisher
}

// Handler returns the root handler of the server, middleware included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ReportStream returns the report WebSocket hub, or nil when disabled
func (s *Server) ReportStream() *ReportStream {
	return s.stream
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server and the report stream
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	if s.stream != nil {
		if s.dispatcher != nil {
			s.dispatcher.RemoveSubscriber(s.stream)
		}
		s.stream.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, err)
	correlation.Logger(r.Context(), s.logger).WithError(err).Warn("HTTP error response sent")
}
