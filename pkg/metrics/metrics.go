package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Analysis metrics
	ConversationsAnalyzed *prometheus.CounterVec
	TurnsAnalyzed         *prometheus.CounterVec
	SentimentLabels       *prometheus.CounterVec
	PIIHits               *prometheus.CounterVec
	ProhibitedPhrases     *prometheus.CounterVec
	RequiredPhrases       *prometheus.CounterVec
	AnalysisDuration      *prometheus.HistogramVec

	// Delivery metrics
	ReportsPublished       *prometheus.CounterVec
	ReportPublishFailures  *prometheus.CounterVec
	AMQPConnectionStatus   prometheus.Gauge
	WebSocketClientsActive prometheus.Gauge

	// Pattern configuration metrics
	PatternEntries *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestsLimited *prometheus.CounterVec
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		ConversationsAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_conversations_analyzed_total",
				Help: "Total number of conversations analyzed",
			},
			[]string{"source"},
		)

		TurnsAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_turns_analyzed_total",
				Help: "Total number of turns analyzed by speaker bucket",
			},
			[]string{"speaker"},
		)

		SentimentLabels = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_sentiment_labels_total",
				Help: "Turn sentiment labels by speaker bucket",
			},
			[]string{"speaker", "label"},
		)

		PIIHits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_pii_hits_total",
				Help: "Personal and sensitive information hits by category",
			},
			[]string{"category"},
		)

		ProhibitedPhrases = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_prohibited_phrases_total",
				Help: "Prohibited phrases found by speaker bucket",
			},
			[]string{"speaker"},
		)

		RequiredPhrases = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_required_phrases_total",
				Help: "Turns flagged with a required phrase by category",
			},
			[]string{"category"},
		)

		AnalysisDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conversation_analyzer_analysis_duration_seconds",
				Help:    "Time taken to analyze a whole conversation",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"source"},
		)

		ReportsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_reports_published_total",
				Help: "Reports delivered to a sink",
			},
			[]string{"sink"},
		)

		ReportPublishFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_report_publish_failures_total",
				Help: "Reports that could not be delivered to a sink",
			},
			[]string{"sink"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conversation_analyzer_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		WebSocketClientsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conversation_analyzer_websocket_clients_active",
				Help: "Number of connected report stream clients",
			},
		)

		PatternEntries = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conversation_analyzer_pattern_entries",
				Help: "Number of entries in each loaded pattern category",
			},
			[]string{"category"},
		)

		HTTPRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_http_requests_total",
				Help: "HTTP requests served by path and status class",
			},
			[]string{"path", "status"},
		)

		HTTPRequestsLimited = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_analyzer_http_requests_limited_total",
				Help: "HTTP requests rejected by the rate limiter",
			},
			[]string{"path"},
		)

		registry.MustRegister(
			// Analysis metrics
			ConversationsAnalyzed,
			TurnsAnalyzed,
			SentimentLabels,
			PIIHits,
			ProhibitedPhrases,
			RequiredPhrases,
			AnalysisDuration,

			// Delivery metrics
			ReportsPublished,
			ReportPublishFailures,
			AMQPConnectionStatus,
			WebSocketClientsActive,

			// Pattern configuration metrics
			PatternEntries,

			// HTTP metrics
			HTTPRequests,
			HTTPRequestsLimited,

			// Process and runtime metrics
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// Handler returns the HTTP handler serving the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if IsMetricsEnabled() {
		mux.Handle(defaultMetricsPath, Handler())
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// ObserveAnalysis records the duration of one conversation analysis
func ObserveAnalysis(source string, duration time.Duration) {
	if IsMetricsEnabled() {
		ConversationsAnalyzed.WithLabelValues(source).Inc()
		AnalysisDuration.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// RecordTurn records the classification of one turn
func RecordTurn(speaker, label string, piiCategories, requiredPhrases []string, prohibited int) {
	if !IsMetricsEnabled() {
		return
	}
	TurnsAnalyzed.WithLabelValues(speaker).Inc()
	SentimentLabels.WithLabelValues(speaker, label).Inc()
	for _, category := range piiCategories {
		PIIHits.WithLabelValues(category).Inc()
	}
	for _, category := range requiredPhrases {
		RequiredPhrases.WithLabelValues(category).Inc()
	}
	if prohibited > 0 {
		ProhibitedPhrases.WithLabelValues(speaker).Add(float64(prohibited))
	}
}

// RecordPublish records a report delivery attempt for a sink
func RecordPublish(sink string, err error) {
	if !IsMetricsEnabled() {
		return
	}
	if err != nil {
		ReportPublishFailures.WithLabelValues(sink).Inc()
		return
	}
	ReportsPublished.WithLabelValues(sink).Inc()
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if IsMetricsEnabled() {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}

// SetWebSocketClients sets the number of connected report stream clients
func SetWebSocketClients(count int) {
	if IsMetricsEnabled() {
		WebSocketClientsActive.Set(float64(count))
	}
}

// SetPatternEntries publishes the size of each loaded pattern category
func SetPatternEntries(entries map[string]int) {
	if !IsMetricsEnabled() {
		return
	}
	for category, n := range entries {
		PatternEntries.WithLabelValues(category).Set(float64(n))
	}
}

// RecordHTTPRequest counts a served request by its status class (2xx, 4xx, ...)
func RecordHTTPRequest(path string, status int) {
	if IsMetricsEnabled() {
		HTTPRequests.WithLabelValues(path, fmt.Sprintf("%dxx", status/100)).Inc()
	}
}

// RecordRateLimited counts a request rejected by the rate limiter
func RecordRateLimited(path string) {
	if IsMetricsEnabled() {
		HTTPRequestsLimited.WithLabelValues(path).Inc()
	}
}
