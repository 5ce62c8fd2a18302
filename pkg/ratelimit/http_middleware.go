package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/metrics"
)

// HTTPMiddleware applies per-client rate limiting to HTTP requests
type HTTPMiddleware struct {
	limiter          *Limiter
	config           *Config
	logger           *logrus.Logger
	whitelistedIPs   map[string]bool
	whitelistedNets  []*net.IPNet
	whitelistedPaths []string
}

// NewHTTPMiddleware creates the middleware. A nil config uses DefaultConfig.
func NewHTTPMiddleware(config *Config, logger *logrus.Logger) *HTTPMiddleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &HTTPMiddleware{
		limiter:        NewLimiter(config.RequestsPerSecond, config.BurstSize, config.CleanupInterval, logger),
		config:         config,
		logger:         logger,
		whitelistedIPs: make(map[string]bool),
	}

	for _, ip := range config.WhitelistedIPs {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			_, ipNet, err := net.ParseCIDR(ip)
			if err != nil {
				logger.WithError(err).Warnf("Invalid CIDR in rate limit whitelist: %s", ip)
				continue
			}
			m.whitelistedNets = append(m.whitelistedNets, ipNet)
			continue
		}
		m.whitelistedIPs[ip] = true
	}

	for _, path := range config.WhitelistedPaths {
		if path = strings.TrimSpace(path); path != "" {
			m.whitelistedPaths = append(m.whitelistedPaths, path)
		}
	}

	if config.Enabled {
		logger.WithFields(logrus.Fields{
			"rps":               config.RequestsPerSecond,
			"burst":             config.BurstSize,
			"whitelisted_ips":   len(m.whitelistedIPs) + len(m.whitelistedNets),
			"whitelisted_paths": len(m.whitelistedPaths),
		}).Info("HTTP rate limiting enabled")
	}

	return m
}

// Middleware returns next unchanged when limiting is disabled
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	limit := strconv.FormatFloat(m.config.RequestsPerSecond, 'f', -1, 64)
	retryAfter := strconv.Itoa(int(m.config.BlockDuration.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		clientIP := correlation.ClientIPFromContext(r.Context())
		if clientIP == "" {
			clientIP = correlation.ClientIP(r)
		}

		if m.isPathWhitelisted(path) || m.isIPWhitelisted(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", limit)

		if !m.limiter.Allow(clientIP) {
			correlation.Logger(r.Context(), m.logger).WithFields(logrus.Fields{
				"path":   path,
				"method": r.Method,
			}).Warn("Rate limit exceeded")

			metrics.RecordRateLimited(path)
			if !m.limiter.IsBlocked(clientIP) && m.config.BlockDuration > 0 {
				m.limiter.Block(clientIP, m.config.BlockDuration)
			}

			w.Header().Set("Retry-After", retryAfter)
			w.Header().Set("X-RateLimit-Remaining", "0")
			errors.WriteError(w, errors.NewRateLimited(map[string]interface{}{"client_ip": clientIP}))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(m.limiter.Tokens(clientIP))))
		next.ServeHTTP(w, r)
	})
}

// Limiter returns the underlying limiter
func (m *HTTPMiddleware) Limiter() *Limiter {
	return m.limiter
}

// Stop releases the limiter's background goroutine
func (m *HTTPMiddleware) Stop() {
	m.limiter.Stop()
}

func (m *HTTPMiddleware) isIPWhitelisted(ip string) bool {
	if m.whitelistedIPs[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range m.whitelistedNets {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

func (m *HTTPMiddleware) isPathWhitelisted(path string) bool {
	for _, p := range m.whitelistedPaths {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if p == path {
			return true
		}
	}
	return false
}
