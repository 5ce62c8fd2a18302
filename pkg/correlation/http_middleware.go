package correlation

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/errors"
)

// RequestObserver is told about every completed request
type RequestObserver func(path string, status int)

// HTTPMiddleware assigns correlation IDs and logs request completion
type HTTPMiddleware struct {
	logger   *logrus.Logger
	observer RequestObserver
}

// NewHTTPMiddleware creates the middleware. observer may be nil.
func NewHTTPMiddleware(logger *logrus.Logger, observer RequestObserver) *HTTPMiddleware {
	return &HTTPMiddleware{logger: logger, observer: observer}
}

// Middleware wraps next. An inbound X-Correlation-ID or X-Request-ID is
// reused; otherwise a new ID is generated. The ID is echoed in the response.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := extractID(r)
		if id.IsEmpty() {
			id = New()
		}
		clientIP := ClientIP(r)

		ctx := WithCorrelationID(r.Context(), id)
		ctx = WithClientIP(ctx, clientIP)
		r = r.WithContext(ctx)

		w.Header().Set(HTTPHeader, id.String())

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if m.observer != nil {
			m.observer(r.URL.Path, wrapper.statusCode)
		}

		fields := logrus.Fields{
			"correlation_id": id.String(),
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         wrapper.statusCode,
			"duration_ms":    time.Since(start).Milliseconds(),
			"client_ip":      clientIP,
		}
		switch {
		case wrapper.statusCode >= 500:
			m.logger.WithFields(fields).Error("HTTP request completed with server error")
		case wrapper.statusCode >= 400:
			m.logger.WithFields(fields).Warn("HTTP request completed with client error")
		default:
			m.logger.WithFields(fields).Debug("HTTP request completed")
		}
	})
}

func extractID(r *http.Request) ID {
	for _, header := range []string{HTTPHeader, HTTPRequestIDHeader} {
		id := strings.TrimSpace(r.Header.Get(header))
		if id != "" && len(id) <= maxIDLength {
			return ID(id)
		}
	}
	return ""
}

// ClientIP returns the first valid address from X-Forwarded-For or
// X-Real-IP, falling back to the connection's remote address
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper records the status code written by the handler
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets WebSocket upgrades pass through the wrapper
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	w.written = true
	return hijacker.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing
func (w *responseWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
