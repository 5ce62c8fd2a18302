package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNew_ConcurrentGenerationIsUnique(t *testing.T) {
	ids := sync.Map{}
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := New()
				_, loaded := ids.LoadOrStore(id, true)
				assert.False(t, loaded, "duplicate ID generated: %s", id)
			}
		}()
	}
	wg.Wait()
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), ID("abc-123"))
	ctx = WithClientIP(ctx, "10.0.0.1")

	assert.Equal(t, ID("abc-123"), FromContext(ctx))
	assert.Equal(t, "10.0.0.1", ClientIPFromContext(ctx))

	var unset context.Context
	assert.True(t, FromContext(unset).IsEmpty())
	assert.True(t, FromContext(context.Background()).IsEmpty())
	assert.Empty(t, ClientIPFromContext(context.Background()))
}

func TestLoggerCarriesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := WithCorrelationID(context.Background(), ID("req-9"))
	Logger(ctx, logger).Info("analyzed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-9", entry["correlation_id"])
	assert.NotContains(t, entry, "client_ip")

	assert.Empty(t, Fields(context.Background()))
}

func TestHTTPMiddleware_GeneratesCorrelationID(t *testing.T) {
	middleware := NewHTTPMiddleware(newTestLogger(), nil)

	var seen ID
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	middleware.Middleware(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.False(t, seen.IsEmpty())
	assert.Equal(t, seen.String(), rr.Header().Get(HTTPHeader))
}

func TestHTTPMiddleware_ReusesInboundID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"correlation header", HTTPHeader, "my-existing-correlation-id", "my-existing-correlation-id"},
		{"request id header", HTTPRequestIDHeader, "x-request-id-value", "x-request-id-value"},
		{"oversized id is replaced", HTTPHeader, strings.Repeat("a", maxIDLength+1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewHTTPMiddleware(newTestLogger(), nil)

			var seen ID
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = FromContext(r.Context())
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(tt.header, tt.value)
			rr := httptest.NewRecorder()
			middleware.Middleware(handler).ServeHTTP(rr, req)

			if tt.want == "" {
				assert.NotEqual(t, tt.value, seen.String())
				assert.False(t, seen.IsEmpty())
			} else {
				assert.Equal(t, tt.want, seen.String())
			}
			assert.Equal(t, seen.String(), rr.Header().Get(HTTPHeader))
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote address", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"forwarded for", "127.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, "203.0.113.50"},
		{"real ip", "127.0.0.1:12345", map[string]string{"X-Real-IP": "198.51.100.25"}, "198.51.100.25"},
		{"invalid forwarded for", "127.0.0.1:12345", map[string]string{"X-Forwarded-For": "not-an-ip"}, "127.0.0.1"},
		{"remote without port", "10.1.1.1", nil, "10.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestHTTPMiddleware_ObservesStatus(t *testing.T) {
	var path string
	var status int
	middleware := NewHTTPMiddleware(newTestLogger(), func(p string, s int) {
		path, status = p, s
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	rr := httptest.NewRecorder()
	middleware.Middleware(handler).ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/lines/analyze", nil))

	assert.Equal(t, "/api/v1/lines/analyze", path)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHTTPMiddleware_DefaultStatusIsOK(t *testing.T) {
	var status int
	middleware := NewHTTPMiddleware(newTestLogger(), func(_ string, s int) { status = s })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	middleware.Middleware(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, status)
}
