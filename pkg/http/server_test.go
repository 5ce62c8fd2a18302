package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/patterns"
	"conversation-analyzer/pkg/ratelimit"
	"conversation-analyzer/pkg/reporting"
	"conversation-analyzer/pkg/version"
)

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg, err := patterns.Default()
	require.NoError(t, err)
	analyzer, err := analysis.New(cfg, analysis.WithLogger(logger))
	require.NoError(t, err)
	dispatcher := reporting.NewDispatcher(logger, conversation.NewAggregator(analyzer, logger))

	server := NewServer(logger, config, analyzer, dispatcher)
	t.Cleanup(func() {
		if server.ReportStream() != nil {
			server.ReportStream().Stop()
		}
		if server.limiter != nil {
			server.limiter.Stop()
		}
	})
	return server
}

func post(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["code"]
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, version.ServerHeader(), rec.Header().Get("Server"))

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["patterns"].Status)
	assert.Equal(t, "healthy", health.Checks["report_stream"].Status)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

type stubPublisher bool

func (s stubPublisher) IsConnected() bool { return bool(s) }

func TestHealthReportsDisconnectedPublisher(t *testing.T) {
	server := newTestServer(t, nil)
	server.SetPublisher(stubPublisher(false))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "degraded", health.Checks["amqp"].Status)
}

func TestAnalyzeConversation(t *testing.T) {
	server := newTestServer(t, nil)

	rec := post(t, server, "/api/v1/conversations/analyze", `{
		"conversation_id": "conv-1",
		"turns": [
			{"sender": "agent", "text": "Thank you for calling"},
			{"sender": "customer", "text": "My card 4111 1111 1111 1111 was stolen"}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope reporting.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "conv-1", envelope.ConversationID)
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, 2, envelope.TurnCount)
	require.NotNil(t, envelope.Report)
	require.Len(t, envelope.Report.Turns, 2)
	assert.Equal(t, conversation.SpeakerCustomer, envelope.Report.Turns[1].Role)
	assert.Contains(t, envelope.Report.Turns[1].PIICategories, "credit_card")
	assert.Contains(t, envelope.Summary, conversation.SummaryCustomerSentiment)
}

func TestAnalyzeConversationRecordsRequestID(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/analyze", strings.NewReader(`[]`))
	req.Header.Set(correlation.HTTPHeader, "req-abc")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-abc", rec.Header().Get(correlation.HTTPHeader))

	var envelope reporting.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "req-abc", envelope.RequestID)

	rec = post(t, server, "/api/v1/conversations/analyze", `[]`)
	assert.NotEmpty(t, rec.Header().Get(correlation.HTTPHeader), "an ID is generated when none is sent")
}

func TestRateLimiting(t *testing.T) {
	config := DefaultConfig()
	config.RateLimit = ratelimit.DefaultConfig()
	config.RateLimit.Enabled = true
	config.RateLimit.RequestsPerSecond = 1
	config.RateLimit.BurstSize = 2
	config.RateLimit.CleanupInterval = 0
	config.RateLimit.WhitelistedIPs = nil
	server := newTestServer(t, config)

	for i := 0; i < 2; i++ {
		rec := post(t, server, "/api/v1/lines/analyze", `{"line": "hello"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := post(t, server, "/api/v1/lines/analyze", `{"line": "hello"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errors.CodeRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get(correlation.HTTPHeader))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are never throttled")
}

func TestAnalyzeConversationAcceptsBareArray(t *testing.T) {
	server := newTestServer(t, nil)

	rec := post(t, server, "/api/v1/conversations/analyze", `[{"speaker": "customer", "message": "hello"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope reporting.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.TurnCount)
	assert.NotEmpty(t, envelope.ConversationID, "missing conversation id is generated")
}

func TestAnalyzeConversationRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"turns": [`},
		{"empty body", ``},
		{"missing turns", `{"conversation_id": "x"}`},
		{"turns not an array", `{"turns": "hello"}`},
	}

	server := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, server, "/api/v1/conversations/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, errors.CodeInvalidTranscript, errorCode(t, rec))
		})
	}
}

func TestAnalyzeConversationBodyLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxBodyBytes = 16
	server := newTestServer(t, config)

	rec := post(t, server, "/api/v1/conversations/analyze", `{"turns": [{"sender": "customer", "text": "a long message"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds 16 bytes")
}

func TestAnalyzeConversationMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeLine(t *testing.T) {
	server := newTestServer(t, nil)

	rec := post(t, server, "/api/v1/lines/analyze", `{"line": "0.00 2.50 SPEAKER_01 Thank you for calling SENTIMENT:positive"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result analysis.TurnAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Thank you for calling", result.Text)
	assert.Equal(t, "SPEAKER_01", result.Speaker)
	assert.Equal(t, "positive", result.TaggedSentiment)
	assert.Equal(t, 1, result.RequiredPhrases.Greetings)

	rec = post(t, server, "/api/v1/lines/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatternsEndpoint(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patterns", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []patterns.CategoryInfo `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Categories, 9)
	assert.Equal(t, patterns.KeyGreetings, body.Categories[0].Category)
	assert.NotContains(t, rec.Body.String(), `\\d{4}`, "regex bodies are not exposed")
}

func TestReportStream(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/reports?conversation_id=conv-b"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	var msg StreamMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	rec := post(t, server, "/api/v1/conversations/analyze", `{"conversation_id": "conv-a", "turns": []}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, server, "/api/v1/conversations/analyze", `{"conversation_id": "conv-b", "turns": [{"sender": "customer", "text": "hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg = StreamMessage{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "report", msg.Type)
	assert.Equal(t, "conv-b", msg.ConversationID)
	require.NotNil(t, msg.Data)
	assert.Equal(t, 1, msg.Data.TurnCount)

	assert.Equal(t, 1, server.ReportStream().GetConnectedClients())
}

func TestReportStreamDisconnect(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/reports"
	clients := make([]*websocket.Conn, 3)
	for i := range clients {
		ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		var msg StreamMessage
		require.NoError(t, ws.ReadJSON(&msg))
		clients[i] = ws
	}
	assert.Eventually(t, func() bool {
		return server.ReportStream().GetConnectedClients() == 3
	}, 2*time.Second, 20*time.Millisecond)

	for _, ws := range clients {
		ws.Close()
	}
	assert.Eventually(t, func() bool {
		return server.ReportStream().GetConnectedClients() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnknownAPIRoute(t *testing.T) {
	server := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patterns", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportStreamDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableReportStream = false
	server := newTestServer(t, config)

	assert.Nil(t, server.ReportStream())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/reports", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
