package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/reporting"
)

func value(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func initTestMetrics(t *testing.T) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	StartMetrics(logger, true)
}

func TestReportRecorder(t *testing.T) {
	initTestMetrics(t)

	before := value(PIIHits.WithLabelValues("credit_card"))
	beforeTurns := value(TurnsAnalyzed.WithLabelValues(conversation.SpeakerCustomer))
	beforeConversations := value(ConversationsAnalyzed.WithLabelValues("test"))

	envelope := &reporting.Envelope{
		ID: "r-1",
		Report: &conversation.Report{
			Turns: []conversation.TurnRecord{
				{
					Role:          conversation.SpeakerCustomer,
					Sentiment:     analysis.Sentiment{Label: analysis.LabelNegative},
					PIICategories: []string{"credit_card"},
				},
				{
					Role:            conversation.SpeakerNonCustomer,
					Sentiment:       analysis.Sentiment{Label: analysis.LabelPositive},
					RequiredPhrases: []string{analysis.CategoryGreetings},
					ProhibitedWords: []string{"damn"},
				},
			},
		},
	}

	NewReportRecorder("test").OnReport(context.Background(), envelope)

	assert.Equal(t, before+1, value(PIIHits.WithLabelValues("credit_card")))
	assert.Equal(t, beforeTurns+1, value(TurnsAnalyzed.WithLabelValues(conversation.SpeakerCustomer)))
	assert.Equal(t, beforeConversations+1, value(ConversationsAnalyzed.WithLabelValues("test")))
	assert.GreaterOrEqual(t, value(ProhibitedPhrases.WithLabelValues(conversation.SpeakerNonCustomer)), 1.0)
}

func TestRecordPublish(t *testing.T) {
	initTestMetrics(t)

	ok := value(ReportsPublished.WithLabelValues("amqp"))
	failed := value(ReportPublishFailures.WithLabelValues("amqp"))

	RecordPublish("amqp", nil)
	RecordPublish("amqp", assert.AnError)

	assert.Equal(t, ok+1, value(ReportsPublished.WithLabelValues("amqp")))
	assert.Equal(t, failed+1, value(ReportPublishFailures.WithLabelValues("amqp")))
}

func TestRegisterHandler(t *testing.T) {
	initTestMetrics(t)
	SetPatternEntries(map[string]int{"greetings": 4})

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `conversation_analyzer_pattern_entries{category="greetings"} 4`)
}

func TestRecordHTTPRequest(t *testing.T) {
	initTestMetrics(t)

	ok := value(HTTPRequests.WithLabelValues("/api/v1/lines/analyze", "2xx"))
	bad := value(HTTPRequests.WithLabelValues("/api/v1/lines/analyze", "4xx"))
	limited := value(HTTPRequestsLimited.WithLabelValues("/api/v1/lines/analyze"))

	RecordHTTPRequest("/api/v1/lines/analyze", http.StatusOK)
	RecordHTTPRequest("/api/v1/lines/analyze", http.StatusTooManyRequests)
	RecordRateLimited("/api/v1/lines/analyze")

	assert.Equal(t, ok+1, value(HTTPRequests.WithLabelValues("/api/v1/lines/analyze", "2xx")))
	assert.Equal(t, bad+1, value(HTTPRequests.WithLabelValues("/api/v1/lines/analyze", "4xx")))
	assert.Equal(t, limited+1, value(HTTPRequestsLimited.WithLabelValues("/api/v1/lines/analyze")))
}
