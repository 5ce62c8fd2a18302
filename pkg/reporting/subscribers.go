package reporting

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSubscriber logs a one-line summary of every report.
type LogSubscriber struct {
	logger *logrus.Logger
}

// NewLogSubscriber creates a subscriber that logs report summaries
func NewLogSubscriber(logger *logrus.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logger}
}

// OnReport logs the summary counters of the envelope
func (s *LogSubscriber) OnReport(_ context.Context, envelope *Envelope) {
	if envelope == nil || envelope.Report == nil {
		return
	}
	r := envelope.Report
	s.logger.WithFields(logrus.Fields{
		"component":         "reporting",
		"report_id":         envelope.ID,
		"conversation_id":   envelope.ConversationID,
		"request_id":        envelope.RequestID,
		"net_positive":      r.Net.Positive,
		"net_neutral":       r.Net.Neutral,
		"net_negative":      r.Net.Negative,
		"agent_greetings":   r.NonCustomer.Greetings,
		"agent_disclaimers": r.NonCustomer.Disclaimers,
		"agent_closings":    r.NonCustomer.Closings,
		"agent_pii":         r.NonCustomer.PII,
		"agent_prohibited":  r.NonCustomer.Prohibited,
		"customer_pii":      r.Customer.PII,
	}).Info("Conversation report summary")
}
