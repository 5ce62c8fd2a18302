// Package reporting turns analyzed conversations into report envelopes and
// fans them out to subscribers.
package reporting

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/correlation"
)

// Subscriber receives every generated report envelope.
type Subscriber interface {
	OnReport(ctx context.Context, envelope *Envelope)
}

// Redactor masks sensitive information in turn text
type Redactor interface {
	Redact(text string) string
}

// Envelope wraps a report with delivery metadata. The report itself is a
// pure function of the turns; only the envelope carries an ID and a time.
type Envelope struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	RequestID      string               `json:"request_id,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
	TurnCount      int                  `json:"turn_count"`
	Report         *conversation.Report `json:"report"`
	Summary        conversation.Summary `json:"summary"`
	Elapsed        time.Duration        `json:"-"`
}

// Dispatcher aggregates conversations and notifies subscribers.
type Dispatcher struct {
	logger     *logrus.Logger
	aggregator *conversation.Aggregator
	redactor   Redactor
	listeners  []Subscriber
	mu         sync.RWMutex
	now        func() time.Time
}

// NewDispatcher creates a dispatcher around the given aggregator.
func NewDispatcher(logger *logrus.Logger, aggregator *conversation.Aggregator) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		aggregator: aggregator,
		listeners:  make([]Subscriber, 0),
		now:        time.Now,
	}
}

// SetRedactor masks turn text in every report generated afterwards. A nil
// redactor disables masking.
func (d *Dispatcher) SetRedactor(redactor Redactor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redactor = redactor
}

// AddSubscriber registers a report subscriber.
func (d *Dispatcher) AddSubscriber(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, sub)
}

// RemoveSubscriber removes a report subscriber, keeping the order of the rest.
// Subscribers whose dynamic type is not comparable cannot be removed.
func (d *Dispatcher) RemoveSubscriber(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kind := reflect.TypeOf(sub)
	if kind == nil || !kind.Comparable() {
		d.logger.WithField("subscriber", fmt.Sprintf("%T", sub)).Warn("Cannot remove subscriber of a non-comparable type")
		return
	}
	for i, s := range d.listeners {
		if reflect.TypeOf(s) == kind && s == sub {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered subscribers
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Analyze aggregates the turns, wraps the report in an envelope and hands it
// to every subscriber in registration order. An empty conversationID is
// replaced by a generated one.
func (d *Dispatcher) Analyze(ctx context.Context, conversationID string, turns []conversation.Turn) *Envelope {
	start := d.now()
	report := d.aggregator.Aggregate(turns)

	d.mu.RLock()
	redactor := d.redactor
	listeners := append([]Subscriber(nil), d.listeners...)
	d.mu.RUnlock()

	if redactor != nil {
		for i := range report.Turns {
			report.Turns[i].Text = redactor.Redact(report.Turns[i].Text)
		}
	}

	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	envelope := &Envelope{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		RequestID:      correlation.FromContext(ctx).String(),
		GeneratedAt:    d.now().UTC(),
		TurnCount:      len(report.Turns),
		Report:         report,
		Summary:        report.Summary(),
	}
	envelope.Elapsed = envelope.GeneratedAt.Sub(start)

	correlation.Logger(ctx, d.logger).WithFields(logrus.Fields{
		"component":       "reporting",
		"conversation_id": conversationID,
		"report_id":       envelope.ID,
		"turns":           envelope.TurnCount,
		"subscribers":     len(listeners),
	}).Info("Conversation report generated")

	for _, sub := range listeners {
		if ctx.Err() != nil {
			d.logger.WithError(ctx.Err()).WithField("report_id", envelope.ID).Warn("Context done, skipping remaining report subscribers")
			break
		}
		sub.OnReport(ctx, envelope)
	}

	return envelope
}
