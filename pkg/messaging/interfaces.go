package messaging

import (
	"context"

	"conversation-analyzer/pkg/reporting"
)

// ReportPublisher defines the interface for report message sinks
type ReportPublisher interface {
	PublishReport(ctx context.Context, envelope *reporting.Envelope) error
	PublishToDeadLetterQueue(ctx context.Context, envelope *reporting.Envelope, reason error) error
	IsConnected() bool
	Connect() error
	Disconnect()
}

var _ ReportPublisher = (*AMQPPublisher)(nil)
