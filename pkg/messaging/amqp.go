package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/metrics"
	"conversation-analyzer/pkg/reporting"
)

const (
	sinkName       = "amqp"
	dialTimeout    = 5 * time.Second
	channelTimeout = 3 * time.Second
	publishTimeout = 500 * time.Millisecond

	// reportExpiration keeps unconsumed reports for 12 hours
	reportExpiration = "43200000"
)

// AMQPConfig holds AMQP publisher configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	AutoDelete   bool
}

// channel is the subset of *amqp.Channel the publisher needs
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

// AMQPPublisher publishes conversation report envelopes to an AMQP queue
type AMQPPublisher struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPPublisher creates a new publisher. Queues are durable and reports
// are routed to the queue name unless a routing key is configured.
func NewAMQPPublisher(logger *logrus.Logger, config AMQPConfig) *AMQPPublisher {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true
	config.AutoDelete = false

	return &AMQPPublisher{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes a connection to the AMQP server and declares the
// report queue
func (p *AMQPPublisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}

	if p.config.URL == "" || p.config.QueueName == "" {
		return errors.NewConfiguration("AMQP URL or queue name not configured", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	connChan := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.Dial(p.config.URL)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case connChan <- dialResult{conn, err}:
		}
	}()

	var result dialResult
	select {
	case result = <-connChan:
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, fmt.Sprintf("connection to AMQP server timed out after %s", dialTimeout))
	}
	if result.err != nil {
		return errors.Wrap(result.err, "failed to connect to AMQP server")
	}
	conn := result.conn

	type channelResult struct {
		channel *amqp.Channel
		err     error
	}
	channelChan := make(chan channelResult, 1)

	go func() {
		ch, err := conn.Channel()
		channelChan <- channelResult{ch, err}
	}()

	var opened channelResult
	select {
	case opened = <-channelChan:
	case <-time.After(channelTimeout):
		conn.Close()
		return errors.Wrap(errors.ErrTimeout, "AMQP channel creation timed out")
	}
	if opened.err != nil {
		conn.Close()
		return errors.Wrap(opened.err, "failed to open AMQP channel")
	}

	queueChan := make(chan error, 1)
	go func() {
		_, err := opened.channel.QueueDeclare(
			p.config.QueueName,
			p.config.Durable,
			p.config.AutoDelete,
			false, // exclusive
			false, // no-wait
			nil,
		)
		queueChan <- err
	}()

	var err error
	select {
	case err = <-queueChan:
	case <-time.After(channelTimeout):
		opened.channel.Close()
		conn.Close()
		return errors.Wrap(errors.ErrTimeout, "AMQP queue declaration timed out")
	}
	if err != nil {
		opened.channel.Close()
		conn.Close()
		return errors.Wrap(err, "failed to declare AMQP queue")
	}

	p.conn = conn
	p.channel = opened.channel
	p.connected = true
	p.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	p.logger.WithFields(logrus.Fields{
		"queue":    p.config.QueueName,
		"exchange": p.config.ExchangeName,
	}).Info("Connected to AMQP server")

	go p.monitorConnection(conn, p.stopChan)

	return nil
}

// Disconnect closes the AMQP connection
func (p *AMQPPublisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if !p.connected {
		return
	}

	close(p.stopChan)
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.connected = false
	metrics.SetAMQPConnectionStatus(false)
	p.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (p *AMQPPublisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// PublishReport publishes an envelope as a persistent JSON message
func (p *AMQPPublisher) PublishReport(ctx context.Context, envelope *reporting.Envelope) error {
	if envelope == nil {
		return errors.NewInvalidInput("report envelope is nil")
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report envelope")
	}

	return p.publish(ctx, p.config.RoutingKey, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     envelope.GeneratedAt,
		MessageId:     envelope.ID,
		CorrelationId: envelope.ConversationID,
		Type:          "conversation.report",
		Expiration:    reportExpiration,
		Headers:       requestHeaders(envelope),
	})
}

// PublishToDeadLetterQueue stores a report that could not be delivered on
// <queue>.dead_letter
func (p *AMQPPublisher) PublishToDeadLetterQueue(ctx context.Context, envelope *reporting.Envelope, reason error) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report envelope")
	}

	queue := p.config.QueueName + ".dead_letter"

	p.connMutex.RLock()
	ch := p.channel
	p.connMutex.RUnlock()
	if ch == nil {
		return errors.Wrap(errors.ErrUnavailable, "not connected to AMQP server")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare dead letter queue")
	}

	return p.publish(ctx, queue, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     envelope.GeneratedAt,
		MessageId:     envelope.ID,
		CorrelationId: envelope.ConversationID,
		Headers: amqp.Table{
			"x-dead-letter-reason": reason.Error(),
		},
	})
}

// OnReport publishes every dispatched envelope. Failed deliveries are
// counted and moved to the dead letter queue when the channel is still up.
func (p *AMQPPublisher) OnReport(ctx context.Context, envelope *reporting.Envelope) {
	err := p.PublishReport(ctx, envelope)
	metrics.RecordPublish(sinkName, err)
	if err == nil {
		p.logger.WithField("report_id", envelope.ID).Debug("Published report to AMQP")
		return
	}

	failure := errors.NewPublishFailed(sinkName, err).WithField("report_id", envelope.ID)
	p.logger.WithFields(logrus.Fields{
		"report_id":       envelope.ID,
		"conversation_id": envelope.ConversationID,
		"error":           failure.Error(),
	}).Error("Failed to publish report to AMQP")

	if !p.IsConnected() {
		return
	}
	if dlqErr := p.PublishToDeadLetterQueue(ctx, envelope, err); dlqErr != nil {
		p.logger.WithError(dlqErr).WithField("report_id", envelope.ID).Warn("Failed to publish report to dead letter queue")
	}
}

// requestHeaders carries the originating API request ID, when there is one
func requestHeaders(envelope *reporting.Envelope) amqp.Table {
	if envelope.RequestID == "" {
		return nil
	}
	return amqp.Table{"x-request-id": envelope.RequestID}
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				publishChan <- fmt.Errorf("recovered from panic while publishing: %v", r)
			}
		}()

		p.connMutex.RLock()
		defer p.connMutex.RUnlock()

		if !p.connected || p.channel == nil {
			publishChan <- errors.Wrap(errors.ErrUnavailable, "not connected to AMQP server")
			return
		}
		publishChan <- p.channel.Publish(p.config.ExchangeName, key, false, false, msg)
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			return errors.Wrap(err, "failed to publish to AMQP")
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, "publishing to AMQP timed out")
	}
}

// monitorConnection reconnects with exponential backoff when the server
// closes the connection
func (p *AMQPPublisher) monitorConnection(conn *amqp.Connection, stop chan struct{}) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case closeErr, ok := <-closeChan:
		if !ok {
			return
		}
		p.connMutex.Lock()
		p.connected = false
		p.channel = nil
		p.conn = nil
		p.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		p.logger.WithField("reason", closeErr.Error()).Warn("AMQP connection closed, attempting to reconnect")
	}

	for attempt := 1; attempt <= 10; attempt++ {
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}

		p.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")
		if err := p.Connect(); err != nil {
			p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")
			continue
		}
		p.logger.Info("Successfully reconnected to AMQP server")
		return
	}
}
