// Package correlation tags each API request with an ID that follows the
// request through logs, report envelopes and published messages.
package correlation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// HTTPHeader carries the correlation ID on requests and responses
	HTTPHeader = "X-Correlation-ID"

	// HTTPRequestIDHeader is accepted as an alternative inbound header
	HTTPRequestIDHeader = "X-Request-ID"
)

// maxIDLength bounds caller-supplied IDs
const maxIDLength = 128

type contextKey int

const (
	correlationIDKey contextKey = iota
	clientIPKey
)

// ID is a request correlation ID
type ID string

// String returns the ID as a string
func (id ID) String() string {
	return string(id)
}

// IsEmpty reports whether the ID is unset
func (id ID) IsEmpty() bool {
	return id == ""
}

// New generates a random correlation ID
func New() ID {
	return ID(uuid.New().String())
}

// WithCorrelationID returns a context carrying id
func WithCorrelationID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// FromContext returns the correlation ID stored in ctx, or an empty ID
func FromContext(ctx context.Context) ID {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(ID); ok {
		return id
	}
	return ""
}

// WithClientIP returns a context carrying the caller's address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the caller's address stored in ctx
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// Fields returns the correlation fields in ctx for structured logging
func Fields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if id := FromContext(ctx); !id.IsEmpty() {
		fields["correlation_id"] = id.String()
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		fields["client_ip"] = ip
	}
	return fields
}

// Logger returns an entry carrying the correlation fields in ctx
func Logger(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(Fields(ctx))
}
