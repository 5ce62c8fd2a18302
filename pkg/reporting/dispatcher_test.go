package reporting

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/patterns"
)

type recordingSubscriber struct {
	name  string
	mu    sync.Mutex
	seen  []*Envelope
	order *[]string
}

func (r *recordingSubscriber) OnReport(_ context.Context, envelope *Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, envelope)
	if r.order != nil {
		*r.order = append(*r.order, r.name)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *analysis.Analyzer) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg, err := patterns.Default()
	require.NoError(t, err)
	analyzer, err := analysis.New(cfg, analysis.WithLogger(logger))
	require.NoError(t, err)

	return NewDispatcher(logger, conversation.NewAggregator(analyzer, logger)), analyzer
}

var cardTurns = []conversation.Turn{
	{Speaker: "agent", Text: "Hello, thank you for calling! How can I help?"},
	{Speaker: "customer", Text: "My card 4111 1111 1111 1111 was stolen, I am furious!"},
}

func TestDispatcherNotifiesSubscribersInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	first := &recordingSubscriber{name: "first", order: &order}
	second := &recordingSubscriber{name: "second", order: &order}
	d.AddSubscriber(first)
	d.AddSubscriber(second)

	envelope := d.Analyze(context.Background(), "conv-1", cardTurns)

	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, first.seen, 1)
	require.Len(t, second.seen, 1)
	assert.Same(t, envelope, first.seen[0])
	assert.Same(t, envelope, second.seen[0])

	assert.Equal(t, "conv-1", envelope.ConversationID)
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, 2, envelope.TurnCount)
	assert.False(t, envelope.GeneratedAt.IsZero())
	assert.Equal(t, envelope.Report.Summary(), envelope.Summary)
}

func TestDispatcherRemoveSubscriber(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	a := &recordingSubscriber{name: "a", order: &order}
	b := &recordingSubscriber{name: "b", order: &order}
	c := &recordingSubscriber{name: "c", order: &order}
	d.AddSubscriber(a)
	d.AddSubscriber(b)
	d.AddSubscriber(c)
	d.RemoveSubscriber(b)
	assert.Equal(t, 2, d.SubscriberCount())

	d.Analyze(context.Background(), "", nil)
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Empty(t, b.seen)
}

func TestDispatcherGeneratesConversationID(t *testing.T) {
	d, _ := newTestDispatcher(t)

	first := d.Analyze(context.Background(), "", cardTurns)
	second := d.Analyze(context.Background(), "", cardTurns)

	assert.NotEmpty(t, first.ConversationID)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Report, second.Report)
}

func TestDispatcherRecordsRequestID(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ctx := correlation.WithCorrelationID(context.Background(), correlation.ID("req-1"))
	assert.Equal(t, "req-1", d.Analyze(ctx, "c-1", cardTurns).RequestID)
	assert.Empty(t, d.Analyze(context.Background(), "c-2", cardTurns).RequestID)
}

func TestDispatcherRedactsTurnText(t *testing.T) {
	d, analyzer := newTestDispatcher(t)
	d.SetRedactor(analyzer)

	envelope := d.Analyze(context.Background(), "conv-2", cardTurns)
	assert.Equal(t, "My card **** **** **** 1111 was stolen, I am furious!", envelope.Report.Turns[1].Text)
	assert.Equal(t, cardTurns[0].Text, envelope.Report.Turns[0].Text)

	// classification runs on the original text
	assert.Contains(t, envelope.Report.Turns[1].PIICategories, "credit_card")
}

func TestDispatcherStopsOnCancelledContext(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sub := &recordingSubscriber{name: "sub"}
	d.AddSubscriber(sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	envelope := d.Analyze(ctx, "conv-3", cardTurns)
	require.NotNil(t, envelope)
	assert.Empty(t, sub.seen)
}

func TestLogSubscriber(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d, _ := newTestDispatcher(t)
	d.AddSubscriber(NewLogSubscriber(logger))

	d.Analyze(context.Background(), "conv-4", cardTurns)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Conversation report summary", entry.Message)
	assert.Equal(t, "conv-4", entry.Data["conversation_id"])
	assert.Equal(t, 1, entry.Data["agent_greetings"])
}

// taggedSubscriber is a value type with a slice field, so its values cannot
// be compared with ==
type taggedSubscriber struct {
	tags  []string
	calls *int
}

func (s taggedSubscriber) OnReport(context.Context, *Envelope) {
	*s.calls++
}

func TestDispatcherRemoveNonComparableSubscriber(t *testing.T) {
	d, _ := newTestDispatcher(t)

	calls := 0
	tagged := taggedSubscriber{tags: []string{"audit"}, calls: &calls}
	var order []string
	plain := &recordingSubscriber{name: "plain", order: &order}
	d.AddSubscriber(tagged)
	d.AddSubscriber(plain)

	assert.NotPanics(t, func() { d.RemoveSubscriber(tagged) })
	assert.NotPanics(t, func() { d.RemoveSubscriber(nil) })
	assert.Equal(t, 2, d.SubscriberCount())

	d.RemoveSubscriber(plain)
	assert.Equal(t, 1, d.SubscriberCount())

	d.Analyze(context.Background(), "conv-5", nil)
	assert.Equal(t, 1, calls)
	assert.Empty(t, order)
}
