package metrics

import (
	"context"

	"conversation-analyzer/pkg/reporting"
)

// ReportRecorder feeds every report into the analysis metrics
type ReportRecorder struct {
	source string
}

// NewReportRecorder creates a recorder labelling conversations with source
func NewReportRecorder(source string) *ReportRecorder {
	return &ReportRecorder{source: source}
}

// OnReport records the per-turn and per-conversation metrics of an envelope
func (r *ReportRecorder) OnReport(_ context.Context, envelope *reporting.Envelope) {
	if envelope == nil || envelope.Report == nil {
		return
	}
	for _, turn := range envelope.Report.Turns {
		RecordTurn(turn.Role, turn.Sentiment.Label, turn.PIICategories, turn.RequiredPhrases, len(turn.ProhibitedWords))
	}
	ObserveAnalysis(r.source, envelope.Elapsed)
}
