package conversation

import (
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/analysis"
)

// LineAnalyzer classifies one line of text
type LineAnalyzer interface {
	AnalyzeLine(line string) analysis.TurnAnalysis
}

// Aggregator builds conversation reports. It keeps no per-conversation
// state, so one Aggregator may serve concurrent callers.
type Aggregator struct {
	analyzer LineAnalyzer
	logger   *logrus.Logger
}

// NewAggregator creates an aggregator over the given turn analyzer
func NewAggregator(analyzer LineAnalyzer, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{analyzer: analyzer, logger: logger}
}

// Aggregate analyzes every turn in order and returns the final report. An
// empty sequence yields an all-zero report.
func (g *Aggregator) Aggregate(turns []Turn) *Report {
	start := time.Now()

	acc := g.NewAccumulator()
	for _, turn := range turns {
		acc.Add(turn)
	}

	g.logger.WithFields(logrus.Fields{
		"component": "aggregator",
		"turns":     len(turns),
		"duration":  time.Since(start),
	}).Debug("Conversation aggregated")

	return acc.report
}

// NewAccumulator starts an empty incremental aggregation
func (g *Aggregator) NewAccumulator() *Accumulator {
	return &Accumulator{analyzer: g.analyzer, report: NewReport()}
}

// Accumulator folds turns into a report one at a time. It is owned by a
// single caller and is not safe for concurrent use.
type Accumulator struct {
	analyzer LineAnalyzer
	report   *Report
}

// Add analyzes one turn, folds it into the running counters and returns its record
func (a *Accumulator) Add(turn Turn) TurnRecord {
	result := a.analyzer.AnalyzeLine(turn.Text)
	role := NormalizeSpeaker(turn.Speaker)

	r := a.report
	r.Net.add(result.Sentiment.Label)
	if role == SpeakerCustomer {
		r.Handler.add(result.Sentiment.Label)
		r.Customer.add(result)
	} else {
		r.Client.add(result.Sentiment.Label)
		r.NonCustomer.add(result)
	}

	record := TurnRecord{
		Index:           len(r.Turns),
		Speaker:         turn.Speaker,
		Role:            role,
		Text:            turn.Text,
		Sentiment:       result.Sentiment,
		RequiredPhrases: result.RequiredPhrases.Categories,
		PIICount:        result.PersonalInfo.Count,
		PIICategories:   result.PersonalInfo.Categories,
		ProhibitedWords: result.Prohibited.Phrases,
		Intents:         result.Intents,
		Issues:          result.Issues,
	}
	r.Turns = append(r.Turns, record)
	return record.clone()
}

// Len returns the number of turns added so far
func (a *Accumulator) Len() int {
	return len(a.report.Turns)
}

// Report returns a snapshot of the counters so far. Later calls to Add do
// not change a returned snapshot.
func (a *Accumulator) Report() *Report {
	return a.report.Clone()
}
