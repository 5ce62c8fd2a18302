package conversation

import (
	"conversation-analyzer/pkg/analysis"
)

// Summary keys read by the dashboard
const (
	SummaryTotalSentiment    = "Total Sentiment"
	SummaryCustomerSentiment = "Customer Sentiment"
	SummaryAgentSentiment    = "Agent Sentiment"
	SummaryGreetings         = "Total Greeting made by Agent"
	SummaryDisclaimers       = "Total Disclaimer made by Agent"
	SummaryClosings          = "Total Closures made by Agent"
	SummaryPII               = "Total PII violations made by Agent"
	SummaryProhibited        = "Total prohibited word used by Agent"
)

// SentimentTally counts turns per sentiment label
type SentimentTally struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (t *SentimentTally) add(label string) {
	switch label {
	case analysis.LabelPositive:
		t.Positive++
	case analysis.LabelNegative:
		t.Negative++
	default:
		t.Neutral++
	}
}

// Total returns the number of counted turns
func (t SentimentTally) Total() int {
	return t.Positive + t.Neutral + t.Negative
}

// Totals are the running compliance counters of one speaker bucket
type Totals struct {
	Greetings   int `json:"greetings"`
	Disclaimers int `json:"disclaimers"`
	Closings    int `json:"closings"`
	PII         int `json:"pii"`
	Prohibited  int `json:"prohibited"`
}

func (t *Totals) add(a analysis.TurnAnalysis) {
	t.Greetings += a.RequiredPhrases.Greetings
	t.Disclaimers += a.RequiredPhrases.Disclaimers
	t.Closings += a.RequiredPhrases.ClosingStatements
	t.PII += a.PersonalInfo.Count
	t.Prohibited += a.Prohibited.Count
}

// TurnRecord is the per-turn entry of a report
type TurnRecord struct {
	Index           int                    `json:"index"`
	Speaker         string                 `json:"speaker"`
	Role            string                 `json:"role"`
	Text            string                 `json:"text"`
	Sentiment       analysis.Sentiment     `json:"sentiment"`
	RequiredPhrases []string               `json:"required_phrases"`
	PIICount        int                    `json:"pii_count"`
	PIICategories   []string               `json:"pii_categories"`
	ProhibitedWords []string               `json:"prohibited_words"`
	Intents         []analysis.IntentMatch `json:"intents"`
	Issues          []analysis.IssueMatch  `json:"issues"`
}

// Report is the aggregate of a whole conversation.
//
// Handler counts customer turns and Client counts every other turn.
type Report struct {
	Net         SentimentTally `json:"net"`
	Handler     SentimentTally `json:"handler"`
	Client      SentimentTally `json:"client"`
	Customer    Totals         `json:"customer_totals"`
	NonCustomer Totals         `json:"non_customer_totals"`
	Turns       []TurnRecord   `json:"turns"`
}

// NewReport returns an all-zero report with an empty turn list
func NewReport() *Report {
	return &Report{Turns: make([]TurnRecord, 0)}
}

// Summary is the flat key-value view of a report
type Summary map[string]interface{}

// Summary flattens the report for the dashboard. "Customer Sentiment" is the
// Client tally and "Agent Sentiment" is the Handler tally.
func (r *Report) Summary() Summary {
	return Summary{
		SummaryTotalSentiment:    r.Net,
		SummaryCustomerSentiment: r.Client,
		SummaryAgentSentiment:    r.Handler,
		SummaryGreetings:         r.NonCustomer.Greetings,
		SummaryDisclaimers:       r.NonCustomer.Disclaimers,
		SummaryClosings:          r.NonCustomer.Closings,
		SummaryPII:               r.NonCustomer.PII,
		SummaryProhibited:        r.NonCustomer.Prohibited,
	}
}

// Clone returns a deep copy of the report
func (r *Report) Clone() *Report {
	out := *r
	out.Turns = make([]TurnRecord, len(r.Turns))
	for i, t := range r.Turns {
		out.Turns[i] = t.clone()
	}
	return &out
}

func (t TurnRecord) clone() TurnRecord {
	t.RequiredPhrases = append([]string{}, t.RequiredPhrases...)
	t.PIICategories = append([]string{}, t.PIICategories...)
	t.ProhibitedWords = append([]string{}, t.ProhibitedWords...)
	t.Intents = append([]analysis.IntentMatch{}, t.Intents...)
	t.Issues = append([]analysis.IssueMatch{}, t.Issues...)
	return t
}
