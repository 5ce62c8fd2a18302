package analysis

import (
	"conversation-analyzer/pkg/pii"
)

// Sentiment labels
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Classification methods
const (
	MethodLexical         = "lexical"
	MethodLexicalKeywords = "lexical+keywords"
	MethodKeywords        = "keywords"
	MethodFallback        = "fallback"
)

// Required phrase category names as they appear in results
const (
	CategoryGreetings         = "Greetings"
	CategoryDisclaimers       = "Disclaimers"
	CategoryClosingStatements = "Closing_Statements"
)

// PolarityScorer returns a polarity in [-1, 1] for a piece of text
type PolarityScorer interface {
	Polarity(text string) float64
}

// SimilarityScorer returns a token-order-insensitive similarity in [0, 100]
type SimilarityScorer interface {
	Similarity(a, b string) float64
}

// Sentiment is the sentiment classification of one turn
type Sentiment struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// IntentMatch is one detected intent
type IntentMatch struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// IssueMatch is one detected issue
type IssueMatch struct {
	Issue  string  `json:"issue"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// RequiredPhrases holds the compliance phrase flags of one turn
type RequiredPhrases struct {
	Greetings         int      `json:"greetings"`
	Disclaimers       int      `json:"disclaimers"`
	ClosingStatements int      `json:"closing_statements"`
	Categories        []string `json:"categories"`
}

// ProhibitedPhrases holds the prohibited words found in one turn
type ProhibitedPhrases struct {
	Count   int      `json:"count"`
	Phrases []string `json:"phrases"`
}

// TurnAnalysis is the full classification of one line. Speaker, timestamps
// and the tagged sentiment are only set when the line followed the
// structured transcript grammar.
type TurnAnalysis struct {
	Text            string            `json:"text"`
	Speaker         string            `json:"speaker,omitempty"`
	Start           *float64          `json:"start,omitempty"`
	End             *float64          `json:"end,omitempty"`
	TaggedSentiment string            `json:"tagged_sentiment,omitempty"`
	Sentiment       Sentiment         `json:"sentiment"`
	Intents         []IntentMatch     `json:"intents"`
	Issues          []IssueMatch      `json:"issues"`
	RequiredPhrases RequiredPhrases   `json:"required_phrases"`
	PersonalInfo    pii.Result        `json:"personal_info"`
	Prohibited      ProhibitedPhrases `json:"prohibited_phrases"`
}
