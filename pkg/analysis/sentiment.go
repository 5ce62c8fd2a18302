package analysis

import (
	"math"
	"strings"

	"conversation-analyzer/pkg/patterns"
)

const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
	boosterBoost      = 0.3
	neutralScore      = 0.5
)

// SentimentClassifier combines a lexical polarity with booster keywords
type SentimentClassifier struct {
	positive []string
	negative []string
	scorer   PolarityScorer
}

// NewSentimentClassifier creates a classifier over the boosters of cfg
func NewSentimentClassifier(cfg *patterns.Config, scorer PolarityScorer) *SentimentClassifier {
	return &SentimentClassifier{
		positive: lowerAll(cfg.PositiveBoosters()),
		negative: lowerAll(cfg.NegativeBoosters()),
		scorer:   scorer,
	}
}

// Classify labels text. A positive booster wins over a negative one, and
// either wins over the polarity thresholds.
func (c *SentimentClassifier) Classify(text string) Sentiment {
	polarity := c.scorer.Polarity(text)
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, c.positive):
		return Sentiment{Label: LabelPositive, Score: unit(polarity + boosterBoost), Method: MethodLexicalKeywords}
	case containsAny(lower, c.negative):
		return Sentiment{Label: LabelNegative, Score: unit(math.Abs(polarity) + boosterBoost), Method: MethodLexicalKeywords}
	case polarity > positiveThreshold:
		return Sentiment{Label: LabelPositive, Score: unit(polarity), Method: MethodLexical}
	case polarity < negativeThreshold:
		return Sentiment{Label: LabelNegative, Score: unit(math.Abs(polarity)), Method: MethodLexical}
	default:
		return Sentiment{Label: LabelNeutral, Score: neutralScore, Method: MethodLexical}
	}
}

// unit clamps v to [0, 1]
func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
