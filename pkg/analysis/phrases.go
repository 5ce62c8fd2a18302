package analysis

import (
	"conversation-analyzer/pkg/patterns"
)

// PhraseThreshold is the similarity a turn must exceed to count as an exemplar
const PhraseThreshold = 55.0

// PhraseDetector flags greetings, disclaimers and closing statements by fuzzy
// similarity against configured exemplars
type PhraseDetector struct {
	greetings   []string
	disclaimers []string
	closings    []string
	scorer      SimilarityScorer
}

// NewPhraseDetector creates a detector over the exemplars of cfg
func NewPhraseDetector(cfg *patterns.Config, scorer SimilarityScorer) *PhraseDetector {
	return &PhraseDetector{
		greetings:   cfg.Greetings(),
		disclaimers: cfg.Disclaimers(),
		closings:    cfg.ClosingStatements(),
		scorer:      scorer,
	}
}

// Detect checks the three categories in order, stopping at the first
// exemplar of each that scores above the threshold
func (d *PhraseDetector) Detect(text string) RequiredPhrases {
	result := RequiredPhrases{Categories: make([]string, 0, 3)}

	if d.matchesAny(text, d.greetings) {
		result.Greetings = 1
		result.Categories = append(result.Categories, CategoryGreetings)
	}
	if d.matchesAny(text, d.disclaimers) {
		result.Disclaimers = 1
		result.Categories = append(result.Categories, CategoryDisclaimers)
	}
	if d.matchesAny(text, d.closings) {
		result.ClosingStatements = 1
		result.Categories = append(result.Categories, CategoryClosingStatements)
	}
	return result
}

func (d *PhraseDetector) matchesAny(text string, exemplars []string) bool {
	for _, exemplar := range exemplars {
		if d.scorer.Similarity(text, exemplar) > PhraseThreshold {
			return true
		}
	}
	return false
}
