package analysis

import (
	"strings"

	"conversation-analyzer/pkg/patterns"
)

// ProhibitedDetector finds prohibited words in a turn.
//
// A phrase counts only when it is a substring of the lower-cased text and also
// equal to one of its whitespace-separated tokens. Punctuation stays attached
// to tokens, so "stupid!" does not match "stupid", and a phrase containing a
// space can never equal a single token. Known limitation: multi-word phrases
// are never reported. Matching ignores case; reported phrases keep their
// configured spelling.
type ProhibitedDetector struct {
	phrases []string
	lowered []string
}

// NewProhibitedDetector creates a detector over the prohibited phrases of cfg
func NewProhibitedDetector(cfg *patterns.Config) *ProhibitedDetector {
	phrases := cfg.ProhibitedPhrases()
	return &ProhibitedDetector{phrases: phrases, lowered: lowerAll(phrases)}
}

// Detect returns the prohibited phrases present in text, in configuration order
func (d *ProhibitedDetector) Detect(text string) ProhibitedPhrases {
	lower := strings.ToLower(text)
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(lower) {
		tokens[token] = struct{}{}
	}

	result := ProhibitedPhrases{Phrases: make([]string, 0)}
	for i, phrase := range d.lowered {
		if !strings.Contains(lower, phrase) {
			continue
		}
		if _, ok := tokens[phrase]; !ok {
			continue
		}
		result.Count++
		result.Phrases = append(result.Phrases, d.phrases[i])
	}
	return result
}
