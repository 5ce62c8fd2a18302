package analysis

import (
	"strings"

	"conversation-analyzer/pkg/patterns"
)

const (
	keywordScore  = 0.8
	fallbackScore = 0.5

	// FallbackIntent is reported when no intent keyword matches
	FallbackIntent = "general"
)

// KeywordClassifier reports every category with a keyword contained in the
// lower-cased text, in configuration order
type KeywordClassifier struct {
	categories []patterns.Category
}

func newKeywordClassifier(categories []patterns.Category) *KeywordClassifier {
	for i := range categories {
		categories[i].Keywords = lowerAll(categories[i].Keywords)
	}
	return &KeywordClassifier{categories: categories}
}

// NewIntentClassifier creates a classifier over the intent categories of cfg
func NewIntentClassifier(cfg *patterns.Config) *KeywordClassifier {
	return newKeywordClassifier(cfg.IntentPatterns())
}

// NewIssueClassifier creates a classifier over the issue categories of cfg
func NewIssueClassifier(cfg *patterns.Config) *KeywordClassifier {
	return newKeywordClassifier(cfg.IssuePatterns())
}

// Match returns the names of the matching categories
func (c *KeywordClassifier) Match(text string) []string {
	lower := strings.ToLower(text)
	matched := make([]string, 0)
	for _, category := range c.categories {
		if containsAny(lower, category.Keywords) {
			matched = append(matched, category.Name)
		}
	}
	return matched
}

// Intents classifies text as intents, falling back to "general" when nothing matches
func (c *KeywordClassifier) Intents(text string) []IntentMatch {
	names := c.Match(text)
	if len(names) == 0 {
		return []IntentMatch{{Intent: FallbackIntent, Score: fallbackScore, Method: MethodFallback}}
	}
	intents := make([]IntentMatch, len(names))
	for i, name := range names {
		intents[i] = IntentMatch{Intent: name, Score: keywordScore, Method: MethodKeywords}
	}
	return intents
}

// Issues classifies text as issues. An empty result is valid.
func (c *KeywordClassifier) Issues(text string) []IssueMatch {
	names := c.Match(text)
	issues := make([]IssueMatch, len(names))
	for i, name := range names {
		issues[i] = IssueMatch{Issue: name, Score: keywordScore, Method: MethodKeywords}
	}
	return issues
}
