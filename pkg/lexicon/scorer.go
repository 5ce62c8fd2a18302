// Package lexicon scores text polarity from a weighted word lexicon.
package lexicon

import (
	"strings"
	"unicode"
)

// negationWindow is the number of following tokens a negator or intensifier reaches
const negationWindow = 3

// Scorer computes a polarity in [-1, 1] for a piece of text. It holds no
// mutable state after construction and is safe for concurrent use.
type Scorer struct {
	words        map[string]float64
	intensifiers map[string]float64
	negators     map[string]float64
}

// NewScorer creates a scorer with the built-in lexicons
func NewScorer() *Scorer {
	return &Scorer{
		words:        defaultWords(),
		intensifiers: defaultIntensifiers(),
		negators:     defaultNegators(),
	}
}

// Polarity returns the mean weight of the sentiment words in text, adjusted
// by preceding negators and intensifiers and clamped to [-1, 1]. Text with no
// sentiment words scores 0.
func (s *Scorer) Polarity(text string) float64 {
	score := 0.0
	count := 0
	modifier := 1.0
	window := 0

	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})

		switch {
		case word == "":
		case s.isNegator(word):
			modifier = -modifier * s.negatorWeight(word)
			window = negationWindow
		case s.intensifiers[word] != 0:
			modifier *= s.intensifiers[word]
			window = negationWindow
		case s.words[word] != 0:
			score += s.words[word] * modifier
			count++
			modifier, window = 1.0, 0
		case window > 0:
			window--
			if window == 0 {
				modifier = 1.0
			}
		}

		// sentence boundary
		if strings.ContainsAny(field, ".!?") {
			modifier, window = 1.0, 0
		}
	}

	if count == 0 {
		return 0
	}
	return clamp(score / float64(count))
}

func (s *Scorer) isNegator(word string) bool {
	if _, ok := s.negators[word]; ok {
		return true
	}
	return strings.HasSuffix(word, "n't")
}

func (s *Scorer) negatorWeight(word string) float64 {
	if w, ok := s.negators[word]; ok {
		return w
	}
	return 1.0
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
