// Package analysis classifies single conversation turns: sentiment, intents,
// issues, required phrases, personal information and prohibited language.
package analysis

import (
	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/fuzzy"
	"conversation-analyzer/pkg/lexicon"
	"conversation-analyzer/pkg/patterns"
	"conversation-analyzer/pkg/pii"
	"conversation-analyzer/pkg/transcript"
)

// Analyzer runs every classifier over one line of text. Its only shared state
// is the read-only pattern configuration, so one Analyzer may serve any number
// of goroutines.
type Analyzer struct {
	logger     *logrus.Logger
	patterns   *patterns.Config
	sentiment  *SentimentClassifier
	intents    *KeywordClassifier
	issues     *KeywordClassifier
	phrases    *PhraseDetector
	pii        *pii.Detector
	prohibited *ProhibitedDetector
}

type options struct {
	logger     *logrus.Logger
	polarity   PolarityScorer
	similarity SimilarityScorer
	pii        *pii.Config
}

// Option customizes an Analyzer
type Option func(*options)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPolarityScorer replaces the lexicon polarity primitive
func WithPolarityScorer(scorer PolarityScorer) Option {
	return func(o *options) { o.polarity = scorer }
}

// WithSimilarityScorer replaces the fuzzy similarity primitive
func WithSimilarityScorer(scorer SimilarityScorer) Option {
	return func(o *options) { o.similarity = scorer }
}

// WithPIIConfig sets the PIN pattern name and redaction format
func WithPIIConfig(config *pii.Config) Option {
	return func(o *options) { o.pii = config }
}

// New builds an analyzer. It refuses to run without a validated configuration.
func New(cfg *patterns.Config, opts ...Option) (*Analyzer, error) {
	if cfg == nil {
		return nil, errors.NewConfiguration("analyzer requires a validated pattern configuration", nil)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.polarity == nil {
		o.polarity = lexicon.NewScorer()
	}
	if o.similarity == nil {
		o.similarity = fuzzy.Scorer{}
	}

	detector, err := pii.NewDetector(o.logger, cfg, o.pii)
	if err != nil {
		return nil, errors.Wrap(err, "creating PII detector")
	}

	return &Analyzer{
		logger:     o.logger,
		patterns:   cfg,
		sentiment:  NewSentimentClassifier(cfg, o.polarity),
		intents:    NewIntentClassifier(cfg),
		issues:     NewIssueClassifier(cfg),
		phrases:    NewPhraseDetector(cfg, o.similarity),
		pii:        detector,
		prohibited: NewProhibitedDetector(cfg),
	}, nil
}

// Patterns returns the configuration the analyzer was built with
func (a *Analyzer) Patterns() *patterns.Config {
	return a.patterns
}

// AnalyzeLine classifies one line. A line that follows the structured
// transcript grammar contributes its speaker, timestamps and sentiment tag and
// only its text is classified; any other line is classified whole.
func (a *Analyzer) AnalyzeLine(line string) TurnAnalysis {
	result := TurnAnalysis{Text: line}
	if parsed, ok := transcript.ParseLine(line); ok {
		start, end := parsed.Start, parsed.End
		result.Text = parsed.Text
		result.Speaker = parsed.Speaker
		result.Start = &start
		result.End = &end
		result.TaggedSentiment = parsed.Sentiment
	}

	text := result.Text
	result.Sentiment = a.sentiment.Classify(text)
	result.Intents = a.intents.Intents(text)
	result.Issues = a.issues.Issues(text)
	result.RequiredPhrases = a.phrases.Detect(text)
	result.PersonalInfo = a.pii.Detect(text)
	result.Prohibited = a.prohibited.Detect(text)

	if a.logger.IsLevelEnabled(logrus.DebugLevel) {
		a.logger.WithFields(logrus.Fields{
			"component":  "analyzer",
			"speaker":    result.Speaker,
			"sentiment":  result.Sentiment.Label,
			"pii_count":  result.PersonalInfo.Count,
			"prohibited": result.Prohibited.Count,
		}).Debug("Turn analyzed")
	}

	return result
}

// Redact masks the personal and sensitive information in text
func (a *Analyzer) Redact(text string) string {
	return a.pii.Redact(text)
}
