package analysis

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/patterns"
)

const testPatterns = `
patterns:
  greetings: ["Thank you for calling", "Hello, thank you for calling"]
  disclaimers: ["This call may be recorded for quality and training purposes"]
  closing_statements: ["Is there anything else I can help you with"]
  prohibited_phrases: ["stupid", "Idiot", "shut up"]
  personal_info_patterns:
    phone_number: '\d{4}-\d{5}'
    date_dd_mm_yyyy: '\d{2}-\d{2}-\d{4}'
    multi_4_digit_patt: '\b\d{4}\b.*\b\d{4}\b'
  sensitive_info_patterns:
    credit_card: '\b(?:\d{4}[- ]?){3}\d{4}\b'
    atm_pin: '\b\d{4}\b'
  intent_patterns:
    payment_issue: ["payment", "bill"]
    card_help: ["card", "ATM"]
    account_help: ["account"]
  issue_patterns:
    fraud_concern: ["fraud", "stolen"]
    login_trouble: ["password", "log in"]
  sentiment_boosters:
    positive: ["thank", "great"]
    negative: ["angry", "furious"]
`

type fixedPolarity float64

func (f fixedPolarity) Polarity(string) float64 { return float64(f) }

func testConfig(t *testing.T) *patterns.Config {
	t.Helper()
	cfg, err := patterns.Parse([]byte(testPatterns))
	require.NoError(t, err)
	return cfg
}

func newTestAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	a, err := New(testConfig(t), append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestNewRequiresConfiguration(t *testing.T) {
	a, err := New(nil)
	assert.Nil(t, a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestSentimentDecisionOrder(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name     string
		text     string
		polarity float64
		want     Sentiment
	}{
		{"positive booster", "Thank you", 0.9, Sentiment{LabelPositive, 1.0, MethodLexicalKeywords}},
		{"positive booster on negative polarity", "thank you", -0.6, Sentiment{LabelPositive, 0, MethodLexicalKeywords}},
		{"positive booster wins over negative", "thanks but I am angry", -0.5, Sentiment{LabelPositive, 0, MethodLexicalKeywords}},
		{"negative booster", "I am ANGRY", -0.5, Sentiment{LabelNegative, 0.8, MethodLexicalKeywords}},
		{"negative booster on positive polarity", "furious", 0.2, Sentiment{LabelNegative, 0.5, MethodLexicalKeywords}},
		{"negative booster clamps", "furious", -0.9, Sentiment{LabelNegative, 1.0, MethodLexicalKeywords}},
		{"lexical positive", "fine", 0.2, Sentiment{LabelPositive, 0.2, MethodLexical}},
		{"lexical negative", "meh", -0.4, Sentiment{LabelNegative, 0.4, MethodLexical}},
		{"upper threshold is neutral", "ok", 0.1, Sentiment{LabelNeutral, 0.5, MethodLexical}},
		{"lower threshold is neutral", "ok", -0.1, Sentiment{LabelNeutral, 0.5, MethodLexical}},
		{"zero is neutral", "", 0, Sentiment{LabelNeutral, 0.5, MethodLexical}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSentimentClassifier(cfg, fixedPolarity(tt.polarity)).Classify(tt.text)
			assert.Equal(t, tt.want.Label, got.Label)
			assert.Equal(t, tt.want.Method, got.Method)
			assert.InDelta(t, tt.want.Score, got.Score, 1e-9)
		})
	}
}

func TestSentimentIsAlwaysWellFormed(t *testing.T) {
	cfg := testConfig(t)
	labels := map[string]bool{LabelPositive: true, LabelNeutral: true, LabelNegative: true}

	texts := []string{"", "thank you", "I am furious", "ok", "great and angry", "nothing here"}
	for _, p := range []float64{-1, -0.55, -0.1, 0, 0.05, 0.3, 0.99, 1} {
		classifier := NewSentimentClassifier(cfg, fixedPolarity(p))
		for _, text := range texts {
			s := classifier.Classify(text)
			assert.True(t, labels[s.Label], "label %q", s.Label)
			assert.GreaterOrEqual(t, s.Score, 0.0)
			assert.LessOrEqual(t, s.Score, 1.0)
		}
	}
}

func TestIntents(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeLine("I need to pay my bill with my card at the atm")
	assert.Equal(t, []IntentMatch{
		{Intent: "payment_issue", Score: 0.8, Method: MethodKeywords},
		{Intent: "card_help", Score: 0.8, Method: MethodKeywords},
	}, got.Intents)

	// configured as "ATM"
	atm := a.AnalyzeLine("the Atm ate it")
	assert.Equal(t, []IntentMatch{{Intent: "card_help", Score: 0.8, Method: MethodKeywords}}, atm.Intents)

	fallback := a.AnalyzeLine("Hello there")
	assert.Equal(t, []IntentMatch{{Intent: "general", Score: 0.5, Method: "fallback"}}, fallback.Intents)
}

func TestIssues(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeLine("Someone used my stolen card and changed my PASSWORD")
	assert.Equal(t, []IssueMatch{
		{Issue: "fraud_concern", Score: 0.8, Method: MethodKeywords},
		{Issue: "login_trouble", Score: 0.8, Method: MethodKeywords},
	}, got.Issues)

	none := a.AnalyzeLine("Hello there")
	assert.NotNil(t, none.Issues)
	assert.Empty(t, none.Issues)
}

func TestRequiredPhrases(t *testing.T) {
	a := newTestAnalyzer(t)

	greeting := a.AnalyzeLine("Thanks so much for calling today")
	assert.Equal(t, 1, greeting.RequiredPhrases.Greetings)
	assert.Equal(t, []string{CategoryGreetings}, greeting.RequiredPhrases.Categories)

	question := a.AnalyzeLine("What is your account number")
	assert.Equal(t, 0, question.RequiredPhrases.Greetings)
	assert.Empty(t, question.RequiredPhrases.Categories)

	disclaimer := a.AnalyzeLine("This call may be recorded for training purposes")
	assert.Equal(t, 1, disclaimer.RequiredPhrases.Disclaimers)

	closing := a.AnalyzeLine("Is there anything else I can help you with today?")
	assert.Equal(t, 1, closing.RequiredPhrases.ClosingStatements)
	assert.Equal(t, []string{CategoryClosingStatements}, closing.RequiredPhrases.Categories)
}

type countingSimilarity struct {
	mu    sync.Mutex
	calls []string
	score float64
}

func (c *countingSimilarity) Similarity(_, exemplar string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, exemplar)
	return c.score
}

func TestRequiredPhrasesStopAtFirstMatch(t *testing.T) {
	cfg, err := patterns.Parse([]byte(`
patterns:
  greetings: ["hello", "hi", "hey"]
  disclaimers: ["recorded"]
  closing_statements: ["bye"]
  prohibited_phrases: []
  personal_info_patterns: {}
  sensitive_info_patterns: {}
  intent_patterns: {}
  issue_patterns: {}
  sentiment_boosters:
    positive: []
    negative: []
`))
	require.NoError(t, err)

	scorer := &countingSimilarity{score: 90}
	got := NewPhraseDetector(cfg, scorer).Detect("anything")

	assert.Equal(t, []string{"hello", "recorded", "bye"}, scorer.calls)
	assert.Equal(t, RequiredPhrases{
		Greetings:         1,
		Disclaimers:       1,
		ClosingStatements: 1,
		Categories:        []string{CategoryGreetings, CategoryDisclaimers, CategoryClosingStatements},
	}, got)

	// exactly the threshold does not count
	scorer = &countingSimilarity{score: PhraseThreshold}
	assert.Equal(t, 0, NewPhraseDetector(cfg, scorer).Detect("anything").Greetings)
}

func TestProhibitedPhrases(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		text    string
		phrases []string
	}{
		{"that is a stupid rule", []string{"stupid"}},
		{"You IDIOT, that is STUPID", []string{"stupid"}},
		{"You IDIOT that is STUPID", []string{"stupid", "Idiot"}},
		{"what stupidity", []string{}},
		{"that was stupid!", []string{}},
		{"please shut up", []string{}},
		{"Stupid idiot", []string{"stupid", "Idiot"}},
		{"you IDIOT", []string{"Idiot"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := a.AnalyzeLine(tt.text).Prohibited
			assert.Equal(t, tt.phrases, got.Phrases)
			assert.Equal(t, len(tt.phrases), got.Count)
		})
	}
}

func TestAnalyzeStructuredLine(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeLine("3.20 6.75 SPEAKER_01 My card was stolen and I am furious SENTIMENT:NEGATIVE")
	assert.Equal(t, "My card was stolen and I am furious", got.Text)
	assert.Equal(t, "SPEAKER_01", got.Speaker)
	require.NotNil(t, got.Start)
	require.NotNil(t, got.End)
	assert.Equal(t, 3.2, *got.Start)
	assert.Equal(t, 6.75, *got.End)
	assert.Equal(t, "negative", got.TaggedSentiment)
	assert.Equal(t, LabelNegative, got.Sentiment.Label)
	assert.Equal(t, MethodLexicalKeywords, got.Sentiment.Method)

	plain := a.AnalyzeLine("just some words")
	assert.Equal(t, "just some words", plain.Text)
	assert.Empty(t, plain.Speaker)
	assert.Nil(t, plain.Start)
}

func TestAnalyzeLineEndToEndTurns(t *testing.T) {
	a := newTestAnalyzer(t)

	agent := a.AnalyzeLine("Hello, thank you for calling! How can I help?")
	assert.Equal(t, LabelPositive, agent.Sentiment.Label)
	assert.Equal(t, 1, agent.RequiredPhrases.Greetings)

	customer := a.AnalyzeLine("My card 4111 1111 1111 1111 was stolen, I am furious!")
	assert.Equal(t, LabelNegative, customer.Sentiment.Label)
	assert.Equal(t, MethodLexicalKeywords, customer.Sentiment.Method)
	assert.GreaterOrEqual(t, customer.PersonalInfo.Count, 1)
	assert.Contains(t, customer.PersonalInfo.Categories, "credit_card")
	assert.Contains(t, customer.PersonalInfo.Categories, "atm_pin")

	pin := a.AnalyzeLine("My PIN is 1234 and my branch code is 5678")
	assert.Equal(t, []string{"atm_pin", "multi_4_digit_patt"}, pin.PersonalInfo.Categories)
}

func TestAnalyzeLineIsIdempotent(t *testing.T) {
	a := newTestAnalyzer(t)

	lines := []string{
		"Hello, thank you for calling! How can I help?",
		"0.00 1.50 SPEAKER_00 my pin is 4821 SENTIMENT:neutral",
		"Call me at 0300-12345 about my bill",
		"",
	}
	for _, line := range lines {
		assert.Equal(t, a.AnalyzeLine(line), a.AnalyzeLine(line))
	}
}

func TestAnalyzeLineConcurrent(t *testing.T) {
	a := newTestAnalyzer(t)
	line := "My card 4111 1111 1111 1111 was stolen, I am furious!"
	want := a.AnalyzeLine(line)

	var wg sync.WaitGroup
	results := make([]TurnAnalysis, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.AnalyzeLine(line)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestRedact(t *testing.T) {
	a := newTestAnalyzer(t)
	assert.Equal(t, "card **** **** **** 1111", a.Redact("card 4111 1111 1111 1111"))
}
