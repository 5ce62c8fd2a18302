// Package patterns loads and validates the phrase, keyword and regex categories
// every conversation classifier reads from.
package patterns

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"conversation-analyzer/pkg/errors"
)

// Category keys of the pattern file
const (
	KeyGreetings         = "greetings"
	KeyDisclaimers       = "disclaimers"
	KeyClosingStatements = "closing_statements"
	KeyProhibited        = "prohibited_phrases"
	KeyPersonalInfo      = "personal_info_patterns"
	KeySensitiveInfo     = "sensitive_info_patterns"
	KeyIntents           = "intent_patterns"
	KeyIssues            = "issue_patterns"
	KeyBoosters          = "sentiment_boosters"

	rootKey = "patterns"
)

// aliases accepted for keyword categories
var aliases = map[string]string{
	"intents": KeyIntents,
	"issues":  KeyIssues,
}

var requiredKeys = []string{
	KeyGreetings,
	KeyDisclaimers,
	KeyClosingStatements,
	KeyProhibited,
	KeyPersonalInfo,
	KeySensitiveInfo,
	KeyIntents,
	KeyIssues,
	KeyBoosters,
}

//go:embed default_patterns.yml
var defaultPatterns []byte

// Category is a named keyword list, such as an intent or an issue
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// CategoryInfo describes the size of one configured category
type CategoryInfo struct {
	Category string `json:"category"`
	Entries  int    `json:"entries"`
}

// Config is a validated pattern configuration. It is never mutated after Parse
// returns and may be shared by any number of goroutines.
type Config struct {
	greetings         []string
	disclaimers       []string
	closingStatements []string
	prohibited        []string
	personalInfo      []*Pattern
	sensitiveInfo     []*Pattern
	intents           []Category
	issues            []Category
	positiveBoosters  []string
	negativeBoosters  []string
	matchTimeout      time.Duration
}

type options struct {
	matchTimeout time.Duration
}

// Option customizes how a configuration is compiled
type Option func(*options)

// WithMatchTimeout bounds the time a single regex evaluation may take.
// Zero disables the bound.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.matchTimeout = d
	}
}

// Default returns the configuration embedded in the binary
func Default(opts ...Option) (*Config, error) {
	return Parse(defaultPatterns, opts...)
}

// Load reads and validates a pattern file
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("cannot read pattern file", []string{err.Error()}).
			WithField("path", path)
	}
	cfg, err := Parse(data, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading "+path)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or the embedded configuration when path is empty
func LoadOrDefault(path string, opts ...Option) (*Config, error) {
	if path == "" {
		return Default(opts...)
	}
	return Load(path, opts...)
}

// Parse validates raw YAML against the pattern schema. Every violation is
// reported at once and no partial configuration is ever returned.
func Parse(data []byte, opts ...Option) (*Config, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewConfiguration("pattern file is not valid YAML", []string{err.Error()})
	}

	p := &parser{cfg: &Config{matchTimeout: o.matchTimeout}, seen: make(map[string]string)}
	p.document(&doc)

	if len(p.violations) > 0 {
		msg := fmt.Sprintf("pattern configuration failed validation: %s", strings.Join(p.violations, "; "))
		return nil, errors.NewConfiguration(msg, p.violations)
	}
	return p.cfg, nil
}

// Greetings returns the greeting exemplars
func (c *Config) Greetings() []string { return copyStrings(c.greetings) }

// Disclaimers returns the disclaimer exemplars
func (c *Config) Disclaimers() []string { return copyStrings(c.disclaimers) }

// ClosingStatements returns the closing statement exemplars
func (c *Config) ClosingStatements() []string { return copyStrings(c.closingStatements) }

// ProhibitedPhrases returns the prohibited words and phrases
func (c *Config) ProhibitedPhrases() []string { return copyStrings(c.prohibited) }

// PersonalInfoPatterns returns the personal information patterns in file order
func (c *Config) PersonalInfoPatterns() []*Pattern { return append([]*Pattern(nil), c.personalInfo...) }

// SensitiveInfoPatterns returns the sensitive information patterns in file order
func (c *Config) SensitiveInfoPatterns() []*Pattern { return append([]*Pattern(nil), c.sensitiveInfo...) }

// IntentPatterns returns the intent categories in file order
func (c *Config) IntentPatterns() []Category { return copyCategories(c.intents) }

// IssuePatterns returns the issue categories in file order
func (c *Config) IssuePatterns() []Category { return copyCategories(c.issues) }

// PositiveBoosters returns the positive sentiment keywords
func (c *Config) PositiveBoosters() []string { return copyStrings(c.positiveBoosters) }

// NegativeBoosters returns the negative sentiment keywords
func (c *Config) NegativeBoosters() []string { return copyStrings(c.negativeBoosters) }

// MatchTimeout returns the per-evaluation regex bound, zero when unbounded
func (c *Config) MatchTimeout() time.Duration { return c.matchTimeout }

// Describe lists every category with its number of entries
func (c *Config) Describe() []CategoryInfo {
	return []CategoryInfo{
		{KeyGreetings, len(c.greetings)},
		{KeyDisclaimers, len(c.disclaimers)},
		{KeyClosingStatements, len(c.closingStatements)},
		{KeyProhibited, len(c.prohibited)},
		{KeyPersonalInfo, len(c.personalInfo)},
		{KeySensitiveInfo, len(c.sensitiveInfo)},
		{KeyIntents, len(c.intents)},
		{KeyIssues, len(c.issues)},
		{KeyBoosters, len(c.positiveBoosters) + len(c.negativeBoosters)},
	}
}

func copyStrings(in []string) []string {
	return append([]string(nil), in...)
}

func copyCategories(in []Category) []Category {
	out := make([]Category, len(in))
	for i, c := range in {
		out[i] = Category{Name: c.Name, Keywords: copyStrings(c.Keywords)}
	}
	return out
}

// parser walks the YAML node tree collecting violations
type parser struct {
	cfg        *Config
	seen       map[string]string
	violations []string
}

func (p *parser) fail(format string, args ...interface{}) {
	p.violations = append(p.violations, fmt.Sprintf(format, args...))
}

func (p *parser) document(doc *yaml.Node) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		p.fail("missing root key %q", rootKey)
		return
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		p.fail("root: expected a mapping with key %q", rootKey)
		return
	}

	var body *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if key != rootKey {
			p.fail("root: unknown key %q", key)
			continue
		}
		if body != nil {
			p.fail("root: duplicate key %q", rootKey)
			continue
		}
		body = root.Content[i+1]
	}
	if body == nil {
		p.fail("missing root key %q", rootKey)
		return
	}
	if body.Kind != yaml.MappingNode {
		p.fail("%s: expected a mapping of categories", rootKey)
		return
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		p.category(body.Content[i].Value, body.Content[i+1])
	}

	for _, key := range requiredKeys {
		if _, ok := p.seen[key]; !ok {
			p.fail("%s.%s: required category missing", rootKey, key)
		}
	}
}

func (p *parser) category(key string, value *yaml.Node) {
	canonical := key
	if alias, ok := aliases[key]; ok {
		canonical = alias
	}

	if previous, dup := p.seen[canonical]; dup {
		if previous != key {
			p.fail("%s: %q and %q name the same category", rootKey, previous, key)
		} else {
			p.fail("%s.%s: duplicate category", rootKey, key)
		}
		return
	}

	path := rootKey + "." + key
	switch canonical {
	case KeyGreetings:
		p.cfg.greetings = p.stringList(path, value)
	case KeyDisclaimers:
		p.cfg.disclaimers = p.stringList(path, value)
	case KeyClosingStatements:
		p.cfg.closingStatements = p.stringList(path, value)
	case KeyProhibited:
		p.cfg.prohibited = p.stringList(path, value)
	case KeyPersonalInfo:
		p.cfg.personalInfo = p.regexMap(path, value)
	case KeySensitiveInfo:
		p.cfg.sensitiveInfo = p.regexMap(path, value)
	case KeyIntents:
		p.cfg.intents = p.keywordMap(path, value)
	case KeyIssues:
		p.cfg.issues = p.keywordMap(path, value)
	case KeyBoosters:
		p.boosters(path, value)
	default:
		p.fail("%s: unknown category %q", rootKey, key)
		return
	}
	p.seen[canonical] = key
}

func (p *parser) scalar(path string, n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		p.fail("%s: expected a string", path)
		return "", false
	}
	if strings.TrimSpace(n.Value) == "" {
		p.fail("%s: empty string", path)
		return "", false
	}
	return n.Value, true
}

func (p *parser) stringList(path string, n *yaml.Node) []string {
	if n.Kind != yaml.SequenceNode {
		p.fail("%s: expected a list of strings", path)
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for i, item := range n.Content {
		if s, ok := p.scalar(fmt.Sprintf("%s[%d]", path, i), item); ok {
			out = append(out, s)
		}
	}
	return out
}

// entries returns the key/value pairs of a mapping, rejecting duplicate names
func (p *parser) entries(path string, n *yaml.Node, what string) [][2]*yaml.Node {
	if n.Kind != yaml.MappingNode {
		p.fail("%s: expected a mapping of %s", path, what)
		return nil
	}
	names := make(map[string]bool)
	var out [][2]*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if names[k.Value] {
			p.fail("%s.%s: duplicate entry", path, k.Value)
			continue
		}
		names[k.Value] = true
		out = append(out, [2]*yaml.Node{k, v})
	}
	return out
}

func (p *parser) regexMap(path string, n *yaml.Node) []*Pattern {
	var out []*Pattern
	for _, kv := range p.entries(path, n, "names to regular expressions") {
		name := kv[0].Value
		expr, ok := p.scalar(path+"."+name, kv[1])
		if !ok {
			continue
		}
		pattern, err := compile(name, expr, p.cfg.matchTimeout)
		if err != nil {
			p.fail("%s.%s: invalid regular expression: %v", path, name, err)
			continue
		}
		out = append(out, pattern)
	}
	return out
}

func (p *parser) keywordMap(path string, n *yaml.Node) []Category {
	var out []Category
	for _, kv := range p.entries(path, n, "categories to keyword lists") {
		name := kv[0].Value
		out = append(out, Category{Name: name, Keywords: p.stringList(path+"."+name, kv[1])})
	}
	return out
}

func (p *parser) boosters(path string, n *yaml.Node) {
	var positive, negative bool
	for _, kv := range p.entries(path, n, "booster lists") {
		switch name := kv[0].Value; name {
		case "positive":
			positive = true
			p.cfg.positiveBoosters = p.stringList(path+".positive", kv[1])
		case "negative":
			negative = true
			p.cfg.negativeBoosters = p.stringList(path+".negative", kv[1])
		default:
			p.fail("%s: unknown key %q", path, name)
		}
	}
	if n.Kind != yaml.MappingNode {
		return
	}
	if !positive {
		p.fail("%s.positive: required list missing", path)
	}
	if !negative {
		p.fail("%s.negative: required list missing", path)
	}
}

// Pattern is a named, compiled regular expression
type Pattern struct {
	Name string `json:"name"`
	Expr string `json:"expr"`

	re *regexp2.Regexp
}

// Match is one regex hit. Start and End are rune offsets into the searched text.
type Match struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Overlaps reports whether two matches share at least one rune
func (m Match) Overlaps(o Match) bool {
	return m.Start < o.End && o.Start < m.End
}

func compile(name, expr string, timeout time.Duration) (*Pattern, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return &Pattern{Name: name, Expr: expr, re: re}, nil
}

// MatchString reports whether the pattern matches anywhere in text
func (p *Pattern) MatchString(text string) (bool, error) {
	return p.re.MatchString(text)
}

// FindAll returns every non-overlapping match in text, left to right
func (p *Pattern) FindAll(text string) ([]Match, error) {
	var out []Match
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, Match{Start: m.Index, End: m.Index + m.Length, Text: m.String()})
		m, err = p.re.FindNextMatch(m)
	}
	return out, err
}
