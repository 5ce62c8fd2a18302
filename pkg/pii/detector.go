package pii

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/patterns"
)

// DefaultPINPattern is the sensitive pattern name that gets PIN disambiguation
const DefaultPINPattern = "atm_pin"

// visibleDigits is the number of trailing digits a preserved-format mask shows
const visibleDigits = 4

// Detector finds personal and sensitive information in turn text using the
// regexes of a pattern configuration. It is safe for concurrent use.
type Detector struct {
	logger         *logrus.Logger
	sensitive      []*patterns.Pattern
	personal       []*patterns.Pattern
	pinPattern     string
	redactionChar  string
	preserveFormat bool
}

// Match is one accepted hit. Offsets are rune positions in the searched text.
type Match struct {
	Category string `json:"category"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"-"`
}

// Result is the detection outcome for one piece of text
type Result struct {
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
	Matches    []Match  `json:"-"`
}

// Config holds redaction settings
type Config struct {
	PINPattern     string `json:"pin_pattern"`
	RedactionChar  string `json:"redaction_char"`
	PreserveFormat bool   `json:"preserve_format"`
}

// NewDetector creates a detector over the personal and sensitive patterns of cfg
func NewDetector(logger *logrus.Logger, cfg *patterns.Config, config *Config) (*Detector, error) {
	if cfg == nil {
		return nil, errors.NewConfiguration("PII detector requires a pattern configuration", nil)
	}
	settings := Config{
		PINPattern:     DefaultPINPattern,
		RedactionChar:  "*",
		PreserveFormat: true,
	}
	if config != nil {
		settings = *config
	}
	if settings.PINPattern == "" {
		settings.PINPattern = DefaultPINPattern
	}
	if settings.RedactionChar == "" {
		settings.RedactionChar = "*"
	}

	return &Detector{
		logger:         logger,
		sensitive:      cfg.SensitiveInfoPatterns(),
		personal:       cfg.PersonalInfoPatterns(),
		pinPattern:     settings.PINPattern,
		redactionChar:  settings.RedactionChar,
		preserveFormat: settings.PreserveFormat,
	}, nil
}

// Detect checks sensitive patterns then personal patterns, each in
// configuration order. Every pattern with at least one accepted match adds one
// to Count and appends its name to Categories.
func (d *Detector) Detect(text string) Result {
	result := Result{Categories: make([]string, 0)}

	personalHits := make([][]patterns.Match, len(d.personal))
	for i, p := range d.personal {
		personalHits[i] = d.find(p, text)
	}

	for _, p := range d.sensitive {
		hits := d.find(p, text)
		if p.Name == d.pinPattern {
			hits = d.acceptedPINs([]rune(text), hits, personalHits)
		}
		d.record(&result, p.Name, hits)
	}

	for i, p := range d.personal {
		d.record(&result, p.Name, personalHits[i])
	}

	return result
}

// Redact replaces every accepted match in text. Overlapping matches are
// merged first. Without PreserveFormat each span becomes "[REDACTED]".
func (d *Detector) Redact(text string) string {
	result := d.Detect(text)
	if result.Count == 0 {
		return text
	}

	runes := []rune(text)
	spans := mergeSpans(result.Matches)

	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(string(runes[last:s.Start]))
		if d.preserveFormat {
			b.WriteString(d.mask(runes[s.Start:s.End]))
		} else {
			b.WriteString("[REDACTED]")
		}
		last = s.End
	}
	b.WriteString(string(runes[last:]))

	d.logger.WithFields(logrus.Fields{
		"pii_matches": len(result.Matches),
		"categories":  result.Categories,
		"text_length": len(text),
	}).Debug("PII detected and redacted")

	return b.String()
}

func (d *Detector) record(result *Result, category string, hits []patterns.Match) {
	if len(hits) == 0 {
		return
	}
	result.Count++
	result.Categories = append(result.Categories, category)
	for _, h := range hits {
		result.Matches = append(result.Matches, Match{Category: category, Start: h.Start, End: h.End, Text: h.Text})
	}
}

// find runs a pattern, treating an evaluation failure (such as a match
// timeout) as no match
func (d *Detector) find(p *patterns.Pattern, text string) []patterns.Match {
	hits, err := p.FindAll(text)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"pattern": p.Name,
			"error":   err,
		}).Warn("PII pattern evaluation failed, treating as no match")
		return nil
	}
	return hits
}

// acceptedPINs drops PIN candidates that are really part of personal
// information: a personal match overlaps the candidate and runs into the
// rest of its token, or the candidate text alone matches a personal pattern.
func (d *Detector) acceptedPINs(text []rune, candidates []patterns.Match, personalHits [][]patterns.Match) []patterns.Match {
	var accepted []patterns.Match
	for _, c := range candidates {
		if d.isPersonal(text, c, personalHits) {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

func (d *Detector) isPersonal(text []rune, candidate patterns.Match, personalHits [][]patterns.Match) bool {
	tokenStart, tokenEnd := tokenBounds(text, candidate)
	for _, hits := range personalHits {
		for _, h := range hits {
			if !candidate.Overlaps(h) {
				continue
			}
			if max(h.Start, tokenStart) < candidate.Start || min(h.End, tokenEnd) > candidate.End {
				return true
			}
		}
	}
	for _, p := range d.personal {
		if len(d.find(p, candidate.Text)) > 0 {
			return true
		}
	}
	return false
}

// tokenBounds widens a match to the token around it. A separator such as
// '-' joins the token only when a letter or digit lies beyond it, so
// trailing punctuation is left out.
func tokenBounds(text []rune, m patterns.Match) (int, int) {
	start, end := m.Start, m.End
	for start > 0 {
		r := text[start-1]
		if isWordRune(r) || (!unicode.IsSpace(r) && start > 1 && isWordRune(text[start-2])) {
			start--
			continue
		}
		break
	}
	for end < len(text) {
		r := text[end]
		if isWordRune(r) || (!unicode.IsSpace(r) && end+1 < len(text) && isWordRune(text[end+1])) {
			end++
			continue
		}
		break
	}
	return start, end
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// mask hides a span. Spans long enough to be card or phone numbers keep
// their separators and last four digits; shorter spans are fully masked
// apart from whitespace.
func (d *Detector) mask(runes []rune) string {
	totalDigits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			totalDigits++
		}
	}
	keepFormat := totalDigits > 2*visibleDigits

	var b strings.Builder
	digitCount := 0
	for _, r := range runes {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(r)
		case !keepFormat:
			b.WriteString(d.redactionChar)
		case unicode.IsDigit(r):
			digitCount++
			if digitCount > totalDigits-visibleDigits {
				b.WriteRune(r)
			} else {
				b.WriteString(d.redactionChar)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type span struct {
	Start, End int
}

func mergeSpans(matches []Match) []span {
	spans := make([]span, 0, len(matches))
	for _, m := range matches {
		if m.End > m.Start {
			spans = append(spans, span{m.Start, m.End})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})

	var merged []span
	for _, s := range spans {
		if n := len(merged); n > 0 && s.Start <= merged[n-1].End {
			if s.End > merged[n-1].End {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
