// Package transcript parses diarized transcript lines of the form
// "<start> <end> SPEAKER_<n> <text> [SENTIMENT:<label>]".
package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"conversation-analyzer/pkg/errors"
)

var lineRegex = regexp.MustCompile(`^(\d+\.\d+)\s+(\d+\.\d+)\s+(SPEAKER_\d+)\s+(.*?)(?:\s+SENTIMENT:(\w+))?$`)

// maxLineBytes caps a single transcript line read by ReadLines
const maxLineBytes = 1 << 20

// Line is one diarized transcript line
type Line struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Sentiment string  `json:"sentiment,omitempty"`
}

// Structured reports whether the line came from the diarized grammar
func (l Line) Structured() bool {
	return l.Speaker != ""
}

// ParseLine matches the structured grammar against the trimmed line.
// It returns false when the line is plain text.
func ParseLine(line string) (*Line, bool) {
	m := lineRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, false
	}

	start, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	end, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, false
	}

	return &Line{
		Start:     start,
		End:       end,
		Speaker:   m[3],
		Text:      m[4],
		Sentiment: strings.ToLower(m[5]),
	}, true
}

// ReadLines reads a whole transcript. Blank lines are skipped and lines that
// do not follow the grammar are kept as plain text with no speaker.
func ReadLines(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := make([]Line, 0)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if parsed, ok := ParseLine(raw); ok {
			lines = append(lines, *parsed)
			continue
		}
		lines = append(lines, Line{Text: raw})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading transcript").WithCode(errors.CodeInvalidTranscript)
	}
	return lines, nil
}
