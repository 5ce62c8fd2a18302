// Package conversation folds an ordered sequence of turns through the turn
// analyzer into a speaker-partitioned report.
package conversation

import (
	"encoding/json"

	"conversation-analyzer/pkg/transcript"
)

// Speaker buckets. Every role other than "customer", including "agent" and
// an empty or missing role, is counted as non-customer.
const (
	SpeakerCustomer    = "customer"
	SpeakerNonCustomer = "non-customer"
)

var (
	speakerKeys = []string{"sender", "speaker", "role"}
	textKeys    = []string{"text", "message", "content"}
)

// Turn is one utterance of a conversation
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// UnmarshalJSON decodes a turn record leniently. The speaker is read from
// "sender", "speaker" or "role" and the text from "text", "message" or
// "content". Missing, null or mistyped fields decode as empty strings and a
// record that is not an object decodes as an empty turn.
func (t *Turn) UnmarshalJSON(data []byte) error {
	*t = Turn{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	t.Speaker = firstString(fields, speakerKeys)
	t.Text = firstString(fields, textKeys)
	return nil
}

func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}

// NormalizeSpeaker maps a raw role onto the two speaker buckets. Only the
// exact label "customer" is a customer; "Customer" or " customer" are not.
func NormalizeSpeaker(speaker string) string {
	if speaker == SpeakerCustomer {
		return SpeakerCustomer
	}
	return SpeakerNonCustomer
}

// FromTranscript turns diarized lines into conversation turns. Lines spoken
// by customerSpeaker become customer turns; every other speaker label is kept
// as is and counted as non-customer. Plain lines have no speaker.
func FromTranscript(lines []transcript.Line, customerSpeaker string) []Turn {
	turns := make([]Turn, 0, len(lines))
	for _, l := range lines {
		speaker := l.Speaker
		if l.Structured() && l.Speaker == customerSpeaker {
			speaker = SpeakerCustomer
		}
		turns = append(turns, Turn{Speaker: speaker, Text: l.Text})
	}
	return turns
}
