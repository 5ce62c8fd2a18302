package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/reporting"
	"conversation-analyzer/pkg/transcript"
)

type analyzeOptions struct {
	*options
	conversationID  string
	customerSpeaker string
	redact          bool
	summaryOnly     bool
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	a := &analyzeOptions{options: opts}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a conversation or a single line",
	}

	cmd.PersistentFlags().StringVar(&a.conversationID, "conversation-id", "", "conversation ID recorded in the report (default: generated)")
	cmd.PersistentFlags().BoolVar(&a.redact, "redact", false, "mask personal information in turn text")
	cmd.PersistentFlags().BoolVar(&a.summaryOnly, "summary", false, "print only the report summary")

	chatCmd := &cobra.Command{
		Use:   "chat <file|->",
		Short: "Analyze a JSON chat log",
		Long: `Analyze a JSON chat log. The input is either an array of turns or an
object with a "turns" array. Each turn carries a sender/speaker/role and a
text/message/content field.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runChat,
	}

	transcriptCmd := &cobra.Command{
		Use:   "transcript <file|->",
		Short: "Analyze a diarized transcript",
		Long: `Analyze a diarized transcript with one "<start> <end> <SPEAKER_n> <text>
[SENTIMENT:<label>]" entry per line. The speaker named by --customer-speaker
is treated as the customer; everyone else keeps their speaker label.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runTranscript,
	}
	transcriptCmd.Flags().StringVar(&a.customerSpeaker, "customer-speaker", "SPEAKER_01", "speaker label of the customer")

	lineCmd := &cobra.Command{
		Use:   "line <text>",
		Short: "Analyze a single line",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runLine,
	}

	cmd.AddCommand(chatCmd, transcriptCmd, lineCmd)
	return cmd
}

func (a *analyzeOptions) runChat(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	conversationID, turns, err := decodeTurns(data)
	if err != nil {
		return err
	}
	if a.conversationID != "" {
		conversationID = a.conversationID
	}
	return a.report(cmd, conversationID, turns)
}

func (a *analyzeOptions) runTranscript(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	lines, err := transcript.ReadLines(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return a.report(cmd, a.conversationID, conversation.FromTranscript(lines, a.customerSpeaker))
}

func (a *analyzeOptions) runLine(cmd *cobra.Command, args []string) error {
	analyzer, _, err := a.analyzer(cmd)
	if err != nil {
		return err
	}

	result := analyzer.AnalyzeLine(strings.Join(args, " "))
	if a.redact {
		result.Text = analyzer.Redact(result.Text)
	}
	return printJSON(cmd, result)
}

// report aggregates turns through a dispatcher and prints the envelope
func (a *analyzeOptions) report(cmd *cobra.Command, conversationID string, turns []conversation.Turn) error {
	analyzer, logger, err := a.analyzer(cmd)
	if err != nil {
		return err
	}

	dispatcher := newDispatcher(analyzer, logger, a.redact)
	envelope := dispatcher.Analyze(context.Background(), conversationID, turns)

	if a.summaryOnly {
		return printJSON(cmd, envelope.Summary)
	}
	return printJSON(cmd, envelope)
}

func newDispatcher(analyzer *analysis.Analyzer, logger *logrus.Logger, redact bool) *reporting.Dispatcher {
	dispatcher := reporting.NewDispatcher(logger, conversation.NewAggregator(analyzer, logger))
	if redact {
		dispatcher.SetRedactor(analyzer)
	}
	dispatcher.AddSubscriber(reporting.NewLogSubscriber(logger))
	return dispatcher
}

// decodeTurns accepts a bare turn array or an object with a turns array
func decodeTurns(data []byte) (string, []conversation.Turn, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var turns []conversation.Turn
		if err := json.Unmarshal(trimmed, &turns); err != nil {
			return "", nil, errors.NewInvalidTranscript(err.Error())
		}
		return "", turns, nil
	}

	var doc struct {
		ConversationID string               `json:"conversation_id"`
		Turns          *[]conversation.Turn `json:"turns"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return "", nil, errors.NewInvalidTranscript(err.Error())
	}
	if doc.Turns == nil {
		return "", nil, errors.NewInvalidTranscript("turns must be an array")
	}
	return doc.ConversationID, *doc.Turns, nil
}
